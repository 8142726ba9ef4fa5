package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-vitals/internal/models"

	"go.uber.org/zap"
)

// PostgresMessageRepository 医生留言仓库（patient_messages 表）
type PostgresMessageRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresMessageRepository 创建留言仓库
func NewPostgresMessageRepository(db *sql.DB, logger *zap.Logger) *PostgresMessageRepository {
	return &PostgresMessageRepository{
		db:     db,
		logger: logger,
	}
}

var _ MessageRepository = (*PostgresMessageRepository)(nil)

// SavePatientMessage 写入一条留言，status_flag=0 表示患者端尚未读取
func (r *PostgresMessageRepository) SavePatientMessage(ctx context.Context, msg *models.PatientMessage) error {
	if msg.DeviceOwner == "" {
		return fmt.Errorf("device_owner is required")
	}
	if msg.Message == "" {
		return fmt.Errorf("message is required")
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	query := `
		INSERT INTO patient_messages (patient_name, device_owner, message, status_flag, timestamp)
		VALUES ($1, $2, $3, $4, $5)
	`

	result, err := r.db.ExecContext(ctx, query,
		msg.PatientName,
		msg.DeviceOwner,
		msg.Message,
		msg.StatusFlag,
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert patient message: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}

	r.logger.Debug("Patient message saved",
		zap.String("device_owner", msg.DeviceOwner),
		zap.String("patient_name", msg.PatientName),
	)

	return nil
}
