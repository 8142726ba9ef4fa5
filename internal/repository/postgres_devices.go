package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-vitals/internal/models"

	"go.uber.org/zap"
)

// PostgresDeviceRepository 设备仓库（devices JOIN device_mapping）
type PostgresDeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresDeviceRepository 创建设备仓库
func NewPostgresDeviceRepository(db *sql.DB, logger *zap.Logger) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{
		db:     db,
		logger: logger,
	}
}

var _ DeviceRepository = (*PostgresDeviceRepository)(nil)

// GetDevicesForDoctor 查询医生名下的全部设备
func (r *PostgresDeviceRepository) GetDevicesForDoctor(ctx context.Context, doctorID string) ([]models.Device, error) {
	if doctorID == "" {
		return nil, fmt.Errorf("doctor_id is required")
	}

	query := `
		SELECT
			d.device_id,
			d.device_type,
			d.device_owner
		FROM devices d
		JOIN device_mapping m ON m.device_id = d.device_id
		WHERE m.doctor_id = $1
		ORDER BY d.device_owner ASC
	`

	rows, err := r.db.QueryContext(ctx, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices for doctor: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.DeviceID, &d.DeviceType, &d.DeviceOwner); err != nil {
			return nil, fmt.Errorf("failed to scan device row: %w", err)
		}
		devices = append(devices, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate device rows: %w", err)
	}

	return devices, nil
}
