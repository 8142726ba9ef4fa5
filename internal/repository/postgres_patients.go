package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-vitals/internal/models"

	"go.uber.org/zap"
)

// PostgresPatientRepository 患者档案仓库（owners JOIN medical_records）
type PostgresPatientRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresPatientRepository 创建患者档案仓库
func NewPostgresPatientRepository(db *sql.DB, logger *zap.Logger) *PostgresPatientRepository {
	return &PostgresPatientRepository{
		db:     db,
		logger: logger,
	}
}

var _ PatientRepository = (*PostgresPatientRepository)(nil)

// GetPatientProfile 查询患者个人信息与病史
// 注意：medical_records 里过敏字段的列名是历史遗留的 "allerges"
func (r *PostgresPatientRepository) GetPatientProfile(ctx context.Context, ownerUsername string) (*models.PatientProfile, error) {
	if ownerUsername == "" {
		return nil, fmt.Errorf("owner_username is required")
	}

	query := `
		SELECT
			o.owner_username,
			o.owner_name,
			o.age,
			o.gender,
			COALESCE(m.chronic_conditions, ''),
			COALESCE(m.family_history, ''),
			COALESCE(m.smoking, ''),
			COALESCE(m.alcohol_usage, ''),
			COALESCE(m.allerges, ''),
			COALESCE(m.medication, '')
		FROM owners o
		LEFT JOIN medical_records m ON m.medical_history_record_id = o.medical_history_record_id
		WHERE o.owner_username = $1
	`

	var profile models.PatientProfile
	err := r.db.QueryRowContext(ctx, query, ownerUsername).Scan(
		&profile.Username,
		&profile.PersonalTraits.Name,
		&profile.PersonalTraits.Age,
		&profile.PersonalTraits.Gender,
		&profile.MedicalHistory.ChronicConditions,
		&profile.MedicalHistory.FamilyHistory,
		&profile.MedicalHistory.Smoking,
		&profile.MedicalHistory.AlcoholUsage,
		&profile.MedicalHistory.Allergies,
		&profile.MedicalHistory.Medication,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("patient not found: %s", ownerUsername)
		}
		return nil, fmt.Errorf("failed to query patient profile: %w", err)
	}

	return &profile, nil
}
