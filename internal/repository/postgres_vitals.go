package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-vitals/internal/models"

	"go.uber.org/zap"
)

// health_data_records.timestamp 存的是字符串（采集端写入格式）
const recordTimeLayout = "2006-01-02 15:04:05"

// PostgresVitalsRepository 生命体征时序数据仓库
type PostgresVitalsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresVitalsRepository 创建生命体征仓库
func NewPostgresVitalsRepository(db *sql.DB, logger *zap.Logger) *PostgresVitalsRepository {
	return &PostgresVitalsRepository{
		db:     db,
		logger: logger,
	}
}

// 确保实现了接口
var _ VitalsRepository = (*PostgresVitalsRepository)(nil)

// QueryVitals 查询设备在 since 之后的采样，按时间升序
func (r *PostgresVitalsRepository) QueryVitals(ctx context.Context, deviceID string, since time.Time) ([]models.VitalsSample, error) {
	query := `
		SELECT
			device_id,
			heart_rate,
			temperature,
			spo2,
			timestamp
		FROM health_data_records
		WHERE device_id = $1
		  AND to_timestamp(timestamp, 'YYYY-MM-DD HH24:MI:SS') >= $2
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query vitals: %w", err)
	}
	defer rows.Close()

	var samples []models.VitalsSample
	for rows.Next() {
		var (
			sample      models.VitalsSample
			heartRate   sql.NullFloat64
			temperature sql.NullFloat64
			spo2        sql.NullFloat64
			rawTime     string
		)
		if err := rows.Scan(&sample.DeviceID, &heartRate, &temperature, &spo2, &rawTime); err != nil {
			return nil, fmt.Errorf("failed to scan vitals row: %w", err)
		}

		ts, err := time.ParseInLocation(recordTimeLayout, rawTime, time.Local)
		if err != nil {
			// 脏数据：跳过该行，不中断整个查询
			r.logger.Warn("Skipping vitals row with malformed timestamp",
				zap.String("device_id", deviceID),
				zap.String("timestamp", rawTime),
			)
			continue
		}
		sample.Timestamp = ts

		if heartRate.Valid {
			sample.HeartRate = &heartRate.Float64
		}
		if temperature.Valid {
			sample.Temperature = &temperature.Float64
		}
		if spo2.Valid {
			sample.SpO2 = &spo2.Float64
		}

		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vitals rows: %w", err)
	}

	return samples, nil
}
