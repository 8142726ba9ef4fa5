package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupVitalsRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresVitalsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresVitalsRepository(db, zap.NewNop())
	return db, mock, repo
}

func TestQueryVitals_Success(t *testing.T) {
	db, mock, repo := setupVitalsRepo(t)
	defer db.Close()

	since := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)

	rows := sqlmock.NewRows([]string{"device_id", "heart_rate", "temperature", "spo2", "timestamp"}).
		AddRow("dev-1", 72.0, 36.5, 98.0, "2026-03-01 10:01:30").
		AddRow("dev-1", 75.0, nil, 97.0, "2026-03-01 10:03:00")

	mock.ExpectQuery(`SELECT\s+device_id`).
		WithArgs("dev-1", since).
		WillReturnRows(rows)

	samples, err := repo.QueryVitals(context.Background(), "dev-1", since)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, "dev-1", samples[0].DeviceID)
	require.NotNil(t, samples[0].HeartRate)
	assert.Equal(t, 72.0, *samples[0].HeartRate)
	require.NotNil(t, samples[0].Temperature)
	assert.Equal(t, 36.5, *samples[0].Temperature)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 1, 30, 0, time.Local), samples[0].Timestamp)

	// NULL 指标应映射为 nil，而不是 0
	assert.Nil(t, samples[1].Temperature)
	require.NotNil(t, samples[1].SpO2)
	assert.Equal(t, 97.0, *samples[1].SpO2)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryVitals_SkipsMalformedTimestamp(t *testing.T) {
	db, mock, repo := setupVitalsRepo(t)
	defer db.Close()

	since := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)

	rows := sqlmock.NewRows([]string{"device_id", "heart_rate", "temperature", "spo2", "timestamp"}).
		AddRow("dev-1", 72.0, 36.5, 98.0, "not-a-timestamp").
		AddRow("dev-1", 80.0, 36.8, 96.0, "2026-03-01 10:05:00")

	mock.ExpectQuery(`SELECT\s+device_id`).
		WithArgs("dev-1", since).
		WillReturnRows(rows)

	samples, err := repo.QueryVitals(context.Background(), "dev-1", since)
	require.NoError(t, err)

	// 脏行被跳过，其余行正常返回
	require.Len(t, samples, 1)
	assert.Equal(t, 80.0, *samples[0].HeartRate)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryVitals_EmptyResult(t *testing.T) {
	db, mock, repo := setupVitalsRepo(t)
	defer db.Close()

	since := time.Now().Add(-2 * time.Hour)

	mock.ExpectQuery(`SELECT\s+device_id`).
		WithArgs("dev-none", since).
		WillReturnRows(sqlmock.NewRows([]string{"device_id", "heart_rate", "temperature", "spo2", "timestamp"}))

	samples, err := repo.QueryVitals(context.Background(), "dev-none", since)
	require.NoError(t, err)
	assert.Len(t, samples, 0)

	assert.NoError(t, mock.ExpectationsWereMet())
}
