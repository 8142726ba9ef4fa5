package repository

import (
	"context"
	"time"

	"wisefido-vitals/internal/models"
)

// VitalsRepository 生命体征时序数据Repository接口（只读）
type VitalsRepository interface {
	// QueryVitals 查询设备在 since 之后的全部采样，按时间升序
	QueryVitals(ctx context.Context, deviceID string, since time.Time) ([]models.VitalsSample, error)
}

// DeviceRepository 设备与医生映射Repository接口
type DeviceRepository interface {
	// GetDevicesForDoctor 查询医生（email 为 device_mapping.doctor_id）名下的设备
	GetDevicesForDoctor(ctx context.Context, doctorID string) ([]models.Device, error)
}

// PatientRepository 患者档案Repository接口
type PatientRepository interface {
	// GetPatientProfile 查询患者个人信息与病史（owners JOIN medical_records）
	GetPatientProfile(ctx context.Context, ownerUsername string) (*models.PatientProfile, error)
}

// MessageRepository 医生留言Repository接口
type MessageRepository interface {
	// SavePatientMessage 写入一条 status_flag=0 的留言
	SavePatientMessage(ctx context.Context, msg *models.PatientMessage) error
}
