package models

import "time"

// VitalsSample 单条设备生命体征采样（从 health_data_records 读取，只读）
type VitalsSample struct {
	DeviceID    string
	Timestamp   time.Time
	HeartRate   *float64 // 心率（bpm），可能缺失
	SpO2        *float64 // 血氧饱和度（%），可能缺失
	Temperature *float64 // 体温（摄氏度），可能缺失
}

// Device 患者佩戴的监测设备
type Device struct {
	DeviceID    string
	DeviceType  string
	DeviceOwner string // 患者用户名（owners.owner_username）
}

// PersonalTraits 患者个人信息
type PersonalTraits struct {
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
}

// MedicalHistory 患者病史（medical_records 表）
type MedicalHistory struct {
	ChronicConditions string `json:"chronic_conditions"`
	FamilyHistory     string `json:"family_history"`
	Smoking           string `json:"smoking"`
	AlcoholUsage      string `json:"alcohol_usage"`
	Allergies         string `json:"allergies"`
	Medication        string `json:"medication"`
}

// PatientProfile 患者档案（owners + medical_records 合并）
type PatientProfile struct {
	Username       string
	PersonalTraits PersonalTraits
	MedicalHistory MedicalHistory
}

// PatientMessage 医生发给患者的留言（写入 patient_messages 表）
type PatientMessage struct {
	PatientName string
	DeviceOwner string
	Message     string
	StatusFlag  int // 0 = 未读取，1 = 患者端已处理
	Timestamp   time.Time
}
