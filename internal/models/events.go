package models

// DoctorIdentity 医生身份（email）
// 跨重连保持稳定，同时作为推送房间名与会话注册表的键；
// 不允许用传输层连接 id 代替
type DoctorIdentity string

// 对外事件名（推送给医生房间的稳定契约）
const (
	EventUpdatePatientData   = "update_patient_data"
	EventPatientNotification = "patient_notification"
	EventRemovePatients      = "remove_patients"
	EventMessageSaved        = "message_saved"
)

// UI 端入站事件名
const (
	EventGetPatientData     = "get_patient_data"
	EventUserInfo           = "user_info"
	EventRejoin             = "rejoin"
	EventSendPatientMessage = "send_patient_message"
)

// GraphData update_patient_data 里的图表数据（AggregatedSeries + 归属标识）
type GraphData struct {
	Timestamps  []string   `json:"x"`
	HeartRate   []*float64 `json:"y_heart_rate"`
	SpO2        []*float64 `json:"y_spo2"`
	DeviceOwner string     `json:"device_owner"`
}

// UpdatePatientData KPI 刷新事件载荷
type UpdatePatientData struct {
	DeviceOwner    string         `json:"device_owner"`
	AvgTemp        *float64       `json:"avg_temp"`
	GraphData      GraphData      `json:"graph_data"`
	PersonalTraits PersonalTraits `json:"personal_traits"`
	MedicalHistory MedicalHistory `json:"medical_history"`
}

// PatientNotification 临床报警事件载荷（无数据的指标为 null）
type PatientNotification struct {
	DeviceOwner         string           `json:"device_owner"`
	TemperatureMetadata *SeverityReading `json:"temperature_metadata"`
	HeartrateMetadata   *SeverityReading `json:"heartrate_metadata"`
	Spo2Metadata        *SeverityReading `json:"spo2_metadata"`
}

// RemovePatients 订阅列表收缩事件载荷
type RemovePatients struct {
	RemovedPatients []string `json:"removed_patients"`
}

// MessageSaved 留言保存结果事件载荷
type MessageSaved struct {
	Status      string `json:"status"` // "success" 或 "error"
	Message     string `json:"message"`
	PatientName string `json:"patient_name"`
}

// 入站事件载荷
// ============================================

// PatientRef 医生订阅的单个患者引用
type PatientRef struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// GetPatientDataEvent get_patient_data 载荷
type GetPatientDataEvent struct {
	Email    string       `json:"email"`
	Patients []PatientRef `json:"patients"`
}

// UserInfoEvent user_info / rejoin 载荷
type UserInfoEvent struct {
	Email string `json:"email"`
	Page  string `json:"page"`
}

// SendPatientMessageEvent send_patient_message 载荷
type SendPatientMessageEvent struct {
	PatientName string `json:"patient_name"`
	Message     string `json:"message"`
	DeviceOwner string `json:"device_owner"`
	PublishFlag int    `json:"publish_flag"`
}
