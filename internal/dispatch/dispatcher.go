package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-vitals/internal/models"

	"go.uber.org/zap"
)

// Emitter 房间推送原语（由 websocket 网关实现）
// 发送即忘：不等待确认、不重试，医生不在线时消息直接丢弃
type Emitter interface {
	EmitToRoom(room string, event string, payload interface{})
}

// Dispatcher 推送层
// 把命名事件发到医生身份对应的房间，并把 KPI 载荷缓存进 Redis
// （患者端与后续请求可以直接读缓存，不必等下一个轮询周期）
type Dispatcher struct {
	emitter   Emitter
	kv        KVStore
	keyPrefix string
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// NewDispatcher 创建推送层
func NewDispatcher(emitter Emitter, kv KVStore, keyPrefix string, cacheTTL time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		emitter:   emitter,
		kv:        kv,
		keyPrefix: keyPrefix,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

// EmitUpdate 推送 update_patient_data 并缓存载荷
func (d *Dispatcher) EmitUpdate(ctx context.Context, doctor models.DoctorIdentity, payload *models.UpdatePatientData) {
	d.emitter.EmitToRoom(string(doctor), models.EventUpdatePatientData, payload)

	if d.kv == nil {
		return
	}
	if err := d.cachePayload(ctx, payload.DeviceOwner, payload); err != nil {
		// 缓存失败不影响推送
		d.logger.Warn("Failed to cache patient payload",
			zap.String("device_owner", payload.DeviceOwner),
			zap.Error(err),
		)
	}
}

// EmitNotification 推送 patient_notification
func (d *Dispatcher) EmitNotification(doctor models.DoctorIdentity, payload *models.PatientNotification) {
	d.emitter.EmitToRoom(string(doctor), models.EventPatientNotification, payload)
}

// EmitRemoved 推送 remove_patients
func (d *Dispatcher) EmitRemoved(doctor models.DoctorIdentity, removed []string) {
	if len(removed) == 0 {
		return
	}
	d.emitter.EmitToRoom(string(doctor), models.EventRemovePatients, &models.RemovePatients{
		RemovedPatients: removed,
	})
}

// EmitMessageSaved 推送 message_saved（留言保存结果）
func (d *Dispatcher) EmitMessageSaved(doctor models.DoctorIdentity, status, message, patientName string) {
	d.emitter.EmitToRoom(string(doctor), models.EventMessageSaved, &models.MessageSaved{
		Status:      status,
		Message:     message,
		PatientName: patientName,
	})
}

// cachePayload 按患者用户名缓存最近一次 KPI 载荷
func (d *Dispatcher) cachePayload(ctx context.Context, deviceOwner string, payload *models.UpdatePatientData) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	key := d.keyPrefix + deviceOwner
	if err := d.kv.Set(ctx, key, string(data), d.cacheTTL); err != nil {
		return fmt.Errorf("failed to set cache key %s: %w", key, err)
	}
	return nil
}
