package poller

import (
	"context"
	"time"

	"wisefido-vitals/internal/aggregator"
	"wisefido-vitals/internal/config"
	"wisefido-vitals/internal/dispatch"
	"wisefido-vitals/internal/evaluator"
	"wisefido-vitals/internal/metrics"
	"wisefido-vitals/internal/models"
	"wisefido-vitals/internal/repository"
	"wisefido-vitals/internal/session"

	"go.uber.org/zap"
)

// Supervisor 轮询监督器
// 按医生会话启动/回收两类后台轮询循环：
//   - KPI 轮询：聚合订阅患者的生命体征并推送 update_patient_data
//   - 报警轮询：对近 1 分钟均值做分级并推送 patient_notification
//
// 启动权从会话注册表申请（Acquire），同一医生同一类型最多一个循环；
// 循环退出时释放存活标记（Release），取消信号由 RemoveSession 触发
type Supervisor struct {
	registry    *session.Registry
	aggregator  *aggregator.VitalsAggregator
	deviceRepo  repository.DeviceRepository
	patientRepo repository.PatientRepository
	dispatcher  *dispatch.Dispatcher
	metrics     *metrics.Metrics
	cfg         config.MonitorConfig
	logger      *zap.Logger
}

// NewSupervisor 创建轮询监督器
func NewSupervisor(
	registry *session.Registry,
	agg *aggregator.VitalsAggregator,
	deviceRepo repository.DeviceRepository,
	patientRepo repository.PatientRepository,
	dispatcher *dispatch.Dispatcher,
	m *metrics.Metrics,
	cfg config.MonitorConfig,
	logger *zap.Logger,
) *Supervisor {
	return &Supervisor{
		registry:    registry,
		aggregator:  agg,
		deviceRepo:  deviceRepo,
		patientRepo: patientRepo,
		dispatcher:  dispatcher,
		metrics:     m,
		cfg:         cfg,
		logger:      logger,
	}
}

// StartKPIPoller 启动医生的 KPI 轮询循环
// 已在运行或会话不存在时为 no-op（注册表裁决，不在这里判断）
func (s *Supervisor) StartKPIPoller(parent context.Context, doctor models.DoctorIdentity) {
	ctx, token, ok := s.registry.Acquire(parent, doctor, session.PollerKPI)
	if !ok {
		s.logger.Debug("KPI poller not started",
			zap.String("doctor", string(doctor)),
		)
		return
	}

	s.logger.Info("KPI poller started",
		zap.String("doctor", string(doctor)),
		zap.Duration("interval", s.cfg.KPIInterval),
	)

	go s.run(ctx, doctor, session.PollerKPI, token, s.cfg.KPIInterval, s.kpiCycle)
}

// StartCriticalPoller 启动医生的报警轮询循环
func (s *Supervisor) StartCriticalPoller(parent context.Context, doctor models.DoctorIdentity) {
	ctx, token, ok := s.registry.Acquire(parent, doctor, session.PollerCritical)
	if !ok {
		s.logger.Debug("Critical poller not started",
			zap.String("doctor", string(doctor)),
		)
		return
	}

	s.logger.Info("Critical poller started",
		zap.String("doctor", string(doctor)),
		zap.Duration("interval", s.cfg.CriticalInterval),
	)

	go s.run(ctx, doctor, session.PollerCritical, token, s.cfg.CriticalInterval, s.criticalCycle)
}

// run 通用轮询循环：立即跑一个周期，之后按 interval 触发
// 循环只在上下文取消时退出，单周期失败不终止循环
func (s *Supervisor) run(
	ctx context.Context,
	doctor models.DoctorIdentity,
	kind session.PollerKind,
	token session.PollerToken,
	interval time.Duration,
	cycle func(ctx context.Context, doctor models.DoctorIdentity),
) {
	defer s.registry.Release(doctor, kind, token)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		cycle(ctx, doctor)

		select {
		case <-ctx.Done():
			s.logger.Info("Poller stopped",
				zap.String("doctor", string(doctor)),
				zap.String("kind", string(kind)),
			)
			return
		case <-ticker.C:
		}
	}
}

// kpiCycle 单个 KPI 周期
// 每个周期重新读取订阅集（订阅中途变化无需重启轮询器）；
// 单设备失败记录日志后跳过，不影响同周期内其他设备
func (s *Supervisor) kpiCycle(ctx context.Context, doctor models.DoctorIdentity) {
	// 空转周期也计数：空订阅时循环仍然活着
	s.metrics.IncKPICycles()

	subscribed := s.subscribedSet(doctor)
	if len(subscribed) == 0 {
		return
	}

	devices, err := s.deviceRepo.GetDevicesForDoctor(ctx, string(doctor))
	if err != nil {
		s.logger.Error("Failed to load devices for KPI cycle",
			zap.String("doctor", string(doctor)),
			zap.Error(err),
		)
		return
	}

	for _, device := range devices {
		if _, ok := subscribed[device.DeviceOwner]; !ok {
			continue
		}
		if err := s.pushPatientUpdate(ctx, doctor, device); err != nil {
			s.metrics.IncDeviceErrors()
			s.logger.Error("Skipping device in KPI cycle",
				zap.String("doctor", string(doctor)),
				zap.String("device_id", device.DeviceID),
				zap.String("device_owner", device.DeviceOwner),
				zap.Error(err),
			)
		}
	}
}

// pushPatientUpdate 聚合单个患者的 KPI 并推送 update_patient_data
func (s *Supervisor) pushPatientUpdate(ctx context.Context, doctor models.DoctorIdentity, device models.Device) error {
	series, err := s.aggregator.Aggregate(ctx, device.DeviceID, s.cfg.FreshnessWindow)
	if err != nil {
		return err
	}
	avgTemp, err := s.aggregator.AverageScalar(ctx, device.DeviceID, s.cfg.FreshnessWindow, models.MetricTemperature)
	if err != nil {
		return err
	}
	profile, err := s.patientRepo.GetPatientProfile(ctx, device.DeviceOwner)
	if err != nil {
		return err
	}

	payload := &models.UpdatePatientData{
		DeviceOwner: device.DeviceOwner,
		AvgTemp:     avgTemp,
		GraphData: models.GraphData{
			Timestamps:  series.Timestamps,
			HeartRate:   series.HeartRate,
			SpO2:        series.SpO2,
			DeviceOwner: device.DeviceOwner,
		},
		PersonalTraits: profile.PersonalTraits,
		MedicalHistory: profile.MedicalHistory,
	}

	s.dispatcher.EmitUpdate(ctx, doctor, payload)
	s.metrics.IncEventsEmitted()
	return nil
}

// criticalCycle 单个报警周期
// 对订阅患者近 CriticalWindow 的三项指标均值做分级；
// 三项全部无数据时不推送（没有可报的内容）
func (s *Supervisor) criticalCycle(ctx context.Context, doctor models.DoctorIdentity) {
	s.metrics.IncCriticalCycles()

	subscribed := s.subscribedSet(doctor)
	if len(subscribed) == 0 {
		return
	}

	devices, err := s.deviceRepo.GetDevicesForDoctor(ctx, string(doctor))
	if err != nil {
		s.logger.Error("Failed to load devices for critical cycle",
			zap.String("doctor", string(doctor)),
			zap.Error(err),
		)
		return
	}

	for _, device := range devices {
		if _, ok := subscribed[device.DeviceOwner]; !ok {
			continue
		}
		if err := s.pushPatientNotification(ctx, doctor, device); err != nil {
			s.metrics.IncDeviceErrors()
			s.logger.Error("Skipping device in critical cycle",
				zap.String("doctor", string(doctor)),
				zap.String("device_id", device.DeviceID),
				zap.String("device_owner", device.DeviceOwner),
				zap.Error(err),
			)
		}
	}
}

// pushPatientNotification 分级单个患者的近期均值并推送 patient_notification
func (s *Supervisor) pushPatientNotification(ctx context.Context, doctor models.DoctorIdentity, device models.Device) error {
	notification := &models.PatientNotification{
		DeviceOwner: device.DeviceOwner,
	}

	for _, metric := range []models.Metric{models.MetricTemperature, models.MetricHeartRate, models.MetricSpO2} {
		avg, err := s.aggregator.AverageScalar(ctx, device.DeviceID, s.cfg.CriticalWindow, metric)
		if err != nil {
			return err
		}
		if avg == nil {
			continue
		}
		reading := evaluator.Classify(metric, *avg)
		switch metric {
		case models.MetricTemperature:
			notification.TemperatureMetadata = &reading
		case models.MetricHeartRate:
			notification.HeartrateMetadata = &reading
		case models.MetricSpO2:
			notification.Spo2Metadata = &reading
		}
	}

	if notification.TemperatureMetadata == nil &&
		notification.HeartrateMetadata == nil &&
		notification.Spo2Metadata == nil {
		return nil
	}

	s.dispatcher.EmitNotification(doctor, notification)
	s.metrics.IncEventsEmitted()
	return nil
}

// subscribedSet 读取医生当前订阅的患者用户名集合
func (s *Supervisor) subscribedSet(doctor models.DoctorIdentity) map[string]struct{} {
	patients, ok := s.registry.Subscription(doctor)
	if !ok {
		return nil
	}
	set := make(map[string]struct{}, len(patients))
	for _, p := range patients {
		set[p.Username] = struct{}{}
	}
	return set
}
