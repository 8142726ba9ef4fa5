package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"wisefido-vitals/internal/aggregator"
	"wisefido-vitals/internal/config"
	"wisefido-vitals/internal/dispatch"
	"wisefido-vitals/internal/gateway"
	"wisefido-vitals/internal/metrics"
	"wisefido-vitals/internal/models"
	"wisefido-vitals/internal/poller"
	"wisefido-vitals/internal/repository"
	"wisefido-vitals/internal/session"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// MonitorService 医生实时监控服务
// 装配全部层（存储、聚合、会话、轮询、推送、网关）并承接 UI 事件
type MonitorService struct {
	cfg    *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client

	registry    *session.Registry
	hub         *gateway.Hub
	dispatcher  *dispatch.Dispatcher
	supervisor  *poller.Supervisor
	messageRepo repository.MessageRepository
	metrics     *metrics.Metrics
	handler     *gateway.Handler

	httpServer *http.Server

	// 轮询器的父上下文：服务停止时统一取消
	rootCtx    context.Context
	rootCancel context.CancelFunc
}

var _ gateway.EventSink = (*MonitorService)(nil)

// NewMonitorService 创建并装配监控服务
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdle)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Redis 不可用时降级为无缓存运行，不阻塞启动
	var kv dispatch.KVStore
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("Redis unavailable, payload cache disabled", zap.Error(err))
		_ = redisClient.Close()
		redisClient = nil
	} else {
		kv = dispatch.NewRedisKVStore(redisClient)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())

	svc := &MonitorService{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		registry:    session.NewRegistry(logger),
		hub:         gateway.NewHub(logger),
		messageRepo: repository.NewPostgresMessageRepository(db, logger),
		metrics:     metrics.New(),
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
	}

	svc.dispatcher = dispatch.NewDispatcher(
		svc.hub,
		kv,
		cfg.Monitor.Cache.KeyPrefix,
		time.Duration(cfg.Monitor.Cache.TTL)*time.Second,
		logger,
	)

	vitalsRepo := repository.NewPostgresVitalsRepository(db, logger)
	agg := aggregator.NewVitalsAggregator(vitalsRepo, cfg.Monitor.BucketSize, logger)

	svc.supervisor = poller.NewSupervisor(
		svc.registry,
		agg,
		repository.NewPostgresDeviceRepository(db, logger),
		repository.NewPostgresPatientRepository(db, logger),
		svc.dispatcher,
		svc.metrics,
		cfg.Monitor,
		logger,
	)

	svc.handler = gateway.NewHandler(svc.hub, svc, logger)

	return svc, nil
}

// Start 启动 HTTP/websocket 服务并阻塞到 ctx 取消或监听失败
func (s *MonitorService) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handler.HandleConnect)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", s.metrics.Handler(func() {
		s.metrics.SetActiveSessions(s.registry.SessionCount())
		s.metrics.SetConnectedClients(s.hub.ClientCount())
	}))

	if s.cfg.HTTP.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.HTTP.Addr,
		Handler: mux,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.HTTP.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return fmt.Errorf("http server failed: %w", err)
	}
}

// Stop 优雅停机：关 HTTP、取消全部轮询器、关闭存储连接
func (s *MonitorService) Stop() {
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP server shutdown error", zap.Error(err))
		}
	}

	s.rootCancel()

	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("Database close error", zap.Error(err))
	}

	s.logger.Info("Monitor service stopped")
}

// handleHealthz 健康检查：进程活着 + 数据库可达 + 缓存状态
func (s *MonitorService) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	cache := "disabled"
	if s.redisClient != nil {
		cache = "ok"
		if err := s.redisClient.Ping(r.Context()).Err(); err != nil {
			cache = "error"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   status,
		"cache":    cache,
		"sessions": s.registry.SessionCount(),
		"clients":  s.hub.ClientCount(),
	})
}

// ============================================
// gateway.EventSink 实现（UI 事件 → 业务动作）
// ============================================

// OnConnect 连接建立：登记会话（重连只替换连接 id，不动订阅与轮询器）
func (s *MonitorService) OnConnect(doctor models.DoctorIdentity, connectionID string) {
	s.registry.UpsertSession(doctor, connectionID)
	s.metrics.SetActiveSessions(s.registry.SessionCount())

	s.logger.Info("Doctor connected",
		zap.String("doctor", string(doctor)),
		zap.String("connection_id", connectionID),
	)
}

// OnGetPatientData 订阅替换：整体覆盖患者集、通知前端清掉被移除的卡片、
// 确保 KPI 轮询器在跑
func (s *MonitorService) OnGetPatientData(doctor models.DoctorIdentity, patients []models.PatientRef) {
	_, removed := s.registry.UpdateSubscription(doctor, patients)
	s.dispatcher.EmitRemoved(doctor, removed)
	s.supervisor.StartKPIPoller(s.rootCtx, doctor)
}

// OnUserInfo 页面声明：进入 dashboard 时启动报警轮询器
func (s *MonitorService) OnUserInfo(doctor models.DoctorIdentity, page string) {
	if page == "dashboard" {
		s.supervisor.StartCriticalPoller(s.rootCtx, doctor)
	}
}

// OnRejoin 重连恢复：有订阅就恢复 KPI 轮询，dashboard 页同时恢复报警轮询
func (s *MonitorService) OnRejoin(doctor models.DoctorIdentity, page string) {
	if patients, ok := s.registry.Subscription(doctor); ok && len(patients) > 0 {
		s.supervisor.StartKPIPoller(s.rootCtx, doctor)
	}
	if page == "dashboard" {
		s.supervisor.StartCriticalPoller(s.rootCtx, doctor)
	}
}

// OnDisconnect 连接断开：按连接 id 注销会话（旧连接的迟到断开是 no-op）
func (s *MonitorService) OnDisconnect(doctor models.DoctorIdentity, connectionID string) {
	removed := s.registry.RemoveSession(doctor, connectionID)
	s.metrics.SetActiveSessions(s.registry.SessionCount())

	if removed {
		s.logger.Info("Doctor disconnected",
			zap.String("doctor", string(doctor)),
			zap.String("connection_id", connectionID),
		)
	}
}

// OnSendPatientMessage 医生留言：落库后把结果推回医生房间
func (s *MonitorService) OnSendPatientMessage(doctor models.DoctorIdentity, ev models.SendPatientMessageEvent) {
	ctx, cancel := context.WithTimeout(s.rootCtx, 5*time.Second)
	defer cancel()

	msg := &models.PatientMessage{
		PatientName: ev.PatientName,
		DeviceOwner: ev.DeviceOwner,
		Message:     ev.Message,
		StatusFlag:  ev.PublishFlag,
		Timestamp:   time.Now(),
	}

	if err := s.messageRepo.SavePatientMessage(ctx, msg); err != nil {
		s.logger.Error("Failed to save patient message",
			zap.String("doctor", string(doctor)),
			zap.String("device_owner", ev.DeviceOwner),
			zap.Error(err),
		)
		s.dispatcher.EmitMessageSaved(doctor, "error", "Failed to save message", ev.PatientName)
		return
	}

	s.dispatcher.EmitMessageSaved(doctor, "success", "Message saved", ev.PatientName)
	s.metrics.IncEventsEmitted()
}
