package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控服务的 Prometheus 指标
type Metrics struct {
	registry            *prometheus.Registry
	kpiCyclesTotal      prometheus.Counter
	criticalCyclesTotal prometheus.Counter
	deviceErrorsTotal   prometheus.Counter
	eventsEmittedTotal  prometheus.Counter
	activeSessions      prometheus.Gauge
	connectedClients    prometheus.Gauge
}

// New 创建并注册指标
func New() *Metrics {
	registry := prometheus.NewRegistry()

	kpiCyclesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vitals_kpi_cycles_total",
		Help: "Total number of completed KPI poller cycles",
	})
	criticalCyclesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vitals_critical_cycles_total",
		Help: "Total number of completed critical-condition poller cycles",
	})
	deviceErrorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vitals_device_errors_total",
		Help: "Total number of per-device failures skipped inside poller cycles",
	})
	eventsEmittedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vitals_events_emitted_total",
		Help: "Total number of events pushed to doctor rooms",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vitals_active_sessions",
		Help: "Number of doctor sessions currently registered",
	})
	connectedClients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vitals_connected_clients",
		Help: "Number of websocket clients currently connected",
	})

	registry.MustRegister(
		kpiCyclesTotal,
		criticalCyclesTotal,
		deviceErrorsTotal,
		eventsEmittedTotal,
		activeSessions,
		connectedClients,
	)

	return &Metrics{
		registry:            registry,
		kpiCyclesTotal:      kpiCyclesTotal,
		criticalCyclesTotal: criticalCyclesTotal,
		deviceErrorsTotal:   deviceErrorsTotal,
		eventsEmittedTotal:  eventsEmittedTotal,
		activeSessions:      activeSessions,
		connectedClients:    connectedClients,
	}
}

// IncKPICycles KPI 周期计数 +1
func (m *Metrics) IncKPICycles() {
	m.kpiCyclesTotal.Inc()
}

// IncCriticalCycles 报警周期计数 +1
func (m *Metrics) IncCriticalCycles() {
	m.criticalCyclesTotal.Inc()
}

// IncDeviceErrors 单设备失败计数 +1
func (m *Metrics) IncDeviceErrors() {
	m.deviceErrorsTotal.Inc()
}

// IncEventsEmitted 推送事件计数 +1
func (m *Metrics) IncEventsEmitted() {
	m.eventsEmittedTotal.Inc()
}

// SetActiveSessions 设置会话数
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// SetConnectedClients 设置连接数
func (m *Metrics) SetConnectedClients(n int) {
	m.connectedClients.Set(float64(n))
}

// Handler 返回 /metrics 的 http.Handler
// updateGauges 在每次抓取前刷新 gauge（如当前会话数）
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
