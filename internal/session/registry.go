package session

import (
	"context"
	"sync"

	"wisefido-vitals/internal/models"

	"go.uber.org/zap"
)

// PollerKind 轮询器类型
type PollerKind string

const (
	PollerKPI      PollerKind = "kpi"
	PollerCritical PollerKind = "critical"
)

// PollerToken 轮询器的代际令牌，Acquire 时铸造
// Release 必须出示同一令牌：断开→重连后，旧循环迟到的 Release
// 不能清掉新循环的存活标记
type PollerToken uint64

// entry 单个医生的会话状态
// 两类轮询器相互独立：任意一个可以单独运行
type entry struct {
	connectionID string
	patients     []models.PatientRef

	kpiRunning  bool
	kpiCancel   context.CancelFunc
	kpiToken    PollerToken
	critRunning bool
	critCancel  context.CancelFunc
	critToken   PollerToken
}

// Registry 进程级会话注册表
// 医生身份 → {连接 id、订阅患者集、轮询器存活标记与取消信号}；
// 所有读改写序列都在同一把锁内完成，避免重复启动轮询器的竞态
type Registry struct {
	mu        sync.Mutex
	sessions  map[models.DoctorIdentity]*entry
	lastToken PollerToken
	logger    *zap.Logger
}

// NewRegistry 创建会话注册表
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[models.DoctorIdentity]*entry),
		logger:   logger,
	}
}

// UpsertSession 登记（或刷新）医生当前的传输连接 id
// 首次连接时创建会话条目；重连时仅替换连接 id，订阅与轮询器保持不变
func (r *Registry) UpsertSession(doctor models.DoctorIdentity, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[doctor]
	if !ok {
		e = &entry{}
		r.sessions[doctor] = e
	}
	e.connectionID = connectionID

	r.logger.Debug("Session upserted",
		zap.String("doctor", string(doctor)),
		zap.String("connection_id", connectionID),
	)
}

// UpdateSubscription 整体替换医生的订阅患者集（从不逐字段合并）
// 返回是否新建了会话条目，以及旧集合中被移除的患者用户名；
// remove_patients 事件由调用方经 Dispatch 层发出，注册表本身不做推送
func (r *Registry) UpdateSubscription(doctor models.DoctorIdentity, patients []models.PatientRef) (created bool, removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[doctor]
	if !ok {
		e = &entry{}
		r.sessions[doctor] = e
		created = true
	}

	newSet := make(map[string]struct{}, len(patients))
	for _, p := range patients {
		newSet[p.Username] = struct{}{}
	}
	for _, p := range e.patients {
		if _, stillThere := newSet[p.Username]; !stillThere {
			removed = append(removed, p.Username)
		}
	}

	e.patients = append([]models.PatientRef(nil), patients...)

	r.logger.Debug("Subscription replaced",
		zap.String("doctor", string(doctor)),
		zap.Int("patient_count", len(patients)),
		zap.Strings("removed", removed),
	)

	return created, removed
}

// RemoveSession 注销医生会话并触发两类轮询器的取消信号
// 仅当 connectionID 与记录中的一致才生效：迟到的旧连接 disconnect
// 不能摧毁更新的会话（浏览器刷新场景），此时为幂等 no-op
func (r *Registry) RemoveSession(doctor models.DoctorIdentity, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[doctor]
	if !ok {
		return false
	}
	if e.connectionID != connectionID {
		r.logger.Debug("Ignoring stale disconnect",
			zap.String("doctor", string(doctor)),
			zap.String("stale_connection_id", connectionID),
			zap.String("current_connection_id", e.connectionID),
		)
		return false
	}

	if e.kpiCancel != nil {
		e.kpiCancel()
	}
	if e.critCancel != nil {
		e.critCancel()
	}
	delete(r.sessions, doctor)

	r.logger.Info("Session removed",
		zap.String("doctor", string(doctor)),
		zap.String("connection_id", connectionID),
	)
	return true
}

// Subscription 读取医生当前订阅的患者集副本
func (r *Registry) Subscription(doctor models.DoctorIdentity) ([]models.PatientRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[doctor]
	if !ok {
		return nil, false
	}
	return append([]models.PatientRef(nil), e.patients...), true
}

// Acquire 申请启动一个轮询器：设置存活标记、派生可取消的上下文并
// 铸造代际令牌。已在运行或会话不存在时返回 ok=false；
// 检查与置位在同一临界区内，保证同一 (doctor, kind) 最多一个在运行的循环
func (r *Registry) Acquire(parent context.Context, doctor models.DoctorIdentity, kind PollerKind) (context.Context, PollerToken, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[doctor]
	if !ok {
		return nil, 0, false
	}

	switch kind {
	case PollerKPI:
		if e.kpiRunning {
			return nil, 0, false
		}
		ctx, cancel := context.WithCancel(parent)
		r.lastToken++
		e.kpiRunning = true
		e.kpiCancel = cancel
		e.kpiToken = r.lastToken
		return ctx, r.lastToken, true
	case PollerCritical:
		if e.critRunning {
			return nil, 0, false
		}
		ctx, cancel := context.WithCancel(parent)
		r.lastToken++
		e.critRunning = true
		e.critCancel = cancel
		e.critToken = r.lastToken
		return ctx, r.lastToken, true
	default:
		return nil, 0, false
	}
}

// Release 清除轮询器存活标记（循环退出时调用）
// 仅当令牌仍是该槽位当前持有者时生效：会话被删除、或断开→重连后
// 新循环已经接管槽位时，旧循环迟到的 Release 是 no-op
func (r *Registry) Release(doctor models.DoctorIdentity, kind PollerKind, token PollerToken) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[doctor]
	if !ok {
		return
	}

	switch kind {
	case PollerKPI:
		if !e.kpiRunning || e.kpiToken != token {
			return
		}
		e.kpiRunning = false
		e.kpiCancel = nil
	case PollerCritical:
		if !e.critRunning || e.critToken != token {
			return
		}
		e.critRunning = false
		e.critCancel = nil
	}
}

// IsRunning 查询某类轮询器是否在运行（注册表事实，不是对 goroutine 的猜测）
func (r *Registry) IsRunning(doctor models.DoctorIdentity, kind PollerKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[doctor]
	if !ok {
		return false
	}
	switch kind {
	case PollerKPI:
		return e.kpiRunning
	case PollerCritical:
		return e.critRunning
	default:
		return false
	}
}

// SessionCount 当前会话数（健康检查与指标用）
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ConnectionID 读取医生当前连接 id（测试与诊断用）
func (r *Registry) ConnectionID(doctor models.DoctorIdentity) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[doctor]
	if !ok {
		return "", false
	}
	return e.connectionID, true
}
