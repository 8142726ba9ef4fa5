package session

import (
	"context"
	"sync"
	"testing"

	"wisefido-vitals/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const doctor = models.DoctorIdentity("d@x.com")

func patients(usernames ...string) []models.PatientRef {
	refs := make([]models.PatientRef, 0, len(usernames))
	for _, u := range usernames {
		refs = append(refs, models.PatientRef{Username: u, DisplayName: u})
	}
	return refs
}

func TestUpdateSubscription_CreatesEntry(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	created, removed := r.UpdateSubscription(doctor, patients("alice", "bob"))
	assert.True(t, created)
	assert.Empty(t, removed)

	subs, ok := r.Subscription(doctor)
	require.True(t, ok)
	assert.Len(t, subs, 2)
}

func TestUpdateSubscription_DiffRemoved(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	r.UpdateSubscription(doctor, patients("alice", "bob"))
	created, removed := r.UpdateSubscription(doctor, patients("bob"))
	assert.False(t, created)
	assert.Equal(t, []string{"alice"}, removed)
}

func TestUpdateSubscription_Idempotent(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	r.UpdateSubscription(doctor, patients("alice", "bob"))
	_, removed := r.UpdateSubscription(doctor, patients("alice", "bob"))
	assert.Empty(t, removed)
	_, removed = r.UpdateSubscription(doctor, patients("alice", "bob"))
	assert.Empty(t, removed)
}

func TestAcquire_NoDuplicatePoller(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.UpsertSession(doctor, "conn-1")

	ctx, token, ok := r.Acquire(context.Background(), doctor, PollerKPI)
	require.True(t, ok)
	require.NotNil(t, ctx)

	// 第二次申请必须失败：同一 (doctor, kind) 只允许一个循环
	_, _, ok = r.Acquire(context.Background(), doctor, PollerKPI)
	assert.False(t, ok)

	// 另一类轮询器相互独立
	_, _, ok = r.Acquire(context.Background(), doctor, PollerCritical)
	assert.True(t, ok)

	r.Release(doctor, PollerKPI, token)
	_, _, ok = r.Acquire(context.Background(), doctor, PollerKPI)
	assert.True(t, ok)
}

func TestAcquire_ConcurrentRace_OnlyOneWins(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.UpsertSession(doctor, "conn-1")

	const attempts = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, ok := r.Acquire(context.Background(), doctor, PollerKPI); ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestRemoveSession_CancelsPollers(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.UpsertSession(doctor, "conn-1")

	kpiCtx, _, ok := r.Acquire(context.Background(), doctor, PollerKPI)
	require.True(t, ok)
	critCtx, _, ok := r.Acquire(context.Background(), doctor, PollerCritical)
	require.True(t, ok)

	removed := r.RemoveSession(doctor, "conn-1")
	assert.True(t, removed)

	// 两个取消信号都已触发
	select {
	case <-kpiCtx.Done():
	default:
		t.Fatal("kpi context not cancelled")
	}
	select {
	case <-critCtx.Done():
	default:
		t.Fatal("critical context not cancelled")
	}

	_, ok = r.Subscription(doctor)
	assert.False(t, ok)
}

func TestRemoveSession_StaleConnectionID_NoOp(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.UpsertSession(doctor, "conn-old")

	// 浏览器刷新：新连接先注册
	r.UpsertSession(doctor, "conn-new")
	kpiCtx, _, ok := r.Acquire(context.Background(), doctor, PollerKPI)
	require.True(t, ok)

	// 旧连接的 disconnect 迟到，必须是 no-op
	removed := r.RemoveSession(doctor, "conn-old")
	assert.False(t, removed)

	select {
	case <-kpiCtx.Done():
		t.Fatal("live poller cancelled by stale disconnect")
	default:
	}

	connID, ok := r.ConnectionID(doctor)
	require.True(t, ok)
	assert.Equal(t, "conn-new", connID)
	assert.True(t, r.IsRunning(doctor, PollerKPI))
}

func TestRemoveSession_UnknownDoctor(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	assert.False(t, r.RemoveSession("ghost@x.com", "conn-1"))
}

func TestAcquire_NoSession(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	_, _, ok := r.Acquire(context.Background(), doctor, PollerKPI)
	assert.False(t, ok)
}

func TestRelease_StaleTokenAfterReconnect_NoOp(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.UpsertSession(doctor, "conn-1")

	// 旧循环启动后会话被注销
	_, oldToken, ok := r.Acquire(context.Background(), doctor, PollerKPI)
	require.True(t, ok)
	require.True(t, r.RemoveSession(doctor, "conn-1"))

	// 医生重连，新循环在旧循环退出前抢先接管槽位
	r.UpsertSession(doctor, "conn-2")
	newCtx, _, ok := r.Acquire(context.Background(), doctor, PollerKPI)
	require.True(t, ok)

	// 旧循环迟到的 Release 不能清掉新循环的存活标记
	r.Release(doctor, PollerKPI, oldToken)
	assert.True(t, r.IsRunning(doctor, PollerKPI))

	// 槽位仍被占用：不能再申请到第二个 KPI 循环
	_, _, ok = r.Acquire(context.Background(), doctor, PollerKPI)
	assert.False(t, ok)

	// 新循环仍可被 RemoveSession 取消
	require.True(t, r.RemoveSession(doctor, "conn-2"))
	select {
	case <-newCtx.Done():
	default:
		t.Fatal("new poller context not cancelled after session removal")
	}
}

func TestSubscription_ReturnsCopy(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.UpdateSubscription(doctor, patients("alice"))

	subs, ok := r.Subscription(doctor)
	require.True(t, ok)
	subs[0].Username = "mutated"

	subsAgain, _ := r.Subscription(doctor)
	assert.Equal(t, "alice", subsAgain[0].Username)
}
