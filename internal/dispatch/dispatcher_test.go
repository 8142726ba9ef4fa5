package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"wisefido-vitals/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEmitter 记录推送调用（仅用于单元测试）
type fakeEmitter struct {
	mu     sync.Mutex
	events []emittedEvent
}

type emittedEvent struct {
	room    string
	event   string
	payload interface{}
}

func (f *fakeEmitter) EmitToRoom(room, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emittedEvent{room: room, event: event, payload: payload})
}

func (f *fakeEmitter) all() []emittedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emittedEvent(nil), f.events...)
}

// fakeKV 内存 KV（仅用于单元测试）
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (f *fakeKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func TestEmitUpdate_EmitsAndCaches(t *testing.T) {
	emitter := &fakeEmitter{}
	kv := newFakeKV()
	d := NewDispatcher(emitter, kv, "vitals:patient:", 100*time.Second, zap.NewNop())

	avg := 36.75
	payload := &models.UpdatePatientData{
		DeviceOwner: "alice",
		AvgTemp:     &avg,
		GraphData:   models.GraphData{DeviceOwner: "alice"},
	}
	d.EmitUpdate(context.Background(), "d@x.com", payload)

	events := emitter.all()
	require.Len(t, events, 1)
	assert.Equal(t, "d@x.com", events[0].room)
	assert.Equal(t, models.EventUpdatePatientData, events[0].event)

	cached, err := kv.Get(context.Background(), "vitals:patient:alice")
	require.NoError(t, err)

	var roundTrip models.UpdatePatientData
	require.NoError(t, json.Unmarshal([]byte(cached), &roundTrip))
	require.NotNil(t, roundTrip.AvgTemp)
	assert.Equal(t, 36.75, *roundTrip.AvgTemp)
}

func TestEmitRemoved_SkipsEmptyList(t *testing.T) {
	emitter := &fakeEmitter{}
	d := NewDispatcher(emitter, nil, "", 0, zap.NewNop())

	d.EmitRemoved("d@x.com", nil)
	assert.Empty(t, emitter.all())

	d.EmitRemoved("d@x.com", []string{"alice"})
	events := emitter.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventRemovePatients, events[0].event)

	removed, ok := events[0].payload.(*models.RemovePatients)
	require.True(t, ok)
	assert.Equal(t, []string{"alice"}, removed.RemovedPatients)
}

func TestEmitNotification(t *testing.T) {
	emitter := &fakeEmitter{}
	d := NewDispatcher(emitter, nil, "", 0, zap.NewNop())

	d.EmitNotification("d@x.com", &models.PatientNotification{DeviceOwner: "bob"})
	events := emitter.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventPatientNotification, events[0].event)
	assert.Equal(t, "d@x.com", events[0].room)
}

func TestEmitMessageSaved(t *testing.T) {
	emitter := &fakeEmitter{}
	d := NewDispatcher(emitter, nil, "", 0, zap.NewNop())

	d.EmitMessageSaved("d@x.com", "success", "Message saved", "Alice Doe")
	events := emitter.all()
	require.Len(t, events, 1)

	saved, ok := events[0].payload.(*models.MessageSaved)
	require.True(t, ok)
	assert.Equal(t, "success", saved.Status)
	assert.Equal(t, "Alice Doe", saved.PatientName)
}
