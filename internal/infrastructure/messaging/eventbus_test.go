package messaging

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academic-erp/erp-backend/internal/domain/shared"
)

type countingBusMetrics struct {
	published atomic.Int64
	handled   atomic.Int64
	failed    atomic.Int64
}

func (m *countingBusMetrics) ObserveEventPublished(string) { m.published.Add(1) }

func (m *countingBusMetrics) ObserveEventHandled(_ string, _ time.Duration, err error) {
	m.handled.Add(1)
	if err != nil {
		m.failed.Add(1)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func admitted(roll string) shared.Event {
	return shared.NewStudentAdmittedEvent(1, roll, "BT", "CSE", 2024, 1, 1)
}

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	metrics := &countingBusMetrics{}
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: quietLogger(), Metrics: metrics})

	var typed, all []string
	require.NoError(t, bus.Subscribe(shared.EventStudentAdmitted, func(e shared.Event) error {
		typed = append(typed, e.(shared.StudentAdmittedEvent).RollNumber)
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, string(e.EventType()))
		return nil
	}))

	require.NoError(t, bus.Publish(admitted("BT2024001")))
	require.NoError(t, bus.Publish(shared.NewSeatRangeExhaustedEvent("BT:2024:CSE[1-200]", "B.Tech CSE", "CSE", 2024, 200)))

	assert.Equal(t, []string{"BT2024001"}, typed)
	assert.Equal(t, []string{"student.admitted", "allocation.range_exhausted"}, all)
	assert.Equal(t, int64(2), metrics.published.Load())
	assert.Equal(t, int64(3), metrics.handled.Load())
}

func TestInMemoryEventBus_HandlerFailuresAreContained(t *testing.T) {
	metrics := &countingBusMetrics{}
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: quietLogger(), Metrics: metrics})

	called := false
	require.NoError(t, bus.Subscribe(shared.EventStudentAdmitted, func(shared.Event) error { panic("boom") }))
	require.NoError(t, bus.Subscribe(shared.EventStudentAdmitted, func(shared.Event) error { return errors.New("nope") }))
	require.NoError(t, bus.Subscribe(shared.EventStudentAdmitted, func(shared.Event) error {
		called = true
		return nil
	}))

	assert.NoError(t, bus.Publish(admitted("BT2024001")))
	assert.True(t, called)
	assert.Equal(t, int64(2), metrics.failed.Load())
}

func TestInMemoryEventBus_AsyncDeliveryCompletesBeforeClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2, Logger: quietLogger()})

	var (
		mu    sync.Mutex
		rolls []string
	)
	require.NoError(t, bus.Subscribe(shared.EventStudentAdmitted, func(e shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		rolls = append(rolls, e.(shared.StudentAdmittedEvent).RollNumber)
		return nil
	}))

	for _, r := range []string{"BT2024001", "BT2024002", "BT2024003"} {
		require.NoError(t, bus.Publish(admitted(r)))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(rolls) == 3
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Close())
}

func TestInMemoryEventBus_Closed(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: quietLogger()})
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(admitted("BT2024001")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventStudentAdmitted, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_RejectsNil(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{Logger: quietLogger()})

	assert.Error(t, bus.Subscribe(shared.EventStudentAdmitted, nil))
	assert.Error(t, bus.SubscribeAll(nil))
	assert.Error(t, bus.Publish(nil))
}
