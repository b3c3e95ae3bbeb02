package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("redis down")

func failing(context.Context) error { return errDown }
func ok(context.Context) error      { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	var transitions []State
	cb := New("test", WithFailureThreshold(2), WithOnStateChange(func(_ string, _, to State) {
		transitions = append(transitions, to)
	}))
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, failing), errDown)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, failing), errDown)
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(ctx, ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejected(err))
	assert.Equal(t, 1, cb.Counts().Rejected)
	assert.Equal(t, []State{StateOpen}, transitions)
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := New("test", WithFailureThreshold(1), WithSuccessThreshold(1), WithTimeout(time.Second))
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := New("test", WithFailureThreshold(1), WithTimeout(time.Second))
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, failing))
	now = now.Add(2 * time.Second)
	require.ErrorIs(t, cb.Execute(ctx, failing), errDown)

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
}

func TestBreaker_IsFailureFilter(t *testing.T) {
	miss := errors.New("cache miss")
	cb := New("test", WithFailureThreshold(1), WithIsFailure(func(err error) bool {
		return !errors.Is(err, miss)
	}))

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return miss })
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestExecute_SuccessIsCounted(t *testing.T) {
	cb := CacheBreaker(nil)
	v := 0
	err := cb.Execute(context.Background(), func(context.Context) error { v = 42; return nil })

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, "redis-cache", cb.Name())
	assert.Equal(t, 1, cb.Counts().TotalSuccesses)

	cb.Reset()
	assert.Equal(t, Counts{}, cb.Counts())
}

func TestCacheBreaker_IgnoresCancellation(t *testing.T) {
	cb := CacheBreaker(nil)
	canceled := func(context.Context) error { return context.Canceled }

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), canceled)
	}
	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), failing)
	}
	assert.Equal(t, StateOpen, cb.State())
}
