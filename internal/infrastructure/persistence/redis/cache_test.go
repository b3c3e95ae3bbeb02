package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academic-erp/erp-backend/pkg/circuitbreaker"
)

func TestConfigOptions(t *testing.T) {
	opts, err := DefaultConfig().Options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 10, opts.PoolSize)

	cfg := DefaultConfig()
	cfg.URL = "redis://:secret@cache:6380/2"
	opts, err = cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	cfg.URL = "://bad"
	_, err = cfg.Options()
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "erp:student:42", StudentKey(42))
	assert.Equal(t, "erp:roll:BT2024001", RollKey("BT2024001"))
	assert.Equal(t, "erp:domains:all", DomainsKey())
	assert.Equal(t, "erp:events:student.admitted", EventChannel("student.admitted"))
}

func TestCache_RejectsEmptyKeyAndNil(t *testing.T) {
	c := NewCacheFromClient(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"}))
	defer c.Close()
	ctx := context.Background()

	assert.ErrorIs(t, c.Set(ctx, "", 1, time.Second), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, time.Second), ErrCacheNilValue)
	assert.ErrorIs(t, c.Get(ctx, "", new(int)), ErrCacheKeyEmpty)
	assert.NoError(t, c.Delete(ctx))
}

func TestLookupCache_OpenBreakerIsAMiss(t *testing.T) {
	// Nothing listens on port 1, so every call fails fast.
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	breaker := circuitbreaker.New("test",
		circuitbreaker.WithFailureThreshold(2),
		circuitbreaker.WithTimeout(time.Hour),
	)
	lc := NewLookupCache(NewCacheFromClient(client), breaker)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := lc.Student(ctx, 1)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrCacheMiss))
	}
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())

	_, err := lc.StudentByRoll(ctx, "BT2024001")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 1, breaker.Counts().Rejected)
}
