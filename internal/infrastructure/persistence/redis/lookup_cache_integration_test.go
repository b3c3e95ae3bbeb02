//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/academic-erp/erp-backend/internal/domain/shared"
	"github.com/academic-erp/erp-backend/internal/domain/student"
	"github.com/academic-erp/erp-backend/pkg/circuitbreaker"
)

func startRedis(t *testing.T) *Cache {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	testcontainers.CleanupContainer(t, container)

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.URL = url
	cache, err := NewCache(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestLookupCache_Integration(t *testing.T) {
	cache := startRedis(t)
	lc := NewLookupCache(cache, circuitbreaker.CacheBreaker(nil))
	ctx := context.Background()

	_, err := lc.Student(ctx, 7)
	assert.ErrorIs(t, err, ErrCacheMiss)

	cgpa := 8.5
	s := &student.Student{ID: 7, RollNumber: "BT2024001", FirstName: "Asha", Email: "asha@example.edu", CGPA: &cgpa, Program: "B.Tech CSE"}
	require.NoError(t, lc.PutStudent(ctx, s))

	byID, err := lc.Student(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "BT2024001", byID.RollNumber)
	require.NotNil(t, byID.CGPA)
	assert.InDelta(t, 8.5, *byID.CGPA, 0.001)

	byRoll, err := lc.StudentByRoll(ctx, "bt2024001")
	require.NoError(t, err)
	assert.Equal(t, int64(7), byRoll.ID)

	ttl, err := cache.Client().TTL(ctx, StudentKey(7)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Minute)

	require.NoError(t, lc.PutDomains(ctx, []*student.Program{{ID: 1, Name: "B.Tech CSE", Capacity: 200}}))
	domains, err := lc.Domains(ctx)
	require.NoError(t, err)
	require.Len(t, domains, 1)

	require.NoError(t, lc.InvalidateDomains(ctx))
	_, err = lc.Domains(ctx)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, lc.Flush(ctx))
	ok, err := cache.Exists(ctx, StudentKey(7))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEventPublisher_Integration(t *testing.T) {
	cache := startRedis(t)
	ctx := context.Background()

	sub := cache.Subscribe(ctx, EventChannel(string(shared.EventStudentAdmitted)))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewEventPublisher(cache, time.Second)
	require.NoError(t, pub.Handle(shared.NewStudentAdmittedEvent(1, "BT2024001", "BT", "CSE", 2024, 1, 3)))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, "BT2024001")
}
