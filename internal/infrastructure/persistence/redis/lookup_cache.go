package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/academic-erp/erp-backend/internal/domain/student"
	"github.com/academic-erp/erp-backend/pkg/circuitbreaker"
)

// LookupCache caches student and program reads behind a circuit breaker.
// While the breaker is open every call returns ErrCacheMiss without
// touching Redis, so readers go straight to the database.
type LookupCache struct {
	cache      *Cache
	breaker    *circuitbreaker.CircuitBreaker
	studentTTL time.Duration
	domainsTTL time.Duration
}

// NewLookupCache uses the default TTLs. breaker may be nil.
func NewLookupCache(cache *Cache, breaker *circuitbreaker.CircuitBreaker) *LookupCache {
	return &LookupCache{
		cache:      cache,
		breaker:    breaker,
		studentTTL: TTLStudent,
		domainsTTL: TTLDomains,
	}
}

// Breaker returns the breaker guarding Redis, or nil.
func (l *LookupCache) Breaker() *circuitbreaker.CircuitBreaker {
	return l.breaker
}

// guard runs fn through the breaker. A miss is a success as far as the
// breaker is concerned.
func (l *LookupCache) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.breaker == nil {
		return fn(ctx)
	}

	var miss bool
	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, ErrCacheMiss) {
			miss = true
			return nil
		}
		return err
	})
	switch {
	case miss:
		return ErrCacheMiss
	case circuitbreaker.IsRejected(err):
		return ErrCacheMiss
	}
	return err
}

// Student returns the cached student with id.
func (l *LookupCache) Student(ctx context.Context, id int64) (*student.Student, error) {
	var s student.Student
	if err := l.guard(ctx, func(ctx context.Context) error {
		return l.cache.Get(ctx, StudentKey(id), &s)
	}); err != nil {
		return nil, err
	}
	return &s, nil
}

// StudentByRoll returns the cached student holding roll, in any case.
func (l *LookupCache) StudentByRoll(ctx context.Context, roll string) (*student.Student, error) {
	var s student.Student
	if err := l.guard(ctx, func(ctx context.Context) error {
		return l.cache.Get(ctx, RollKey(strings.ToUpper(strings.TrimSpace(roll))), &s)
	}); err != nil {
		return nil, err
	}
	return &s, nil
}

// PutStudent caches s under its id and its roll number.
func (l *LookupCache) PutStudent(ctx context.Context, s *student.Student) error {
	if s == nil {
		return ErrCacheNilValue
	}
	return l.guard(ctx, func(ctx context.Context) error {
		return l.cache.MSet(ctx, map[string]any{
			StudentKey(s.ID):                       s,
			RollKey(strings.ToUpper(s.RollNumber)): s,
		}, l.studentTTL)
	})
}

// Domains returns the cached program list.
func (l *LookupCache) Domains(ctx context.Context) ([]*student.Program, error) {
	var out []*student.Program
	if err := l.guard(ctx, func(ctx context.Context) error {
		return l.cache.Get(ctx, DomainsKey(), &out)
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// PutDomains caches the program list.
func (l *LookupCache) PutDomains(ctx context.Context, programs []*student.Program) error {
	if programs == nil {
		programs = []*student.Program{}
	}
	return l.guard(ctx, func(ctx context.Context) error {
		return l.cache.Set(ctx, DomainsKey(), programs, l.domainsTTL)
	})
}

// InvalidateDomains drops the cached program list.
func (l *LookupCache) InvalidateDomains(ctx context.Context) error {
	return l.guard(ctx, func(ctx context.Context) error {
		return l.cache.Delete(ctx, DomainsKey())
	})
}

// Flush drops every key the service wrote.
func (l *LookupCache) Flush(ctx context.Context) error {
	return l.guard(ctx, func(ctx context.Context) error {
		return l.cache.DeleteByPattern(ctx, keyspace+"*")
	})
}
