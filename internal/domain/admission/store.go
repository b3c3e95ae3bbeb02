package admission

import (
	"context"

	"github.com/academic-erp/erp-backend/internal/domain/student"
)

// Tx is the view of the store available inside one admission unit of work.
// Every method takes part in the same transaction. Either all writes commit
// together or none do.
type Tx interface {
	SequenceReader

	// FindProgram returns an unknown-domain error when id does not exist.
	FindProgram(ctx context.Context, id int64) (*student.Program, error)

	// EmailExists reports whether a student already holds email.
	EmailExists(ctx context.Context, email string) (bool, error)

	// LockKey blocks until the caller holds the exclusive lock of key.
	// The lock is released when the unit of work ends, commit or rollback.
	LockKey(ctx context.Context, key AllocationKey) error

	// InsertStudent persists s and sets its ID and CreatedAt. A collision on
	// the sequence or roll number is an allocation-conflict error. A collision
	// on email is a duplicate-email error.
	InsertStudent(ctx context.Context, s *student.Student) error
}

// UnitOfWork runs fn in a fresh transaction. A nil return commits, and any
// error rolls back and is returned unchanged, as is a panic (after rollback).
// Store failures are reported as storage errors.
type UnitOfWork interface {
	WithinAdmission(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// AllocationUsage summarizes how much of a key is consumed.
type AllocationUsage struct {
	Key       AllocationKey
	Used      int
	MaxSeq    int
	Remaining int
	Exhausted bool
}

// UsageReader reports allocation usage outside a transaction.
type UsageReader interface {
	SequenceReader

	// CountSequences counts stored sequences of key within key.Range.
	CountSequences(ctx context.Context, key AllocationKey) (int, error)
}

// Usage computes the usage summary of key from r.
func Usage(ctx context.Context, r UsageReader, key AllocationKey) (AllocationUsage, error) {
	used, err := r.CountSequences(ctx, key)
	if err != nil {
		return AllocationUsage{}, err
	}
	maxSeq, found, err := r.MaxSequence(ctx, key)
	if err != nil {
		return AllocationUsage{}, err
	}
	if !found {
		maxSeq = 0
	}

	remaining := key.Range.End - maxSeq
	if !found {
		remaining = key.Range.Size()
	}
	if remaining < 0 {
		remaining = 0
	}

	return AllocationUsage{
		Key:       key,
		Used:      used,
		MaxSeq:    maxSeq,
		Remaining: remaining,
		Exhausted: remaining == 0,
	}, nil
}
