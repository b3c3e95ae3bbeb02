package admission

import (
	"context"
	"fmt"

	"github.com/academic-erp/erp-backend/internal/domain/shared"
)

// AllocationKey scopes sequence uniqueness: one degree prefix, one
// department range, one join year.
type AllocationKey struct {
	Prefix   DegreePrefix
	Range    DepartmentRange
	JoinYear int
}

// String is stable and used as the advisory-lock key.
func (k AllocationKey) String() string {
	return fmt.Sprintf("%s:%04d:%s", k.Prefix, k.JoinYear, k.Range)
}

// RollBase returns the roll-number prefix shared by the key.
func (k AllocationKey) RollBase() string {
	return RollBase(k.Prefix, k.JoinYear)
}

// SequenceReader reads persisted allocations.
type SequenceReader interface {
	// MaxSequence returns the highest sequence stored for key's prefix and
	// join year with the sequence inside key.Range. found is false when
	// there is none.
	MaxSequence(ctx context.Context, key AllocationKey) (seq int, found bool, err error)
}

// SequenceAllocator computes the next free sequence within an allocation
// key. It does not serialize callers itself: AllocateNext must run inside a
// unit of work that holds the key's lock until the student row is written.
type SequenceAllocator struct {
	ranges *DepartmentRangeTable
}

// NewSequenceAllocator creates an allocator over ranges.
func NewSequenceAllocator(ranges *DepartmentRangeTable) *SequenceAllocator {
	return &SequenceAllocator{ranges: ranges}
}

// Ranges returns the injected range table.
func (a *SequenceAllocator) Ranges() *DepartmentRangeTable {
	return a.ranges
}

// KeyFor resolves the allocation key of a classified program.
func (a *SequenceAllocator) KeyFor(c Classification, joinYear int) (AllocationKey, error) {
	if joinYear < MinJoinYear || joinYear > MaxJoinYear {
		return AllocationKey{}, shared.NewValidationError("joinYear",
			fmt.Sprintf("joinYear must be between %d and %d", MinJoinYear, MaxJoinYear))
	}
	r, err := a.ranges.RangeFor(c.Department)
	if err != nil {
		return AllocationKey{}, err
	}
	return AllocationKey{Prefix: c.Prefix, Range: r, JoinYear: joinYear}, nil
}

// AllocateNext returns max+1, or key.Range.Start when the key is unused.
// A candidate past key.Range.End is a seat-range-exhausted error, which is
// final and must not be retried.
func (a *SequenceAllocator) AllocateNext(ctx context.Context, reader SequenceReader, key AllocationKey) (int, error) {
	last, found, err := reader.MaxSequence(ctx, key)
	if err != nil {
		return 0, err
	}
	if !found || last < key.Range.Start {
		last = key.Range.Start - 1
	}

	candidate := last + 1
	if candidate > key.Range.End {
		return 0, newSeatRangeExhaustedError(key)
	}
	return candidate, nil
}
