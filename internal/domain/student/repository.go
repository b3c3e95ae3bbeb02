package student

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Read side only. Students are written exclusively by the admission unit of
// work (see package admission).
// ══════════════════════════════════════════════════════════════════════════════

// Repository reads admitted students.
type Repository interface {
	// GetByID returns shared.ErrNotFound when no student has the id.
	GetByID(ctx context.Context, id int64) (*Student, error)

	// GetByRollNumber matches case-insensitively.
	// Returns shared.ErrNotFound when no student holds the roll number.
	GetByRollNumber(ctx context.Context, rollNumber string) (*Student, error)

	// List returns students ordered by opts.
	List(ctx context.Context, opts ListOptions) ([]*Student, error)

	// Count returns the number of admitted students.
	Count(ctx context.Context) (int, error)
}

// ProgramRepository reads programs.
type ProgramRepository interface {
	// GetByID returns shared.ErrUnknownDomain when the program does not exist.
	GetByID(ctx context.Context, id int64) (*Program, error)

	// List returns all programs ordered by id.
	List(ctx context.Context) ([]*Program, error)
}

// ListOptions controls paging of student listings.
type ListOptions struct {
	Offset int
	Limit  int

	// JoinYear filters by admission year when non-zero.
	JoinYear int

	// DomainID filters by program when non-zero.
	DomainID int64

	// NewestFirst orders by student id descending.
	NewestFirst bool
}

// MaxListLimit bounds a single page.
const MaxListLimit = 500

// DefaultListOptions returns the first 50 students, newest first.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:       50,
		NewestFirst: true,
	}
}

// WithLimit sets the page size, clamped to [1, MaxListLimit].
func (o ListOptions) WithLimit(limit int) ListOptions {
	switch {
	case limit <= 0:
		o.Limit = DefaultListOptions().Limit
	case limit > MaxListLimit:
		o.Limit = MaxListLimit
	default:
		o.Limit = limit
	}
	return o
}

// WithOffset sets the page offset. Negative values are treated as zero.
func (o ListOptions) WithOffset(offset int) ListOptions {
	if offset < 0 {
		offset = 0
	}
	o.Offset = offset
	return o
}

// WithJoinYear filters by admission year.
func (o ListOptions) WithJoinYear(year int) ListOptions {
	o.JoinYear = year
	return o
}

// WithDomainID filters by program.
func (o ListOptions) WithDomainID(id int64) ListOptions {
	o.DomainID = id
	return o
}
