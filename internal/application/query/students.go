// Package query contains the read operations of the service.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/academic-erp/erp-backend/internal/domain/admission"
	"github.com/academic-erp/erp-backend/internal/domain/shared"
	"github.com/academic-erp/erp-backend/internal/domain/student"
	"github.com/academic-erp/erp-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT QUERIES
// Lists and looks up admitted students. Single-student lookups go through an
// optional cache. The cache is best effort: any cache error falls through to
// the repository.
// ══════════════════════════════════════════════════════════════════════════════

// StudentCache is the read-through cache of single students.
type StudentCache interface {
	Student(ctx context.Context, id int64) (*student.Student, error)
	StudentByRoll(ctx context.Context, roll string) (*student.Student, error)
	PutStudent(ctx context.Context, s *student.Student) error
}

// StudentView is the public representation of a student.
type StudentView struct {
	StudentID      int64     `json:"studentId"`
	RollNumber     string    `json:"rollNumber"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Email          string    `json:"email"`
	PhotographPath string    `json:"photographPath,omitempty"`
	DomainID       int64     `json:"domainId"`
	Program        string    `json:"program"`
	JoinYear       int       `json:"joinYear"`
	TotalCredits   int       `json:"totalCredits"`
	CGPA           *float64  `json:"cgpa,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewStudentView converts a student entity.
func NewStudentView(s *student.Student) StudentView {
	return StudentView{
		StudentID:      s.ID,
		RollNumber:     s.RollNumber,
		FirstName:      s.FirstName,
		LastName:       s.LastName,
		Email:          s.Email,
		PhotographPath: s.PhotographPath,
		DomainID:       s.DomainID,
		Program:        s.Program,
		JoinYear:       s.JoinYear,
		TotalCredits:   s.TotalCredits,
		CGPA:           s.CGPA,
		CreatedAt:      s.CreatedAt,
	}
}

// ListStudentsQuery selects one page of students, newest first.
type ListStudentsQuery struct {
	Limit    int
	Offset   int
	JoinYear int
	DomainID int64
}

// Validate rejects negative paging and out-of-range year filters.
func (q ListStudentsQuery) Validate() error {
	verr := &shared.ValidationError{}
	if q.Limit < 0 {
		verr.Fields = append(verr.Fields, shared.FieldError{Field: "limit", Error: "must not be negative"})
	}
	if q.Offset < 0 {
		verr.Fields = append(verr.Fields, shared.FieldError{Field: "offset", Error: "must not be negative"})
	}
	if q.JoinYear != 0 && (q.JoinYear < admission.MinJoinYear || q.JoinYear > admission.MaxJoinYear) {
		verr.Fields = append(verr.Fields, shared.FieldError{
			Field: "year",
			Error: fmt.Sprintf("must be between %d and %d", admission.MinJoinYear, admission.MaxJoinYear),
		})
	}
	if q.DomainID < 0 {
		verr.Fields = append(verr.Fields, shared.FieldError{Field: "domainId", Error: "must be positive"})
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func (q ListStudentsQuery) options() student.ListOptions {
	return student.DefaultListOptions().
		WithLimit(q.Limit).
		WithOffset(q.Offset).
		WithJoinYear(q.JoinYear).
		WithDomainID(q.DomainID)
}

// StudentPage is one page of a listing. Total counts every admitted student.
type StudentPage struct {
	Students []StudentView `json:"students"`
	Total    int           `json:"total"`
	Limit    int           `json:"limit"`
	Offset   int           `json:"offset"`
}

// StudentQueries serves student reads.
type StudentQueries struct {
	repo  student.Repository
	cache StudentCache
	log   *logger.Logger
}

// NewStudentQueries wires the student read side. cache and log may be nil.
func NewStudentQueries(repo student.Repository, cache StudentCache, log *logger.Logger) *StudentQueries {
	if log == nil {
		log = logger.Nop()
	}
	return &StudentQueries{
		repo:  repo,
		cache: cache,
		log:   log.With(logger.Component("student_queries")),
	}
}

// ListStudents returns one page of students, newest first.
func (q *StudentQueries) ListStudents(ctx context.Context, query ListStudentsQuery) (*StudentPage, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("list_students: %w", err)
	}
	opts := query.options()

	list, err := q.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list_students: %w", err)
	}
	total, err := q.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("list_students: count: %w", err)
	}

	page := &StudentPage{
		Students: make([]StudentView, 0, len(list)),
		Total:    total,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	}
	for _, s := range list {
		page.Students = append(page.Students, NewStudentView(s))
	}
	return page, nil
}

// GetStudent returns the student with id or a not-found error.
func (q *StudentQueries) GetStudent(ctx context.Context, id int64) (*StudentView, error) {
	if id <= 0 {
		return nil, fmt.Errorf("get_student: %w", shared.NewValidationError("id", "must be positive"))
	}

	if s := q.fromCache(func(c StudentCache) (*student.Student, error) { return c.Student(ctx, id) }); s != nil {
		view := NewStudentView(s)
		return &view, nil
	}

	s, err := q.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get_student: %w", err)
	}
	q.remember(ctx, s)

	view := NewStudentView(s)
	return &view, nil
}

// GetStudentByRoll looks a student up by roll number in any case. A string
// that cannot be a roll number is a validation error.
func (q *StudentQueries) GetStudentByRoll(ctx context.Context, roll string) (*StudentView, error) {
	parsed, err := admission.ParseRollNumber(roll)
	if err != nil {
		return nil, fmt.Errorf("get_student_by_roll: %w", err)
	}
	canonical := parsed.String()

	if s := q.fromCache(func(c StudentCache) (*student.Student, error) { return c.StudentByRoll(ctx, canonical) }); s != nil {
		view := NewStudentView(s)
		return &view, nil
	}

	s, err := q.repo.GetByRollNumber(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("get_student_by_roll: %w", err)
	}
	q.remember(ctx, s)

	view := NewStudentView(s)
	return &view, nil
}

func (q *StudentQueries) fromCache(get func(StudentCache) (*student.Student, error)) *student.Student {
	if q.cache == nil {
		return nil
	}
	s, err := get(q.cache)
	if err != nil {
		// Misses and Redis failures look the same here.
		q.log.Debug("student cache skipped", logger.Err(err))
		return nil
	}
	return s
}

func (q *StudentQueries) remember(ctx context.Context, s *student.Student) {
	if q.cache == nil || s == nil {
		return
	}
	if err := q.cache.PutStudent(ctx, s); err != nil {
		q.log.Warn("student cache write failed", logger.StudentID(s.ID), logger.Err(err))
	}
}
