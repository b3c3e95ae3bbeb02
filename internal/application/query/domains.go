package query

import (
	"context"
	"fmt"

	"github.com/academic-erp/erp-backend/internal/domain/admission"
	"github.com/academic-erp/erp-backend/internal/domain/shared"
	"github.com/academic-erp/erp-backend/internal/domain/student"
	"github.com/academic-erp/erp-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN QUERIES
// Lists programs and reports how much of a program's roll-number range has
// been consumed for a join year.
// ══════════════════════════════════════════════════════════════════════════════

// DomainCache caches the program list.
type DomainCache interface {
	Domains(ctx context.Context) ([]*student.Program, error)
	PutDomains(ctx context.Context, programs []*student.Program) error
}

// DomainView is the public representation of a program.
type DomainView struct {
	DomainID      int64  `json:"domainId"`
	Program       string `json:"program"`
	Batch         string `json:"batch,omitempty"`
	Capacity      int    `json:"capacity"`
	Qualification string `json:"qualification,omitempty"`
}

// NewDomainView converts a program entity.
func NewDomainView(p *student.Program) DomainView {
	return DomainView{
		DomainID:      p.ID,
		Program:       p.Name,
		Batch:         p.Batch,
		Capacity:      p.Capacity,
		Qualification: p.Qualification,
	}
}

// AllocationReportQuery selects the allocation key of a program and year.
type AllocationReportQuery struct {
	DomainID int64
	JoinYear int
}

// Validate checks the identifiers.
func (q AllocationReportQuery) Validate() error {
	verr := &shared.ValidationError{}
	if q.DomainID <= 0 {
		verr.Fields = append(verr.Fields, shared.FieldError{Field: "domainId", Error: "must be positive"})
	}
	if q.JoinYear < admission.MinJoinYear || q.JoinYear > admission.MaxJoinYear {
		verr.Fields = append(verr.Fields, shared.FieldError{
			Field: "year",
			Error: fmt.Sprintf("must be between %d and %d", admission.MinJoinYear, admission.MaxJoinYear),
		})
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// AllocationReport summarizes the usage of one allocation key.
type AllocationReport struct {
	DomainID   int64  `json:"domainId"`
	Program    string `json:"program"`
	Prefix     string `json:"degreePrefix"`
	Department string `json:"department"`
	JoinYear   int    `json:"joinYear"`

	RangeStart int `json:"rangeStart"`
	RangeEnd   int `json:"rangeEnd"`

	// Used counts issued sequences. LastSeq is the highest one, 0 when none.
	Used      int  `json:"used"`
	LastSeq   int  `json:"lastSeq"`
	Remaining int  `json:"remaining"`
	Exhausted bool `json:"exhausted"`

	// NextRollNumber is what the next admission would receive, empty when
	// the range is exhausted. It is not reserved.
	NextRollNumber string `json:"nextRollNumber,omitempty"`
}

// DomainQueries serves program reads.
type DomainQueries struct {
	programs   student.ProgramRepository
	usage      admission.UsageReader
	classifier *admission.ProgramClassifier
	allocator  *admission.SequenceAllocator
	cache      DomainCache
	log        *logger.Logger
}

// NewDomainQueries wires the program read side. cache and log may be nil.
func NewDomainQueries(
	programs student.ProgramRepository,
	usage admission.UsageReader,
	classifier *admission.ProgramClassifier,
	allocator *admission.SequenceAllocator,
	cache DomainCache,
	log *logger.Logger,
) *DomainQueries {
	if log == nil {
		log = logger.Nop()
	}
	return &DomainQueries{
		programs:   programs,
		usage:      usage,
		classifier: classifier,
		allocator:  allocator,
		cache:      cache,
		log:        log.With(logger.Component("domain_queries")),
	}
}

// ListDomains returns every program ordered by id.
func (q *DomainQueries) ListDomains(ctx context.Context) ([]DomainView, error) {
	programs, ok := q.cachedDomains(ctx)
	if !ok {
		var err error
		programs, err = q.programs.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list_domains: %w", err)
		}
		if q.cache != nil {
			if err := q.cache.PutDomains(ctx, programs); err != nil {
				q.log.Warn("domain cache write failed", logger.Err(err))
			}
		}
	}

	out := make([]DomainView, 0, len(programs))
	for _, p := range programs {
		out = append(out, NewDomainView(p))
	}
	return out, nil
}

func (q *DomainQueries) cachedDomains(ctx context.Context) ([]*student.Program, bool) {
	if q.cache == nil {
		return nil, false
	}
	programs, err := q.cache.Domains(ctx)
	if err != nil {
		q.log.Debug("domain cache skipped", logger.Err(err))
		return nil, false
	}
	return programs, true
}

// AllocationReport reports the usage of the key that admissions into the
// program for the year draw from. Programs that cannot be classified yield
// the same errors an admission would.
func (q *DomainQueries) AllocationReport(ctx context.Context, query AllocationReportQuery) (*AllocationReport, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("allocation_report: %w", err)
	}

	prog, err := q.programs.GetByID(ctx, query.DomainID)
	if err != nil {
		return nil, fmt.Errorf("allocation_report: %w", err)
	}
	cls, err := q.classifier.Classify(prog.Name)
	if err != nil {
		return nil, fmt.Errorf("allocation_report: %w", err)
	}
	key, err := q.allocator.KeyFor(cls, query.JoinYear)
	if err != nil {
		return nil, fmt.Errorf("allocation_report: %w", err)
	}

	usage, err := admission.Usage(ctx, q.usage, key)
	if err != nil {
		return nil, fmt.Errorf("allocation_report: %w", admission.NewStorageError("AllocationReport", err))
	}

	report := &AllocationReport{
		DomainID:   prog.ID,
		Program:    prog.Name,
		Prefix:     string(key.Prefix),
		Department: string(key.Range.Department),
		JoinYear:   key.JoinYear,
		RangeStart: key.Range.Start,
		RangeEnd:   key.Range.End,
		Used:       usage.Used,
		LastSeq:    usage.MaxSeq,
		Remaining:  usage.Remaining,
		Exhausted:  usage.Exhausted,
	}
	if !usage.Exhausted {
		next := key.Range.Start
		if usage.MaxSeq >= key.Range.Start {
			next = usage.MaxSeq + 1
		}
		report.NextRollNumber = admission.FormatRollNumber(key.Prefix, key.JoinYear, next)
	}
	return report, nil
}
