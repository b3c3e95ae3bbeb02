package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academic-erp/erp-backend/internal/application/query"
	"github.com/academic-erp/erp-backend/internal/domain/admission"
	"github.com/academic-erp/erp-backend/internal/domain/student"
	"github.com/academic-erp/erp-backend/internal/infrastructure/persistence/memory"
)

type usage struct {
	used, remaining int
}

type fakeGauge struct {
	seen map[string]usage
	year int
}

func (g *fakeGauge) SetSeatUsage(program string, joinYear, used, remaining int) {
	if g.seen == nil {
		g.seen = make(map[string]usage)
	}
	g.year = joinYear
	g.seen[program] = usage{used: used, remaining: remaining}
}

type failingReporter struct{ err error }

func (f failingReporter) ListDomains(context.Context) ([]query.DomainView, error) {
	return nil, f.err
}

func (f failingReporter) AllocationReport(context.Context, query.AllocationReportQuery) (*query.AllocationReport, error) {
	return nil, f.err
}

func fixedNow() time.Time { return time.Date(2024, 8, 1, 9, 0, 0, 0, time.UTC) }

func newReporter(t *testing.T) (*memory.Store, *query.DomainQueries, map[string]int64) {
	t.Helper()
	store := memory.NewStore()
	_, err := store.Seed(context.Background(), student.DefaultPrograms())
	require.NoError(t, err)

	list, err := store.Programs().List(context.Background())
	require.NoError(t, err)
	ids := make(map[string]int64, len(list))
	for _, p := range list {
		ids[p.Name] = p.ID
	}

	q := query.NewDomainQueries(
		store.Programs(),
		store,
		admission.NewProgramClassifier(),
		admission.NewSequenceAllocator(admission.DefaultDepartmentRanges()),
		nil,
		nil,
	)
	return store, q, ids
}

func admit(t *testing.T, store *memory.Store, domainID int64, prefix admission.DegreePrefix, seq int, email string) {
	t.Helper()
	err := store.WithinAdmission(context.Background(), func(ctx context.Context, tx admission.Tx) error {
		return tx.InsertStudent(ctx, &student.Student{
			RollNumber:   admission.FormatRollNumber(prefix, 2024, seq),
			DegreePrefix: string(prefix),
			SeqNo:        seq,
			JoinYear:     2024,
			FirstName:    "Test",
			LastName:     "Student",
			Email:        email,
			DomainID:     domainID,
		})
	})
	require.NoError(t, err)
}

func TestSeatUsageJob_PublishesEveryProgram(t *testing.T) {
	store, q, ids := newReporter(t)
	admit(t, store, ids["B.Tech CSE"], admission.PrefixBTech, 1, "a@example.edu")
	admit(t, store, ids["B.Tech CSE"], admission.PrefixBTech, 2, "b@example.edu")
	admit(t, store, ids["B.Tech ECE"], admission.PrefixBTech, 501, "c@example.edu")
	store.AddProgram(student.Program{Name: "Diploma in Arts"})

	gauge := &fakeGauge{}
	job := NewSeatUsageJob(q, gauge, nil, SeatUsageConfig{Now: fixedNow})
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 2024, gauge.year)
	assert.Len(t, gauge.seen, len(student.DefaultPrograms()))
	assert.Equal(t, usage{used: 2, remaining: 198}, gauge.seen["B.Tech CSE"])
	assert.Equal(t, usage{used: 1, remaining: 99}, gauge.seen["B.Tech ECE"])
	assert.Equal(t, usage{used: 0, remaining: 100}, gauge.seen["IM.Tech AIDS"])
	assert.NotContains(t, gauge.seen, "Diploma in Arts")
}

func TestSeatUsageJob_WithoutGauge(t *testing.T) {
	_, q, _ := newReporter(t)
	job := NewSeatUsageJob(q, nil, nil, SeatUsageConfig{LowWatermark: 500, Now: fixedNow})
	assert.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "seat_usage", job.Name())
	assert.NotEmpty(t, job.Description())
}

func TestSeatUsageJob_ListFailure(t *testing.T) {
	boom := errors.New("connection refused")
	job := NewSeatUsageJob(failingReporter{err: boom}, &fakeGauge{}, nil, SeatUsageConfig{})
	err := job.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSeatUsageJob_StopsOnCancel(t *testing.T) {
	_, q, _ := newReporter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gauge := &fakeGauge{}
	err := NewSeatUsageJob(q, gauge, nil, SeatUsageConfig{Now: fixedNow}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, gauge.seen)
}
