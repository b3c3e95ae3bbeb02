package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/academic-erp/erp-backend/internal/domain/admission"
	"github.com/academic-erp/erp-backend/internal/domain/shared"
	"github.com/academic-erp/erp-backend/internal/domain/student"
	"github.com/academic-erp/erp-backend/internal/infrastructure/persistence/memory"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURES
// ══════════════════════════════════════════════════════════════════════════════

type fakeCache struct {
	mu       sync.Mutex
	students map[string]*student.Student
	domains  []*student.Program
	fail     error
	puts     int
}

func newFakeCache() *fakeCache {
	return &fakeCache{students: make(map[string]*student.Student)}
}

func (c *fakeCache) get(key string) (*student.Student, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	s, ok := c.students[key]
	if !ok {
		return nil, errors.New("miss")
	}
	cp := *s
	return &cp, nil
}

func (c *fakeCache) Student(_ context.Context, id int64) (*student.Student, error) {
	return c.get(fmt.Sprintf("id:%d", id))
}

func (c *fakeCache) StudentByRoll(_ context.Context, roll string) (*student.Student, error) {
	return c.get("roll:" + roll)
}

func (c *fakeCache) PutStudent(_ context.Context, s *student.Student) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.puts++
	cp := *s
	c.students[fmt.Sprintf("id:%d", s.ID)] = &cp
	c.students["roll:"+s.RollNumber] = &cp
	return nil
}

func (c *fakeCache) Domains(context.Context) ([]*student.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	if c.domains == nil {
		return nil, errors.New("miss")
	}
	return c.domains, nil
}

func (c *fakeCache) PutDomains(_ context.Context, programs []*student.Program) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.puts++
	c.domains = programs
	return nil
}

func newCatalogStore(t *testing.T) (*memory.Store, map[string]int64) {
	t.Helper()
	s := memory.NewStore()
	_, err := s.Seed(context.Background(), student.DefaultPrograms())
	require.NoError(t, err)

	list, err := s.Programs().List(context.Background())
	require.NoError(t, err)
	ids := make(map[string]int64, len(list))
	for _, p := range list {
		ids[p.Name] = p.ID
	}
	return s, ids
}

func insert(t *testing.T, s *memory.Store, domainID int64, prefix admission.DegreePrefix, seq int, email string) {
	t.Helper()
	err := s.WithinAdmission(context.Background(), func(ctx context.Context, tx admission.Tx) error {
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

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT QUERIES
// ══════════════════════════════════════════════════════════════════════════════

func TestListStudents_NewestFirstWithPaging(t *testing.T) {
	store, ids := newCatalogStore(t)
	for i := 1; i <= 5; i++ {
		insert(t, store, ids["B.Tech CSE"], admission.PrefixBTech, i, fmt.Sprintf("s%d@example.edu", i))
	}
	q := NewStudentQueries(store, nil, nil)

	page, err := q.ListStudents(context.Background(), ListStudentsQuery{Limit: 2, Offset: 1})
	require.NoError(t, err)

	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 1, page.Offset)
	require.Len(t, page.Students, 2)
	assert.Equal(t, "BT2024004", page.Students[0].RollNumber)
	assert.Equal(t, "BT2024003", page.Students[1].RollNumber)
	assert.Equal(t, "B.Tech CSE", page.Students[0].Program)
}

func TestListStudents_DefaultsAndFilters(t *testing.T) {
	store, ids := newCatalogStore(t)
	insert(t, store, ids["B.Tech CSE"], admission.PrefixBTech, 1, "a@example.edu")
	insert(t, store, ids["B.Tech ECE"], admission.PrefixBTech, 501, "b@example.edu")
	q := NewStudentQueries(store, nil, nil)

	page, err := q.ListStudents(context.Background(), ListStudentsQuery{})
	require.NoError(t, err)
	assert.Equal(t, student.DefaultListOptions().Limit, page.Limit)
	assert.Len(t, page.Students, 2)

	page, err = q.ListStudents(context.Background(), ListStudentsQuery{DomainID: ids["B.Tech ECE"]})
	require.NoError(t, err)
	require.Len(t, page.Students, 1)
	assert.Equal(t, "BT2024501", page.Students[0].RollNumber)
}

func TestListStudents_RejectsBadPaging(t *testing.T) {
	store, _ := newCatalogStore(t)
	q := NewStudentQueries(store, nil, nil)

	_, err := q.ListStudents(context.Background(), ListStudentsQuery{Limit: -1, Offset: -3, JoinYear: 1999})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
}

func TestGetStudent(t *testing.T) {
	store, ids := newCatalogStore(t)
	insert(t, store, ids["M.Tech CSE"], admission.PrefixMTech, 1, "m@example.edu")
	q := NewStudentQueries(store, nil, nil)

	page, err := q.ListStudents(context.Background(), ListStudentsQuery{})
	require.NoError(t, err)
	id := page.Students[0].StudentID

	got, err := q.GetStudent(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "MT2024001", got.RollNumber)

	_, err = q.GetStudent(context.Background(), id+1000)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = q.GetStudent(context.Background(), 0)
	assert.True(t, shared.IsValidation(err))
}

func TestGetStudentByRoll_CaseInsensitive(t *testing.T) {
	store, ids := newCatalogStore(t)
	insert(t, store, ids["B.Tech CSE"], admission.PrefixBTech, 7, "r@example.edu")
	q := NewStudentQueries(store, nil, nil)

	got, err := q.GetStudentByRoll(context.Background(), " bt2024007 ")
	require.NoError(t, err)
	assert.Equal(t, "BT2024007", got.RollNumber)

	_, err = q.GetStudentByRoll(context.Background(), "BT2024008")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGetStudentByRoll_MalformedIsValidation(t *testing.T) {
	store, _ := newCatalogStore(t)
	q := NewStudentQueries(store, nil, nil)

	for _, roll := range []string{"", "XX2024001", "BT24001", "BT1999001"} {
		_, err := q.GetStudentByRoll(context.Background(), roll)
		assert.True(t, shared.IsValidation(err), roll)
	}
}

func TestStudentQueries_ReadThroughCache(t *testing.T) {
	store, ids := newCatalogStore(t)
	insert(t, store, ids["B.Tech CSE"], admission.PrefixBTech, 1, "c@example.edu")
	cache := newFakeCache()
	q := NewStudentQueries(store, cache, nil)

	first, err := q.GetStudentByRoll(context.Background(), "bt2024001")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.puts)

	// A second read is served from the cache without a further write.
	second, err := q.GetStudentByRoll(context.Background(), "BT2024001")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.puts)
	assert.Equal(t, first.StudentID, second.StudentID)

	byID, err := q.GetStudent(context.Background(), first.StudentID)
	require.NoError(t, err)
	assert.Equal(t, "BT2024001", byID.RollNumber)
	assert.Equal(t, 1, cache.puts)
}

func TestStudentQueries_CacheFailureFallsThrough(t *testing.T) {
	store, ids := newCatalogStore(t)
	insert(t, store, ids["B.Tech CSE"], admission.PrefixBTech, 1, "c@example.edu")
	cache := newFakeCache()
	cache.fail = errors.New("redis down")
	q := NewStudentQueries(store, cache, nil)

	got, err := q.GetStudentByRoll(context.Background(), "BT2024001")
	require.NoError(t, err)
	assert.Equal(t, "c@example.edu", got.Email)
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN QUERIES
// ══════════════════════════════════════════════════════════════════════════════

func newDomainQueries(store *memory.Store, cache DomainCache) *DomainQueries {
	return NewDomainQueries(
		store.Programs(),
		store,
		admission.NewProgramClassifier(),
		admission.NewSequenceAllocator(admission.DefaultDepartmentRanges()),
		cache,
		nil,
	)
}

func TestListDomains(t *testing.T) {
	store, _ := newCatalogStore(t)
	q := newDomainQueries(store, nil)

	list, err := q.ListDomains(context.Background())
	require.NoError(t, err)
	require.Len(t, list, len(student.DefaultPrograms()))
	assert.Equal(t, "B.Tech CSE", list[0].Program)
	assert.Equal(t, 200, list[0].Capacity)
}

func TestListDomains_PopulatesAndUsesCache(t *testing.T) {
	store, _ := newCatalogStore(t)
	cache := newFakeCache()
	q := newDomainQueries(store, cache)

	_, err := q.ListDomains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.puts)

	cache.domains = []*student.Program{{ID: 99, Name: "Cached Program"}}
	list, err := q.ListDomains(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(99), list[0].DomainID)
}

func TestAllocationReport(t *testing.T) {
	store, ids := newCatalogStore(t)
	ece := ids["B.Tech ECE"]
	insert(t, store, ece, admission.PrefixBTech, 501, "e1@example.edu")
	insert(t, store, ece, admission.PrefixBTech, 502, "e2@example.edu")
	q := newDomainQueries(store, nil)

	report, err := q.AllocationReport(context.Background(), AllocationReportQuery{DomainID: ece, JoinYear: 2024})
	require.NoError(t, err)

	assert.Equal(t, "BT", report.Prefix)
	assert.Equal(t, "ECE", report.Department)
	assert.Equal(t, 501, report.RangeStart)
	assert.Equal(t, 600, report.RangeEnd)
	assert.Equal(t, 2, report.Used)
	assert.Equal(t, 502, report.LastSeq)
	assert.Equal(t, 98, report.Remaining)
	assert.False(t, report.Exhausted)
	assert.Equal(t, "BT2024503", report.NextRollNumber)
}

func TestAllocationReport_UnusedKey(t *testing.T) {
	store, ids := newCatalogStore(t)
	q := newDomainQueries(store, nil)

	report, err := q.AllocationReport(context.Background(), AllocationReportQuery{DomainID: ids["IM.Tech AIDS"], JoinYear: 2030})
	require.NoError(t, err)
	assert.Equal(t, "IM", report.Prefix)
	assert.Zero(t, report.Used)
	assert.Equal(t, 100, report.Remaining)
	assert.Equal(t, "IM2030701", report.NextRollNumber)
}

func TestAllocationReport_Errors(t *testing.T) {
	store, _ := newCatalogStore(t)
	unclassifiable := store.AddProgram(student.Program{Name: "Diploma in Arts"})
	q := newDomainQueries(store, nil)
	ctx := context.Background()

	_, err := q.AllocationReport(ctx, AllocationReportQuery{DomainID: 0, JoinYear: 1990})
	assert.True(t, shared.IsValidation(err))

	_, err = q.AllocationReport(ctx, AllocationReportQuery{DomainID: 4242, JoinYear: 2024})
	assert.ErrorIs(t, err, shared.ErrUnknownDomain)

	_, err = q.AllocationReport(ctx, AllocationReportQuery{DomainID: unclassifiable.ID, JoinYear: 2024})
	assert.ErrorIs(t, err, shared.ErrClassification)
}
