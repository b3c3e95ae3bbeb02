// Package memory is an in-process implementation of the admission store.
// It serves tests and STORAGE_DRIVER=memory deployments. It enforces the
// same constraints as the PostgreSQL schema: unique email, unique roll
// number, unique (prefix, join year, sequence). Allocation keys are
// serialized with a per-key lock held until the unit of work ends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/academic-erp/erp-backend/internal/domain/admission"
	"github.com/academic-erp/erp-backend/internal/domain/shared"
	"github.com/academic-erp/erp-backend/internal/domain/student"
)

type seqKey struct {
	prefix string
	year   int
	seq    int
}

// InsertHook runs before a student is staged. Returning an error aborts the
// insert, which lets tests simulate storage failures.
type InsertHook func(s *student.Student) error

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	programs map[int64]*student.Program
	students []*student.Student
	byID     map[int64]*student.Student
	byEmail  map[string]int64
	byRoll   map[string]int64
	bySeq    map[seqKey]int64

	nextStudentID atomic.Int64
	nextProgramID int64

	locks *keyLocks
	now   func() time.Time

	hookMu sync.Mutex
	hook   InsertHook
}

var (
	_ admission.UnitOfWork      = (*Store)(nil)
	_ admission.UsageReader     = (*Store)(nil)
	_ student.Repository        = (*Store)(nil)
	_ student.ProgramRepository = programRepo{}
	_ admission.Tx              = (*tx)(nil)
)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		programs: make(map[int64]*student.Program),
		byID:     make(map[int64]*student.Student),
		byEmail:  make(map[string]int64),
		byRoll:   make(map[string]int64),
		bySeq:    make(map[seqKey]int64),
		locks:    newKeyLocks(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetInsertHook installs or clears (nil) the insert hook.
func (s *Store) SetInsertHook(h InsertHook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hook = h
}

func (s *Store) insertHook() InsertHook {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	return s.hook
}

// AddProgram stores p, assigning an ID when p.ID is zero, and returns the
// stored copy.
func (s *Store) AddProgram(p student.Program) *student.Program {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		s.nextProgramID++
		p.ID = s.nextProgramID
	} else if p.ID > s.nextProgramID {
		s.nextProgramID = p.ID
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.programs[p.ID] = &p
	out := p
	return &out
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// WithinAdmission runs fn with a staging transaction. Staged students are
// validated again and published atomically on commit.
func (s *Store) WithinAdmission(ctx context.Context, fn func(ctx context.Context, tx admission.Tx) error) error {
	t := &tx{store: s}
	defer t.releaseLocks()

	defer func() {
		if p := recover(); p != nil {
			t.pending = nil
			panic(p)
		}
	}()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return admission.NewStorageError("Commit", err)
	}
	return s.commit(t.pending)
}

func (s *Store) commit(pending []*student.Student) error {
	if len(pending) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range pending {
		if err := s.checkConstraintsLocked(st); err != nil {
			return err
		}
	}
	for _, st := range pending {
		stored := *st
		s.students = append(s.students, &stored)
		s.byID[stored.ID] = &stored
		s.byEmail[student.NormalizeEmail(stored.Email)] = stored.ID
		s.byRoll[strings.ToUpper(stored.RollNumber)] = stored.ID
		s.bySeq[seqKey{stored.DegreePrefix, stored.JoinYear, stored.SeqNo}] = stored.ID
	}
	return nil
}

// checkConstraintsLocked must be called with mu held.
func (s *Store) checkConstraintsLocked(st *student.Student) error {
	if _, taken := s.byEmail[student.NormalizeEmail(st.Email)]; taken {
		return admission.NewDuplicateEmailError(st.Email)
	}
	if _, taken := s.byRoll[strings.ToUpper(st.RollNumber)]; taken {
		return admission.NewAllocationConflictError(keyOf(st), fmt.Errorf("roll number %s taken", st.RollNumber))
	}
	if _, taken := s.bySeq[seqKey{st.DegreePrefix, st.JoinYear, st.SeqNo}]; taken {
		return admission.NewAllocationConflictError(keyOf(st), fmt.Errorf("sequence %d taken", st.SeqNo))
	}
	return nil
}

func keyOf(st *student.Student) admission.AllocationKey {
	return admission.AllocationKey{Prefix: admission.DegreePrefix(st.DegreePrefix), JoinYear: st.JoinYear}
}

type tx struct {
	store   *Store
	held    []string
	pending []*student.Student
}

func (t *tx) FindProgram(_ context.Context, id int64) (*student.Program, error) {
	return t.store.ProgramByID(id)
}

func (t *tx) EmailExists(_ context.Context, email string) (bool, error) {
	norm := student.NormalizeEmail(email)
	for _, p := range t.pending {
		if student.NormalizeEmail(p.Email) == norm {
			return true, nil
		}
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.byEmail[norm]
	return ok, nil
}

func (t *tx) LockKey(ctx context.Context, key admission.AllocationKey) error {
	name := key.String()
	for _, h := range t.held {
		if h == name {
			return nil
		}
	}
	if err := t.store.locks.lock(ctx, name); err != nil {
		return admission.NewStorageError("LockKey", err)
	}
	t.held = append(t.held, name)
	return nil
}

func (t *tx) releaseLocks() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.store.locks.unlock(t.held[i])
	}
	t.held = nil
}

func (t *tx) MaxSequence(ctx context.Context, key admission.AllocationKey) (int, bool, error) {
	maxSeq, found, err := t.store.MaxSequence(ctx, key)
	if err != nil {
		return 0, false, err
	}
	for _, p := range t.pending {
		if matchesKey(p, key) && (!found || p.SeqNo > maxSeq) {
			maxSeq, found = p.SeqNo, true
		}
	}
	return maxSeq, found, nil
}

func (t *tx) InsertStudent(_ context.Context, st *student.Student) error {
	if hook := t.store.insertHook(); hook != nil {
		if err := hook(st); err != nil {
			return admission.NewStorageError("InsertStudent", err)
		}
	}

	t.store.mu.RLock()
	err := t.store.checkConstraintsLocked(st)
	t.store.mu.RUnlock()
	if err != nil {
		return err
	}

	st.ID = t.store.nextStudentID.Add(1)
	st.CreatedAt = t.store.now()
	staged := *st
	t.pending = append(t.pending, &staged)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// READ SIDE
// ══════════════════════════════════════════════════════════════════════════════

func matchesKey(st *student.Student, key admission.AllocationKey) bool {
	return st.DegreePrefix == string(key.Prefix) &&
		st.JoinYear == key.JoinYear &&
		key.Range.Contains(st.SeqNo)
}

// MaxSequence reads committed allocations.
func (s *Store) MaxSequence(_ context.Context, key admission.AllocationKey) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	maxSeq, found := 0, false
	for _, st := range s.students {
		if matchesKey(st, key) && (!found || st.SeqNo > maxSeq) {
			maxSeq, found = st.SeqNo, true
		}
	}
	return maxSeq, found, nil
}

// CountSequences counts committed allocations of key.
func (s *Store) CountSequences(_ context.Context, key admission.AllocationKey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, st := range s.students {
		if matchesKey(st, key) {
			n++
		}
	}
	return n, nil
}

// Sequences returns the committed sequences of key in ascending order.
func (s *Store) Sequences(key admission.AllocationKey) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []int
	for _, st := range s.students {
		if matchesKey(st, key) {
			out = append(out, st.SeqNo)
		}
	}
	sort.Ints(out)
	return out
}

func (s *Store) view(st *student.Student) *student.Student {
	out := *st
	if p, ok := s.programs[st.DomainID]; ok {
		out.Program = p.Name
	}
	return &out
}

// GetByID implements student.Repository.
func (s *Store) GetByID(_ context.Context, id int64) (*student.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.byID[id]
	if !ok {
		return nil, shared.NewDomainError("student", "GetByID", shared.ErrNotFound, "student not found")
	}
	return s.view(st), nil
}

// GetByRollNumber implements student.Repository.
func (s *Store) GetByRollNumber(_ context.Context, roll string) (*student.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRoll[strings.ToUpper(strings.TrimSpace(roll))]
	if !ok {
		return nil, shared.NewDomainError("student", "GetByRollNumber", shared.ErrNotFound, "student not found")
	}
	return s.view(s.byID[id]), nil
}

// List implements student.Repository.
func (s *Store) List(_ context.Context, opts student.ListOptions) ([]*student.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]*student.Student, 0, len(s.students))
	for _, st := range s.students {
		if opts.JoinYear != 0 && st.JoinYear != opts.JoinYear {
			continue
		}
		if opts.DomainID != 0 && st.DomainID != opts.DomainID {
			continue
		}
		filtered = append(filtered, st)
	}

	sort.Slice(filtered, func(i, j int) bool {
		if opts.NewestFirst {
			return filtered[i].ID > filtered[j].ID
		}
		return filtered[i].ID < filtered[j].ID
	})

	if opts.Offset >= len(filtered) {
		return []*student.Student{}, nil
	}
	filtered = filtered[opts.Offset:]
	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}

	out := make([]*student.Student, 0, len(filtered))
	for _, st := range filtered {
		out = append(out, s.view(st))
	}
	return out, nil
}

// Count implements student.Repository.
func (s *Store) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.students), nil
}

// Programs exposes the store as a student.ProgramRepository.
func (s *Store) Programs() student.ProgramRepository {
	return programRepo{s}
}

// ProgramByID returns a copy of the program with id.
func (s *Store) ProgramByID(id int64) (*student.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.programs[id]
	if !ok {
		return nil, admission.NewUnknownDomainError(id)
	}
	out := *p
	return &out, nil
}

type programRepo struct{ s *Store }

func (r programRepo) GetByID(_ context.Context, id int64) (*student.Program, error) {
	return r.s.ProgramByID(id)
}

func (r programRepo) List(context.Context) ([]*student.Program, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*student.Program, 0, len(r.s.programs))
	for _, p := range r.s.programs {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Seed adds programs whose name is not present yet and returns how many
// were added.
func (s *Store) Seed(_ context.Context, programs []student.Program) (int, error) {
	s.mu.RLock()
	names := make(map[string]bool, len(s.programs))
	for _, p := range s.programs {
		names[p.Name] = true
	}
	s.mu.RUnlock()

	added := 0
	for _, p := range programs {
		if names[p.Name] {
			continue
		}
		names[p.Name] = true
		p.ID = 0
		s.AddProgram(p)
		added++
	}
	return added, nil
}
