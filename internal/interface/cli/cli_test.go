package cli

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/academic-erp/erp-backend/internal/application/command"
	"github.com/academic-erp/erp-backend/internal/domain/admission"
	"github.com/academic-erp/erp-backend/internal/domain/student"
	"github.com/academic-erp/erp-backend/internal/infrastructure/persistence/memory"
	"github.com/academic-erp/erp-backend/internal/infrastructure/persistence/postgres"
)

func init() {
	color.NoColor = true
}

type fakeMigrator struct {
	applied  []int
	versions []int
	failWith error
}

func (m *fakeMigrator) Migrate(context.Context) (int, error) {
	if m.failWith != nil {
		return 0, m.failWith
	}
	n := len(m.versions) - len(m.applied)
	m.applied = append([]int(nil), m.versions...)
	return n, nil
}

func (m *fakeMigrator) Rollback(context.Context) (int, error) {
	if len(m.applied) == 0 {
		return 0, nil
	}
	last := m.applied[len(m.applied)-1]
	m.applied = m.applied[:len(m.applied)-1]
	return last, nil
}

func (m *fakeMigrator) Status(context.Context) ([]postgres.Migration, error) {
	out := make([]postgres.Migration, 0, len(m.versions))
	for _, v := range m.versions {
		mg := postgres.Migration{Version: v, Name: "step"}
		for _, a := range m.applied {
			if a == v {
				mg.IsApplied = true
				mg.AppliedAt = time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)
			}
		}
		out = append(out, mg)
	}
	return out, nil
}

type fakeInvalidator struct{ calls int }

func (f *fakeInvalidator) InvalidateDomains(context.Context) error {
	f.calls++
	return nil
}

type harness struct {
	store    *memory.Store
	migrator *fakeMigrator
	cache    *fakeInvalidator
	opened   int
	released int
}

func newHarness() *harness {
	return &harness{
		store:    memory.NewStore(),
		migrator: &fakeMigrator{versions: []int{1, 2}},
		cache:    &fakeInvalidator{},
	}
}

func (h *harness) open(context.Context) (*Runtime, func(), error) {
	h.opened++
	handler := command.NewAdmitStudentHandler(h.store,
		admission.NewProgramClassifier(),
		admission.NewSequenceAllocator(admission.DefaultDepartmentRanges()),
		nil, command.AdmitStudentHandlerConfig{RetryDelay: time.Millisecond})

	return &Runtime{
		Migrator:    h.migrator,
		Seeder:      h.store,
		Admissions:  handler,
		DomainCache: h.cache,
	}, func() { h.released++ }, nil
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(h.open, "test")
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateCommands(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "", "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 2 migration(s)")

	out, err = h.run(t, "", "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema is up to date")

	out, err = h.run(t, "", "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "rolled back migration 2")

	out, err = h.run(t, "", "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "VERSION")
	assert.Regexp(t, `1\s+step\s+applied\s+2024-07-01 09:30:00`, out)
	assert.Regexp(t, `2\s+step\s+pending\s+-`, out)

	assert.Equal(t, h.opened, h.released)
}

func TestMigrateWithoutSchema(t *testing.T) {
	h := newHarness()
	open := func(ctx context.Context) (*Runtime, func(), error) {
		rt, release, err := h.open(ctx)
		rt.Migrator = nil
		return rt, release, err
	}

	root := NewRootCmd(open, "test")
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"migrate", "status"})
	assert.ErrorIs(t, root.Execute(), ErrNoMigrations)
}

func TestMigrateFailure(t *testing.T) {
	h := newHarness()
	h.migrator.failWith = errors.New("relation already exists")

	_, err := h.run(t, "", "migrate", "up")
	assert.ErrorContains(t, err, "relation already exists")
}

func TestOpenFailure(t *testing.T) {
	open := func(context.Context) (*Runtime, func(), error) {
		return nil, nil, errors.New("connection refused")
	}
	root := NewRootCmd(open, "test")
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"domains", "seed"})

	err := root.Execute()
	assert.ErrorContains(t, err, "open storage: connection refused")
}

func TestDomainsSeedIsIdempotent(t *testing.T) {
	h := newHarness()
	total := len(student.DefaultPrograms())

	out, err := h.run(t, "", "domains", "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 5 program(s), 0 already present")
	assert.Equal(t, 1, h.cache.calls)

	out, err = h.run(t, "", "domains", "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 0 program(s), 5 already present")
	assert.Equal(t, 1, h.cache.calls, "nothing changed, cache kept")

	programs, err := h.store.Programs().List(context.Background())
	require.NoError(t, err)
	assert.Len(t, programs, total)
}

func TestClassifyAndRangesNeedNoStorage(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "", "classify", "IM.Tech", "AIDS")
	require.NoError(t, err)
	assert.Contains(t, out, "Prefix:     IM")
	assert.Contains(t, out, "Department: AIDS")
	assert.Contains(t, out, "Sequences:  701-800")

	_, err = h.run(t, "", "classify", "Diploma in Arts")
	require.Error(t, err)

	out, err = h.run(t, "", "ranges")
	require.NoError(t, err)
	assert.Regexp(t, `CSE\s+001\s+200\s+200`, out)
	assert.Regexp(t, `ECE\s+501\s+600\s+100`, out)
	assert.Regexp(t, `AIDS\s+701\s+800\s+100`, out)

	assert.Zero(t, h.opened)
}

func TestAdmit(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "", "domains", "seed")
	require.NoError(t, err)

	ece := findProgram(t, h.store, "B.Tech ECE")

	out, err := h.run(t, "", "admit",
		"--domain", ece, "--first", "Meera", "--last", "Iyer",
		"--email", "meera@example.edu", "--year", "2024")
	require.NoError(t, err)
	assert.Contains(t, out, "admitted Meera Iyer")
	assert.Contains(t, out, "Roll number: BT2024501")
	assert.Contains(t, out, "B.Tech ECE (2024)")

	_, err = h.run(t, "", "admit",
		"--domain", ece, "--first", "Ravi", "--last", "Iyer",
		"--email", "MEERA@example.edu", "--year", "2024")
	assert.ErrorContains(t, err, "already admitted")
}

func TestAdmitValidation(t *testing.T) {
	h := newHarness()

	_, err := h.run(t, "", "admit", "--domain", "1", "--first", " ", "--last", "Rao",
		"--email", "nope", "--year", "1990")
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "--first:")
	assert.Contains(t, msg, "--email:")
	assert.Contains(t, msg, "--year:")

	_, err = h.run(t, "", "admit", "--first", "A")
	assert.ErrorContains(t, err, "required flag")
}

func TestAPIKeyHash(t *testing.T) {
	h := newHarness()

	for _, tc := range []struct {
		name  string
		stdin string
		args  []string
	}{
		{"argument", "", []string{"apikey", "hash", "registrar-key"}},
		{"stdin", "registrar-key\n", []string{"apikey", "hash"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out, err := h.run(t, tc.stdin, tc.args...)
			require.NoError(t, err)
			hash := strings.TrimSpace(out)
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("registrar-key")))
		})
	}

	_, err := h.run(t, "\n", "apikey", "hash")
	assert.Error(t, err)
}

func findProgram(t *testing.T, store *memory.Store, name string) string {
	t.Helper()
	programs, err := store.Programs().List(context.Background())
	require.NoError(t, err)
	for _, p := range programs {
		if p.Name == name {
			return strconv.FormatInt(p.ID, 10)
		}
	}
	t.Fatalf("program %q not seeded", name)
	return ""
}
