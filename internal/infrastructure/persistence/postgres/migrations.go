package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA
// ══════════════════════════════════════════════════════════════════════════════

// Constraint names. The admission store maps violations by name.
const (
	constraintStudentEmail    = "students_email_key"
	constraintStudentRoll     = "students_roll_number_key"
	constraintStudentSequence = "students_prefix_year_seq_key"
)

const migration001Up = `
CREATE TABLE IF NOT EXISTS domains (
    domain_id     BIGSERIAL PRIMARY KEY,
    program       VARCHAR(255) NOT NULL UNIQUE,
    batch         VARCHAR(50)  NOT NULL DEFAULT '',
    capacity      INTEGER      NOT NULL DEFAULT 0 CHECK (capacity >= 0),
    qualification VARCHAR(255) NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
);
`

const migration001Down = `DROP TABLE IF EXISTS domains;`

const migration002Up = `
CREATE TABLE IF NOT EXISTS students (
    student_id      BIGSERIAL PRIMARY KEY,
    roll_number     VARCHAR(16)  NOT NULL,
    degree_prefix   VARCHAR(2)   NOT NULL,
    join_year       INTEGER      NOT NULL CHECK (join_year BETWEEN 2000 AND 2100),
    seq_no          INTEGER      NOT NULL CHECK (seq_no BETWEEN 1 AND 999),
    first_name      VARCHAR(120) NOT NULL,
    last_name       VARCHAR(120) NOT NULL,
    email           VARCHAR(255) NOT NULL,
    photograph_path VARCHAR(512) NOT NULL DEFAULT '',
    domain_id       BIGINT       NOT NULL REFERENCES domains(domain_id),
    total_credits   INTEGER      NOT NULL DEFAULT 0,
    cgpa            NUMERIC(4,2),
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT NOW(),

    CONSTRAINT ` + constraintStudentRoll + ` UNIQUE (roll_number),
    CONSTRAINT ` + constraintStudentEmail + ` UNIQUE (email),
    CONSTRAINT ` + constraintStudentSequence + ` UNIQUE (degree_prefix, join_year, seq_no)
);

CREATE INDEX IF NOT EXISTS idx_students_domain ON students(domain_id);
CREATE INDEX IF NOT EXISTS idx_students_join_year ON students(join_year);
`

const migration002Down = `DROP TABLE IF EXISTS students;`

// Roll lookups are case-insensitive.
const migration003Up = `
CREATE INDEX IF NOT EXISTS idx_students_roll_upper ON students(UPPER(roll_number));
`

const migration003Down = `DROP INDEX IF EXISTS idx_students_roll_upper;`

// Migrations returns the embedded schema steps in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_domains", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_students", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "index_roll_number_upper", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one versioned schema step.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies Migrations and records them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator uses the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return NewMigratorWithMigrations(conn, Migrations())
}

// NewMigratorWithMigrations uses the given steps, sorted by version.
func NewMigratorWithMigrations(conn *Connection, migrations []Migration) *Migrator {
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return &Migrator{conn: conn, migrations: sorted, tableName: "schema_migrations"}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, m.tableName))
	if err != nil {
		return fmt.Errorf("create %s: %w", m.tableName, err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var (
			version int
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		out[version] = at
	}
	return out, rows.Err()
}

// Migrate applies every pending migration, each in its own transaction, and
// returns how many ran.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, mig := range m.migrations {
		if _, ok := done[mig.Version]; ok {
			continue
		}
		if mig.UpSQL == "" {
			return ran, fmt.Errorf("%w: version %d has no up SQL", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(ctx context.Context, tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("%w: version %d (%s): %w", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
		ran++
	}
	return ran, nil
}

// Rollback reverts the most recently applied migration. It returns the reverted
// version, or 0 when nothing was applied.
func (m *Migrator) Rollback(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	last := 0
	for v := range done {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return 0, nil
	}

	var target *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			target = &m.migrations[i]
			break
		}
	}
	if target == nil || target.DownSQL == "" {
		return 0, fmt.Errorf("%w: version %d has no down SQL", ErrMigrationFailed, last)
	}

	err = m.conn.WithTx(ctx, DefaultTxOptions(), func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, target.DownSQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: revert %d: %w", ErrMigrationFailed, last, err)
	}
	return last, nil
}

// Status lists every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := done[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}
