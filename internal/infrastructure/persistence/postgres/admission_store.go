package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/academic-erp/erp-backend/internal/domain/admission"
	"github.com/academic-erp/erp-backend/internal/domain/shared"
	"github.com/academic-erp/erp-backend/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMISSION UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// AdmissionStore implements admission.UnitOfWork and admission.UsageReader.
type AdmissionStore struct {
	conn        *Connection
	lockTimeout time.Duration
}

var (
	_ admission.UnitOfWork  = (*AdmissionStore)(nil)
	_ admission.UsageReader = (*AdmissionStore)(nil)
	_ admission.Tx          = (*admissionTx)(nil)
)

// NewAdmissionStore returns a store whose transactions wait at most
// lockTimeout for any lock. Zero leaves the server default.
func NewAdmissionStore(conn *Connection, lockTimeout time.Duration) *AdmissionStore {
	return &AdmissionStore{conn: conn, lockTimeout: lockTimeout}
}

// WithinAdmission runs fn in one read-committed transaction.
func (s *AdmissionStore) WithinAdmission(ctx context.Context, fn func(ctx context.Context, tx admission.Tx) error) error {
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(ctx context.Context, tx pgx.Tx) error {
		if s.lockTimeout > 0 {
			// SET does not take bind parameters.
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return admission.NewStorageError("SetLockTimeout", err)
			}
		}
		return fn(ctx, &admissionTx{tx: tx})
	})
	if err == nil {
		return nil
	}
	return mapAdmissionError("Commit", admission.AllocationKey{}, err)
}

type admissionTx struct {
	tx  pgx.Tx
	key admission.AllocationKey
}

const selectDomainByID = `
	SELECT domain_id, program, batch, capacity, qualification, created_at
	FROM domains WHERE domain_id = $1`

func (t *admissionTx) FindProgram(ctx context.Context, id int64) (*student.Program, error) {
	p, err := scanProgram(t.tx.QueryRow(ctx, selectDomainByID, id))
	if IsNoRows(err) {
		return nil, admission.NewUnknownDomainError(id)
	}
	if err != nil {
		return nil, mapAdmissionError("FindProgram", t.key, err)
	}
	return p, nil
}

func (t *admissionTx) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM students WHERE email = $1)`,
		student.NormalizeEmail(email),
	).Scan(&exists)
	if err != nil {
		return false, mapAdmissionError("EmailExists", t.key, err)
	}
	return exists, nil
}

// LockKey takes a transaction-scoped advisory lock on the key's hash.
// Distinct keys may share a hash, which only costs unneeded serialization.
func (t *admissionTx) LockKey(ctx context.Context, key admission.AllocationKey) error {
	t.key = key
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key.String()); err != nil {
		return mapAdmissionError("LockKey", key, err)
	}
	return nil
}

func (t *admissionTx) MaxSequence(ctx context.Context, key admission.AllocationKey) (int, bool, error) {
	seq, found, err := maxSequence(ctx, t.tx, key)
	if err != nil {
		return 0, false, mapAdmissionError("MaxSequence", key, err)
	}
	return seq, found, nil
}

const insertStudent = `
	INSERT INTO students (
		roll_number, degree_prefix, join_year, seq_no,
		first_name, last_name, email, photograph_path, domain_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING student_id, created_at`

func (t *admissionTx) InsertStudent(ctx context.Context, st *student.Student) error {
	err := t.tx.QueryRow(ctx, insertStudent,
		st.RollNumber,
		st.DegreePrefix,
		st.JoinYear,
		st.SeqNo,
		st.FirstName,
		st.LastName,
		student.NormalizeEmail(st.Email),
		st.PhotographPath,
		st.DomainID,
	).Scan(&st.ID, &st.CreatedAt)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return admission.NewUnknownDomainError(st.DomainID)
		}
		if name, ok := ViolatedConstraint(err); ok && name == constraintStudentEmail {
			return admission.NewDuplicateEmailError(st.Email)
		}
		return mapAdmissionError("InsertStudent", t.key, err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// USAGE
// ══════════════════════════════════════════════════════════════════════════════

// MaxSequence reads committed allocations outside any admission.
func (s *AdmissionStore) MaxSequence(ctx context.Context, key admission.AllocationKey) (int, bool, error) {
	seq, found, err := maxSequence(ctx, s.conn, key)
	if err != nil {
		return 0, false, mapAdmissionError("MaxSequence", key, err)
	}
	return seq, found, nil
}

// CountSequences counts committed allocations within key.Range.
func (s *AdmissionStore) CountSequences(ctx context.Context, key admission.AllocationKey) (int, error) {
	var n int
	err := s.conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM students
		WHERE degree_prefix = $1 AND join_year = $2 AND seq_no BETWEEN $3 AND $4`,
		string(key.Prefix), key.JoinYear, key.Range.Start, key.Range.End,
	).Scan(&n)
	if err != nil {
		return 0, mapAdmissionError("CountSequences", key, err)
	}
	return n, nil
}

func maxSequence(ctx context.Context, q Querier, key admission.AllocationKey) (int, bool, error) {
	var seq *int
	err := q.QueryRow(ctx, `
		SELECT MAX(seq_no) FROM students
		WHERE degree_prefix = $1 AND join_year = $2 AND seq_no BETWEEN $3 AND $4`,
		string(key.Prefix), key.JoinYear, key.Range.Start, key.Range.End,
	).Scan(&seq)
	if err != nil {
		return 0, false, err
	}
	if seq == nil {
		return 0, false, nil
	}
	return *seq, true, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// mapAdmissionError converts driver errors into the admission taxonomy.
// Errors that already carry a Kind pass through unchanged.
func mapAdmissionError(op string, key admission.AllocationKey, err error) error {
	if err == nil {
		return nil
	}
	if shared.KindOf(err) != shared.KindUnknown {
		return err
	}

	if name, ok := ViolatedConstraint(err); ok {
		if name == constraintStudentEmail {
			return admission.NewDuplicateEmailError("")
		}
		return admission.NewAllocationConflictError(key, err)
	}
	if IsTransient(err) {
		return admission.NewAllocationConflictError(key, err)
	}
	if IsLockTimeout(err) {
		return admission.NewStorageError(op, fmt.Errorf("lock wait exceeded: %w", err))
	}
	return admission.NewStorageError(op, err)
}
