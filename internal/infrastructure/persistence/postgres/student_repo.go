package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/academic-erp/erp-backend/internal/domain/admission"
	"github.com/academic-erp/erp-backend/internal/domain/shared"
	"github.com/academic-erp/erp-backend/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository.
type StudentRepository struct {
	conn *Connection
}

var _ student.Repository = (*StudentRepository)(nil)

// NewStudentRepository creates a StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

const selectStudent = `
	SELECT s.student_id, s.roll_number, s.degree_prefix, s.seq_no, s.join_year,
	       s.first_name, s.last_name, s.email, s.photograph_path,
	       s.domain_id, d.program, s.total_credits, s.cgpa, s.created_at
	FROM students s
	JOIN domains d ON d.domain_id = s.domain_id`

func scanStudent(row pgx.Row) (*student.Student, error) {
	var s student.Student
	err := row.Scan(
		&s.ID,
		&s.RollNumber,
		&s.DegreePrefix,
		&s.SeqNo,
		&s.JoinYear,
		&s.FirstName,
		&s.LastName,
		&s.Email,
		&s.PhotographPath,
		&s.DomainID,
		&s.Program,
		&s.TotalCredits,
		&s.CGPA,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func notFound(op string) error {
	return shared.NewDomainError("student", op, shared.ErrNotFound, "student not found")
}

// GetByID returns the student with id.
func (r *StudentRepository) GetByID(ctx context.Context, id int64) (*student.Student, error) {
	s, err := scanStudent(r.conn.QueryRow(ctx, selectStudent+` WHERE s.student_id = $1`, id))
	if IsNoRows(err) {
		return nil, notFound("GetByID")
	}
	if err != nil {
		return nil, admission.NewStorageError("GetStudent", err)
	}
	return s, nil
}

// GetByRollNumber matches roll numbers case-insensitively.
func (r *StudentRepository) GetByRollNumber(ctx context.Context, roll string) (*student.Student, error) {
	s, err := scanStudent(r.conn.QueryRow(ctx,
		selectStudent+` WHERE UPPER(s.roll_number) = $1`,
		strings.ToUpper(strings.TrimSpace(roll)),
	))
	if IsNoRows(err) {
		return nil, notFound("GetByRollNumber")
	}
	if err != nil {
		return nil, admission.NewStorageError("GetStudentByRoll", err)
	}
	return s, nil
}

// List returns one page of students.
func (r *StudentRepository) List(ctx context.Context, opts student.ListOptions) ([]*student.Student, error) {
	var (
		where []string
		args  []any
	)
	if opts.JoinYear != 0 {
		args = append(args, opts.JoinYear)
		where = append(where, fmt.Sprintf("s.join_year = $%d", len(args)))
	}
	if opts.DomainID != 0 {
		args = append(args, opts.DomainID)
		where = append(where, fmt.Sprintf("s.domain_id = $%d", len(args)))
	}

	query := selectStudent
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if opts.NewestFirst {
		query += " ORDER BY s.student_id DESC"
	} else {
		query += " ORDER BY s.student_id ASC"
	}

	limit := opts.Limit
	if limit <= 0 || limit > student.MaxListLimit {
		limit = student.MaxListLimit
	}
	args = append(args, limit, opts.Offset)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, admission.NewStorageError("ListStudents", err)
	}
	defer rows.Close()

	out := make([]*student.Student, 0, limit)
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, admission.NewStorageError("ListStudents", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, admission.NewStorageError("ListStudents", err)
	}
	return out, nil
}

// Count returns the number of admitted students.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM students`).Scan(&n); err != nil {
		return 0, admission.NewStorageError("CountStudents", err)
	}
	return n, nil
}
