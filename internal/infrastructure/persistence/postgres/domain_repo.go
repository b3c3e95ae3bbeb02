package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/academic-erp/erp-backend/internal/domain/admission"
	"github.com/academic-erp/erp-backend/internal/domain/student"
)

// DomainRepository implements student.ProgramRepository over the domains
// table.
type DomainRepository struct {
	conn *Connection
}

var _ student.ProgramRepository = (*DomainRepository)(nil)

// NewDomainRepository creates a DomainRepository.
func NewDomainRepository(conn *Connection) *DomainRepository {
	return &DomainRepository{conn: conn}
}

func scanProgram(row pgx.Row) (*student.Program, error) {
	var p student.Program
	if err := row.Scan(&p.ID, &p.Name, &p.Batch, &p.Capacity, &p.Qualification, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID returns an unknown-domain error when id does not exist.
func (r *DomainRepository) GetByID(ctx context.Context, id int64) (*student.Program, error) {
	p, err := scanProgram(r.conn.QueryRow(ctx, selectDomainByID, id))
	if IsNoRows(err) {
		return nil, admission.NewUnknownDomainError(id)
	}
	if err != nil {
		return nil, admission.NewStorageError("GetDomain", err)
	}
	return p, nil
}

// List returns every program ordered by id.
func (r *DomainRepository) List(ctx context.Context) ([]*student.Program, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT domain_id, program, batch, capacity, qualification, created_at
		FROM domains ORDER BY domain_id`)
	if err != nil {
		return nil, admission.NewStorageError("ListDomains", err)
	}
	defer rows.Close()

	var out []*student.Program
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, admission.NewStorageError("ListDomains", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, admission.NewStorageError("ListDomains", err)
	}
	return out, nil
}

// Seed inserts programs whose name is not present yet and returns how many
// were added. Existing rows are left untouched.
func (r *DomainRepository) Seed(ctx context.Context, programs []student.Program) (int, error) {
	added := 0
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(ctx context.Context, tx pgx.Tx) error {
		for _, p := range programs {
			tag, err := tx.Exec(ctx, `
				INSERT INTO domains (program, batch, capacity, qualification)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (program) DO NOTHING`,
				p.Name, p.Batch, p.Capacity, p.Qualification)
			if err != nil {
				return err
			}
			added += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, admission.NewStorageError("SeedDomains", err)
	}
	return added, nil
}
