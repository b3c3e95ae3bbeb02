// Package cli implements admissionctl, the operator command line for the
// admissions service.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/academic-erp/erp-backend/internal/application/command"
	"github.com/academic-erp/erp-backend/internal/domain/admission"
	"github.com/academic-erp/erp-backend/internal/domain/student"
	"github.com/academic-erp/erp-backend/internal/infrastructure/persistence/postgres"
)

// Migrator runs schema migrations.
type Migrator interface {
	Migrate(ctx context.Context) (int, error)
	Rollback(ctx context.Context) (int, error)
	Status(ctx context.Context) ([]postgres.Migration, error)
}

// ProgramSeeder inserts missing programs.
type ProgramSeeder interface {
	Seed(ctx context.Context, programs []student.Program) (int, error)
}

// Admitter admits one student.
type Admitter interface {
	Handle(ctx context.Context, cmd command.AdmitStudentCommand) (*command.AdmitStudentResult, error)
}

// DomainCacheInvalidator drops the cached program list.
type DomainCacheInvalidator interface {
	InvalidateDomains(ctx context.Context) error
}

// Runtime holds the backends a command needs. Migrator is nil when the
// storage driver has no schema; DomainCache is nil without Redis.
type Runtime struct {
	Migrator    Migrator
	Seeder      ProgramSeeder
	Admissions  Admitter
	DomainCache DomainCacheInvalidator
}

// Opener connects to the configured backends. The returned func releases
// them.
type Opener func(ctx context.Context) (*Runtime, func(), error)

// ErrNoMigrations is returned by migrate commands on schemaless storage.
var ErrNoMigrations = errors.New("migrations need STORAGE_DRIVER=postgres")

func okMark() string   { return color.New(color.FgGreen).Sprint("✓") }
func warnMark() string { return color.New(color.FgYellow).Sprint("!") }

// NewRootCmd builds the admissionctl command tree. Commands that need storage
// call open lazily, so classify and ranges work without a database.
func NewRootCmd(open Opener, version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "admissionctl",
		Short:   "Operate the admissions service",
		Version: version,
		Long: `admissionctl runs schema migrations, seeds academic programs and
admits students from the command line. classify and ranges inspect the
roll-number rules without touching storage.`,
		SilenceUsage: true,
	}

	classifier := admission.NewProgramClassifier()
	ranges := admission.DefaultDepartmentRanges()

	root.AddCommand(migrateCmd(open))
	root.AddCommand(domainsCmd(open))
	root.AddCommand(classifyCmd(classifier, ranges))
	root.AddCommand(rangesCmd(ranges))
	root.AddCommand(admitCmd(open))
	root.AddCommand(apiKeyCmd())
	return root
}

// withRuntime opens the backends for the duration of fn.
func withRuntime(cmd *cobra.Command, open Opener, fn func(ctx context.Context, rt *Runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, release, err := open(ctx)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer release()
	return fn(ctx, rt)
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
