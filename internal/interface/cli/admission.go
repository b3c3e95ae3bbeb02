package cli

import (
	"context"
	"errors"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/academic-erp/erp-backend/internal/application/command"
	"github.com/academic-erp/erp-backend/internal/domain/admission"
	"github.com/academic-erp/erp-backend/internal/domain/shared"
)

func classifyCmd(classifier *admission.ProgramClassifier, ranges *admission.DepartmentRangeTable) *cobra.Command {
	return &cobra.Command{
		Use:     "classify <program>",
		Short:   "Show the degree prefix, department and seat range of a program name",
		Example: `  admissionctl classify "IM.Tech AIDS"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			program := strings.Join(args, " ")
			c, err := classifier.Classify(program)
			if err != nil {
				return err
			}
			r, err := ranges.RangeFor(c.Department)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printf(out, "%s %s\n", okMark(), program)
			printf(out, "  Prefix:     %s\n", c.Prefix)
			printf(out, "  Department: %s\n", c.Department)
			printf(out, "  Sequences:  %03d-%03d\n", r.Start, r.End)
			printf(out, "  Example:    %s\n", admission.FormatRollNumber(c.Prefix, time.Now().Year(), r.Start))
			return nil
		},
	}
}

func rangesCmd(ranges *admission.DepartmentRangeTable) *cobra.Command {
	return &cobra.Command{
		Use:   "ranges",
		Short: "List the department seat ranges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			printf(w, "DEPARTMENT\tSTART\tEND\tSEATS\n")
			for _, r := range ranges.All() {
				printf(w, "%s\t%03d\t%03d\t%d\n", r.Department, r.Start, r.End, r.Size())
			}
			return w.Flush()
		},
	}
}

func admitCmd(open Opener) *cobra.Command {
	var req command.AdmitStudentCommand

	cmd := &cobra.Command{
		Use:   "admit",
		Short: "Admit a student and print the issued roll number",
		Example: `  admissionctl admit --domain 1 --first Asha --last Rao \
      --email asha.rao@example.edu --year 2024`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *Runtime) error {
				result, err := rt.Admissions.Handle(ctx, req)
				if err != nil {
					return describeAdmissionError(err)
				}

				out := cmd.OutOrStdout()
				printf(out, "%s admitted %s %s\n", okMark(), result.FirstName, result.LastName)
				printf(out, "  Roll number: %s\n", color.New(color.Bold).Sprint(result.RollNumber))
				printf(out, "  Student ID:  %d\n", result.StudentID)
				printf(out, "  Program:     %s (%d)\n", result.DomainProgram, result.JoinYear)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&req.DomainID, "domain", 0, "program (domain) id")
	flags.StringVar(&req.FirstName, "first", "", "first name")
	flags.StringVar(&req.LastName, "last", "", "last name")
	flags.StringVar(&req.Email, "email", "", "email address")
	flags.IntVar(&req.JoinYear, "year", time.Now().Year(), "join year")
	flags.StringVar(&req.PhotographPath, "photo", "", "photograph path")
	for _, name := range []string{"domain", "first", "last", "email"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// describeAdmissionError lists validation problems one per line.
func describeAdmissionError(err error) error {
	var verr *shared.ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) == 0 {
		return err
	}

	var b strings.Builder
	b.WriteString("invalid admission:")
	for _, f := range verr.Fields {
		b.WriteString("\n  --")
		b.WriteString(flagFor(f.Field))
		b.WriteString(": ")
		b.WriteString(f.Error)
	}
	return errors.New(b.String())
}

func flagFor(field string) string {
	switch field {
	case "firstName":
		return "first"
	case "lastName":
		return "last"
	case "domainId":
		return "domain"
	case "joinYear":
		return "year"
	case "photographPath":
		return "photo"
	default:
		return field
	}
}
