// Package jobs contains the background jobs run by the scheduler.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/academic-erp/erp-backend/internal/application/query"
	"github.com/academic-erp/erp-backend/internal/domain/shared"
	"github.com/academic-erp/erp-backend/pkg/logger"
)

// AllocationReporter lists programs and reports their seat usage.
type AllocationReporter interface {
	ListDomains(ctx context.Context) ([]query.DomainView, error)
	AllocationReport(ctx context.Context, q query.AllocationReportQuery) (*query.AllocationReport, error)
}

// SeatGauge receives the usage of one program for one join year.
type SeatGauge interface {
	SetSeatUsage(program string, joinYear, used, remaining int)
}

// SeatUsageConfig configures SeatUsageJob.
type SeatUsageConfig struct {
	// LowWatermark triggers a warning once remaining seats drop to it.
	// Zero disables the warning.
	LowWatermark int

	// Now picks the join year to report (default time.Now).
	Now func() time.Time
}

// SeatUsageJob refreshes the seat gauges for the current join year.
type SeatUsageJob struct {
	reports AllocationReporter
	gauge   SeatGauge
	log     *logger.Logger
	config  SeatUsageConfig
}

// NewSeatUsageJob creates the job. gauge may be nil when metrics are off,
// in which case the job only logs.
func NewSeatUsageJob(reports AllocationReporter, gauge SeatGauge, log *logger.Logger, config SeatUsageConfig) *SeatUsageJob {
	if log == nil {
		log = logger.Nop()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &SeatUsageJob{
		reports: reports,
		gauge:   gauge,
		log:     log.With(logger.Component("seat_usage_job")),
		config:  config,
	}
}

func (j *SeatUsageJob) Name() string { return "seat_usage" }

func (j *SeatUsageJob) Description() string {
	return "Publish used and remaining seats per program for the current join year"
}

// Run reports every program. Programs whose names do not classify are
// skipped; any other failure aborts the run.
func (j *SeatUsageJob) Run(ctx context.Context) error {
	domains, err := j.reports.ListDomains(ctx)
	if err != nil {
		return fmt.Errorf("seat_usage: %w", err)
	}

	year := j.config.Now().Year()
	reported := 0
	for _, d := range domains {
		if err := ctx.Err(); err != nil {
			return err
		}

		report, err := j.reports.AllocationReport(ctx, query.AllocationReportQuery{
			DomainID: d.DomainID,
			JoinYear: year,
		})
		if err != nil {
			if errors.Is(err, shared.ErrClassification) || errors.Is(err, shared.ErrUnknownDepartment) {
				j.log.Debug("program skipped",
					logger.DomainID(d.DomainID),
					logger.String("program", d.Program),
					logger.Err(err),
				)
				continue
			}
			return fmt.Errorf("seat_usage: domain %d: %w", d.DomainID, err)
		}

		if j.gauge != nil {
			j.gauge.SetSeatUsage(report.Program, year, report.Used, report.Remaining)
		}
		if j.config.LowWatermark > 0 && report.Remaining <= j.config.LowWatermark {
			j.log.Warn("seat range running low",
				logger.DomainID(d.DomainID),
				logger.String("program", report.Program),
				logger.JoinYear(year),
				logger.Int("remaining", report.Remaining),
			)
		}
		reported++
	}

	j.log.Debug("seat usage refreshed", logger.Int("programs", reported), logger.JoinYear(year))
	return nil
}
