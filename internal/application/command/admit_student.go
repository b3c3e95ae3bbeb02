// Package command contains the write operations of the service.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/academic-erp/erp-backend/internal/domain/admission"
	"github.com/academic-erp/erp-backend/internal/domain/shared"
	"github.com/academic-erp/erp-backend/internal/domain/student"
	"github.com/academic-erp/erp-backend/pkg/logger"
	"github.com/academic-erp/erp-backend/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIT STUDENT COMMAND
// Admits a student into a program and issues their roll number. Everything
// from the program lookup to the student insert runs in one transaction.
// ══════════════════════════════════════════════════════════════════════════════

// AdmitStudentCommand is the admission request.
type AdmitStudentCommand struct {
	FirstName string `json:"firstName" validate:"notblank,max=120"`
	LastName  string `json:"lastName" validate:"notblank,max=120"`
	Email     string `json:"email" validate:"notblank,email,max=255"`

	// PhotographPath is stored as given.
	PhotographPath string `json:"photographPath" validate:"omitempty,max=512"`

	DomainID int64 `json:"domainId" validate:"required,gt=0"`
	JoinYear int   `json:"joinYear" validate:"required,gte=2000,lte=2100"`

	// CorrelationID ties logs and events to the inbound request.
	CorrelationID string `json:"-"`
}

// Normalize trims whitespace from every text field and lower-cases the
// email, which is stored in that form.
func (c AdmitStudentCommand) Normalize() AdmitStudentCommand {
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = student.NormalizeEmail(c.Email)
	c.PhotographPath = strings.TrimSpace(c.PhotographPath)
	return c
}

// Validate returns a *shared.ValidationError describing every bad field.
func (c AdmitStudentCommand) Validate() error {
	return validateStruct(c)
}

// AdmitStudentResult is the admission response view.
type AdmitStudentResult struct {
	StudentID     int64
	RollNumber    string
	FirstName     string
	LastName      string
	Email         string
	DomainProgram string
	JoinYear      int

	// SeqNo and Attempts are reported for logs and operators; they are not
	// part of the public response.
	SeqNo    int
	Attempts int
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// EventPublisher delivers domain events after commit.
type EventPublisher interface {
	Publish(event shared.Event) error
}

// AdmissionMetrics records admission outcomes.
type AdmissionMetrics interface {
	ObserveAdmission(outcome string, elapsed time.Duration)
	IncAllocationRetry()
	IncSeatRangeExhausted(department string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveAdmission(string, time.Duration) {}
func (nopMetrics) IncAllocationRetry()                    {}
func (nopMetrics) IncSeatRangeExhausted(string)           {}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AdmitStudentHandlerConfig tunes the handler.
type AdmitStudentHandlerConfig struct {
	// MaxAttempts bounds full-transaction retries after an allocation
	// conflict. The first attempt counts.
	MaxAttempts int

	// RetryDelay is the backoff before the first retry.
	RetryDelay time.Duration

	// TxTimeout bounds each attempt, lock waits included.
	TxTimeout time.Duration

	Metrics AdmissionMetrics
	Logger  *logger.Logger
}

// DefaultAdmitStudentHandlerConfig returns 3 attempts, 20ms initial backoff
// and a 10s transaction timeout.
func DefaultAdmitStudentHandlerConfig() AdmitStudentHandlerConfig {
	return AdmitStudentHandlerConfig{
		MaxAttempts: 3,
		RetryDelay:  20 * time.Millisecond,
		TxTimeout:   10 * time.Second,
	}
}

// AdmitStudentHandler is the admission orchestrator.
type AdmitStudentHandler struct {
	uow        admission.UnitOfWork
	classifier *admission.ProgramClassifier
	allocator  *admission.SequenceAllocator
	publisher  EventPublisher
	metrics    AdmissionMetrics
	log        *logger.Logger
	retrier    *retry.Retrier
	txTimeout  time.Duration
}

// NewAdmitStudentHandler wires the orchestrator. publisher may be nil.
func NewAdmitStudentHandler(
	uow admission.UnitOfWork,
	classifier *admission.ProgramClassifier,
	allocator *admission.SequenceAllocator,
	publisher EventPublisher,
	config AdmitStudentHandlerConfig,
) *AdmitStudentHandler {
	defaults := DefaultAdmitStudentHandlerConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.TxTimeout <= 0 {
		config.TxTimeout = defaults.TxTimeout
	}
	if config.Metrics == nil {
		config.Metrics = nopMetrics{}
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}

	h := &AdmitStudentHandler{
		uow:        uow,
		classifier: classifier,
		allocator:  allocator,
		publisher:  publisher,
		metrics:    config.Metrics,
		log:        config.Logger.With(logger.Component("admission")),
		txTimeout:  config.TxTimeout,
	}
	h.retrier = retry.AllocationRetrier(config.MaxAttempts, config.RetryDelay,
		isAllocationConflict, retry.WithOnRetry(h.onRetry))
	return h
}

func isAllocationConflict(err error) bool {
	return shared.KindOf(err) == shared.KindAllocationConflict
}

// Handle admits the student described by cmd.
func (h *AdmitStudentHandler) Handle(ctx context.Context, cmd AdmitStudentCommand) (*AdmitStudentResult, error) {
	start := time.Now()
	cmd = cmd.Normalize()

	if err := cmd.Validate(); err != nil {
		h.metrics.ObserveAdmission(shared.KindValidation.String(), time.Since(start))
		return nil, fmt.Errorf("admit_student: %w", err)
	}

	log := h.log.With(
		logger.String(logger.RequestIDKey, cmd.CorrelationID),
		logger.DomainID(cmd.DomainID),
		logger.JoinYear(cmd.JoinYear),
	)

	attempts := 0
	var (
		result *AdmitStudentResult
		key    admission.AllocationKey
		prog   string
	)
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		attempts++
		r, k, p, err := h.admitOnce(ctx, cmd)
		key, prog = k, p
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	if err != nil {
		switch {
		case retry.IsExhausted(err):
			err = admission.NewStorageError("Admit", err)
		case isAllocationConflict(err) && ctx.Err() != nil:
			// The deadline ran out while backing off, before the retry budget did.
			err = admission.NewStorageError("Admit", err)
		case shared.KindOf(err) == shared.KindUnknown &&
			(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)):
			err = admission.NewStorageError("Admit", err)
		}
		kind := shared.KindOf(err)
		h.metrics.ObserveAdmission(kind.String(), time.Since(start))
		h.reportFailure(log, kind, key, prog, attempts, err)
		return nil, fmt.Errorf("admit_student: %w", err)
	}

	result.Attempts = attempts
	h.metrics.ObserveAdmission("admitted", time.Since(start))
	log.Info("student admitted",
		logger.StudentID(result.StudentID),
		logger.RollNumber(result.RollNumber),
		logger.AllocationKey(key.String()),
		logger.Sequence(result.SeqNo),
		logger.Attempt(attempts),
		logger.Latency(time.Since(start)),
	)

	event := shared.NewStudentAdmittedEvent(result.StudentID, result.RollNumber,
		string(key.Prefix), string(key.Range.Department), result.JoinYear, result.SeqNo, cmd.DomainID)
	event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	event.Attempts = attempts
	h.publish(log, event)

	return result, nil
}

// admitOnce runs one transaction. It also returns the allocation key and
// program name so that failures can be reported with context.
func (h *AdmitStudentHandler) admitOnce(ctx context.Context, cmd AdmitStudentCommand) (*AdmitStudentResult, admission.AllocationKey, string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.txTimeout)
	defer cancel()

	var (
		result  *AdmitStudentResult
		key     admission.AllocationKey
		program string
	)

	err := h.uow.WithinAdmission(ctx, func(ctx context.Context, tx admission.Tx) error {
		prog, err := tx.FindProgram(ctx, cmd.DomainID)
		if err != nil {
			return err
		}
		program = prog.Name

		exists, err := tx.EmailExists(ctx, cmd.Email)
		if err != nil {
			return err
		}
		if exists {
			return admission.NewDuplicateEmailError(cmd.Email)
		}

		cls, err := h.classifier.Classify(prog.Name)
		if err != nil {
			return err
		}
		key, err = h.allocator.KeyFor(cls, cmd.JoinYear)
		if err != nil {
			return err
		}

		if err := tx.LockKey(ctx, key); err != nil {
			return err
		}
		seq, err := h.allocator.AllocateNext(ctx, tx, key)
		if err != nil {
			return err
		}

		st := &student.Student{
			RollNumber:     admission.FormatRollNumber(key.Prefix, key.JoinYear, seq),
			DegreePrefix:   string(key.Prefix),
			SeqNo:          seq,
			JoinYear:       cmd.JoinYear,
			FirstName:      cmd.FirstName,
			LastName:       cmd.LastName,
			Email:          cmd.Email,
			PhotographPath: cmd.PhotographPath,
			DomainID:       prog.ID,
		}
		if err := tx.InsertStudent(ctx, st); err != nil {
			return err
		}

		result = &AdmitStudentResult{
			StudentID:     st.ID,
			RollNumber:    st.RollNumber,
			FirstName:     st.FirstName,
			LastName:      st.LastName,
			Email:         st.Email,
			DomainProgram: prog.Name,
			JoinYear:      st.JoinYear,
			SeqNo:         st.SeqNo,
		}
		return nil
	})
	if err != nil {
		return nil, key, program, err
	}
	return result, key, program, nil
}

func (h *AdmitStudentHandler) onRetry(attempt int, err error, delay time.Duration) {
	h.metrics.IncAllocationRetry()
	h.log.Warn("allocation conflict, retrying admission",
		logger.Attempt(attempt),
		logger.Duration("backoff", delay),
		logger.Err(err),
	)
}

func (h *AdmitStudentHandler) reportFailure(log *logger.Logger, kind shared.Kind, key admission.AllocationKey, program string, attempts int, err error) {
	fields := []logger.Field{
		logger.String("kind", kind.String()),
		logger.Attempt(attempts),
		logger.Err(err),
	}
	if program != "" {
		fields = append(fields, logger.Program(program))
	}

	switch kind {
	case shared.KindSeatRangeExhausted:
		h.metrics.IncSeatRangeExhausted(string(key.Range.Department))
		log.Warn("seat range exhausted", append(fields, logger.AllocationKey(key.String()))...)
		h.publish(log, shared.NewSeatRangeExhaustedEvent(key.String(), program,
			string(key.Range.Department), key.JoinYear, key.Range.End))
	case shared.KindStorage, shared.KindUnknown:
		log.Error("admission failed", fields...)
	default:
		log.Info("admission rejected", fields...)
	}
}

func (h *AdmitStudentHandler) publish(log *logger.Logger, event shared.Event) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(event); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("failed to publish event",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}
}
