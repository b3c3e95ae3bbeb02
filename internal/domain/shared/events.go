package shared

import (
	"strconv"
	"time"
)

// EventType names a domain event.
type EventType string

const (
	// EventStudentAdmitted fires after an admission transaction commits.
	EventStudentAdmitted EventType = "student.admitted"
	// EventSeatRangeExhausted fires when an admission is refused because the
	// department block for the year is full.
	EventSeatRangeExhausted EventType = "allocation.range_exhausted"
)

// Event is implemented by every domain event.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
}

// EventHandler consumes an event. Returned errors are logged by the bus.
type EventHandler func(event Event) error

// BaseEvent provides the common Event fields.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() string   { return e.AggregateId }

// NewBaseEvent stamps an event with the current time.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
	}
}

// WithCorrelationID returns a copy tagged with a request correlation ID.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// StudentAdmittedEvent is emitted once per committed admission.
type StudentAdmittedEvent struct {
	BaseEvent
	StudentID    int64  `json:"student_id"`
	RollNumber   string `json:"roll_number"`
	DegreePrefix string `json:"degree_prefix"`
	Department   string `json:"department"`
	JoinYear     int    `json:"join_year"`
	SeqNo        int    `json:"seq_no"`
	DomainID     int64  `json:"domain_id"`
	Attempts     int    `json:"attempts"`
}

// NewStudentAdmittedEvent builds the event for a new student.
func NewStudentAdmittedEvent(studentID int64, rollNumber, prefix, department string, joinYear, seq int, domainID int64) StudentAdmittedEvent {
	return StudentAdmittedEvent{
		BaseEvent:    NewBaseEvent(EventStudentAdmitted, strconv.FormatInt(studentID, 10)),
		StudentID:    studentID,
		RollNumber:   rollNumber,
		DegreePrefix: prefix,
		Department:   department,
		JoinYear:     joinYear,
		SeqNo:        seq,
		DomainID:     domainID,
	}
}

// SeatRangeExhaustedEvent tells operators a block needs attention.
type SeatRangeExhaustedEvent struct {
	BaseEvent
	Program    string `json:"program"`
	Department string `json:"department"`
	JoinYear   int    `json:"join_year"`
	RangeEnd   int    `json:"range_end"`
}

// NewSeatRangeExhaustedEvent builds the exhaustion event. The aggregate is
// the allocation key.
func NewSeatRangeExhaustedEvent(allocationKey, program, department string, joinYear, rangeEnd int) SeatRangeExhaustedEvent {
	return SeatRangeExhaustedEvent{
		BaseEvent:  NewBaseEvent(EventSeatRangeExhausted, allocationKey),
		Program:    program,
		Department: department,
		JoinYear:   joinYear,
		RangeEnd:   rangeEnd,
	}
}
