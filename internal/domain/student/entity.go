package student

import (
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRAM
// ══════════════════════════════════════════════════════════════════════════════

// Program is an academic program that students are admitted into. Its Name
// is free text ("B.Tech CSE", "IM.Tech AIDS") and drives roll-number
// classification.
type Program struct {
	// ID is the public domainId.
	ID int64

	Name  string
	Batch string

	// Capacity is informational. Seats are bounded by the department range
	// of the roll-number allocator, not by this value.
	Capacity int

	Qualification string
	CreatedAt     time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student is an admitted student together with their allocation record.
type Student struct {
	ID int64

	// Allocation record, immutable after admission.
	RollNumber   string
	DegreePrefix string
	SeqNo        int
	JoinYear     int

	FirstName string
	LastName  string
	Email     string

	// PhotographPath is an opaque reference supplied by the caller.
	PhotographPath string

	DomainID int64
	// Program is the program name, filled on reads for response views.
	Program string

	TotalCredits int
	CGPA         *float64

	CreatedAt time.Time
}

// FullName joins first and last name.
func (s *Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// NormalizeEmail lower-cases and trims an address so that uniqueness checks
// are not defeated by casing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
