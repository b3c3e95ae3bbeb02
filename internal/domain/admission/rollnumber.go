package admission

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/academic-erp/erp-backend/internal/domain/shared"
)

const (
	MinJoinYear = 2000
	MaxJoinYear = 2100

	// MaxSequence is the largest value the three-digit sequence field holds.
	MaxSequence = 999

	yearWidth = 4
	seqWidth  = 3
)

// RollBase is the prefix-and-year part shared by every roll number of a key,
// e.g. "BT2024".
func RollBase(prefix DegreePrefix, joinYear int) string {
	return fmt.Sprintf("%s%04d", prefix, joinYear)
}

// FormatRollNumber renders prefix, a zero-padded four-digit year and a
// zero-padded three-digit sequence: FormatRollNumber("BT", 2024, 1) is
// "BT2024001". It is pure; callers guarantee joinYear is in
// [MinJoinYear, MaxJoinYear] and seq lies within its department range.
func FormatRollNumber(prefix DegreePrefix, joinYear, seq int) string {
	return fmt.Sprintf("%s%03d", RollBase(prefix, joinYear), seq)
}

// RollNumber is a parsed roll number.
type RollNumber struct {
	Prefix   DegreePrefix
	JoinYear int
	Seq      int
}

func (r RollNumber) String() string {
	return FormatRollNumber(r.Prefix, r.JoinYear, r.Seq)
}

// ParseRollNumber parses s case-insensitively. It rejects unknown prefixes,
// wrong lengths and out-of-range years.
func ParseRollNumber(s string) (RollNumber, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	const prefixLen = 2
	if len(s) != prefixLen+yearWidth+seqWidth {
		return RollNumber{}, shared.NewValidationError("rollNumber", "roll number must be 9 characters")
	}

	prefix := DegreePrefix(s[:prefixLen])
	if !prefix.IsValid() {
		return RollNumber{}, shared.NewValidationError("rollNumber", "unknown degree prefix "+string(prefix))
	}

	year, err := strconv.Atoi(s[prefixLen : prefixLen+yearWidth])
	if err != nil || year < MinJoinYear || year > MaxJoinYear {
		return RollNumber{}, shared.NewValidationError("rollNumber", "invalid join year")
	}

	seq, err := strconv.Atoi(s[prefixLen+yearWidth:])
	if err != nil || seq < 1 {
		return RollNumber{}, shared.NewValidationError("rollNumber", "invalid sequence number")
	}

	return RollNumber{Prefix: prefix, JoinYear: year, Seq: seq}, nil
}
