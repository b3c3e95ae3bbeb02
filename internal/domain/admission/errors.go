package admission

import (
	"fmt"

	"github.com/academic-erp/erp-backend/internal/domain/shared"
)

const errDomain = "admission"

func newClassificationError(program, reason string) error {
	return shared.NewDomainError(errDomain, "Classify", shared.ErrClassification,
		fmt.Sprintf("%s: %s", reason, program))
}

func newUnknownDepartmentError(dept Department) error {
	return shared.NewDomainError(errDomain, "RangeFor", shared.ErrUnknownDepartment,
		fmt.Sprintf("no seat range configured for department %q", dept))
}

func newSeatRangeExhaustedError(key AllocationKey) error {
	return shared.NewDomainError(errDomain, "AllocateNext", shared.ErrSeatRangeExhausted,
		fmt.Sprintf("seat range exhausted for department %s (%s, %d-%d) in join year %d",
			key.Range.Department, key.Prefix, key.Range.Start, key.Range.End, key.JoinYear))
}

// NewUnknownDomainError reports a missing program.
func NewUnknownDomainError(domainID int64) error {
	return shared.NewDomainError(errDomain, "FindProgram", shared.ErrUnknownDomain,
		fmt.Sprintf("invalid domain ID %d", domainID))
}

// NewDuplicateEmailError reports an email that already belongs to a student.
// An empty email is allowed when only the violated constraint is known.
func NewDuplicateEmailError(email string) error {
	msg := "a student with this email is already admitted"
	if email != "" {
		msg = fmt.Sprintf("a student with email %s is already admitted", email)
	}
	return shared.NewDomainError(errDomain, "CheckEmail", shared.ErrDuplicateEmail, msg)
}

// NewAllocationConflictError reports that a concurrent admission took the
// sequence or roll number first.
func NewAllocationConflictError(key AllocationKey, cause error) error {
	return shared.WrapError(errDomain, "InsertStudent", shared.ErrAllocationConflict,
		fmt.Sprintf("sequence collision in %s", key), cause)
}

// NewStorageError wraps a failure of the durable store.
func NewStorageError(op string, cause error) error {
	return shared.WrapError(errDomain, op, shared.ErrStorage, "storage failure", cause)
}
