package http

import (
	"errors"
	"net/http"

	"github.com/academic-erp/erp-backend/internal/domain/shared"
	"github.com/academic-erp/erp-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

const codeInternal = "INTERNAL_ERROR"

type errorMapping struct {
	Status  int
	Code    string
	Message string
}

// errorMappings covers every shared.Kind except KindUnknown.
var errorMappings = map[shared.Kind]errorMapping{
	shared.KindValidation:         {http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed"},
	shared.KindClassification:     {http.StatusUnprocessableEntity, "CLASSIFICATION_FAILED", "Program cannot be classified"},
	shared.KindUnknownDepartment:  {http.StatusUnprocessableEntity, "UNKNOWN_DEPARTMENT", "Department has no seat range"},
	shared.KindUnknownDomain:      {http.StatusNotFound, "UNKNOWN_DOMAIN", "Program not found"},
	shared.KindDuplicateEmail:     {http.StatusConflict, "DUPLICATE_EMAIL", "A student with this email already exists"},
	shared.KindSeatRangeExhausted: {http.StatusConflict, "SEAT_RANGE_EXHAUSTED", "No roll numbers left for this program and year"},
	shared.KindAllocationConflict: {http.StatusServiceUnavailable, "ALLOCATION_CONFLICT", "Roll number allocation is busy, retry later"},
	shared.KindStorage:            {http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Storage is unavailable, retry later"},
	shared.KindNotFound:           {http.StatusNotFound, "NOT_FOUND", "Resource not found"},
}

var internalMapping = errorMapping{http.StatusInternalServerError, codeInternal, "An unexpected error occurred"}

// mappingFor returns the response mapping of err's kind.
func mappingFor(err error) errorMapping {
	if m, ok := errorMappings[shared.KindOf(err)]; ok {
		return m
	}
	return internalMapping
}

// writeError maps err to a response. Client errors carry the domain message;
// server errors carry only the generic one and are logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	m := mappingFor(err)
	apiErr := &APIError{Code: m.Code, Message: m.Message}

	var de *shared.DomainError
	if m.Status < http.StatusInternalServerError && errors.As(err, &de) && de.Message != "" {
		apiErr.Message = de.Message
	}

	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		for _, f := range verr.Fields {
			apiErr.Fields = append(apiErr.Fields, FieldProblem{Field: f.Field, Error: f.Error})
		}
	}

	if m.Status >= http.StatusInternalServerError {
		log := logger.FromContext(r.Context())
		log.Error("request failed",
			logger.String("code", m.Code),
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
	}
	if m.Status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	writeAPIError(w, r, m.Status, apiErr)
}
