package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/academic-erp/erp-backend/internal/application/command"
	"github.com/academic-erp/erp-backend/internal/application/query"
	"github.com/academic-erp/erp-backend/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "Academic ERP admissions API",
		"version": s.config.Version,
		"endpoints": map[string]string{
			"admit":       "POST /api/v1/admissions",
			"students":    "GET /api/v1/students",
			"student":     "GET /api/v1/students/{id}",
			"roll":        "GET /api/v1/students/roll/{rollNumber}",
			"domains":     "GET /api/v1/domains",
			"allocations": "GET /api/v1/domains/{id}/allocations?year=",
			"health":      "GET /health",
			"metrics":     "GET /metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"healthy": true,
			"uptime":  s.Uptime().String(),
			"version": s.config.Version,
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMISSION HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AdmissionRequest is the body of POST /api/v1/admissions.
type AdmissionRequest struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	PhotographPath string `json:"photographPath,omitempty"`
	DomainID       int64  `json:"domainId"`
	JoinYear       int    `json:"joinYear"`
}

// AdmissionResponse is the data of a successful admission.
type AdmissionResponse struct {
	StudentID     int64  `json:"studentId"`
	RollNumber    string `json:"rollNumber"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Email         string `json:"email"`
	DomainProgram string `json:"domainProgram"`
	JoinYear      int    `json:"joinYear"`
}

// handleAdmit handles POST /api/v1/admissions
func (s *Server) handleAdmit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Admissions == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Admissions are not configured")
		return
	}

	var req AdmissionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.deps.Admissions.Handle(r.Context(), command.AdmitStudentCommand{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		PhotographPath: req.PhotographPath,
		DomainID:       req.DomainID,
		JoinYear:       req.JoinYear,
		CorrelationID:  getRequestID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/students/"+strconv.FormatInt(result.StudentID, 10))
	writeJSON(w, r, http.StatusCreated, AdmissionResponse{
		StudentID:     result.StudentID,
		RollNumber:    result.RollNumber,
		FirstName:     result.FirstName,
		LastName:      result.LastName,
		Email:         result.Email,
		DomainProgram: result.DomainProgram,
		JoinYear:      result.JoinYear,
	})
}

// decodeJSON reads exactly one JSON object into dst. Malformed bodies are
// validation errors.
func decodeJSON(r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return shared.NewValidationError("body", "content type must be application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return shared.NewValidationError("body", "request body too large")
		case errors.Is(err, io.EOF):
			return shared.NewValidationError("body", "request body is empty")
		default:
			return shared.NewValidationError("body", "malformed JSON: "+err.Error())
		}
	}
	if dec.More() {
		return shared.NewValidationError("body", "request body must contain a single JSON object")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListStudents handles GET /api/v1/students?limit=&offset=&year=&domainId=
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Students == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Student reads are not configured")
		return
	}

	q, err := listStudentsQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.deps.Students.ListStudents(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSONWithMeta(w, r, http.StatusOK, page.Students, &ResponseMeta{
		TotalCount: page.Total,
		Limit:      page.Limit,
		Offset:     page.Offset,
		HasMore:    page.Offset+len(page.Students) < page.Total,
	})
}

func listStudentsQuery(r *http.Request) (query.ListStudentsQuery, error) {
	verr := &shared.ValidationError{}
	intParam := func(key string) int {
		n, err := queryInt(r, key, 0)
		if err != nil {
			verr.Fields = append(verr.Fields, shared.FieldError{Field: key, Error: err.Error()})
		}
		return n
	}

	q := query.ListStudentsQuery{
		Limit:    intParam("limit"),
		Offset:   intParam("offset"),
		JoinYear: intParam("year"),
		DomainID: int64(intParam("domainId")),
	}
	if len(verr.Fields) > 0 {
		return q, verr
	}
	return q, nil
}

// handleGetStudent handles GET /api/v1/students/{id}
func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	if s.deps.Students == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Student reads are not configured")
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	view, err := s.deps.Students.GetStudent(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleGetStudentByRoll handles GET /api/v1/students/roll/{rollNumber}
func (s *Server) handleGetStudentByRoll(w http.ResponseWriter, r *http.Request) {
	if s.deps.Students == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Student reads are not configured")
		return
	}

	view, err := s.deps.Students.GetStudentByRoll(r.Context(), r.PathValue("rollNumber"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListDomains handles GET /api/v1/domains
func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	if s.deps.Domains == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Program reads are not configured")
		return
	}

	list, err := s.deps.Domains.ListDomains(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, list, &ResponseMeta{TotalCount: len(list)})
}

// handleAllocationReport handles GET /api/v1/domains/{id}/allocations?year=
func (s *Server) handleAllocationReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Domains == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Program reads are not configured")
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	year, err := queryInt(r, "year", 0)
	if err != nil {
		s.writeError(w, r, shared.NewValidationError("year", err.Error()))
		return
	}

	report, err := s.deps.Domains.AllocationReport(r.Context(), query.AllocationReportQuery{DomainID: id, JoinYear: year})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}
