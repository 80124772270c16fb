/*
handlers.go - HTTP API handlers for the canteen dues engine

PURPOSE:
  Exposes the dues engine over REST. Handles HTTP request/response and JSON
  serialization, and delegates every rule to the dues package.

ENDPOINTS:
  Class-day:
    GET    /api/classes/{id}/records           Reconciled class-day (?date=YYYY-MM-DD)
    GET    /api/classes/{id}/records/{status}  One partition, read-only: paid, unpaid, absent
    GET    /api/classes/{id}/summary           Counts and money totals
    POST   /api/classes/{id}/tally             Teacher end-of-day tally

  Students:
    POST   /api/students                       Enrol; ensures today's record
    GET    /api/students/{id}/records          Record history
    POST   /api/students/{id}/prepayments      Lump-sum prepayment

  Records:
    PATCH  /api/records/{id}/status            Flip has_paid / is_absent
    PUT    /api/records/{id}                   Edit
    DELETE /api/records/{id}                   Delete

  Classes and settings:
    GET    /api/classes, POST /api/classes, PUT /api/classes/{id}/supervisor
    GET    /api/classes/{id}/students
    GET    /api/settings/amount, PUT /api/settings/amount
    GET    /api/summary                        School-wide totals

  Sweeps:
    POST   /api/cron/daily-records?secret=     Manual daily sweep
    GET    /api/sweeps                         Sweep run history

ERROR HANDLING:
  Errors are returned as JSON with an HTTP status picked from the error:
  - 400: Validation errors, invalid input
  - 401: Bad cron secret
  - 404: Unknown class, student or record
  - 409: Duplicate (student, day)
  - 503: Roster or settings unavailable
  - 500: Internal errors
  A tally or reconciliation where only some students failed answers 207 with
  the per-student failures in the body.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/warp/canteen-engine/dues"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is everything the HTTP layer needs from storage.
type Backend interface {
	dues.TxStore
	dues.RecordManager
	dues.RosterProvider
	dues.RosterAdmin
	dues.SettingsAdmin
	dues.SweepRunStore
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *dues.Engine
	Backend Backend
	Sweeps  *DailySweepScheduler

	// CronSecret guards the manual sweep endpoint. Empty disables it.
	CronSecret string

	validate *validator.Validate
	log      zerolog.Logger
}

func NewHandler(engine *dues.Engine, backend Backend, sweeps *DailySweepScheduler, cronSecret string, log zerolog.Logger) *Handler {
	return &Handler{
		Engine:     engine,
		Backend:    backend,
		Sweeps:     sweeps,
		CronSecret: cronSecret,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		log:        log.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// CLASS-DAY HANDLERS
// =============================================================================

// GetClassDay reconciles and returns the class-day, creating missing records.
func (h *Handler) GetClassDay(w http.ResponseWriter, r *http.Request) {
	classID, day, ok := h.classDayParams(w, r)
	if !ok {
		return
	}

	view, err := h.Engine.ReconcileClassDay(r.Context(), classID, day)
	if err != nil {
		h.writeDomainError(w, "Failed to load class records", err)
		return
	}

	writeJSON(w, partialStatus(len(view.Failures)), toClassDayDTO(view))
}

// GetClassDayByStatus lists one partition straight from the store. Unlike
// GetClassDay it never creates records.
func (h *Handler) GetClassDayByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := dues.ParseStatus(chi.URLParam(r, "status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid status (use paid, unpaid or absent)", err)
		return
	}
	classID, day, ok := h.classDayParams(w, r)
	if !ok {
		return
	}

	recs, err := h.Engine.ListClassDay(r.Context(), classID, day, status)
	if err != nil {
		h.writeDomainError(w, "Failed to list class records", err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordDTOs(recs))
}

func (h *Handler) GetClassDaySummary(w http.ResponseWriter, r *http.Request) {
	classID, day, ok := h.classDayParams(w, r)
	if !ok {
		return
	}

	summary, err := h.Engine.SummarizeClassDay(r.Context(), classID, day)
	if err != nil {
		h.writeDomainError(w, "Failed to summarize class", err)
		return
	}

	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// SubmitTally applies a teacher's paid / unpaid / absent lists.
func (h *Handler) SubmitTally(w http.ResponseWriter, r *http.Request) {
	classID, ok := pathID(w, r, "id", "class")
	if !ok {
		return
	}
	var req TallyRequest
	if !h.decode(w, r, &req) {
		return
	}

	day := h.Engine.Today()
	if req.Date != "" {
		d, err := dues.ParseDay(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		day = d
	}

	res, err := h.Engine.SubmitTally(r.Context(), dues.Tally{
		ClassID:     dues.ClassID(classID),
		Day:         day,
		Paid:        toTallyEntries(req.Paid),
		Unpaid:      toTallyEntries(req.Unpaid),
		Absent:      toTallyEntries(req.Absent),
		SubmittedBy: dues.SubmitterID(req.SubmittedBy),
	})
	if err != nil {
		h.writeDomainError(w, "Failed to submit tally", err)
		return
	}

	dto := TallyResultDTO{
		Records:  toRecordDTOs(res.Records),
		Failures: toFailureDTOs(res.Failures),
	}
	for _, id := range res.Overridden {
		dto.Overridden = append(dto.Overridden, int64(id))
	}
	writeJSON(w, partialStatus(len(res.Failures)), dto)
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// CreateStudent enrols a student and makes sure today's record exists.
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if !h.decode(w, r, &req) {
		return
	}

	st, err := h.Backend.SaveStudent(r.Context(), dues.Student{ClassID: dues.ClassID(req.ClassID), Name: req.Name})
	if err != nil {
		h.writeDomainError(w, "Failed to create student", err)
		return
	}

	h.Engine.OnStudentEnrolled(r.Context(), st.ID)

	writeJSON(w, http.StatusCreated, StudentDTO{ID: int64(st.ID), ClassID: int64(st.ClassID), Name: st.Name})
}

func (h *Handler) GetStudentRecords(w http.ResponseWriter, r *http.Request) {
	studentID, ok := pathID(w, r, "id", "student")
	if !ok {
		return
	}

	recs, err := h.Backend.ListByStudent(r.Context(), dues.StudentID(studentID))
	if err != nil {
		h.writeDomainError(w, "Failed to list records", err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordDTOs(recs))
}

// CreatePrepayment turns a lump sum into paid records starting today.
func (h *Handler) CreatePrepayment(w http.ResponseWriter, r *http.Request) {
	studentID, ok := pathID(w, r, "id", "student")
	if !ok {
		return
	}
	var req PrepaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	recs, err := h.Engine.GeneratePrepayment(r.Context(), dues.Prepayment{
		StudentID:    dues.StudentID(studentID),
		LumpSum:      req.LumpSum,
		PerDayAmount: req.PerDayAmount,
		SubmittedBy:  dues.SubmitterID(req.SubmittedBy),
	})
	if err != nil {
		h.writeDomainError(w, "Failed to generate prepayment", err)
		return
	}

	writeJSON(w, http.StatusCreated, PrepaymentDTO{Count: len(recs), Records: toRecordDTOs(recs)})
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

func (h *Handler) UpdateRecordStatus(w http.ResponseWriter, r *http.Request) {
	id := dues.RecordID(chi.URLParam(r, "id"))
	var req UpdateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := dues.UpdateStatus(r.Context(), h.Backend, id, *req.HasPaid, *req.IsAbsent)
	if err != nil {
		h.writeDomainError(w, "Failed to update record status", err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	id := dues.RecordID(chi.URLParam(r, "id"))
	var req UpdateRecordRequest
	if !h.decode(w, r, &req) {
		return
	}
	day, err := dues.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	rec := dues.Record{
		ID:          id,
		StudentID:   dues.StudentID(req.StudentID),
		Day:         day,
		Amount:      req.Amount,
		HasPaid:     req.HasPaid,
		IsAbsent:    req.IsAbsent,
		IsPrepaid:   req.IsPrepaid,
		SubmittedBy: dues.SubmitterID(req.SubmittedBy),
	}
	if req.ClassID != nil {
		rec.ClassID = dues.ClassIDPtr(dues.ClassID(*req.ClassID))
	}

	updated, err := dues.EditRecord(r.Context(), h.Backend, rec)
	if err != nil {
		h.writeDomainError(w, "Failed to update record", err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordDTO(updated))
}

func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := dues.RecordID(chi.URLParam(r, "id"))

	if err := h.Backend.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to delete record", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CLASS AND SETTINGS HANDLERS
// =============================================================================

func (h *Handler) ListClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := h.Backend.ListClasses(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list classes", err)
		return
	}

	dtos := make([]ClassDTO, len(classes))
	for i, c := range classes {
		dtos[i] = toClassDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListClassStudents returns the class roster.
func (h *Handler) ListClassStudents(w http.ResponseWriter, r *http.Request) {
	classID, ok := pathID(w, r, "id", "class")
	if !ok {
		return
	}

	roster, err := h.Backend.ClassRoster(r.Context(), dues.ClassID(classID))
	if err != nil {
		h.writeDomainError(w, "Failed to list students", err)
		return
	}

	dtos := make([]StudentDTO, len(roster.Students))
	for i, st := range roster.Students {
		dtos[i] = StudentDTO{ID: int64(st.ID), ClassID: int64(st.ClassID), Name: st.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateClass(w http.ResponseWriter, r *http.Request) {
	var req CreateClassRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.Backend.SaveClass(r.Context(), dues.Class{Name: req.Name, SupervisorID: submitterPtr(req.SupervisorID)})
	if err != nil {
		h.writeDomainError(w, "Failed to create class", err)
		return
	}

	writeJSON(w, http.StatusCreated, toClassDTO(c))
}

func (h *Handler) AssignSupervisor(w http.ResponseWriter, r *http.Request) {
	classID, ok := pathID(w, r, "id", "class")
	if !ok {
		return
	}
	var req AssignSupervisorRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.Backend.AssignSupervisor(r.Context(), dues.ClassID(classID), submitterPtr(req.SupervisorID)); err != nil {
		h.writeDomainError(w, "Failed to assign supervisor", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetSchoolSummary totals every class without creating records.
func (h *Handler) GetSchoolSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Engine.SummarizeSchool(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to summarize school", err)
		return
	}
	writeJSON(w, http.StatusOK, toSchoolSummaryDTO(summary))
}

func (h *Handler) GetDueAmount(w http.ResponseWriter, r *http.Request) {
	amount, err := h.Backend.DueAmount(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to read due amount", err)
		return
	}
	writeJSON(w, http.StatusOK, DueAmountDTO{Amount: amount})
}

// SetDueAmount changes the default for records created from now on. Existing
// records keep their snapshot.
func (h *Handler) SetDueAmount(w http.ResponseWriter, r *http.Request) {
	var req SetDueAmountRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.Backend.SetDueAmount(r.Context(), req.Amount); err != nil {
		h.writeDomainError(w, "Failed to update due amount", err)
		return
	}

	h.GetDueAmount(w, r)
}

// =============================================================================
// SWEEP HANDLERS
// =============================================================================

// TriggerDailySweep runs today's sweep on demand for an external cron.
func (h *Handler) TriggerDailySweep(w http.ResponseWriter, r *http.Request) {
	secret := r.URL.Query().Get("secret")
	if h.CronSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.CronSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	run, err := h.Sweeps.RunNow(r.Context(), TriggerManual)
	if err != nil {
		h.writeDomainError(w, "Daily sweep failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toSweepRunDTO(run))
}

func (h *Handler) ListSweepRuns(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Backend.ListSweepRuns(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, "Failed to list sweep runs", err)
		return
	}

	dtos := make([]SweepRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toSweepRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Health pings the backend when it supports it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Backend.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	var verr validator.ValidationErrors
	switch {
	case dues.IsClientError(err), errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, message, err)
	case dues.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case dues.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case errors.Is(err, dues.ErrUpstreamUnavailable):
		writeError(w, http.StatusServiceUnavailable, message, err)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
		h.log.Debug().Err(err).Msg(message)
	default:
		h.log.Error().Err(err).Msg(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// decode reads a JSON body and validates it. It writes the 400 itself.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, param, what string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid "+what+" id", err)
		return 0, false
	}
	return id, true
}

// classDayParams reads {id} and ?date=, defaulting the date to today.
func (h *Handler) classDayParams(w http.ResponseWriter, r *http.Request) (dues.ClassID, dues.Day, bool) {
	id, ok := pathID(w, r, "id", "class")
	if !ok {
		return 0, dues.Day{}, false
	}
	day := h.Engine.Today()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := dues.ParseDay(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return 0, dues.Day{}, false
		}
		day = d
	}
	return dues.ClassID(id), day, true
}

func partialStatus(failures int) int {
	if failures > 0 {
		return http.StatusMultiStatus
	}
	return http.StatusOK
}

func submitterPtr(id *int64) *dues.SubmitterID {
	if id == nil {
		return nil
	}
	s := dues.SubmitterID(*id)
	return &s
}
