/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Records:  RecordDTO, ClassDayDTO, FailureDTO, UpdateRecordRequest, UpdateStatusRequest
  Tally:    TallyRequest, TallyEntryDTO, TallyResultDTO
  Prepay:   PrepaymentRequest, PrepaymentDTO
  Roster:   ClassDTO, StudentDTO, CreateClassRequest, AssignSupervisorRequest, CreateStudentRequest
  Settings: DueAmountDTO, SetDueAmountRequest
  Sweeps:   SweepRunDTO

VALIDATION:
  Request shapes are checked with go-playground/validator struct tags before
  they reach the engine. Business rules (positive prepayment amounts, tally
  lists) stay in the dues package so every caller gets them.
*/
package api

import (
	"time"

	"github.com/warp/canteen-engine/dues"
)

// =============================================================================
// RECORDS
// =============================================================================

type RecordDTO struct {
	ID                string `json:"id"`
	StudentID         int64  `json:"student_id"`
	ClassID           *int64 `json:"class_id"`
	Date              string `json:"date"`
	Amount            int64  `json:"amount"`
	HasPaid           bool   `json:"has_paid"`
	IsAbsent          bool   `json:"is_absent"`
	IsPrepaid         bool   `json:"is_prepaid"`
	DueAmountSnapshot int64  `json:"due_amount_snapshot"`
	SubmittedBy       int64  `json:"submitted_by"`
	Status            string `json:"status"`
	CreatedAt         string `json:"created_at,omitempty"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

type FailureDTO struct {
	StudentID int64  `json:"student_id"`
	Error     string `json:"error"`
}

// ClassDayDTO is the reconciled view of one class on one day.
type ClassDayDTO struct {
	ClassID  int64        `json:"class_id"`
	Date     string       `json:"date"`
	Paid     []RecordDTO  `json:"paid"`
	Unpaid   []RecordDTO  `json:"unpaid"`
	Absent   []RecordDTO  `json:"absent"`
	Created  int          `json:"created"`
	Failures []FailureDTO `json:"failures,omitempty"`
}

type ClassDaySummaryDTO struct {
	ClassID       int64  `json:"class_id"`
	Date          string `json:"date"`
	TotalStudents int    `json:"total_students"`
	PaidCount     int    `json:"paid_count"`
	Collected     string `json:"collected"`
	UnpaidCount   int    `json:"unpaid_count"`
	Outstanding   string `json:"outstanding"`
	AbsentCount   int    `json:"absent_count"`
	FailedCount   int    `json:"failed_count"`
}

type SchoolSummaryDTO struct {
	Classes       int    `json:"total_classes"`
	Students      int    `json:"total_students"`
	Supervisors   int    `json:"total_supervisors"`
	DueAmount     int64  `json:"due_amount"`
	ExpectedDaily string `json:"expected_daily_collections"`
}

// UpdateStatusRequest requires both flags, matching the collector app which
// always sends the pair.
type UpdateStatusRequest struct {
	HasPaid  *bool `json:"has_paid" validate:"required"`
	IsAbsent *bool `json:"is_absent" validate:"required"`
}

type UpdateRecordRequest struct {
	StudentID   int64  `json:"student_id" validate:"required,gt=0"`
	ClassID     *int64 `json:"class_id" validate:"omitempty,gt=0"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Amount      int64  `json:"amount" validate:"gte=0"`
	HasPaid     bool   `json:"has_paid"`
	IsAbsent    bool   `json:"is_absent"`
	IsPrepaid   bool   `json:"is_prepaid"`
	SubmittedBy int64  `json:"submitted_by" validate:"required,gt=0"`
}

// =============================================================================
// TALLY
// =============================================================================

type TallyEntryDTO struct {
	StudentID int64 `json:"student_id" validate:"required,gt=0"`
	Amount    int64 `json:"amount"`
}

type TallyRequest struct {
	Date        string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	SubmittedBy int64           `json:"submitted_by" validate:"required,gt=0"`
	Paid        []TallyEntryDTO `json:"paid" validate:"dive"`
	Unpaid      []TallyEntryDTO `json:"unpaid" validate:"dive"`
	Absent      []TallyEntryDTO `json:"absent" validate:"dive"`
}

type TallyResultDTO struct {
	Records    []RecordDTO  `json:"records"`
	Failures   []FailureDTO `json:"failures,omitempty"`
	Overridden []int64      `json:"overridden,omitempty"`
}

// =============================================================================
// PREPAYMENT
// =============================================================================

type PrepaymentRequest struct {
	LumpSum      int64 `json:"lump_sum"`
	PerDayAmount int64 `json:"per_day_amount"`
	SubmittedBy  int64 `json:"submitted_by" validate:"required,gt=0"`
}

type PrepaymentDTO struct {
	Count   int         `json:"count"`
	Records []RecordDTO `json:"records"`
}

// =============================================================================
// ROSTER
// =============================================================================

type ClassDTO struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	SupervisorID *int64 `json:"supervisor_id"`
}

type CreateClassRequest struct {
	Name         string `json:"name" validate:"required"`
	SupervisorID *int64 `json:"supervisor_id" validate:"omitempty,gt=0"`
}

// AssignSupervisorRequest clears the supervisor when SupervisorID is null.
type AssignSupervisorRequest struct {
	SupervisorID *int64 `json:"supervisor_id" validate:"omitempty,gt=0"`
}

type StudentDTO struct {
	ID      int64  `json:"id"`
	ClassID int64  `json:"class_id"`
	Name    string `json:"name"`
}

type CreateStudentRequest struct {
	ClassID int64  `json:"class_id" validate:"required,gt=0"`
	Name    string `json:"name" validate:"required"`
}

// =============================================================================
// SETTINGS AND SWEEPS
// =============================================================================

type DueAmountDTO struct {
	Amount int64 `json:"amount"`
}

type SetDueAmountRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
}

type SweepRunDTO struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Trigger     string  `json:"trigger"`
	Status      string  `json:"status"`
	Created     int     `json:"created"`
	Skipped     int     `json:"skipped"`
	Failed      int     `json:"failed"`
	Error       string  `json:"error,omitempty"`
	StartedAt   string  `json:"started_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toRecordDTO(r dues.Record) RecordDTO {
	dto := RecordDTO{
		ID:                string(r.ID),
		StudentID:         int64(r.StudentID),
		Date:              r.Day.String(),
		Amount:            r.Amount,
		HasPaid:           r.HasPaid,
		IsAbsent:          r.IsAbsent,
		IsPrepaid:         r.IsPrepaid,
		DueAmountSnapshot: r.DueAmountSnapshot,
		SubmittedBy:       int64(r.SubmittedBy),
		Status:            string(r.Status()),
	}
	if r.ClassID != nil {
		id := int64(*r.ClassID)
		dto.ClassID = &id
	}
	if !r.CreatedAt.IsZero() {
		dto.CreatedAt = r.CreatedAt.Format(time.RFC3339)
	}
	if !r.UpdatedAt.IsZero() {
		dto.UpdatedAt = r.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

func toRecordDTOs(recs []dues.Record) []RecordDTO {
	dtos := make([]RecordDTO, len(recs))
	for i, r := range recs {
		dtos[i] = toRecordDTO(r)
	}
	return dtos
}

func toFailureDTOs(failures []dues.ItemFailure) []FailureDTO {
	if len(failures) == 0 {
		return nil
	}
	dtos := make([]FailureDTO, len(failures))
	for i, f := range failures {
		dtos[i] = FailureDTO{StudentID: int64(f.StudentID), Error: f.Err.Error()}
	}
	return dtos
}

func toClassDayDTO(v dues.ClassDay) ClassDayDTO {
	return ClassDayDTO{
		ClassID:  int64(v.ClassID),
		Date:     v.Day.String(),
		Paid:     toRecordDTOs(v.Paid),
		Unpaid:   toRecordDTOs(v.Unpaid),
		Absent:   toRecordDTOs(v.Absent),
		Created:  v.Created,
		Failures: toFailureDTOs(v.Failures),
	}
}

func toSummaryDTO(s dues.ClassDaySummary) ClassDaySummaryDTO {
	return ClassDaySummaryDTO{
		ClassID:       int64(s.ClassID),
		Date:          s.Day.String(),
		TotalStudents: s.TotalStudents,
		PaidCount:     s.Paid.Count,
		Collected:     s.Paid.Amount.StringFixed(2),
		UnpaidCount:   s.Unpaid.Count,
		Outstanding:   s.Unpaid.Amount.StringFixed(2),
		AbsentCount:   s.Absent,
		FailedCount:   s.Failed,
	}
}

func toSchoolSummaryDTO(s dues.SchoolSummary) SchoolSummaryDTO {
	return SchoolSummaryDTO{
		Classes:       s.Classes,
		Students:      s.Students,
		Supervisors:   s.Supervisors,
		DueAmount:     s.DueAmount,
		ExpectedDaily: s.ExpectedDaily.StringFixed(2),
	}
}

func toClassDTO(c dues.Class) ClassDTO {
	dto := ClassDTO{ID: int64(c.ID), Name: c.Name}
	if c.SupervisorID != nil {
		id := int64(*c.SupervisorID)
		dto.SupervisorID = &id
	}
	return dto
}

func toSweepRunDTO(r dues.SweepRun) SweepRunDTO {
	dto := SweepRunDTO{
		ID:        r.ID,
		Date:      r.Day.String(),
		Trigger:   r.Trigger,
		Status:    r.Status,
		Created:   r.Created,
		Skipped:   r.Skipped,
		Failed:    r.Failed,
		Error:     r.Error,
		StartedAt: r.StartedAt.Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		s := r.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}

func toTallyEntries(in []TallyEntryDTO) []dues.TallyEntry {
	out := make([]dues.TallyEntry, len(in))
	for i, e := range in {
		out[i] = dues.TallyEntry{StudentID: dues.StudentID(e.StudentID), Amount: e.Amount}
	}
	return out
}
