/*
handlers_test.go - HTTP tests for the dues API

Tests run the real router against an in-memory SQLite store with the clock
pinned to 2026-10-16.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/canteen-engine/dues"
	"github.com/warp/canteen-engine/store/sqlite"
)

var testDay = dues.NewDay(2026, time.October, 16)

const testSecret = "let-me-in"

type testServer struct {
	store  *sqlite.Store
	engine *dues.Engine
	router http.Handler
	class  dues.Class
	ids    []dues.StudentID
}

func newTestServer(t *testing.T, students int) *testServer {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SetDueAmount(ctx, "5"))
	class, err := store.SaveClass(ctx, dues.Class{Name: "Basic 6"})
	require.NoError(t, err)

	ts := &testServer{store: store, class: class}
	for i := 0; i < students; i++ {
		st, err := store.SaveStudent(ctx, dues.Student{ClassID: class.ID, Name: fmt.Sprintf("pupil %d", i)})
		require.NoError(t, err)
		ts.ids = append(ts.ids, st.ID)
	}

	ts.engine = dues.NewEngine(store, store, store, dues.WithClock(dues.FixedClock(testDay)))
	sweeps := NewDailySweepScheduler(ts.engine, store, zerolog.Nop())
	ts.router = NewRouter(NewHandler(ts.engine, store, sweeps, testSecret, zerolog.Nop()))
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (ts *testServer) classPath(suffix string) string {
	return fmt.Sprintf("/api/classes/%d%s", ts.class.ID, suffix)
}

// =============================================================================
// CLASS-DAY
// =============================================================================

func TestGetClassDay_MaterializesOnce(t *testing.T) {
	// GIVEN: A class of three with no records yet
	ts := newTestServer(t, 3)

	// WHEN: Opening the class-day twice
	first := ts.do(t, http.MethodGet, ts.classPath("/records?date=2026-10-16"), nil)
	second := ts.do(t, http.MethodGet, ts.classPath("/records?date=2026-10-16"), nil)

	// THEN: Records are created on the first call only
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	require.Equal(t, http.StatusOK, second.Code)

	a := decodeBody[ClassDayDTO](t, first)
	b := decodeBody[ClassDayDTO](t, second)
	assert.Equal(t, 3, a.Created)
	assert.Equal(t, 0, b.Created)
	assert.Len(t, b.Unpaid, 3)
	assert.Empty(t, b.Paid)
	assert.Equal(t, "2026-10-16", b.Date)
	for _, r := range b.Unpaid {
		assert.Equal(t, int64(5), r.DueAmountSnapshot)
		assert.Equal(t, "unpaid", r.Status)
		assert.Equal(t, int64(ts.class.ID), r.SubmittedBy, "no supervisor: the class owns the record")
	}
}

func TestGetClassDay_DefaultsToToday(t *testing.T) {
	ts := newTestServer(t, 1)

	rec := ts.do(t, http.MethodGet, ts.classPath("/records"), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testDay.String(), decodeBody[ClassDayDTO](t, rec).Date)
}

func TestGetClassDayByStatus_DoesNotMaterialize(t *testing.T) {
	ts := newTestServer(t, 2)

	rec := ts.do(t, http.MethodGet, ts.classPath("/records/unpaid?date=2026-10-16"), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]RecordDTO](t, rec))
	history, err := ts.store.ListByStudent(context.Background(), ts.ids[0])
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestGetClassDay_BadInput(t *testing.T) {
	ts := newTestServer(t, 1)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"bad date", ts.classPath("/records?date=16-10-2026"), http.StatusBadRequest},
		{"bad class id", "/api/classes/abc/records", http.StatusBadRequest},
		{"unknown class", "/api/classes/404/records", http.StatusNotFound},
		{"unknown status", ts.classPath("/records/late"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

// =============================================================================
// TALLY
// =============================================================================

func TestSubmitTally_ThenSummary(t *testing.T) {
	// GIVEN: Three students
	ts := newTestServer(t, 3)

	// WHEN: The teacher marks one paid and one absent, and also lists the
	// absent one as paid by mistake
	rec := ts.do(t, http.MethodPost, ts.classPath("/tally"), TallyRequest{
		Date:        "2026-10-16",
		SubmittedBy: 77,
		Paid:        []TallyEntryDTO{{StudentID: int64(ts.ids[0]), Amount: 5}, {StudentID: int64(ts.ids[1]), Amount: 5}},
		Absent:      []TallyEntryDTO{{StudentID: int64(ts.ids[1])}},
	})

	// THEN: Absence wins and the summary reflects the tally
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[TallyResultDTO](t, rec)
	assert.Len(t, res.Records, 2)
	assert.Equal(t, []int64{int64(ts.ids[1])}, res.Overridden)

	paid := ts.do(t, http.MethodGet, ts.classPath("/records/paid?date=2026-10-16"), nil)
	require.Equal(t, http.StatusOK, paid.Code)
	paidRecs := decodeBody[[]RecordDTO](t, paid)
	require.Len(t, paidRecs, 1)
	assert.Equal(t, int64(ts.ids[0]), paidRecs[0].StudentID)
	assert.Equal(t, int64(77), paidRecs[0].SubmittedBy)

	sum := ts.do(t, http.MethodGet, ts.classPath("/summary?date=2026-10-16"), nil)
	require.Equal(t, http.StatusOK, sum.Code)
	s := decodeBody[ClassDaySummaryDTO](t, sum)
	assert.Equal(t, 3, s.TotalStudents)
	assert.Equal(t, 1, s.PaidCount)
	assert.Equal(t, "5.00", s.Collected)
	assert.Equal(t, 1, s.UnpaidCount)
	assert.Equal(t, "5.00", s.Outstanding)
	assert.Equal(t, 1, s.AbsentCount)
}

func TestSubmitTally_Resubmit(t *testing.T) {
	ts := newTestServer(t, 1)
	body := TallyRequest{SubmittedBy: 3, Paid: []TallyEntryDTO{{StudentID: int64(ts.ids[0]), Amount: 5}}}

	first := ts.do(t, http.MethodPost, ts.classPath("/tally"), body)
	second := ts.do(t, http.MethodPost, ts.classPath("/tally"), body)

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t,
		decodeBody[TallyResultDTO](t, first).Records[0].ID,
		decodeBody[TallyResultDTO](t, second).Records[0].ID)

	history, err := ts.store.ListByStudent(context.Background(), ts.ids[0])
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSubmitTally_Invalid(t *testing.T) {
	ts := newTestServer(t, 1)
	id := int64(ts.ids[0])

	tests := []struct {
		name string
		body any
	}{
		{"missing submitter", TallyRequest{Paid: []TallyEntryDTO{{StudentID: id, Amount: 5}}}},
		{"entry without student", TallyRequest{SubmittedBy: 1, Paid: []TallyEntryDTO{{Amount: 5}}}},
		{"negative amount", TallyRequest{SubmittedBy: 1, Paid: []TallyEntryDTO{{StudentID: id, Amount: -5}}}},
		{"bad date", TallyRequest{SubmittedBy: 1, Date: "yesterday"}},
		{"not json", "paid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, ts.classPath("/tally"), tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	history, err := ts.store.ListByStudent(context.Background(), ts.ids[0])
	require.NoError(t, err)
	assert.Empty(t, history)
}

// =============================================================================
// PREPAYMENT
// =============================================================================

func TestCreatePrepayment(t *testing.T) {
	// GIVEN: One student
	ts := newTestServer(t, 1)
	path := fmt.Sprintf("/api/students/%d/prepayments", ts.ids[0])

	// WHEN: A guardian pays 100 at 30 a day
	rec := ts.do(t, http.MethodPost, path, PrepaymentRequest{LumpSum: 100, PerDayAmount: 30, SubmittedBy: 9})

	// THEN: Three prepaid records from today
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decodeBody[PrepaymentDTO](t, rec)
	require.Equal(t, 3, res.Count)
	for i, r := range res.Records {
		assert.Equal(t, testDay.AddDays(i).String(), r.Date)
		assert.True(t, r.HasPaid)
		assert.True(t, r.IsPrepaid)
		assert.Equal(t, int64(30), r.Amount)
	}

	// AND: Paying again over the same days conflicts
	again := ts.do(t, http.MethodPost, path, PrepaymentRequest{LumpSum: 30, PerDayAmount: 30, SubmittedBy: 9})
	assert.Equal(t, http.StatusConflict, again.Code)
}

func TestCreatePrepayment_EdgeCases(t *testing.T) {
	ts := newTestServer(t, 1)
	path := fmt.Sprintf("/api/students/%d/prepayments", ts.ids[0])

	short := ts.do(t, http.MethodPost, path, PrepaymentRequest{LumpSum: 10, PerDayAmount: 30, SubmittedBy: 9})
	require.Equal(t, http.StatusCreated, short.Code)
	assert.Equal(t, 0, decodeBody[PrepaymentDTO](t, short).Count)

	zero := ts.do(t, http.MethodPost, path, PrepaymentRequest{LumpSum: 0, PerDayAmount: 30, SubmittedBy: 9})
	assert.Equal(t, http.StatusBadRequest, zero.Code)

	unknown := ts.do(t, http.MethodPost, "/api/students/404/prepayments", PrepaymentRequest{LumpSum: 60, PerDayAmount: 30, SubmittedBy: 9})
	assert.Equal(t, http.StatusNotFound, unknown.Code)

	huge := ts.do(t, http.MethodPost, path, PrepaymentRequest{LumpSum: 9_000_000_000_000_000_000, PerDayAmount: 1, SubmittedBy: 9})
	assert.Equal(t, http.StatusBadRequest, huge.Code, huge.Body.String())
	history, err := ts.store.ListByStudent(context.Background(), ts.ids[0])
	require.NoError(t, err)
	assert.Empty(t, history)
}

// =============================================================================
// RECORDS
// =============================================================================

func TestUpdateRecordStatus(t *testing.T) {
	// GIVEN: A materialized record
	ts := newTestServer(t, 1)
	view := decodeBody[ClassDayDTO](t, ts.do(t, http.MethodGet, ts.classPath("/records"), nil))
	require.Len(t, view.Unpaid, 1)
	id := view.Unpaid[0].ID

	// WHEN: Marking it paid
	yes, no := true, false
	rec := ts.do(t, http.MethodPatch, "/api/records/"+id+"/status", UpdateStatusRequest{HasPaid: &yes, IsAbsent: &no})

	// THEN: The record is paid and keeps its snapshot
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[RecordDTO](t, rec)
	assert.Equal(t, "paid", got.Status)
	assert.Equal(t, int64(5), got.DueAmountSnapshot)

	missing := ts.do(t, http.MethodPatch, "/api/records/"+id+"/status", map[string]any{"has_paid": true})
	assert.Equal(t, http.StatusBadRequest, missing.Code)

	unknown := ts.do(t, http.MethodPatch, "/api/records/nope/status", UpdateStatusRequest{HasPaid: &yes, IsAbsent: &no})
	assert.Equal(t, http.StatusNotFound, unknown.Code)
}

func TestUpdateAndDeleteRecord(t *testing.T) {
	ts := newTestServer(t, 1)
	view := decodeBody[ClassDayDTO](t, ts.do(t, http.MethodGet, ts.classPath("/records"), nil))
	id := view.Unpaid[0].ID

	rec := ts.do(t, http.MethodPut, "/api/records/"+id, UpdateRecordRequest{
		StudentID: int64(ts.ids[0]), Date: "2026-10-16", Amount: 4, HasPaid: true, SubmittedBy: 12,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(4), decodeBody[RecordDTO](t, rec).Amount)

	del := ts.do(t, http.MethodDelete, "/api/records/"+id, nil)
	assert.Equal(t, http.StatusNoContent, del.Code)
	again := ts.do(t, http.MethodDelete, "/api/records/"+id, nil)
	assert.Equal(t, http.StatusNotFound, again.Code)
}

// =============================================================================
// ROSTER AND SETTINGS
// =============================================================================

func TestCreateStudent_EnsuresTodayRecord(t *testing.T) {
	ts := newTestServer(t, 0)

	rec := ts.do(t, http.MethodPost, "/api/students", CreateStudentRequest{ClassID: int64(ts.class.ID), Name: "Ama"})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	st := decodeBody[StudentDTO](t, rec)
	history := decodeBody[[]RecordDTO](t, ts.do(t, http.MethodGet, fmt.Sprintf("/api/students/%d/records", st.ID), nil))
	require.Len(t, history, 1)
	assert.Equal(t, testDay.String(), history[0].Date)

	orphan := ts.do(t, http.MethodPost, "/api/students", CreateStudentRequest{ClassID: 404, Name: "Kofi"})
	assert.Equal(t, http.StatusNotFound, orphan.Code)
}

func TestClasses_SupervisorOwnsNewRecords(t *testing.T) {
	ts := newTestServer(t, 1)

	created := ts.do(t, http.MethodPost, "/api/classes", CreateClassRequest{Name: "Basic 5"})
	require.Equal(t, http.StatusCreated, created.Code)

	supervisor := int64(501)
	rec := ts.do(t, http.MethodPut, ts.classPath("/supervisor"), AssignSupervisorRequest{SupervisorID: &supervisor})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	list := decodeBody[[]ClassDTO](t, ts.do(t, http.MethodGet, "/api/classes", nil))
	assert.Len(t, list, 2)
	students := decodeBody[[]StudentDTO](t, ts.do(t, http.MethodGet, ts.classPath("/students"), nil))
	assert.Len(t, students, 1)

	view := decodeBody[ClassDayDTO](t, ts.do(t, http.MethodGet, ts.classPath("/records"), nil))
	require.Len(t, view.Unpaid, 1)
	assert.Equal(t, supervisor, view.Unpaid[0].SubmittedBy)
}

func TestDueAmountSettings(t *testing.T) {
	// GIVEN: A record created at the old amount
	ts := newTestServer(t, 1)
	ts.do(t, http.MethodGet, ts.classPath("/records"), nil)

	// WHEN: Changing the due amount
	rec := ts.do(t, http.MethodPut, "/api/settings/amount", SetDueAmountRequest{Amount: "6.50"})

	// THEN: The new default is floored; the old record keeps 5
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(6), decodeBody[DueAmountDTO](t, rec).Amount)

	view := decodeBody[ClassDayDTO](t, ts.do(t, http.MethodGet, ts.classPath("/records"), nil))
	assert.Equal(t, int64(5), view.Unpaid[0].DueAmountSnapshot)

	bad := ts.do(t, http.MethodPut, "/api/settings/amount", SetDueAmountRequest{Amount: "five"})
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	negative := ts.do(t, http.MethodPut, "/api/settings/amount", SetDueAmountRequest{Amount: "-1"})
	assert.Equal(t, http.StatusBadRequest, negative.Code)
	overflow := ts.do(t, http.MethodPut, "/api/settings/amount", SetDueAmountRequest{Amount: "18446744073709551615"})
	assert.Equal(t, http.StatusBadRequest, overflow.Code, overflow.Body.String())

	// AND: The rejected values left the setting alone
	current := ts.do(t, http.MethodGet, "/api/settings/amount", nil)
	assert.Equal(t, int64(6), decodeBody[DueAmountDTO](t, current).Amount)
}

func TestGetSchoolSummary(t *testing.T) {
	// GIVEN: Three students at a due of 5
	ts := newTestServer(t, 3)

	// WHEN: Reading the school summary
	rec := ts.do(t, http.MethodGet, "/api/summary", nil)

	// THEN: Totals come from the roster and settings, with no records made
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s := decodeBody[SchoolSummaryDTO](t, rec)
	assert.Equal(t, 1, s.Classes)
	assert.Equal(t, 3, s.Students)
	assert.Equal(t, 0, s.Supervisors)
	assert.Equal(t, int64(5), s.DueAmount)
	assert.Equal(t, "15.00", s.ExpectedDaily)

	history, err := ts.store.ListByStudent(context.Background(), ts.ids[0])
	require.NoError(t, err)
	assert.Empty(t, history)
}

// =============================================================================
// SWEEPS
// =============================================================================

func TestTriggerDailySweep(t *testing.T) {
	ts := newTestServer(t, 2)

	denied := ts.do(t, http.MethodPost, "/api/cron/daily-records?secret=wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, denied.Code)

	rec := ts.do(t, http.MethodPost, "/api/cron/daily-records?secret="+testSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decodeBody[SweepRunDTO](t, rec)
	assert.Equal(t, 2, run.Created)
	assert.Equal(t, dues.SweepCompleted, run.Status)
	assert.Equal(t, TriggerManual, run.Trigger)

	again := decodeBody[SweepRunDTO](t, ts.do(t, http.MethodPost, "/api/cron/daily-records?secret="+testSecret, nil))
	assert.Equal(t, 0, again.Created)
	assert.Equal(t, 2, again.Skipped)

	runs := decodeBody[[]SweepRunDTO](t, ts.do(t, http.MethodGet, "/api/sweeps", nil))
	assert.Len(t, runs, 2)
}

func TestTriggerDailySweep_NoSecretConfigured(t *testing.T) {
	ts := newTestServer(t, 1)
	sweeps := NewDailySweepScheduler(ts.engine, ts.store, zerolog.Nop())
	router := NewRouter(NewHandler(ts.engine, ts.store, sweeps, "", zerolog.Nop()))

	req := httptest.NewRequest(http.MethodPost, "/api/cron/daily-records?secret=", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, 0)

	rec := ts.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}
