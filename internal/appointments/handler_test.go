package appointments

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonchat/supportdesk/pkg/logging"
)

func newTestRouter(f *fixture) http.Handler {
	h := NewHandler(f.svc, logging.Default())
	r := chi.NewRouter()
	r.Mount("/api/staff/appointments", h.Routes())
	r.Mount("/api", h.PublicRoutes())
	return r
}

func TestHandlerAvailabilityOffDay(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	newTestRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/availability?date="+sunday, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body Availability
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.IsOff)
	assert.Empty(t, body.Slots)
	assert.Equal(t, sunday, body.Date)
}

func TestHandlerAvailabilityValidation(t *testing.T) {
	f := newFixture(t)
	router := newTestRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/availability", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/availability?date=2026-02-30", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerWidgetBookingConflict(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	f.expectOccupying(monday, "facial", nil, uuid.Nil, booked(monday, "10:00"))
	f.mock.ExpectRollback()

	body := `{"customerId":"cust-1","productId":"facial","date":"` + monday + `","time":"10:00"}`
	rec := httptest.NewRecorder()
	newTestRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/appointments", strings.NewReader(body)))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "slot unavailable")
}

func TestHandlerStaffBookingCreated(t *testing.T) {
	f := newFixture(t)
	f.catalog.settings.RequireBookingConfirmation = true
	f.mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	f.expectOccupying(monday, "facial", nil, uuid.Nil)
	f.mock.ExpectExec("INSERT INTO appointments").
		WithArgs(anyArgs(16)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()

	body := `{"customerId":"cust-1","productId":"facial","date":"` + monday + `","time":"11:00"}`
	rec := httptest.NewRecorder()
	newTestRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/staff/appointments", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var appt Appointment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))
	assert.Equal(t, StatusBooked, appt.Status)
}

func TestHandlerListRequiresFilter(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	newTestRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/staff/appointments", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerListByDate(t *testing.T) {
	f := newFixture(t)
	a := booked(monday, "09:00")
	f.mock.ExpectQuery("FROM appointments").
		WithArgs(monday, (*string)(nil)).
		WillReturnRows(pgxmock.NewRows(apptColumns).AddRow(apptRow(a)...))

	rec := httptest.NewRecorder()
	newTestRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/staff/appointments?date="+monday, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Appointments []Appointment `json:"appointments"`
		Count        int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, a.ID, body.Appointments[0].ID)
}

func TestHandlerSessionUsedTwice(t *testing.T) {
	f := newFixture(t)
	apptID := uuid.New()
	pkg := uuid.New()
	f.mock.ExpectBegin()
	f.expectSessionLookup(apptID, &pkg, true)
	f.mock.ExpectRollback()

	rec := httptest.NewRecorder()
	newTestRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/staff/appointments/"+apptID.String()+"/session-used", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerGetUnknown(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.mock.ExpectQuery("FROM appointments WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(apptColumns))

	rec := httptest.NewRecorder()
	newTestRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/appointments/"+id.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	newTestRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/appointments/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
