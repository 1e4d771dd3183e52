package ward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/icuward/internal/platform/auth"
)

func withRoles(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), auth.UserIDKey, "test-user")
			ctx = context.WithValue(ctx, auth.UserRolesKey, roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func newTestServer(t *testing.T, roles []string, beds ...*Bed) (*echo.Echo, *fixture) {
	t.Helper()
	svc, f, _ := newTestService(t, beds...)
	e := echo.New()
	api := e.Group("/api/v1", withRoles(roles...))
	NewHandler(svc).RegisterRoutes(api)
	return e, f
}

func doRequest(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_AllocateRequiresDoctor(t *testing.T) {
	e, f := newTestServer(t, []string{auth.RoleNurse}, bed(101, RoomICU, "ICU-A", fullKit))
	p := f.addPatient(t, "Nurse Try", SeverityCritical)

	rec := doRequest(e, http.MethodPost, "/api/v1/beds/allocate", fmt.Sprintf(`{"bed_number":101,"patient_id":%q}`, p.ID))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestHandler_AllocateThenConflict(t *testing.T) {
	e, f := newTestServer(t, []string{auth.RoleDoctor}, bed(101, RoomICU, "ICU-A", fullKit))
	first := f.addPatient(t, "First", SeverityCritical)
	second := f.addPatient(t, "Second", SeverityCritical)

	rec := doRequest(e, http.MethodPost, "/api/v1/beds/allocate", fmt.Sprintf(`{"bed_number":101,"patient_id":%q}`, first.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var alloc Allocation
	if err := json.Unmarshal(rec.Body.Bytes(), &alloc); err != nil {
		t.Fatal(err)
	}
	if alloc.Bed.Status != BedOccupied || alloc.Bed.PatientID == nil || *alloc.Bed.PatientID != first.ID {
		t.Errorf("unexpected allocation %+v", alloc.Bed)
	}

	rec = doRequest(e, http.MethodPost, "/api/v1/beds/allocate", fmt.Sprintf(`{"bed_number":101,"patient_id":%q}`, second.ID))
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	f.assertConsistent(t)
}

func TestHandler_AllocateBadBody(t *testing.T) {
	e, _ := newTestServer(t, []string{auth.RoleDoctor}, bed(101, RoomICU, "ICU-A", fullKit))
	rec := doRequest(e, http.MethodPost, "/api/v1/beds/allocate", `{"bed_number":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_GetBed(t *testing.T) {
	e, _ := newTestServer(t, []string{auth.RoleNurse}, bed(101, RoomICU, "ICU-A", fullKit))

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/beds/101", http.StatusOK},
		{"/api/v1/beds/999", http.StatusNotFound},
		{"/api/v1/beds/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := doRequest(e, http.MethodGet, tt.path, ""); rec.Code != tt.want {
			t.Errorf("GET %s: expected %d, got %d", tt.path, tt.want, rec.Code)
		}
	}
}

func TestHandler_BedStats(t *testing.T) {
	e, f := newTestServer(t, []string{auth.RoleNurse},
		bed(101, RoomICU, "ICU-A", fullKit),
		bed(102, RoomICU, "ICU-A", fullKit),
	)
	f.allocate(t, 101, f.addPatient(t, "Occupant", SeverityCritical))

	rec := doRequest(e, http.MethodGet, "/api/v1/beds/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var s Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatal(err)
	}
	if s.Total != 2 || s.Occupied != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestHandler_ExportBedStats(t *testing.T) {
	e, _ := newTestServer(t, []string{auth.RoleNurse}, bed(101, RoomICU, "ICU-A", fullKit))

	rec := doRequest(e, http.MethodGet, "/api/v1/beds/stats/export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != xlsxContentType {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "ward-occupancy.xlsx") {
		t.Errorf("missing attachment filename")
	}
	if rec.Body.Len() == 0 {
		t.Error("expected a workbook body")
	}
}

func TestHandler_CreateBedAdminOnly(t *testing.T) {
	body := `{"bed_number":601,"room_type":"normal","ward":"General-C"}`

	e, _ := newTestServer(t, []string{auth.RoleDoctor})
	if rec := doRequest(e, http.MethodPost, "/api/v1/beds", body); rec.Code != http.StatusForbidden {
		t.Errorf("doctor: expected 403, got %d", rec.Code)
	}

	e, _ = newTestServer(t, []string{auth.RoleAdmin})
	if rec := doRequest(e, http.MethodPost, "/api/v1/beds", body); rec.Code != http.StatusCreated {
		t.Errorf("admin: expected 201, got %d", rec.Code)
	}
}

func TestHandler_AdmitAndDischarge(t *testing.T) {
	e, f := newTestServer(t, []string{auth.RoleNurse}, bed(101, RoomICU, "ICU-A", fullKit))

	rec := doRequest(e, http.MethodPost, "/api/v1/patients", `{"name":"Rahul Sharma","age":65,"status":"critical","bed_number":101}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var p Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.BedNumber == nil || *p.BedNumber != 101 {
		t.Fatalf("expected placement in bed 101, got %v", p.BedNumber)
	}
	if b := f.bedAt(t, 101); b.Status != BedOccupied {
		t.Errorf("expected bed occupied, got %s", b.Status)
	}

	rec = doRequest(e, http.MethodDelete, "/api/v1/patients/"+p.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out struct {
		Message     string   `json:"message"`
		Patient     *Patient `json:"patient"`
		ReleasedBed *Bed     `json:"released_bed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Patient.Status != SeverityDischarged || out.ReleasedBed == nil || out.ReleasedBed.BedNumber != 101 {
		t.Errorf("unexpected discharge response %+v", out)
	}
	if !strings.Contains(out.Message, "Rahul Sharma") {
		t.Errorf("unexpected message %q", out.Message)
	}
	f.assertConsistent(t)
}

func TestHandler_ListPatientsActive(t *testing.T) {
	e, f := newTestServer(t, []string{auth.RoleNurse})
	f.addPatient(t, "Here", SeverityStable)
	gone := f.addPatient(t, "Gone", SeverityStable)
	if _, err := f.coord.Discharge(context.Background(), gone.ID); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(e, http.MethodGet, "/api/v1/patients?active=true&limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Data  []*Patient `json:"data"`
		Total int        `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 || resp.Data[0].Name != "Here" {
		t.Errorf("unexpected page %+v", resp)
	}
}

func TestHandler_CandidatesEncodeEmptyLists(t *testing.T) {
	e, _ := newTestServer(t, []string{auth.RoleNurse})
	for _, path := range []string{"/api/v1/beds/recommendations/step-down", "/api/v1/beds/recommendations/escalation"} {
		rec := doRequest(e, http.MethodGet, path, "")
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("GET %s: got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

func TestHTTPError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", validationf("bad"), http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: bed 9", ErrNotFound), http.StatusNotFound},
		{"unavailable", fmt.Errorf("%w: bed 9", ErrBedUnavailable), http.StatusConflict},
		{"conflict", ErrConflict, http.StatusConflict},
		{"partial transfer", &PartialTransferError{PatientID: uuid.New(), TargetBed: 2, Cause: ErrBedUnavailable}, http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var he *echo.HTTPError
			if !errors.As(HTTPError(tt.err), &he) {
				t.Fatal("expected an echo.HTTPError")
			}
			if he.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, he.Code)
			}
		})
	}
}
