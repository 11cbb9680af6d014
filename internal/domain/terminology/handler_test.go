package terminology

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ehr/namaste/internal/platform/fhir"
	"github.com/ehr/namaste/internal/platform/telemetry"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc := newTestService()
	h := NewHandler(svc, nil)
	e := echo.New()
	e.JSONSerializer = fhir.JSONSerializer{}
	return h, e
}

const validBody = `{"namaste_term":"Vataja Jvara","namaste_code":"AYU-001","tm2_code":"TM2-SR11","tm2_term":"Wind fever disorder","bio_code":"1D01","bio_term":"Fever of unknown origin"}`

// =========== Root ===========

func TestHandler_Root(t *testing.T) {
	h, e := newTestHandler()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := h.Root(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["message"] != StatusMessage {
		t.Errorf("unexpected message %q", body["message"])
	}
}

// =========== Search ===========

func TestHandler_Search_Success(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=jvara", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Search(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(TotalCountHeader) != "2" {
		t.Errorf("expected X-Total-Count 2, got %q", rec.Header().Get(TotalCountHeader))
	}

	var results []Term
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(results) != 2 || results[0].NamasteTerm != "Vataja Jvara" {
		t.Errorf("unexpected results %+v", results)
	}
}

func TestHandler_Search_EmptyQueryReturnsEmptyArray(t *testing.T) {
	h, e := newTestHandler()

	for _, target := range []string{"/api/search", "/api/search?q=", "/api/search?q=nomatch"} {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), rec)

		if err := h.Search(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", target, rec.Code)
		}
		if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
			t.Errorf("%s: expected [], got %s", target, got)
		}
	}
}

func TestHandler_Search_Limit(t *testing.T) {
	h, e := newTestHandler()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/search?q=a&limit=1&offset=2", nil), rec)

	if err := h.Search(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var results []Term
	json.Unmarshal(rec.Body.Bytes(), &results)
	if len(results) != 1 || results[0].NamasteTerm != "Amavata" {
		t.Errorf("expected the third match only, got %+v", results)
	}
	if rec.Header().Get(TotalCountHeader) != "3" {
		t.Errorf("expected X-Total-Count 3, got %q", rec.Header().Get(TotalCountHeader))
	}
}

func TestHandler_Search_NextLink(t *testing.T) {
	h, e := newTestHandler()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/search?q=a&limit=1", nil), rec)
	if err := h.Search(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `</api/search?limit=1&offset=1&q=a>; rel="next"`
	if got := rec.Header().Get("Link"); got != want {
		t.Errorf("expected Link %s, got %s", want, got)
	}

	// last page
	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/search?q=a&limit=1&offset=2", nil), rec)
	if err := h.Search(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get("Link"); got != "" {
		t.Errorf("expected no Link on the last page, got %s", got)
	}

	// unpaginated
	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/search?q=a", nil), rec)
	if err := h.Search(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get("Link"); got != "" {
		t.Errorf("expected no Link without a limit, got %s", got)
	}
}

func TestHandler_Search_RepoError(t *testing.T) {
	h := NewHandler(NewService(&mockRepo{err: errors.New("down")}), nil)
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/search?q=vata", nil), rec)

	if err := h.Search(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

// =========== GenerateFHIR ===========

func TestHandler_GenerateFHIR_Success(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/generate_fhir", strings.NewReader(validBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GenerateFHIR(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := rec.Body.String()
	if !strings.Contains(body, "TM2 & Biomedicine") {
		t.Errorf("expected unescaped ampersand in %s", body)
	}

	var list fhir.List
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if list.ResourceType != fhir.ResourceList || len(list.Contained) != 2 {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestHandler_GenerateFHIR_MissingFields(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/generate_fhir", strings.NewReader(`{"namaste_term":"Vataja Jvara"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.GenerateFHIR(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}

	var outcome fhir.OperationOutcome
	json.Unmarshal(rec.Body.Bytes(), &outcome)
	if outcome.ResourceType != fhir.ResourceOperationOutcome {
		t.Errorf("expected OperationOutcome, got %s", outcome.ResourceType)
	}
	if len(outcome.Issue) != 5 {
		t.Errorf("expected 5 required issues, got %d", len(outcome.Issue))
	}
	for _, iss := range outcome.Issue {
		if iss.Code != "required" {
			t.Errorf("expected required issue, got %s", iss.Code)
		}
	}
}

func TestHandler_GenerateFHIR_BadJSON(t *testing.T) {
	h, e := newTestHandler()

	for _, body := range []string{`{not json`, `null`, `{"bio_code":{}}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/generate_fhir", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := h.GenerateFHIR(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestHandler_GenerateFHIR_RecordsMetrics(t *testing.T) {
	p := telemetry.NewProvider("test")
	h := NewHandler(newTestService(), p)
	e := echo.New()
	e.Use(p.MetricsMiddleware())
	h.RegisterRoutes(e)

	for _, body := range []string{validBody, `{}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/generate_fhir", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		e.ServeHTTP(httptest.NewRecorder(), req)
	}

	n, err := testutil.GatherAndCount(p.Registry(), "terminology_fhir_generated_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 2 {
		t.Errorf("expected ok and invalid series, got %d", n)
	}
}

// =========== GetTerm ===========

func TestHandler_GetTerm(t *testing.T) {
	h, e := newTestHandler()
	h.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/terms/Vataja%20Jvara", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var term Term
	json.Unmarshal(rec.Body.Bytes(), &term)
	if term.NamasteCode != "AYU-001" {
		t.Errorf("expected AYU-001, got %s", term.NamasteCode)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/terms/Unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_GetTerm_EscapedNames(t *testing.T) {
	repo := NewMemoryRepo([]*Term{
		{NamasteTerm: "a%41", NamasteCode: "PCT"},
		{NamasteTerm: "aA", NamasteCode: "AA"},
		{NamasteTerm: "Vata/Pitta", NamasteCode: "SLASH"},
	})
	h := NewHandler(NewService(repo), nil)
	e := echo.New()
	h.RegisterRoutes(e)

	tests := []struct {
		target string
		code   string
	}{
		{"/api/terms/a%2541", "PCT"},
		{"/api/terms/aA", "AA"},
		{"/api/terms/Vata%2FPitta", "SLASH"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", tt.target, rec.Code)
			continue
		}
		var term Term
		json.Unmarshal(rec.Body.Bytes(), &term)
		if term.NamasteCode != tt.code {
			t.Errorf("%s: expected %s, got %s", tt.target, tt.code, term.NamasteCode)
		}
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	h, e := newTestHandler()
	h.RegisterRoutes(e)

	routes := e.Routes()
	expected := map[string]bool{
		"GET:/":                   false,
		"GET:/api/search":         false,
		"POST:/api/generate_fhir": false,
		"GET:/api/terms/:name":    false,
	}

	for _, r := range routes {
		key := r.Method + ":" + r.Path
		if _, ok := expected[key]; ok {
			expected[key] = true
		}
	}

	for route, found := range expected {
		if !found {
			t.Errorf("missing expected route: %s", route)
		}
	}
}
