package fhir

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequiredOutcome(t *testing.T) {
	oo := RequiredOutcome([]string{"namaste_code", "bio_term"})

	if oo.ResourceType != ResourceOperationOutcome {
		t.Errorf("expected OperationOutcome, got %s", oo.ResourceType)
	}
	if len(oo.Issue) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(oo.Issue))
	}
	for i, field := range []string{"namaste_code", "bio_term"} {
		issue := oo.Issue[i]
		if issue.Code != "required" || issue.Severity != "error" {
			t.Errorf("issue %d: expected error/required, got %s/%s", i, issue.Severity, issue.Code)
		}
		if len(issue.Expression) != 1 || issue.Expression[0] != field {
			t.Errorf("issue %d: expected expression %q, got %v", i, field, issue.Expression)
		}
	}
}

func TestNotFoundOutcome(t *testing.T) {
	oo := NotFoundOutcome("Term", "Vataja Jvara")
	if oo.Issue[0].Code != "not-found" {
		t.Errorf("expected not-found, got %s", oo.Issue[0].Code)
	}
	if oo.Issue[0].Diagnostics != "Term/Vataja Jvara not found" {
		t.Errorf("unexpected diagnostics: %s", oo.Issue[0].Diagnostics)
	}
}

func TestJSONSerializer_NoHTMLEscape(t *testing.T) {
	e := echo.New()
	e.JSONSerializer = JSONSerializer{}
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	list := &List{ResourceType: ResourceList, ID: "x", Title: "TM2 & Biomedicine <dual>"}
	if err := c.JSON(http.StatusOK, list); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"title":"TM2 & Biomedicine <dual>"`) {
		t.Errorf("expected unescaped title, got %s", rec.Body.String())
	}
}

func TestJSONSerializer_DeserializeSyntaxError(t *testing.T) {
	e := echo.New()
	e.JSONSerializer = JSONSerializer{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	c := e.NewContext(req, httptest.NewRecorder())

	var v map[string]interface{}
	err := JSONSerializer{}.Deserialize(c, &v)
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", he.Code)
	}
}
