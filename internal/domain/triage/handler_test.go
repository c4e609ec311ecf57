package triage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/groot/groot/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo) {
	svc, _ := newTestService(t)
	return NewHandler(svc), echo.New()
}

func postJSON(e *echo.Echo, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	if he.Code != code {
		t.Errorf("expected status %d, got %d (%v)", code, he.Code, he.Message)
	}
}

const patientJSON = `{
	"age": 30, "menopause_status": "pre-menopausal", "cyst_size": 2,
	"cyst_growth_rate": 0.1, "ca_125_level": 20, "ultrasound_features": "simple cyst",
	"reported_symptoms": "none", "region": "Nairobi",
	"facility": "Kenyatta National Hospital", "has_insurance": false
}`

func TestHandler_Growth(t *testing.T) {
	h, e := newTestHandler(t)
	c, rec := postJSON(e, patientJSON)
	if err := h.Growth(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]float64
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["predicted_growth"] != 0.53 {
		t.Errorf("expected predicted_growth 0.53, got %v", body)
	}
}

func TestHandler_Growth_Invalid(t *testing.T) {
	h, e := newTestHandler(t)
	c, _ := postJSON(e, `{"age": 150, "menopause_status": "pre-menopausal"}`)
	expectStatus(t, h.Growth(c), http.StatusBadRequest)

	c, _ = postJSON(e, `{"age": "thirty"}`)
	expectStatus(t, h.Growth(c), http.StatusBadRequest)
}

func TestHandler_Recommendation(t *testing.T) {
	h, e := newTestHandler(t)
	c, rec := postJSON(e, patientJSON)
	if err := h.Recommendation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var body struct {
		RecommendedTreatment string                 `json:"recommended_treatment"`
		Available            bool                   `json:"available"`
		CostBreakdown        map[string]interface{} `json:"cost_breakdown"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RecommendedTreatment != "Observation" || !body.Available {
		t.Errorf("unexpected recommendation: %+v", body)
	}
	want := map[string]float64{"base_cost": 1500, "nhif": 1000, "co_pay": 0, "out_of_pocket": 500}
	for k, v := range want {
		if body.CostBreakdown[k] != v {
			t.Errorf("cost_breakdown[%s] = %v, want %v", k, body.CostBreakdown[k], v)
		}
	}
}

func TestHandler_Risk(t *testing.T) {
	h, e := newTestHandler(t)
	c, rec := postJSON(e, `{"age": 35, "cyst_size_mm": 85, "cyst_type": "dermoid"}`)
	if err := h.Risk(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out RiskResult
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.RiskLevel != "High" || out.RiskScore != 75 || out.NextCheckup != "2025-03-08" {
		t.Errorf("unexpected risk result: %+v", out)
	}
}

func TestHandler_Vitals(t *testing.T) {
	h, e := newTestHandler(t)
	c, rec := postJSON(e, `{"heart_rate": 110, "temperature_f": 98.6, "pain_level": 2, "symptoms": ["bloating"]}`)
	if err := h.Vitals(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out VitalsAlert
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Level != AlertHigh || out.Action == "" {
		t.Errorf("unexpected alert: %+v", out)
	}

	c, _ = postJSON(e, `{"pain_level": -2}`)
	expectStatus(t, h.Vitals(c), http.StatusBadRequest)
}

func TestHandler_Assessments(t *testing.T) {
	h, e := newTestHandler(t)
	c, _ := postJSON(e, patientJSON)
	if err := h.Growth(c); err != nil {
		t.Fatalf("growth: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/triage/assessments?kind=growth", nil)
	rec := httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if err := h.ListAssessments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		Data  []Assessment `json:"data"`
		Total int          `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &page)
	if page.Total != 1 || len(page.Data) != 1 {
		t.Fatalf("expected one assessment, got %+v", page)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(page.Data[0].ID.String())
	if err := h.GetAssessment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectStatus(t, h.GetAssessment(c), http.StatusBadRequest)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("6f1c2d3e-4b5a-4c6d-8e7f-9a0b1c2d3e4f")
	expectStatus(t, h.GetAssessment(c), http.StatusNotFound)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/?kind=other", nil), httptest.NewRecorder())
	expectStatus(t, h.ListAssessments(c), http.StatusBadRequest)
}

func TestHandler_AssessmentsRequireDoctor(t *testing.T) {
	h, e := newTestHandler(t)
	h.RegisterRoutes(e.Group("/triage"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/triage/assessments", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/triage/assessments", nil)
	ctx := context.WithValue(req.Context(), auth.UserIDKey, "doc-1")
	ctx = context.WithValue(ctx, auth.UserRolesKey, []string{auth.RoleDoctor})
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req.WithContext(ctx))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for doctor, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/triage/vitals", strings.NewReader(`{"heart_rate":70,"temperature_f":98,"pain_level":1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected public vitals route, got %d", rec.Code)
	}
}
