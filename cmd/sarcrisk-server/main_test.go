package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sarcrisk/sarcrisk/internal/config"
	"github.com/sarcrisk/sarcrisk/internal/domain/assessment"
	"github.com/sarcrisk/sarcrisk/internal/domain/risk"
	"github.com/sarcrisk/sarcrisk/internal/platform/db"
)

const patientJSON = `{
  "id": "12345",
  "name": {"family": "Doe", "given": ["Jane"]},
  "molecular_data": {"VEGF_level": 120, "CDKN2A_mutation": true, "TP53_mutation": true},
  "clinical_data": {"pain": true, "swelling": true, "fever": false, "tumor_size": 6},
  "imaging_data": {"mri_abnormalities": true, "ct_scan_abnormalities": false, "pet_scan_high_activity": true, "x_ray_findings": false}
}`

func testConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		Env:                "development",
		AthenaBaseURL:      "http://127.0.0.1:1",
		AthenaAuthorizeURL: "http://127.0.0.1:1/oauth/authorize",
		AthenaTokenURL:     "http://127.0.0.1:1/oauth/token",
		AthenaClientID:     "client-id",
		AthenaTimeout:      time.Second,
		ScorePolicy:        "orchestration",
		DefaultSubtypes:    []string{"Soft Tissue Sarcoma", "Osteosarcoma"},
		CORSOrigins:        []string{"http://localhost:3000"},
		RateLimitRPS:       100,
		RateLimitBurst:     100,
		RequestTimeout:     5 * time.Second,
	}
}

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	e, err := buildServer(testConfig(), zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("buildServer() error: %v", err)
	}
	return e
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestBuildServer_Health(t *testing.T) {
	e := newTestServer(t)

	rec := do(e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}

	if rec := do(e, http.MethodGet, "/health/db", ""); rec.Code == http.StatusOK {
		t.Error("expected /health/db to be absent without a database")
	}
}

func TestBuildServer_AssessAndMetrics(t *testing.T) {
	e := newTestServer(t)

	rec := do(e, http.MethodPost, "/api/v1/assessments", `{"patient":`+patientJSON+`}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		RiskCategory      string   `json:"risk_category"`
		Policy            string   `json:"policy"`
		SuspectedSubtypes []string `json:"suspected_subtypes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RiskCategory != "High" || resp.Policy != "orchestration" {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(resp.SuspectedSubtypes) != 2 {
		t.Errorf("expected configured default subtypes, got %v", resp.SuspectedSubtypes)
	}

	rec = do(e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`sarcrisk_assessments_total{category="High",policy="orchestration"} 1`,
		`sarcrisk_http_requests_total{method="POST",route="/api/v1/assessments",status="200"} 1`,
		`sarcrisk_circuit_breaker_state{name="athena"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics to contain %q", want)
		}
	}
}

func TestBuildServer_ArchiveRoutesDisabled(t *testing.T) {
	e := newTestServer(t)
	if rec := do(e, http.MethodGet, "/fhir/RiskAssessment/abc", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without an archive, got %d", rec.Code)
	}
}

func TestBuildServer_RiskLookupNeedsBearer(t *testing.T) {
	e := newTestServer(t)
	if rec := do(e, http.MethodGet, "/api/v1/sarc-risks/12345", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestBuildServer_LoginRedirect(t *testing.T) {
	e := newTestServer(t)
	rec := do(e, http.MethodGet, "/auth/login", "")
	if rec.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "http://127.0.0.1:1/oauth/authorize?") {
		t.Errorf("unexpected redirect %s", loc)
	}
}

func TestBuildServer_InvalidPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.ScorePolicy = "aggressive"
	if _, err := buildServer(cfg, zerolog.Nop(), nil); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestOAuthStateKey(t *testing.T) {
	cfg := testConfig()
	key, err := oauthStateKey(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("oauthStateKey() error: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("expected 32-byte development key, got %d", len(key))
	}

	cfg.OAuthStateKey = "configured-key"
	key, _ = oauthStateKey(cfg, zerolog.Nop())
	if string(key) != "configured-key" {
		t.Errorf("expected configured key, got %q", key)
	}

	cfg.OAuthStateKey = ""
	cfg.Env = "production"
	if _, err := oauthStateKey(cfg, zerolog.Nop()); err == nil {
		t.Error("expected error without a key in production")
	}
}

func writePatient(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patient.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestRunAssess(t *testing.T) {
	svc := assessment.NewService(risk.DefaultScorer(), assessment.NewMapper(assessment.Options{}), nil, zerolog.Nop(),
		assessment.WithDefaultPolicy(risk.BatchPolicy),
		assessment.WithDefaultSubtypes([]string{"Soft Tissue Sarcoma", "Osteosarcoma"}),
	)

	var out bytes.Buffer
	if err := runAssess(context.Background(), &out, svc, []string{writePatient(t, patientJSON)}); err != nil {
		t.Fatalf("runAssess() error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 documents, got %d", len(lines))
	}
	want := []string{"Patient", "RiskAssessment", "Observation", "Observation", "Observation"}
	for i, line := range lines {
		var head struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal([]byte(line), &head); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if head.ResourceType != want[i] {
			t.Errorf("line %d: expected %s, got %s", i, want[i], head.ResourceType)
		}
	}
	if !strings.Contains(lines[1], `"text":"High"`) {
		t.Errorf("expected High prediction, got %s", lines[1])
	}
}

func TestRunAssess_InvalidFile(t *testing.T) {
	svc := assessment.NewService(risk.DefaultScorer(), assessment.NewMapper(assessment.Options{}), nil, zerolog.Nop())

	if err := runAssess(context.Background(), &bytes.Buffer{}, svc, []string{filepath.Join(t.TempDir(), "missing.json")}); err == nil {
		t.Error("expected error for missing file")
	}
	if err := runAssess(context.Background(), &bytes.Buffer{}, svc, []string{writePatient(t, `{"id":"1"}`)}); err == nil {
		t.Error("expected error for patient without data sections")
	}
}

func TestAssessCommand(t *testing.T) {
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"assess", "--policy", "batch", writePatient(t, patientJSON)})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if n := strings.Count(out.String(), "\n"); n != 5 {
		t.Errorf("expected 5 lines of output, got %d", n)
	}
	if !strings.Contains(errOut.String(), `"policy":"batch"`) {
		t.Errorf("expected assessment log on stderr, got %s", errOut.String())
	}
}

func TestAssessCommand_UnknownPolicy(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"assess", "--policy", "aggressive", writePatient(t, patientJSON)})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestPrintStatus(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var out bytes.Buffer
	printStatus(&out, "public", []db.MigrationStatus{
		{Version: 1, Name: "001_sarcoma_risk_assessment.sql", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "002_next.sql"},
	})

	text := out.String()
	if !strings.Contains(text, "Migration status for schema: public") {
		t.Errorf("missing header in %q", text)
	}
	if !strings.Contains(text, "applied    2026-01-02 03:04:05") {
		t.Errorf("missing applied row in %q", text)
	}
	if !strings.Contains(text, "pending") {
		t.Errorf("missing pending row in %q", text)
	}
}
