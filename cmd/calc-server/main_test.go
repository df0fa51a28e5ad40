package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medcalc/medcalc/internal/config"
	"github.com/medcalc/medcalc/internal/platform/auth"
	"github.com/medcalc/medcalc/internal/platform/db"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

func testConfig(env string) *config.Config {
	return &config.Config{
		Port:            "0",
		Env:             env,
		AuditMemorySize: 100,
		AuthSigningKey:  testSigningKey,
		CORSOrigins:     []string{"http://localhost:3000"},
		RateLimitRPS:    1000,
		RateLimitBurst:  1000,
		RequestTimeout:  5 * time.Second,
		BodyLimit:       "256K",
	}
}

func newTestApp(t *testing.T, env string) *echo.Echo {
	t.Helper()
	return newTestAppWith(t, testConfig(env))
}

func newTestAppWith(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()
	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	e, err := a.routes()
	if err != nil {
		t.Fatalf("routes: %v", err)
	}
	return e
}

func serve(e *echo.Echo, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Server wiring
// ---------------------------------------------------------------------------

func TestServer_Health(t *testing.T) {
	e := newTestApp(t, "development")
	rec := serve(e, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestServer_ComputeAndMetrics(t *testing.T) {
	e := newTestApp(t, "development")
	rec := serve(e, http.MethodPost, "/api/v1/calculators/bmi/compute", `{"inputs": {"weight": 70, "height": 175}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"calculatorId":"bmi"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	rec = serve(e, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(rec.Body.String(), `calculations_total{calculator="bmi",outcome="success"} 1`) {
		t.Errorf("metrics missing calculation counter:\n%s", rec.Body.String())
	}
}

func TestServer_Convert(t *testing.T) {
	e := newTestApp(t, "development")
	rec := serve(e, http.MethodPost, "/api/v1/conversions/convert", `{"value": 1, "fromUnit": "kg", "toUnit": "g"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"value":1000`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestServer_UnknownRouteUsesOutcome(t *testing.T) {
	e := newTestApp(t, "development")
	rec := serve(e, http.MethodGet, "/api/v1/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"NOT_FOUND"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestServer_ReloadInDevelopment(t *testing.T) {
	e := newTestApp(t, "development")
	rec := serve(e, http.MethodPost, "/api/v1/calculators/reload", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_ReloadRequiresToken(t *testing.T) {
	e := newTestApp(t, "production")
	rec := serve(e, http.MethodPost, "/api/v1/calculators/reload", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}

	cfg := auth.JWTConfig{SigningKey: []byte(testSigningKey)}
	viewer, err := auth.IssueToken(cfg, "carol", []string{"viewer"}, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	rec = serve(e, http.MethodPost, "/api/v1/calculators/reload", "", http.Header{"Authorization": {"Bearer " + viewer}})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a viewer, got %d", rec.Code)
	}

	admin, err := auth.IssueToken(cfg, "dave", []string{"admin"}, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	rec = serve(e, http.MethodPost, "/api/v1/calculators/reload", "", http.Header{"Authorization": {"Bearer " + admin}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for an admin, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_HistoryIsAdminOnly(t *testing.T) {
	e := newTestApp(t, "production")
	const path = "/api/v1/calculators/bmi/history"

	rec := serve(e, http.MethodGet, path, "", nil)
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), `"code":"UNAUTHORIZED"`) {
		t.Fatalf("expected a 401 outcome, got %d: %s", rec.Code, rec.Body.String())
	}

	cfg := auth.JWTConfig{SigningKey: []byte(testSigningKey)}
	viewer, err := auth.IssueToken(cfg, "carol", []string{"viewer"}, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	rec = serve(e, http.MethodGet, path, "", http.Header{"Authorization": {"Bearer " + viewer}})
	if rec.Code != http.StatusForbidden || !strings.Contains(rec.Body.String(), `"code":"FORBIDDEN"`) {
		t.Fatalf("expected a 403 outcome, got %d: %s", rec.Code, rec.Body.String())
	}

	admin, err := auth.IssueToken(cfg, "dave", []string{"admin"}, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	serve(e, http.MethodPost, "/api/v1/calculators/bmi/compute", `{"inputs": {"weight": 70, "height": 175}}`, nil)
	rec = serve(e, http.MethodGet, path, "", http.Header{"Authorization": {"Bearer " + admin}})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Fatalf("expected the admin to see one record, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_ComputeIsNotCached(t *testing.T) {
	e := newTestApp(t, "development")
	rec := serve(e, http.MethodPost, "/api/v1/calculators/bmi/compute", `{"inputs": {"weight": 70, "height": 175}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(echo.HeaderCacheControl); got != "no-store" {
		t.Errorf("expected no-store, got %q", got)
	}
	if got := rec.Header().Get(echo.HeaderContentSecurityPolicy); !strings.HasPrefix(got, "default-src 'none'") {
		t.Errorf("unexpected policy %q", got)
	}

	rec = serve(e, http.MethodGet, "/api/docs", "", nil)
	if got := rec.Header().Get(echo.HeaderContentSecurityPolicy); !strings.Contains(got, "https://unpkg.com") {
		t.Errorf("docs page cannot load Swagger UI under %q", got)
	}
}

func TestServer_OversizedBody(t *testing.T) {
	e := newTestApp(t, "development")
	body := `{"inputs": {"note": "` + strings.Repeat("x", 300_000) + `"}}`

	t.Run("declared length", func(t *testing.T) {
		rec := serve(e, http.MethodPost, "/api/v1/calculators/bmi/compute", body, nil)
		if rec.Code != http.StatusRequestEntityTooLarge || !strings.Contains(rec.Body.String(), `"code":"PAYLOAD_TOO_LARGE"`) {
			t.Fatalf("expected a 413 outcome, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("chunked", func(t *testing.T) {
		// MultiReader hides the length, so the limit trips while reading.
		req := httptest.NewRequest(http.MethodPost, "/api/v1/calculators/bmi/compute", io.MultiReader(strings.NewReader(body)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusRequestEntityTooLarge || !strings.Contains(rec.Body.String(), `"code":"PAYLOAD_TOO_LARGE"`) {
			t.Fatalf("expected a 413 outcome, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("conversion", func(t *testing.T) {
		big := `{"value": 1, "fromUnit": "` + strings.Repeat("k", 300_000) + `", "toUnit": "g"}`
		rec := serve(e, http.MethodPost, "/api/v1/conversions/convert", big, nil)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("expected 413, got %d", rec.Code)
		}
	})
}

func TestServer_MalformedBodyIsInvalidArgument(t *testing.T) {
	e := newTestApp(t, "development")
	rec := serve(e, http.MethodPost, "/api/v1/calculators/bmi/compute", `{"inputs": `, nil)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"code":"INVALID_ARGUMENT"`) {
		t.Fatalf("expected a 400 outcome, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_RateLimited(t *testing.T) {
	cfg := testConfig("development")
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 2
	e := newTestAppWith(t, cfg)

	for i := 0; i < 2; i++ {
		if rec := serve(e, http.MethodGet, "/api/v1/calculators", "", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
	rec := serve(e, http.MethodGet, "/api/v1/calculators", "", nil)
	if rec.Code != http.StatusTooManyRequests || !strings.Contains(rec.Body.String(), `"code":"RATE_LIMITED"`) {
		t.Fatalf("expected a 429 outcome, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(echo.HeaderRetryAfter) == "" {
		t.Error("expected Retry-After")
	}

	// Health sits outside /api/v1.
	if rec := serve(e, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("health should not be rate limited, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// CLI helpers
// ---------------------------------------------------------------------------

func TestRunCheck_EmbeddedData(t *testing.T) {
	var out bytes.Buffer
	if err := runCheck(&out, testConfig("development")); err != nil {
		t.Fatalf("runCheck: %v", err)
	}
	if !strings.Contains(out.String(), "0 lint finding(s)") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestRunCheck_MissingDirectory(t *testing.T) {
	cfg := testConfig("development")
	cfg.CalculatorsDir = t.TempDir() + "/missing"
	if err := runCheck(&bytes.Buffer{}, cfg); err == nil {
		t.Fatal("expected an error for a missing calculators directory")
	}
}

func TestParseInputs(t *testing.T) {
	inputs, err := parseInputs(`{"weight": 70, "sex": "male"}`, []string{"height=175", "smoker=true", "sex = female"})
	if err != nil {
		t.Fatalf("parseInputs: %v", err)
	}
	if inputs["weight"] != 70.0 || inputs["height"] != 175.0 {
		t.Errorf("numbers not parsed: %#v", inputs)
	}
	if inputs["smoker"] != true {
		t.Errorf("boolean not parsed: %#v", inputs["smoker"])
	}
	if inputs["sex"] != "female" {
		t.Errorf("--set should override --inputs, got %#v", inputs["sex"])
	}
}

func TestParseInputs_Errors(t *testing.T) {
	if _, err := parseInputs(`{"weight":`, nil); err == nil {
		t.Error("expected error for malformed JSON")
	}
	if _, err := parseInputs("", []string{"weight"}); err == nil {
		t.Error("expected error for an assignment without '='")
	}
	if _, err := parseInputs("", []string{"=5"}); err == nil {
		t.Error("expected error for an empty name")
	}
}

func TestResolveSigningKey_Raw(t *testing.T) {
	key, err := resolveSigningKey("secret")
	if err != nil || string(key) != "secret" {
		t.Errorf("resolveSigningKey(raw) = %q, %v", key, err)
	}
}

func TestResolveSigningKey_Hex(t *testing.T) {
	want := []byte{0xde, 0xad, 0xbe, 0xef}
	key, err := resolveSigningKey("hex:" + hex.EncodeToString(want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(key, want) {
		t.Errorf("got %x, want %x", key, want)
	}
}

func TestResolveSigningKey_InvalidHex(t *testing.T) {
	if _, err := resolveSigningKey("hex:zz"); err == nil {
		t.Error("expected error for invalid hex")
	}
}

func TestResolveSigningKey_Empty(t *testing.T) {
	key, err := resolveSigningKey("")
	if err != nil || key != nil {
		t.Errorf("resolveSigningKey(\"\") = %v, %v", key, err)
	}
}

func TestWriteMigrationStatus(t *testing.T) {
	applied := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	writeMigrationStatus(&out, []db.MigrationStatus{
		{Version: 1, Name: "calculation_log", Applied: true, AppliedAt: &applied},
		{Version: 2, Name: "next"},
	})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[2], "applied") || !strings.Contains(lines[2], "2026-03-01 12:00:00") {
		t.Errorf("unexpected applied row %q", lines[2])
	}
	if !strings.Contains(lines[3], "pending") {
		t.Errorf("unexpected pending row %q", lines[3])
	}
}

func TestServer_OpenAPIDocument(t *testing.T) {
	e := newTestApp(t, "development")
	rec := serve(e, http.MethodGet, "/api/openapi.json", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`"/api/v1/calculators/{id}/compute"`, `"/api/v1/conversions/convert"`, `"bmi.inputs"`} {
		if !strings.Contains(body, want) {
			t.Errorf("document missing %s", want)
		}
	}
}

func TestConvertCmd_Direction(t *testing.T) {
	t.Setenv("CATALOG_DIR", "")
	var out bytes.Buffer
	cmd := convertCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"140", "--analyte", "sodium", "--direction", "meq_to_mmol"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !strings.Contains(out.String(), `"conversionType": "electrolyte"`) || !strings.Contains(out.String(), `"value": 140`) {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestConvertCmd_RequiresUnitPair(t *testing.T) {
	cmd := convertCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"1", "kg"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for a single unit")
	}
}
