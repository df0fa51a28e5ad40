package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakeSource struct {
	ops     []Operation
	schemas map[string]Schema
}

func (f fakeSource) Operations() []Operation { return f.ops }

func (f fakeSource) Schemas() map[string]Schema { return f.schemas }

type opsOnly []Operation

func (o opsOnly) Operations() []Operation { return o }

func newTestGenerator() *Generator {
	calc := fakeSource{
		ops: []Operation{
			{Method: http.MethodGet, Path: "/api/v1/calculators", Summary: "List calculators", Tag: "calculators",
				Params: []Param{{Name: "category", In: "query"}}},
			{Method: http.MethodPost, Path: "/api/v1/calculators/:id/compute", Summary: "Compute", Tag: "calculators",
				Params: []Param{{Name: "id", In: "path"}},
				Body:   Schema{"type": "object"}},
			{Method: http.MethodGet, Path: "/api/v1/calculators/:id", Summary: "Get calculator", Tag: "calculators",
				Responses: map[string]string{"200": "Calculator document"}},
		},
		schemas: map[string]Schema{"bmi.inputs": {"type": "object"}},
	}
	conv := opsOnly{
		{Method: http.MethodPost, Path: "/api/v1/conversions/convert", Summary: "Convert", Tag: "conversions"},
	}
	return NewGenerator("medcalc API", "1.0.0", "http://localhost:8000", calc, conv)
}

func TestGenerateSpec_Structure(t *testing.T) {
	spec := newTestGenerator().GenerateSpec()

	if spec["openapi"] != "3.0.3" {
		t.Errorf("expected openapi '3.0.3', got %v", spec["openapi"])
	}
	info := spec["info"].(map[string]interface{})
	if info["title"] != "medcalc API" || info["version"] != "1.0.0" {
		t.Errorf("unexpected info %v", info)
	}
	servers := spec["servers"].([]map[string]string)
	if len(servers) != 1 || servers[0]["url"] != "http://localhost:8000" {
		t.Errorf("unexpected servers %v", servers)
	}
	tags := spec["tags"].([]map[string]string)
	if len(tags) != 2 || tags[0]["name"] != "calculators" || tags[1]["name"] != "conversions" {
		t.Errorf("unexpected tags %v", tags)
	}
}

func TestGenerateSpec_Paths(t *testing.T) {
	paths := newTestGenerator().GenerateSpec()["paths"].(map[string]interface{})

	for _, p := range []string{"/api/v1/calculators", "/api/v1/calculators/{id}/compute", "/api/v1/calculators/{id}", "/api/v1/conversions/convert"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("missing path %s", p)
		}
	}
	if _, ok := paths["/api/v1/calculators/:id"]; ok {
		t.Error("echo path syntax leaked into the document")
	}

	compute := paths["/api/v1/calculators/{id}/compute"].(map[string]interface{})["post"].(map[string]interface{})
	params := compute["parameters"].([]map[string]interface{})
	if params[0]["required"] != true {
		t.Error("path parameters must be required")
	}
	if _, ok := compute["requestBody"]; !ok {
		t.Error("expected request body on compute")
	}
	responses := compute["responses"].(map[string]interface{})
	if _, ok := responses["default"]; !ok {
		t.Error("expected default error response")
	}
	if _, ok := responses["200"]; !ok {
		t.Error("expected a 200 response when none is declared")
	}

	list := paths["/api/v1/calculators"].(map[string]interface{})["get"].(map[string]interface{})
	query := list["parameters"].([]map[string]interface{})
	if query[0]["required"] != false {
		t.Error("query parameters are optional unless declared")
	}
}

func TestGenerateSpec_Components(t *testing.T) {
	components := newTestGenerator().GenerateSpec()["components"].(map[string]interface{})
	schemas := components["schemas"].(map[string]interface{})
	if _, ok := schemas["Outcome"]; !ok {
		t.Error("missing Outcome schema")
	}
	if _, ok := schemas["bmi.inputs"]; !ok {
		t.Error("missing schema published by a source")
	}
}

func TestGenerateSpec_NoSources(t *testing.T) {
	spec := NewGenerator("empty", "0", "").GenerateSpec()
	if len(spec["paths"].(map[string]interface{})) != 0 {
		t.Error("expected no paths")
	}
	if _, ok := spec["servers"]; ok {
		t.Error("servers should be omitted without a base URL")
	}
}

func TestTemplatePath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/api/v1/calculators/:id/compute", "/api/v1/calculators/{id}/compute"},
		{"/api/v1/conversions/analytes/:analyte", "/api/v1/conversions/analytes/{analyte}"},
		{"/health", "/health"},
	}
	for _, tt := range tests {
		if got := templatePath(tt.in); got != tt.want {
			t.Errorf("templatePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerator_Endpoints(t *testing.T) {
	e := echo.New()
	newTestGenerator().RegisterRoutes(e.Group("/api"))

	req := httptest.NewRequest(http.MethodGet, "/api/openapi.json", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var spec map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &spec); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if spec["openapi"] != "3.0.3" {
		t.Errorf("expected openapi '3.0.3', got %v", spec["openapi"])
	}

	req = httptest.NewRequest(http.MethodGet, "/api/docs", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "swagger-ui") {
		t.Errorf("unexpected docs response %d", rec.Code)
	}
}
