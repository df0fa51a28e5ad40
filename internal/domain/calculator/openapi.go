package calculator

import (
	"net/http"

	"github.com/medcalc/medcalc/internal/platform/openapi"
)

var idParam = openapi.Param{Name: "id", In: "path", Description: "Calculator id (document file stem)"}

// Operations describes the calculator routes for the API document.
func (h *Handler) Operations() []openapi.Operation {
	pageParams := []openapi.Param{
		{Name: "limit", In: "query", Schema: openapi.Schema{"type": "integer", "minimum": 1}},
		{Name: "offset", In: "query", Schema: openapi.Schema{"type": "integer", "minimum": 0}},
	}
	return []openapi.Operation{
		{
			Method: http.MethodGet, Path: "/api/v1/calculators", Tag: "calculators",
			Summary: "List calculators", OperationID: "listCalculators",
			Params: append([]openapi.Param{
				{Name: "category", In: "query"},
				{Name: "search", In: "query"},
			}, pageParams...),
		},
		{
			Method: http.MethodGet, Path: "/api/v1/calculators/:id", Tag: "calculators",
			Summary: "Get a calculator document", OperationID: "getCalculator",
			Params: []openapi.Param{idParam},
		},
		{
			Method: http.MethodPost, Path: "/api/v1/calculators/:id/compute", Tag: "calculators",
			Summary: "Run a calculation", OperationID: "computeCalculation",
			Params: []openapi.Param{idParam},
			Body:   h.computeBody(),
		},
		{
			Method: http.MethodPost, Path: "/api/v1/calculators/reload", Tag: "calculators",
			Summary: "Reload calculator documents (admin)", OperationID: "reloadCalculators",
		},
		{
			Method: http.MethodGet, Path: "/api/v1/calculators/:id/history", Tag: "calculators",
			Summary: "Recorded calculations, newest first (admin)", OperationID: "calculationHistory",
			Params: append([]openapi.Param{idParam}, pageParams...),
		},
	}
}

// Schemas publishes one input schema per loaded calculator, named
// "<id>.inputs".
func (h *Handler) Schemas() map[string]openapi.Schema {
	out := make(map[string]openapi.Schema)
	for _, s := range h.svc.store.List() {
		out[s.ID+".inputs"] = InputsSchema(s)
	}
	return out
}

func (h *Handler) computeBody() openapi.Schema {
	var refs []openapi.Schema
	for _, s := range h.svc.store.List() {
		refs = append(refs, openapi.Schema{"$ref": "#/components/schemas/" + s.ID + ".inputs"})
	}
	inputs := openapi.Schema{"type": "object"}
	if len(refs) > 0 {
		inputs = openapi.Schema{"oneOf": refs}
	}
	return openapi.Schema{
		"type": "object",
		"properties": map[string]interface{}{
			"inputs": inputs,
			"mode":   openapi.Schema{"type": "string"},
		},
		"required": []string{"inputs"},
	}
}

// InputsSchema renders the inputs of s as a JSON Schema object. Inputs
// required without a mode are listed as required.
func InputsSchema(s *Schema) openapi.Schema {
	props := make(map[string]interface{}, len(s.Inputs))
	for _, in := range s.Inputs {
		props[in.Name] = inputSchema(in)
	}
	required := make([]string, 0, len(s.Inputs))
	for _, in := range ResolveRequiredInputs(s, "") {
		required = append(required, in.Name)
	}
	out := openapi.Schema{
		"type":       "object",
		"title":      s.Name,
		"properties": props,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func inputSchema(in InputSpec) openapi.Schema {
	var out openapi.Schema
	switch in.Type {
	case InputText:
		out = openapi.Schema{"type": "string"}
	case InputBoolean:
		out = openapi.Schema{"type": "boolean"}
	case InputSelect:
		values := make([]string, 0, len(in.Options))
		for _, o := range in.Options {
			values = append(values, o.Value)
		}
		out = openapi.Schema{"type": "string", "enum": values}
	default:
		out = openapi.Schema{"type": "number"}
		if in.Min != nil {
			out["minimum"] = *in.Min
		}
		if in.Max != nil {
			out["maximum"] = *in.Max
		}
	}
	if in.Label != "" {
		out["description"] = in.Label
	}
	if in.Unit != "" {
		out["x-unit"] = in.Unit
	}
	return out
}
