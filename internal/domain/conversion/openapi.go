package conversion

import (
	"net/http"

	"github.com/medcalc/medcalc/internal/platform/openapi"
)

// Operations describes the conversion routes for the API document. The
// dimension and conversion type enums come from the loaded catalog.
func (h *Handler) Operations() []openapi.Operation {
	dims := h.engine.Dimensions()
	convertBody := openapi.Schema{
		"type": "object",
		"properties": map[string]interface{}{
			"value":     openapi.Schema{"type": "number"},
			"fromUnit":  openapi.Schema{"type": "string"},
			"toUnit":    openapi.Schema{"type": "string"},
			"dimension": openapi.Schema{"type": "string", "enum": dims},
			"analyte":   openapi.Schema{"type": "string"},
			"conversionType": openapi.Schema{
				"type": "string",
				"enum": []string{string(TypeDimensional), string(TypeAnalyte), string(TypeElectrolyte)},
			},
			"direction": openapi.Schema{
				"type": "string",
				"enum": []string{string(ConventionalToSI), string(SIToConventional), string(MeqToMmol), string(MmolToMeq)},
			},
		},
		"required": []string{"value"},
	}
	validateBody := openapi.Schema{
		"type": "object",
		"properties": map[string]interface{}{
			"fromUnit": openapi.Schema{"type": "string"},
			"toUnit":   openapi.Schema{"type": "string"},
		},
		"required": []string{"fromUnit", "toUnit"},
	}

	return []openapi.Operation{
		{
			Method: http.MethodGet, Path: "/api/v1/conversions/dimensions", Tag: "conversions",
			Summary: "List dimensions", OperationID: "listDimensions",
		},
		{
			Method: http.MethodGet, Path: "/api/v1/conversions/units", Tag: "conversions",
			Summary: "List units, optionally for one dimension", OperationID: "listUnits",
			Params: []openapi.Param{{Name: "dimension", In: "query", Schema: openapi.Schema{"type": "string", "enum": dims}}},
		},
		{
			Method: http.MethodGet, Path: "/api/v1/conversions/analytes", Tag: "conversions",
			Summary: "List analytes", OperationID: "listAnalytes",
			Params: []openapi.Param{
				{Name: "category", In: "query"},
				{Name: "hasConversion", In: "query", Schema: openapi.Schema{"type": "boolean"}},
			},
		},
		{
			Method: http.MethodGet, Path: "/api/v1/conversions/analytes/:analyte", Tag: "conversions",
			Summary: "Get analyte conversion data", OperationID: "getAnalyte",
			Params: []openapi.Param{{Name: "analyte", In: "path", Description: "Analyte name or synonym"}},
		},
		{
			Method: http.MethodPost, Path: "/api/v1/conversions/convert", Tag: "conversions",
			Summary: "Convert a value", OperationID: "convert",
			Body: convertBody,
		},
		{
			Method: http.MethodPost, Path: "/api/v1/conversions/validate", Tag: "conversions",
			Summary: "Check whether two units are convertible", OperationID: "validateConversion",
			Body: validateBody,
		},
	}
}
