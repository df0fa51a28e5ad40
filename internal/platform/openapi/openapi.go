package openapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// Schema is a JSON Schema object as embedded in an OpenAPI document.
type Schema = map[string]interface{}

// Param is a path or query parameter.
type Param struct {
	Name        string
	In          string
	Required    bool
	Description string
	Schema      Schema
}

// Operation describes one route. Path uses echo syntax (":id"); it is
// rewritten to OpenAPI templating when the document is generated.
type Operation struct {
	Method      string
	Path        string
	Summary     string
	OperationID string
	Tag         string
	Params      []Param
	Body        Schema
	Responses   map[string]string
}

// Source contributes operations to the document.
type Source interface {
	Operations() []Operation
}

// SchemaSource is implemented by sources that also publish named component
// schemas.
type SchemaSource interface {
	Schemas() map[string]Schema
}

// Generator builds an OpenAPI 3.0 document from its sources each time it is
// requested, so reloaded calculators are reflected immediately.
type Generator struct {
	title   string
	version string
	baseURL string
	sources []Source
}

// NewGenerator creates a new OpenAPI document generator.
func NewGenerator(title, version, baseURL string, sources ...Source) *Generator {
	return &Generator{title: title, version: version, baseURL: baseURL, sources: sources}
}

// GenerateSpec produces the OpenAPI 3.0 document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]interface{})
	components := map[string]interface{}{
		"Outcome": outcomeSchema(),
	}
	var tags []string
	seenTag := map[string]bool{}

	for _, src := range g.sources {
		for _, op := range src.Operations() {
			path := templatePath(op.Path)
			item, _ := paths[path].(map[string]interface{})
			if item == nil {
				item = make(map[string]interface{})
				paths[path] = item
			}
			item[strings.ToLower(op.Method)] = buildOperation(op)
			if op.Tag != "" && !seenTag[op.Tag] {
				seenTag[op.Tag] = true
				tags = append(tags, op.Tag)
			}
		}
		if ss, ok := src.(SchemaSource); ok {
			for name, s := range ss.Schemas() {
				components[name] = s
			}
		}
	}
	sort.Strings(tags)

	tagList := make([]map[string]string, 0, len(tags))
	for _, t := range tags {
		tagList = append(tagList, map[string]string{"name": t})
	}

	spec := map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   g.title,
			"version": g.version,
		},
		"paths": paths,
		"tags":  tagList,
		"components": map[string]interface{}{
			"schemas": components,
		},
	}
	if g.baseURL != "" {
		spec["servers"] = []map[string]string{{"url": g.baseURL}}
	}
	return spec
}

func buildOperation(op Operation) map[string]interface{} {
	out := map[string]interface{}{
		"summary": op.Summary,
	}
	if op.OperationID != "" {
		out["operationId"] = op.OperationID
	}
	if op.Tag != "" {
		out["tags"] = []string{op.Tag}
	}

	params := make([]map[string]interface{}, 0, len(op.Params))
	for _, p := range op.Params {
		schema := p.Schema
		if schema == nil {
			schema = Schema{"type": "string"}
		}
		param := map[string]interface{}{
			"name":     p.Name,
			"in":       p.In,
			"required": p.Required || p.In == "path",
			"schema":   schema,
		}
		if p.Description != "" {
			param["description"] = p.Description
		}
		params = append(params, param)
	}
	if len(params) > 0 {
		out["parameters"] = params
	}

	if op.Body != nil {
		out["requestBody"] = map[string]interface{}{
			"required": true,
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{"schema": op.Body},
			},
		}
	}

	responses := map[string]interface{}{
		"default": buildResponseWithSchema("Error outcome", "#/components/schemas/Outcome"),
	}
	for code, desc := range op.Responses {
		responses[code] = map[string]interface{}{"description": desc}
	}
	if len(op.Responses) == 0 {
		responses["200"] = map[string]interface{}{"description": "Success"}
	}
	out["responses"] = responses
	return out
}

// buildResponseWithSchema creates an OpenAPI response with content schema reference.
func buildResponseWithSchema(description, schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]string{"$ref": schemaRef},
			},
		},
	}
}

func outcomeSchema() Schema {
	return Schema{
		"type": "object",
		"properties": map[string]interface{}{
			"success": Schema{"type": "boolean"},
			"error":   Schema{"type": "string"},
			"code":    Schema{"type": "string"},
			"details": Schema{"type": "array", "items": Schema{"type": "string"}},
		},
		"required": []string{"success", "error", "code"},
	}
}

// templatePath rewrites echo path parameters (":id") to OpenAPI form ("{id}").
func templatePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		if strings.HasPrefix(part, ":") {
			parts[i] = "{" + part[1:] + "}"
		}
	}
	return strings.Join(parts, "/")
}

// ── Swagger UI ──────────────────────────────────────────────────────────

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>medcalc API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/api/openapi.json",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: "BaseLayout"
    })
  </script>
</body>
</html>`

// RegisterRoutes registers the OpenAPI endpoints.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	apiGroup.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}
