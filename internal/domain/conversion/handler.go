package conversion

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medcalc/medcalc/internal/platform/apperr"
)

// Recorder receives one observation per conversion request.
type Recorder interface {
	ObserveConversion(kind, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveConversion(string, string) {}

// Handler provides REST endpoints for unit and analyte conversion.
type Handler struct {
	engine  *Engine
	metrics Recorder
}

// NewHandler creates a conversion handler. rec may be nil.
func NewHandler(engine *Engine, rec Recorder) *Handler {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Handler{engine: engine, metrics: rec}
}

// RegisterRoutes registers conversion routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/conversions")
	g.GET("/dimensions", h.ListDimensions)
	g.GET("/units", h.ListUnits)
	g.GET("/analytes", h.ListAnalytes)
	g.GET("/analytes/:analyte", h.GetAnalyte)
	g.POST("/convert", h.Convert)
	g.POST("/validate", h.Validate)
}

// ListDimensions handles GET /api/v1/conversions/dimensions
func (h *Handler) ListDimensions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"dimensions": h.engine.Dimensions(),
	})
}

// ListUnits handles GET /api/v1/conversions/units?dimension=
func (h *Handler) ListUnits(c echo.Context) error {
	if dim := c.QueryParam("dimension"); dim != "" {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"success":   true,
			"dimension": dim,
			"units":     h.engine.UnitsForDimension(dim),
		})
	}
	all := make(map[string][]string)
	for _, dim := range h.engine.Dimensions() {
		all[dim] = h.engine.UnitsForDimension(dim)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"dimensions": all,
	})
}

// ListAnalytes handles GET /api/v1/conversions/analytes?category=&hasConversion=
func (h *Handler) ListAnalytes(c echo.Context) error {
	f := AnalyteFilter{Category: strings.TrimSpace(c.QueryParam("category"))}
	if raw := c.QueryParam("hasConversion"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return apperr.New(apperr.InvalidArgument, "hasConversion must be true or false")
		}
		f.HasConversion = &b
	}
	analytes := h.engine.Analytes(f)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":  true,
		"analytes": analytes,
		"total":    len(analytes),
	})
}

// GetAnalyte handles GET /api/v1/conversions/analytes/:analyte
func (h *Handler) GetAnalyte(c echo.Context) error {
	name := c.Param("analyte")
	a, ok := h.engine.AnalyteData(name)
	if !ok {
		return apperr.New(apperr.UnknownAnalyte, "Analyte not found: %s", name)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"analyte": a,
	})
}

// Convert handles POST /api/v1/conversions/convert
func (h *Handler) Convert(c echo.Context) error {
	var req ConvertRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BindError(err)
	}
	kind := string(req.Kind())
	if kind == "" {
		kind = "auto"
	}

	res, err := h.engine.Convert(req)
	if err != nil {
		h.metrics.ObserveConversion(kind, strings.ToLower(string(apperr.KindOf(err))))
		return err
	}
	h.metrics.ObserveConversion(kind, "success")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"result":    res,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type validateRequest struct {
	FromUnit string `json:"fromUnit"`
	ToUnit   string `json:"toUnit"`
}

// Validate handles POST /api/v1/conversions/validate
func (h *Handler) Validate(c echo.Context) error {
	var req validateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BindError(err)
	}
	if strings.TrimSpace(req.FromUnit) == "" || strings.TrimSpace(req.ToUnit) == "" {
		return apperr.New(apperr.InvalidArgument, "Both fromUnit and toUnit are required")
	}
	v, err := h.engine.ValidateConversion(req.FromUnit, req.ToUnit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"validation": v,
	})
}
