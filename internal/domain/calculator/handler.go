package calculator

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medcalc/medcalc/internal/platform/apperr"
	"github.com/medcalc/medcalc/internal/platform/auth"
	"github.com/medcalc/medcalc/pkg/pagination"
)

// Handler provides REST endpoints for calculators.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers calculator routes. adminAuth authenticates the
// reload and history endpoints; the admin role is required on top of it.
func (h *Handler) RegisterRoutes(api *echo.Group, adminAuth echo.MiddlewareFunc) {
	g := api.Group("/calculators")
	g.GET("", h.ListCalculators)
	g.GET("/:id", h.GetCalculator)
	g.POST("/:id/compute", h.Compute)

	admin := []echo.MiddlewareFunc{auth.RequireRole("admin")}
	if adminAuth != nil {
		admin = append([]echo.MiddlewareFunc{adminAuth}, admin...)
	}
	g.POST("/reload", h.Reload, admin...)
	g.GET("/:id/history", h.History, admin...)
}

// ListCalculators handles GET /api/v1/calculators?category=&search=&limit=&offset=
func (h *Handler) ListCalculators(c echo.Context) error {
	p := pagination.FromContext(c)
	all := h.svc.GetCalculators(ListFilter{
		Category: c.QueryParam("category"),
		Search:   c.QueryParam("search"),
	})
	resp := pagination.NewResponse(pagination.Slice(all, p), len(all), p.Limit, p.Offset)
	resp.Links = p.Links(c.Request().URL, len(all))
	return c.JSON(http.StatusOK, resp)
}

// GetCalculator handles GET /api/v1/calculators/:id
func (h *Handler) GetCalculator(c echo.Context) error {
	sc, err := h.svc.GetCalculatorSchema(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":    true,
		"calculator": sc,
	})
}

type computeRequest struct {
	Inputs map[string]any `json:"inputs"`
	Mode   string         `json:"mode"`
}

// Compute handles POST /api/v1/calculators/:id/compute
func (h *Handler) Compute(c echo.Context) error {
	var req computeRequest
	if err := c.Bind(&req); err != nil {
		return apperr.BindError(err)
	}
	if req.Inputs == nil {
		return apperr.New(apperr.InvalidArgument, "Inputs object is required")
	}
	calc, err := h.svc.Compute(c.Request().Context(), c.Param("id"), req.Inputs, req.Mode)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, calc)
}

// Reload handles POST /api/v1/calculators/reload
func (h *Handler) Reload(c echo.Context) error {
	n, err := h.svc.ReloadSchemas()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":   true,
		"count":     n,
		"message":   "calculator schemas reloaded",
		"timestamp": time.Now().UTC(),
	})
}

// History handles GET /api/v1/calculators/:id/history
func (h *Handler) History(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.svc.History(c.Request().Context(), c.Param("id"), p.Limit, p.Offset)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "load calculation history")
	}
	resp := pagination.NewResponse(items, total, p.Limit, p.Offset)
	resp.Links = p.Links(c.Request().URL, total)
	return c.JSON(http.StatusOK, resp)
}
