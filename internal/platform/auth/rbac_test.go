package auth

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

// withRoles stands in for an authenticator that has already run.
func withRoles(uid string, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), UserIDKey, uid)
			ctx = context.WithValue(ctx, UserRolesKey, roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func TestRequireRole_AdminRoutes(t *testing.T) {
	tests := []struct {
		name   string
		roles  []string
		status int
	}{
		{"admin", []string{"admin"}, http.StatusOK},
		{"admin among others", []string{"viewer", "admin"}, http.StatusOK},
		{"viewer", []string{"viewer"}, http.StatusForbidden},
		{"no roles", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newAdminEcho(withRoles("u1", tt.roles...))
			for _, route := range []struct{ method, path string }{
				{http.MethodPost, reloadPath},
				{http.MethodGet, historyPath},
			} {
				rec := call(e, route.method, route.path, "")
				if tt.status == http.StatusOK {
					if rec.Code != http.StatusOK {
						t.Errorf("%s %s: expected 200, got %d", route.method, route.path, rec.Code)
					}
					continue
				}
				expectOutcome(t, rec, tt.status, "FORBIDDEN")
			}
		})
	}
}

func TestRequireRole_MessageNamesRoles(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		withRoles("u1", "viewer"), RequireRole("auditor", "operator"))

	rec := call(e, http.MethodGet, "/x", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "auditor or operator") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestRequireRole_OtherRoleAccepted(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		withRoles("u1", "operator"), RequireRole("auditor", "operator"))

	if rec := call(e, http.MethodGet, "/x", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestContextAccessors(t *testing.T) {
	ctx := context.WithValue(context.Background(), UserIDKey, "user-123")
	ctx = context.WithValue(ctx, UserRolesKey, []string{"admin"})
	if uid := UserIDFromContext(ctx); uid != "user-123" {
		t.Errorf("expected user-123, got %s", uid)
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != "admin" {
		t.Errorf("unexpected roles %v", roles)
	}

	if uid := UserIDFromContext(context.Background()); uid != "" {
		t.Errorf("expected empty string, got %s", uid)
	}
	if roles := RolesFromContext(context.Background()); roles != nil {
		t.Errorf("expected no roles, got %v", roles)
	}
}

func TestHasRole(t *testing.T) {
	tests := []struct {
		granted  []string
		required []string
		want     bool
	}{
		{[]string{"operator"}, []string{"operator"}, true},
		{[]string{"viewer"}, []string{"operator"}, false},
		{[]string{"admin"}, []string{"operator"}, true},
		{nil, []string{"operator"}, false},
		{[]string{"viewer"}, nil, false},
	}
	for _, tt := range tests {
		if got := HasRole(tt.granted, tt.required...); got != tt.want {
			t.Errorf("HasRole(%v, %v) = %v, want %v", tt.granted, tt.required, got, tt.want)
		}
	}
}
