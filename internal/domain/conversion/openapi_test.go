package conversion

import (
	"net/http"
	"testing"
)

func TestHandler_OperationsCoverRoutes(t *testing.T) {
	e, _ := newTestServer(t)
	described := map[string]bool{}
	for _, op := range NewHandler(newTestEngine(t), nil).Operations() {
		described[op.Method+" "+op.Path] = true
	}
	for _, r := range e.Routes() {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			continue
		}
		if !described[r.Method+" "+r.Path] {
			t.Errorf("route %s %s is not described", r.Method, r.Path)
		}
	}
	if len(described) != 6 {
		t.Errorf("expected 6 operations, got %d", len(described))
	}
}
