package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LOCAL2/itshard-items/internal/config"
	"github.com/LOCAL2/itshard-items/internal/database"
	ws "github.com/LOCAL2/itshard-items/internal/websocket"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Config{
		ManagerPIN: "1234",
		Locale:     "th",
		Remote:     config.Remote{BaseURL: "http://127.0.0.1:1"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(db, cfg, logger)
}

func TestVisibilityRequiresManagerSession(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/api/visibility", strings.NewReader(`{"visible":false}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if !s.engine.Visible() {
		t.Error("unauthenticated request changed engine visibility")
	}
}

func TestViewerConnectionsDrivePolling(t *testing.T) {
	s := newTestServer(t)

	c := ws.NewClient(s.hub, nil)
	s.hub.Register(c)
	if !s.engine.Visible() {
		t.Error("engine hidden with a viewer connected")
	}

	s.hub.Unregister(c)
	if s.engine.Visible() {
		t.Error("engine still polling with no viewers")
	}

	c2 := ws.NewClient(s.hub, nil)
	s.hub.Register(c2)
	if !s.engine.Visible() {
		t.Error("engine did not resume when a viewer returned")
	}
	s.hub.Unregister(c2)
}
