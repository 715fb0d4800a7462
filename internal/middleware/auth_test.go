package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubChecker bool

func (s stubChecker) Authenticated() bool { return bool(s) }

func TestRequireManager(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	guard := RequireManager(stubChecker(false))(next)
	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/items", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without session status = %d, want 401", rec.Code)
	}

	guard = RequireManager(stubChecker(true))(next)
	rec = httptest.NewRecorder()
	guard.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/items", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("with session status = %d, want 204", rec.Code)
	}
}
