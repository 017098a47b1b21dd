package httpkit

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := CORS(CORSOptions{AllowedOrigins: []string{" https://app.example.com ", ""}})(next)

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantOrigin string
	}{
		{"allowed", http.MethodGet, "https://app.example.com", false, http.StatusTeapot, "https://app.example.com"},
		{"other origin", http.MethodGet, "https://evil.example.com", false, http.StatusTeapot, ""},
		{"preflight", http.MethodOptions, "https://app.example.com", true, http.StatusNoContent, "https://app.example.com"},
		{"plain options", http.MethodOptions, "", false, http.StatusTeapot, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/status/x", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestCORSWildcard(t *testing.T) {
	h := CORS(CORSOptions{AllowedOrigins: []string{"*"}})(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Errorf("wildcard must echo the origin, got %v", rec.Header())
	}
	if rec.Header().Get("Access-Control-Max-Age") != "600" {
		t.Errorf("Max-Age = %q", rec.Header().Get("Access-Control-Max-Age"))
	}
}

func TestWriteErr(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErr(rec, http.StatusBadRequest, "UNSUPPORTED_FORMAT", "File type not allowed.", map[string]any{"extension": ".txt"})

	if rec.Code != http.StatusBadRequest || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected response %d %v", rec.Code, rec.Header())
	}
	var env ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Error.Code != "UNSUPPORTED_FORMAT" || env.Error.Details["extension"] != ".txt" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestSetAttachment(t *testing.T) {
	rec := httptest.NewRecorder()
	SetAttachment(rec, "image/gif", "my clip.gif", 42)

	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="my clip.gif"` {
		t.Errorf("Content-Disposition = %s", got)
	}
	if rec.Header().Get("Content-Length") != "42" || rec.Header().Get("Content-Type") != "image/gif" {
		t.Errorf("headers = %v", rec.Header())
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/jobs?limit=20&bad=x", nil)
	if got := QueryInt(req, "limit", 50); got != 20 {
		t.Errorf("QueryInt(limit) = %d", got)
	}
	if got := QueryInt(req, "bad", 50); got != 50 {
		t.Errorf("QueryInt(bad) = %d", got)
	}
	if got := QueryInt(req, "missing", 7); got != 7 {
		t.Errorf("QueryInt(missing) = %d", got)
	}
}

func TestPgErrorCodes(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	undefined := &pgconn.PgError{Code: "42P01"}

	if !IsUniqueViolation(unique) || IsUniqueViolation(undefined) {
		t.Error("IsUniqueViolation misclassified")
	}
	if !IsUndefinedTable(undefined) || IsUndefinedTable(errors.New("x")) {
		t.Error("IsUndefinedTable misclassified")
	}
}
