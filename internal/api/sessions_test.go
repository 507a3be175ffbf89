package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ernie/hostlog/internal/viewer"
)

func TestSessionManager_ResolveAndExpire(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewSessionManager(time.Minute)
	m.now = func() time.Time { return now }

	id, reg := m.Resolve("")
	if id == "" || reg == nil {
		t.Fatalf("Resolve(\"\") = %q, %v", id, reg)
	}
	if again, reg2 := m.Resolve(id); again != id || reg2 != reg {
		t.Fatalf("Resolve(%q) returned a different session %q", id, again)
	}
	if other, _ := m.Resolve("not-a-uuid"); other == id {
		t.Fatalf("malformed id reused session %q", id)
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}

	now = now.Add(45 * time.Second)
	m.Resolve(id)
	now = now.Add(30 * time.Second)
	if n := m.Expire(); n != 1 {
		t.Fatalf("Expire() = %d, want 1", n)
	}
	if again, _ := m.Resolve(id); again != id {
		t.Fatalf("recently used session %q was expired", id)
	}

	now = now.Add(2 * time.Minute)
	m.Expire()
	if again, _ := m.Resolve(id); again == id {
		t.Fatalf("idle session %q survived expiry", id)
	}
}

func TestSessionManager_FromRequest(t *testing.T) {
	m := NewSessionManager(time.Minute)

	rec := httptest.NewRecorder()
	reg := m.FromRequest(rec, httptest.NewRequest(http.MethodGet, "/logs", nil))
	id := rec.Header().Get(viewer.SessionHeader)
	if id == "" {
		t.Fatalf("no session header set")
	}

	req := httptest.NewRequest(http.MethodGet, "/logs", nil)
	req.Header.Set(viewer.SessionHeader, id)
	rec = httptest.NewRecorder()
	if got := m.FromRequest(rec, req); got != reg {
		t.Fatalf("header session not reused")
	}

	rec = httptest.NewRecorder()
	if got := m.FromRequest(rec, httptest.NewRequest(http.MethodGet, "/logs?session="+id, nil)); got != reg {
		t.Fatalf("query session not reused")
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"forwarded for", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "10.0.0.1:1", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.7 "}, "10.0.0.1:1", "198.51.100.7"},
		{"no port", nil, "192.0.2.1", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Fatalf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiter_PerClient(t *testing.T) {
	l := NewRateLimiter(0.001, 1)
	if !l.Allow("a") || l.Allow("a") {
		t.Fatalf("client a should get exactly one request")
	}
	if !l.Allow("b") {
		t.Fatalf("client b throttled by client a")
	}
	if !NewRateLimiter(0, 0).Allow("a") {
		t.Fatalf("zero rate should disable limiting")
	}
}
