package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestDatabaseDisabledMode(t *testing.T) {
	env := newTestEnv(t, true)
	browser := env.client(t)

	status, body := env.do(t, browser, http.MethodPost, "/auth/login", map[string]any{
		"identifier": "anyone", "password": "whatever",
	})
	if status != http.StatusServiceUnavailable || errorCode(t, body).Code != ErrCodeServiceDisabled {
		t.Fatalf("login = %d %q, want 503 %s", status, body, ErrCodeServiceDisabled)
	}

	for _, path := range []string{"/auth/signup", "/auth/forgot-password", "/profile", "/admin/"} {
		method := http.MethodPost
		if path == "/profile" || path == "/admin/" {
			method = http.MethodGet
		}
		status, body := env.do(t, browser, method, path, map[string]any{})
		if status != http.StatusServiceUnavailable {
			t.Fatalf("%s %s = %d %q, want 503", method, path, status, body)
		}
	}

	// Contact intake still answers; the submission is only logged.
	status, body = env.do(t, browser, http.MethodPost, "/contact", map[string]any{
		"name": "Ivan", "email": "ivan@example.com", "subject": "Hello", "message": "Anyone there?",
	})
	if status != http.StatusCreated {
		t.Fatalf("contact = %d %q, want 201", status, body)
	}

	status, body = env.do(t, browser, http.MethodGet, "/health", nil)
	if status != http.StatusOK || !strings.Contains(string(body), `"database":"disabled"`) {
		t.Fatalf("health = %d %q, want ok with database disabled", status, body)
	}
}

func TestHealthAndSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, false)

	resp, err := http.Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestServerInfo(t *testing.T) {
	env := newTestEnv(t, false)

	status, body := env.do(t, env.client(t), http.MethodGet, "/server/info", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	var info ServerInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if info.Name != "Gatehouse" || !info.DatabaseEnabled || info.CaptchaEnabled || info.MinPasswordLength != 8 {
		t.Fatalf("info = %+v", info)
	}
}

func TestMetricsExposeLoginOutcomes(t *testing.T) {
	env := newTestEnv(t, false)
	browser := env.client(t)

	env.do(t, browser, http.MethodPost, "/auth/login", map[string]any{
		"identifier": "nobody", "password": "Wrong-Password-1",
	})

	resp, err := http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}

	for _, want := range []string{
		`gatehouse_login_outcomes_total{outcome="invalid"} 1`,
		`route="/auth/login"`,
	} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
