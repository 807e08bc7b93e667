package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIPResolverDirectConnectionIgnoresForwardedHeaders(t *testing.T) {
	resolver, err := NewClientIPResolver(nil)
	if err != nil {
		t.Fatalf("NewClientIPResolver error: %v", err)
	}

	req := httptest.NewRequest("GET", "http://localhost/test", nil)
	req.RemoteAddr = "203.0.113.7:43210"
	req.Header.Set("X-Forwarded-For", "198.51.100.5")
	req.Header.Set("X-Real-IP", "198.51.100.6")

	if got := resolver.Resolve(req); got != "203.0.113.7" {
		t.Fatalf("Resolve() = %q, want %q", got, "203.0.113.7")
	}
}

func TestClientIPResolverTrustedProxyUsesForwardedFor(t *testing.T) {
	resolver, err := NewClientIPResolver([]string{"172.30.0.10/32"})
	if err != nil {
		t.Fatalf("NewClientIPResolver error: %v", err)
	}

	req := httptest.NewRequest("GET", "http://localhost/test", nil)
	req.RemoteAddr = "172.30.0.10:12345"
	req.Header.Set("X-Forwarded-For", "198.51.100.8, 172.30.0.10")

	if got := resolver.Resolve(req); got != "198.51.100.8" {
		t.Fatalf("Resolve() = %q, want %q", got, "198.51.100.8")
	}
}

func TestClientIPResolverTrustedProxyFallsBackToRealIP(t *testing.T) {
	resolver, err := NewClientIPResolver([]string{"172.30.0.10/32"})
	if err != nil {
		t.Fatalf("NewClientIPResolver error: %v", err)
	}

	req := httptest.NewRequest("GET", "http://localhost/test", nil)
	req.RemoteAddr = "172.30.0.10:12345"
	req.Header.Set("X-Forwarded-For", "not-an-ip")
	req.Header.Set("X-Real-IP", "198.51.100.10")

	if got := resolver.Resolve(req); got != "198.51.100.10" {
		t.Fatalf("Resolve() = %q, want %q", got, "198.51.100.10")
	}
}

func TestClientIPMiddlewareStoresResolvedAddress(t *testing.T) {
	resolver, err := NewClientIPResolver([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("NewClientIPResolver error: %v", err)
	}

	var got, key string
	handler := resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
		key, _ = resolver.KeyFunc(r)
	}))

	req := httptest.NewRequest("POST", "http://localhost/auth/login", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("X-Forwarded-For", "198.51.100.20")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "198.51.100.20" {
		t.Fatalf("ClientIP() = %q, want %q", got, "198.51.100.20")
	}
	if key != got {
		t.Fatalf("KeyFunc() = %q, want %q", key, got)
	}
}

func TestClientIPWithoutMiddlewareUsesPeer(t *testing.T) {
	req := httptest.NewRequest("GET", "http://localhost/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"

	if got := ClientIP(req); got != "2001:db8::1" {
		t.Fatalf("ClientIP() = %q, want %q", got, "2001:db8::1")
	}
}

func TestClientIPResolverRejectsBadProxy(t *testing.T) {
	if _, err := NewClientIPResolver([]string{"10.0.0.0/33"}); err == nil {
		t.Fatal("NewClientIPResolver() error = nil, want invalid prefix error")
	}
}

func TestClientIPResolverBareProxyAddress(t *testing.T) {
	resolver, err := NewClientIPResolver([]string{" 192.0.2.1 ", ""})
	if err != nil {
		t.Fatalf("NewClientIPResolver error: %v", err)
	}

	tests := []struct {
		name   string
		remote string
		want   string
	}{
		{name: "trusted_proxy", remote: "192.0.2.1:8080", want: "198.51.100.30"},
		{name: "neighbor_not_trusted", remote: "192.0.2.2:8080", want: "192.0.2.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://localhost/", nil)
			req.RemoteAddr = tt.remote
			req.Header.Set("X-Forwarded-For", `"198.51.100.30:5000"`)
			if got := resolver.Resolve(req); got != tt.want {
				t.Fatalf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}
