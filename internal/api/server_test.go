package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gatehouse/internal/admin"
	"gatehouse/internal/auth"
	"gatehouse/internal/config"
	"gatehouse/internal/contact"
	"gatehouse/internal/db"
	"gatehouse/internal/email"
	"gatehouse/internal/models"
)

const strongPassword = "Tangerine-Violin-42!"

type recordingSender struct {
	mu   sync.Mutex
	sent []email.Message
}

func (s *recordingSender) Send(_ context.Context, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// lastToken returns the token from the newest email linking to path.
func (s *recordingSender) lastToken(t *testing.T, path string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if _, rest, ok := strings.Cut(s.sent[i].Body, path); ok {
			return strings.Fields(rest)[0]
		}
	}
	t.Fatalf("no email links to %s", path)
	return ""
}

type testEnv struct {
	server   *httptest.Server
	repos    *db.Repositories
	accounts *auth.Accounts
	sender   *recordingSender
}

func testConfig(disabled bool) *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Name: "Gatehouse", BaseURL: "https://gate.example.com"},
		Database: config.DatabaseConfig{Disabled: disabled},
		Auth: config.AuthConfig{
			SessionSecret:    "test-session-secret-0123456789abcdef",
			SessionTTL:       time.Hour,
			RememberMeTTL:    24 * time.Hour,
			MaxLoginAttempts: 5,
			LockoutMinutes:   15,
			VerificationTTL:  24 * time.Hour,
			ResetTTL:         time.Hour,
		},
	}
}

func newTestEnv(t *testing.T, disabled bool) *testEnv {
	t.Helper()

	cfg := testConfig(disabled)
	hasher := auth.NewPasswordHasher(auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	sessions := auth.NewSessionService(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL, cfg.Auth.RememberMeTTL, nil)
	sender := &recordingSender{}
	env := &testEnv{sender: sender}

	var database *db.DB
	var svc Services
	if disabled {
		gate, err := auth.NewGate(auth.GateConfig{Hasher: hasher, Disabled: true})
		if err != nil {
			t.Fatalf("NewGate() error = %v", err)
		}
		svc = Services{Gate: gate, Sessions: sessions, Contact: contact.NewService(nil, nil)}
	} else {
		database = openTestDB(t)
		repos := database.Repositories()
		issuer := func(ttl time.Duration) auth.IssuerConfig {
			return auth.IssuerConfig{TTL: ttl, BaseURL: cfg.Server.BaseURL, AppName: cfg.Server.Name}
		}
		verifications := auth.NewVerificationIssuer(database, repos, issuer(cfg.Auth.VerificationTTL))
		resets := auth.NewResetIssuer(database, repos, issuer(cfg.Auth.ResetTTL))
		gate, err := auth.NewGate(auth.GateConfig{
			Users:         repos.Users,
			Ledger:        auth.NewLedger(repos.LoginAttempts, cfg.Auth.MaxLoginAttempts, cfg.LockoutWindow(), nil),
			Verifications: verifications,
			Hasher:        hasher,
		})
		if err != nil {
			t.Fatalf("NewGate() error = %v", err)
		}
		accounts := auth.NewAccounts(auth.AccountsConfig{
			DB:            database,
			Users:         repos.Users,
			Verifications: verifications,
			Resets:        resets,
			Hasher:        hasher,
			Sender:        sender,
		})
		cleanup := db.NewCleanupService(repos, db.Retention{LoginAttemptDays: 30, VerificationDays: 7, ResetTokenDays: 7, ContactDays: 90})
		svc = Services{
			Gate:     gate,
			Accounts: accounts,
			Sessions: sessions,
			Admin:    admin.NewService(repos, cleanup, nil),
			Contact:  contact.NewService(repos.Contacts, nil),
		}
		env.repos = repos
		env.accounts = accounts
	}

	server, err := NewServer(cfg, database, svc)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	env.server = httptest.NewServer(server)
	t.Cleanup(env.server.Close)
	return env
}

func openTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// client returns a cookie-keeping client, one per simulated browser.
func (e *testEnv) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}
	return &http.Client{Jar: jar}
}

func (e *testEnv) do(t *testing.T, c *http.Client, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("http.NewRequest() error = %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body error = %v", err)
	}
	return resp.StatusCode, data
}

func errorCode(t *testing.T, body []byte) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, body=%q", err, body)
	}
	return resp.Error
}

func (e *testEnv) verifiedUser(t *testing.T, username string, isAdmin bool) *models.User {
	t.Helper()
	user, err := e.accounts.CreateVerifiedUser(context.Background(), auth.SignupRequest{
		Username:        username,
		Email:           username + "@example.com",
		Password:        strongPassword,
		ConfirmPassword: strongPassword,
	}, isAdmin)
	if err != nil {
		t.Fatalf("CreateVerifiedUser() error = %v", err)
	}
	return user
}

func (e *testEnv) login(t *testing.T, c *http.Client, identifier string) {
	t.Helper()
	status, body := e.do(t, c, http.MethodPost, "/auth/login", map[string]any{
		"identifier": identifier,
		"password":   strongPassword,
	})
	if status != http.StatusOK {
		t.Fatalf("login status = %d, want %d, body=%q", status, http.StatusOK, body)
	}
}
