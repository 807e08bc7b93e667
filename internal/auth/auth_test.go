package auth

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gatehouse/internal/db"
	"gatehouse/internal/email"
	"gatehouse/internal/models"
)

const strongPassword = "Tangerine-Violin-42!"

var testArgon2Params = Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSender struct {
	mu   sync.Mutex
	sent []email.Message
	fail bool
}

func (s *recordingSender) Send(_ context.Context, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return &email.TransportError{To: msg.To, Err: email.ErrNotConfigured}
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) last(t *testing.T) email.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatal("no email was sent")
	}
	return s.sent[len(s.sent)-1]
}

type fakeCaptcha struct {
	pass  bool
	calls int
}

func (f *fakeCaptcha) Verify(context.Context, string, string) (bool, error) {
	f.calls++
	return f.pass, nil
}

type fixture struct {
	db            *db.DB
	repos         *db.Repositories
	clock         *testClock
	hasher        *PasswordHasher
	ledger        *Ledger
	verifications *VerificationIssuer
	resets        *ResetIssuer
	accounts      *Accounts
	sender        *recordingSender
	captcha       *fakeCaptcha
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	repos := database.Repositories()
	clock := newTestClock()
	hasher := NewPasswordHasher(testArgon2Params)
	sender := &recordingSender{}

	issuerCfg := func(ttl time.Duration) IssuerConfig {
		return IssuerConfig{TTL: ttl, BaseURL: "https://gate.example.com/", AppName: "Gatehouse", Now: clock.Now}
	}
	verifications := NewVerificationIssuer(database, repos, issuerCfg(24*time.Hour))
	resets := NewResetIssuer(database, repos, issuerCfg(time.Hour))

	return &fixture{
		db:            database,
		repos:         repos,
		clock:         clock,
		hasher:        hasher,
		ledger:        NewLedger(repos.LoginAttempts, 5, 15*time.Minute, clock.Now),
		verifications: verifications,
		resets:        resets,
		accounts: NewAccounts(AccountsConfig{
			DB:            database,
			Users:         repos.Users,
			Verifications: verifications,
			Resets:        resets,
			Hasher:        hasher,
			Sender:        sender,
			Now:           clock.Now,
		}),
		sender:  sender,
		captcha: &fakeCaptcha{pass: true},
	}
}

func (f *fixture) gate(t *testing.T, disabled bool) *Gate {
	t.Helper()

	g, err := NewGate(GateConfig{
		Users:         f.repos.Users,
		Ledger:        f.ledger,
		Verifications: f.verifications,
		Hasher:        f.hasher,
		Captcha:       f.captcha,
		Disabled:      disabled,
		Now:           f.clock.Now,
	})
	if err != nil {
		t.Fatalf("NewGate() error = %v", err)
	}
	return g
}

// signup creates a user through the normal flow and returns it unverified.
func (f *fixture) signup(t *testing.T, username, address string) *models.User {
	t.Helper()

	res, err := f.accounts.Signup(context.Background(), SignupRequest{
		Username:        username,
		Email:           address,
		Password:        strongPassword,
		ConfirmPassword: strongPassword,
	})
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	return res.User
}

// verifiedUser creates a user whose email already counts as verified.
func (f *fixture) verifiedUser(t *testing.T, username, address string) *models.User {
	t.Helper()

	user, err := f.accounts.CreateVerifiedUser(context.Background(), SignupRequest{
		Username:        username,
		Email:           address,
		Password:        strongPassword,
		ConfirmPassword: strongPassword,
	}, false)
	if err != nil {
		t.Fatalf("CreateVerifiedUser() error = %v", err)
	}
	return user
}

func (f *fixture) attemptCount(t *testing.T) int {
	t.Helper()

	count, err := f.repos.LoginAttempts.CountAll(context.Background())
	if err != nil {
		t.Fatalf("CountAll() error = %v", err)
	}
	return count
}

// linkToken extracts the token that follows path in an email body.
func linkToken(t *testing.T, body, path string) string {
	t.Helper()

	_, rest, ok := strings.Cut(body, path)
	if !ok {
		t.Fatalf("body %q has no %s link", body, path)
	}
	return strings.Fields(rest)[0]
}
