package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t, false)
	env.verifiedUser(t, "erin", false)

	status, body := env.do(t, env.client(t), http.MethodGet, "/admin/", nil)
	if status != http.StatusUnauthorized || errorCode(t, body).Code != ErrCodeUnauthorized {
		t.Fatalf("anonymous = %d %q, want 401", status, body)
	}

	browser := env.client(t)
	env.login(t, browser, "erin")
	status, body = env.do(t, browser, http.MethodGet, "/admin/", nil)
	if status != http.StatusForbidden || errorCode(t, body).Code != ErrCodeForbidden {
		t.Fatalf("non-admin = %d %q, want 403", status, body)
	}
}

func TestAdminToggleAndSelfModification(t *testing.T) {
	env := newTestEnv(t, false)
	root := env.verifiedUser(t, "root", true)
	frank := env.verifiedUser(t, "frank", false)

	adminBrowser := env.client(t)
	env.login(t, adminBrowser, "root")
	frankBrowser := env.client(t)
	env.login(t, frankBrowser, "frank")

	status, body := env.do(t, adminBrowser, http.MethodPost, "/admin/users/"+root.ID+"/toggle-active", nil)
	if status != http.StatusForbidden || errorCode(t, body).Code != ErrCodeSelfModification {
		t.Fatalf("self toggle = %d %q, want 403 %s", status, body, ErrCodeSelfModification)
	}

	status, body = env.do(t, adminBrowser, http.MethodPost, "/admin/users/"+frank.ID+"/toggle-active", nil)
	if status != http.StatusOK {
		t.Fatalf("toggle status = %d, body=%q", status, body)
	}
	var toggled map[string]bool
	if err := json.Unmarshal(body, &toggled); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if toggled["active"] {
		t.Fatalf("active = %v, want false", toggled["active"])
	}

	// Deactivation ends frank's existing session on the next request.
	status, _ = env.do(t, frankBrowser, http.MethodGet, "/profile", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("deactivated profile status = %d, want %d", status, http.StatusUnauthorized)
	}

	status, _ = env.do(t, adminBrowser, http.MethodPost, "/admin/users/usr_missing/toggle-admin", nil)
	if status != http.StatusNotFound {
		t.Fatalf("missing user toggle status = %d, want %d", status, http.StatusNotFound)
	}
}

func TestAdminListingsAndStats(t *testing.T) {
	env := newTestEnv(t, false)
	env.verifiedUser(t, "root", true)
	env.verifiedUser(t, "grace", false)
	browser := env.client(t)
	env.login(t, browser, "root")

	status, body := env.do(t, browser, http.MethodGet, "/admin/users?search=gra&per_page=7", nil)
	if status != http.StatusOK {
		t.Fatalf("list status = %d, body=%q", status, body)
	}
	var list struct {
		Users []struct {
			Username string `json:"username"`
		} `json:"users"`
		PerPage int `json:"perPage"`
		Total   int `json:"total"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if list.Total != 1 || len(list.Users) != 1 || list.Users[0].Username != "grace" {
		t.Fatalf("list = %+v, want only grace", list)
	}
	if list.PerPage != 25 {
		t.Fatalf("perPage = %d, want fallback 25", list.PerPage)
	}

	status, body = env.do(t, browser, http.MethodGet, "/admin/api/stats", nil)
	if status != http.StatusOK {
		t.Fatalf("stats status = %d, body=%q", status, body)
	}
	var stats struct {
		Stats struct {
			TotalUsers      int `json:"totalUsers"`
			AdminUsers      int `json:"adminUsers"`
			AttemptsLast24h int `json:"attemptsLast24h"`
		} `json:"stats"`
		Histogram []struct {
			Date  string `json:"date"`
			Total int    `json:"total"`
		} `json:"histogram"`
	}
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if stats.Stats.TotalUsers != 2 || stats.Stats.AdminUsers != 1 || stats.Stats.AttemptsLast24h != 1 {
		t.Fatalf("stats = %+v, want 2 users, 1 admin, 1 attempt", stats.Stats)
	}
	if len(stats.Histogram) != 7 || stats.Histogram[6].Total != 1 {
		t.Fatalf("histogram = %+v, want 7 days with today's login", stats.Histogram)
	}

	status, body = env.do(t, browser, http.MethodGet, "/admin/logs/nonsense", nil)
	if status != http.StatusNotFound {
		t.Fatalf("unknown log type status = %d, body=%q", status, body)
	}
}

func TestAdminExportCSV(t *testing.T) {
	env := newTestEnv(t, false)
	env.verifiedUser(t, "root", true)
	browser := env.client(t)
	env.login(t, browser, "root")

	resp, err := browser.Get(env.server.URL + "/admin/logs/login_attempts/export")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("Content-Type = %q, want text/csv", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "login_attempts_") {
		t.Fatalf("Content-Disposition = %q, want login_attempts filename", cd)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, want header plus one attempt:\n%s", len(lines), data)
	}
}

func TestContactIntakeAndInbox(t *testing.T) {
	env := newTestEnv(t, false)
	env.verifiedUser(t, "root", true)

	status, body := env.do(t, env.client(t), http.MethodPost, "/contact", map[string]any{
		"name": "Heidi", "email": "heidi@example.com", "subject": "Hi", "message": "<b>Hello</b>",
	})
	if status != http.StatusCreated {
		t.Fatalf("contact status = %d, body=%q", status, body)
	}

	browser := env.client(t)
	env.login(t, browser, "root")
	status, body = env.do(t, browser, http.MethodGet, "/admin/contacts", nil)
	if status != http.StatusOK {
		t.Fatalf("contacts status = %d, body=%q", status, body)
	}
	var page struct {
		Entries []struct {
			ID      string `json:"id"`
			Message string `json:"message"`
			IsRead  bool   `json:"isRead"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if len(page.Entries) != 1 || page.Entries[0].Message != "Hello" || page.Entries[0].IsRead {
		t.Fatalf("entries = %+v, want one unread sanitized message", page.Entries)
	}

	status, body = env.do(t, browser, http.MethodPost, "/admin/contacts/"+page.Entries[0].ID+"/read", nil)
	if status != http.StatusOK {
		t.Fatalf("mark read status = %d, body=%q", status, body)
	}
}
