package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"gatehouse/internal/admin"
	"gatehouse/internal/contact"
	"gatehouse/internal/db"
)

type AdminHandler struct {
	admin    *admin.Service
	contacts *contact.Service
	now      func() time.Time
}

func NewAdminHandler(svc *admin.Service, contacts *contact.Service, now func() time.Time) *AdminHandler {
	if now == nil {
		now = time.Now
	}
	return &AdminHandler{admin: svc, contacts: contacts, now: now}
}

// GET /admin/
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.admin.Dashboard(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

// GET /admin/api/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	days, err := h.admin.AttemptHistogram(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":     stats,
		"histogram": days,
	})
}

// GET /admin/users?search=&status=&page=&per_page=
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.admin.ListUsers(r.Context(), q.Get("search"), db.UserStatus(q.Get("status")), pagination(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GET /admin/users/{id}
func (h *AdminHandler) UserDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.admin.UserDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// POST /admin/users/{id}/toggle-active
func (h *AdminHandler) ToggleActive(w http.ResponseWriter, r *http.Request) {
	active, err := h.admin.ToggleActive(r.Context(), *GetIdentity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

// POST /admin/users/{id}/toggle-admin
func (h *AdminHandler) ToggleAdmin(w http.ResponseWriter, r *http.Request) {
	isAdmin, err := h.admin.ToggleAdmin(r.Context(), *GetIdentity(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isAdmin": isAdmin})
}

// POST /admin/cleanup
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	report, err := h.admin.Cleanup(r.Context(), *GetIdentity(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"removed": report,
		"total":   report.Total(),
	})
}

// GET /admin/logs/{type}
func (h *AdminHandler) Logs(w http.ResponseWriter, r *http.Request) {
	logType, err := admin.ParseLogType(chi.URLParam(r, "type"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.writeLogPage(w, r, logType)
}

// GET /admin/logs/{type}/export
func (h *AdminHandler) ExportLogs(w http.ResponseWriter, r *http.Request) {
	logType, err := admin.ParseLogType(chi.URLParam(r, "type"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", admin.ExportFilename(logType, h.now())))
	if err := h.admin.ExportCSV(r.Context(), logType, w); err != nil {
		// Headers are already out; all that is left is to log.
		slog.Error("error exporting logs", "component", "api", "type", logType, "error", err)
	}
}

// GET /admin/contacts
func (h *AdminHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	h.writeLogPage(w, r, admin.LogContactSubmissions)
}

// POST /admin/contacts/{id}/read
func (h *AdminHandler) MarkContactRead(w http.ResponseWriter, r *http.Request) {
	if err := h.contacts.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isRead": true})
}

func (h *AdminHandler) writeLogPage(w http.ResponseWriter, r *http.Request, logType admin.LogType) {
	page, err := h.admin.ListLogs(r.Context(), logType, pagination(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// pagination reads page and per_page. Unparseable values fall back to the
// service defaults.
func pagination(r *http.Request) admin.Pagination {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return admin.Pagination{Page: page, PerPage: perPage}
}
