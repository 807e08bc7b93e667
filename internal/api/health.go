package api

import (
	"context"
	"net/http"
	"time"

	"gatehouse/internal/db"
)

const healthPingTimeout = 2 * time.Second

type HealthHandler struct {
	database *db.DB
}

// NewHealthHandler reports on database. A nil database means the store was
// switched off in config, which is not a failure.
func NewHealthHandler(database *db.DB) *HealthHandler {
	return &HealthHandler{database: database}
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	store := h.storeStatus(r.Context())

	resp := HealthResponse{Status: "ok", Checks: map[string]string{"database": store}}
	code := http.StatusOK
	if store == "error" {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (h *HealthHandler) storeStatus(ctx context.Context) string {
	if h.database == nil {
		return "disabled"
	}
	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()
	if err := h.database.PingContext(ctx); err != nil {
		return "error"
	}
	return "ok"
}
