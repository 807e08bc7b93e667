package api

import (
	"net/http"

	"gatehouse/internal/auth"
	"gatehouse/internal/config"
)

// ServerInfoHandler tells clients what they need to render the forms: the
// service name, whether a captcha widget is required and with which site key.
type ServerInfoHandler struct {
	info ServerInfoResponse
}

func NewServerInfoHandler(cfg *config.Config) *ServerInfoHandler {
	info := ServerInfoResponse{
		Name:              cfg.Server.Name,
		DatabaseEnabled:   !cfg.Database.Disabled,
		CaptchaEnabled:    cfg.Captcha.Enabled,
		MinPasswordLength: auth.MinPasswordLength,
	}
	if cfg.Captcha.Enabled {
		info.CaptchaSiteKey = cfg.Captcha.SiteKey
	}
	return &ServerInfoHandler{info: info}
}

type ServerInfoResponse struct {
	Name              string `json:"name"`
	DatabaseEnabled   bool   `json:"databaseEnabled"`
	CaptchaEnabled    bool   `json:"captchaEnabled"`
	CaptchaSiteKey    string `json:"captchaSiteKey,omitempty"`
	MinPasswordLength int    `json:"minPasswordLength"`
}

// GET /server/info
func (h *ServerInfoHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.info)
}
