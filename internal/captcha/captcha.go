// Package captcha checks bot-challenge responses against an hCaptcha
// compatible siteverify endpoint.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gatehouse/internal/config"
)

const verifyTimeout = 10 * time.Second

type Verifier interface {
	Verify(ctx context.Context, response, remoteIP string) (bool, error)
}

// Disabled accepts every response. It is used when captcha is turned off.
type Disabled struct{}

func (Disabled) Verify(context.Context, string, string) (bool, error) {
	return true, nil
}

type HCaptcha struct {
	secret    string
	verifyURL string
	client    *http.Client
}

func NewHCaptcha(secret, verifyURL string, client *http.Client) *HCaptcha {
	if client == nil {
		client = &http.Client{Timeout: verifyTimeout}
	}
	return &HCaptcha{secret: secret, verifyURL: verifyURL, client: client}
}

// New returns the verifier matching cfg.
func New(cfg config.CaptchaConfig) Verifier {
	if !cfg.Enabled {
		return Disabled{}
	}
	return NewHCaptcha(cfg.SecretKey, cfg.VerifyURL, nil)
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify reports whether the challenge response passed. An empty response
// fails without a network call.
func (h *HCaptcha) Verify(ctx context.Context, response, remoteIP string) (bool, error) {
	if strings.TrimSpace(response) == "" {
		return false, nil
	}

	form := url.Values{
		"secret":   {h.secret},
		"response": {response},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("building siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("calling siteverify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("siteverify returned status %d", resp.StatusCode)
	}

	var result siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decoding siteverify response: %w", err)
	}
	if !result.Success {
		slog.Info("captcha rejected", "component", "captcha", "error_codes", result.ErrorCodes)
	}

	return result.Success, nil
}
