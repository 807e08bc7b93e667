package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenConsumed = errors.New("token already used")

	ErrCaptchaFailed   = errors.New("captcha verification failed")
	ErrServiceDisabled = errors.New("service temporarily disabled")
)

// ValidationError carries field-level messages for malformed input. It is
// returned before any store mutation begins.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// errOrNil returns e as an error only if it holds at least one field.
func (e *ValidationError) errOrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// LockedOutError reports that the source IP exceeded the failed-attempt
// budget for the current window.
type LockedOutError struct {
	Remaining time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("too many failed attempts, try again in %d minutes", e.Minutes())
}

// Minutes rounds the remaining lockout up to whole minutes, never below one.
func (e *LockedOutError) Minutes() int {
	if e.Remaining <= 0 {
		return 1
	}
	return int((e.Remaining + time.Minute - 1) / time.Minute)
}
