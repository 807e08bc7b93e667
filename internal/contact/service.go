// Package contact accepts public contact-form submissions and exposes the
// inbox to administrators.
package contact

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"gatehouse/internal/auth"
	"gatehouse/internal/db"
	"gatehouse/internal/models"
)

const (
	maxNameLength    = 100
	maxEmailLength   = 120
	maxSubjectLength = 200
)

// ErrStoreDisabled is returned by inbox updates when the service runs without a database.
var ErrStoreDisabled = errors.New("contact inbox unavailable")

type Submission struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// Service stores sanitized submissions. A nil repository puts it in log-only
// mode: submissions are accepted and logged but not persisted.
type Service struct {
	contacts *db.ContactRepository
	policy   *bluemonday.Policy
	validate *validator.Validate
	now      func() time.Time
}

func NewService(contacts *db.ContactRepository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		contacts: contacts,
		policy:   bluemonday.StrictPolicy(),
		validate: validator.New(),
		now:      now,
	}
}

// Submit sanitizes and validates s, then stores it unread. In log-only mode
// the returned submission is nil.
func (s *Service) Submit(ctx context.Context, sub Submission) (*models.ContactSubmission, error) {
	clean := Submission{
		Name:    s.sanitize(sub.Name),
		Email:   strings.ToLower(strings.TrimSpace(sub.Email)),
		Subject: s.sanitize(sub.Subject),
		Message: s.sanitize(sub.Message),
	}
	if err := s.check(clean); err != nil {
		return nil, err
	}

	if s.contacts == nil {
		slog.Info("contact submission received without store", "component", "contact",
			"email", clean.Email, "subject", clean.Subject)
		return nil, nil
	}

	c, err := s.contacts.Create(ctx, db.CreateContactParams{
		Name:      clean.Name,
		Email:     clean.Email,
		Subject:   clean.Subject,
		Message:   clean.Message,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, err
	}
	slog.Info("contact submission stored", "component", "contact", "id", c.ID)
	return c, nil
}

// sanitize strips markup and stores plain text. The policy escapes entities
// on the way out, so they are decoded again before length checks.
func (s *Service) sanitize(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(strings.TrimSpace(v))))
}

func (s *Service) check(sub Submission) error {
	fields := make(map[string]string)
	required := func(field, value string, limit int) {
		switch {
		case value == "":
			fields[field] = "is required"
		case limit > 0 && utf8.RuneCountInString(value) > limit:
			fields[field] = "is too long"
		}
	}

	required("name", sub.Name, maxNameLength)
	required("email", sub.Email, maxEmailLength)
	if _, bad := fields["email"]; !bad && s.validate.Var(sub.Email, "email") != nil {
		fields["email"] = "must be a valid email address"
	}
	required("subject", sub.Subject, maxSubjectLength)
	required("message", sub.Message, 0)

	if len(fields) > 0 {
		return &auth.ValidationError{Fields: fields}
	}
	return nil
}

// MarkRead flags a submission as read. Unknown ids surface as db.ErrNotFound.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	if s.contacts == nil {
		return ErrStoreDisabled
	}
	return s.contacts.MarkRead(ctx, id)
}
