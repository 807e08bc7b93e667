package auth

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/nbutton23/zxcvbn-go"
)

const (
	MinPasswordLength = 8
	MinPasswordScore  = 2
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)
	fieldValidator  = validator.New()
)

// NormalizeUsername and NormalizeEmail produce the case-folded form that is
// stored and compared. Both stores and lookups go through them.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeIdentifier folds a login identifier, which may be a username or an email.
func NormalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func checkUsername(v *ValidationError, username string) {
	if !usernamePattern.MatchString(username) {
		v.add("username", "must be 3-30 characters of lowercase letters, digits or underscore")
	}
}

func checkEmail(v *ValidationError, email string) {
	if email == "" {
		v.add("email", "is required")
		return
	}
	if len(email) > 120 || fieldValidator.Var(email, "email") != nil {
		v.add("email", "must be a valid email address")
	}
}

// checkPassword applies the composition rules and a zxcvbn strength floor.
// The username and email local part are fed to zxcvbn so passwords built
// from them score low.
func checkPassword(v *ValidationError, field, password, confirm, username, email string) {
	if len(password) < MinPasswordLength {
		v.add(field, "must be at least 8 characters")
		return
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	switch {
	case !upper:
		v.add(field, "must contain an uppercase letter")
	case !lower:
		v.add(field, "must contain a lowercase letter")
	case !digit:
		v.add(field, "must contain a digit")
	case !special:
		v.add(field, "must contain a special character")
	}

	inputs := []string{}
	if username != "" {
		inputs = append(inputs, username)
	}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		inputs = append(inputs, local)
	}
	if zxcvbn.PasswordStrength(password, inputs).Score < MinPasswordScore {
		v.add(field, "is too easy to guess")
	}

	if password != confirm {
		v.add("confirm_password", "does not match")
	}
}

// ValidateSignup checks already-normalized signup fields.
func ValidateSignup(username, email, password, confirm string) error {
	var v ValidationError
	checkUsername(&v, username)
	checkEmail(&v, email)
	checkPassword(&v, "password", password, confirm, username, email)
	return v.errOrNil()
}

// ValidateNewPassword checks a replacement password for an existing account.
func ValidateNewPassword(password, confirm, username, email string) error {
	var v ValidationError
	checkPassword(&v, "password", password, confirm, username, email)
	return v.errOrNil()
}
