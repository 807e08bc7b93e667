package constants

import "time"

const (
	// IDRandomBytes is the entropy of generated row IDs.
	IDRandomBytes = 12
	// TokenRandomBytes is the entropy of verification and reset tokens.
	TokenRandomBytes = 32

	DefaultVerificationTTL = 24 * time.Hour
	DefaultResetTTL        = time.Hour

	RecentUsersLimit    = 5
	RecentAttemptsLimit = 10
	UserDetailAttempts  = 20
	HistogramDays       = 7
)

// AllowedPageSizes are the per_page values accepted by admin listings.
var AllowedPageSizes = []int{25, 50, 100}

// Per-IP request throttles for the unauthenticated write endpoints.
const (
	ThrottleWindow  = time.Minute
	SignupThrottle  = 10
	ForgotThrottle  = 5
	ResendThrottle  = 5
	ContactThrottle = 5
)

// MaxRequestBodyBytes caps JSON request bodies.
const MaxRequestBodyBytes = 1 << 20
