package constants

const (
	// Shared transport-agnostic errors
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeServiceDisabled  = "SERVICE_DISABLED"
	ErrCodeCaptchaFailed    = "CAPTCHA_FAILED"

	// Login / token domain errors
	ErrCodeLockedOut     = "LOCKED_OUT"
	ErrCodeUnverified    = "EMAIL_UNVERIFIED"
	ErrCodeTokenInvalid  = "TOKEN_INVALID"
	ErrCodeTokenExpired  = "TOKEN_EXPIRED"
	ErrCodeTokenConsumed = "TOKEN_ALREADY_USED"
	ErrCodeSelfModify    = "SELF_MODIFICATION"
)
