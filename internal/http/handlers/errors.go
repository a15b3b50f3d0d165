package handlers

// Stable error codes carried in ErrorResponse.Code. Generic codes follow the
// HTTP status; the rest name barrier and whitelist failures that a status
// alone cannot distinguish (a 502 from a dead controller vs. a dead source).
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	ErrCodePulseFailed   = "pulse_failed"
	ErrCodeRefreshFailed = "refresh_failed"
	ErrCodeListFailed    = "list_failed"
)
