package ports

import "errors"

// Standard application-level errors.
// Packages wrap them with context via fmt.Errorf("...: %w", ...) and callers test with errors.Is.
var (
	// Simulation Errors
	ErrInvalidInput     = errors.New("invalid input")
	ErrDataError        = errors.New("malformed bar data")
	ErrInsufficientData = errors.New("insufficient data")

	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrNotFound           = errors.New("resource not found")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrInvalidRequest       = errors.New("invalid request parameters or format")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)
