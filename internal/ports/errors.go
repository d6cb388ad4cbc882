package ports

import "errors"

// Standard application-level errors.
// Adapters and engine components wrap underlying errors with these standard
// errors so callers can classify failures without string matching.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Simulation Errors
	ErrInsufficientData = errors.New("not enough historical bars for the requested operation")
	ErrProviderFailed   = errors.New("signal provider failed")
	ErrAllTrialsFailed  = errors.New("all simulation trials failed")

	// Market Data Errors
	ErrExchangeUnavailable = errors.New("exchange API is unavailable")
	ErrConnectionFailed    = errors.New("failed to connect to the exchange")
	ErrRateLimited         = errors.New("API rate limit exceeded")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)
