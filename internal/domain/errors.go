package domain

import "errors"

// Error taxonomy (sentinels). Every component wraps one of these with %w and
// an "op=Component.Method" prefix rather than inventing ad-hoc error strings.
var (
	// ErrCaptchaWrong is raised when the portal rejects a solved CAPTCHA.
	ErrCaptchaWrong = errors.New("captcha rejected by portal")
	// ErrTimeout is raised by navigation or wait operations that exceed their deadline.
	ErrTimeout = errors.New("operation timed out")
	// ErrLoggedOut is raised when the portal reports a mid-session invalidation.
	ErrLoggedOut = errors.New("session logged out")
	// ErrUploadFailed is raised after the statement sink retry budget is exhausted.
	ErrUploadFailed = errors.New("statement upload failed")
	// ErrUnsupportedBank is returned when a bank label has no registered adapter.
	ErrUnsupportedBank = errors.New("unsupported bank")
	// ErrDuplicateAccountNumber is returned when a credential write would violate uniqueness.
	ErrDuplicateAccountNumber = errors.New("duplicate account number")
	// ErrDuplicateAlias is returned when AddCredential targets an alias that already exists.
	ErrDuplicateAlias = errors.New("duplicate alias")
	// ErrParseFailure marks a balance string that could not be parsed; handled silently by the monitor.
	ErrParseFailure = errors.New("balance parse failure")
	// ErrTransportFailure marks a Messenger send failure; retried, then dropped.
	ErrTransportFailure = errors.New("transport failure")
	// ErrConfigurationError is fatal at startup.
	ErrConfigurationError = errors.New("configuration error")
	// ErrAliasNotFound is returned by Registry/Store lookups for an unknown alias.
	ErrAliasNotFound = errors.New("alias not found")
	// ErrAliasAlreadyRunning is returned by StartWorker when a worker is already live.
	ErrAliasAlreadyRunning = errors.New("alias already running")
	// ErrNotRunning is an informational (non-fatal) condition for StopWorker/StatusScreenshot.
	ErrNotRunning = errors.New("alias not running")
	// ErrMissingField is returned when a required credential field is empty.
	ErrMissingField = errors.New("required field missing")
	// ErrNoNewTab is returned when the browser driver cannot produce a fresh tab during reset.
	ErrNoNewTab = errors.New("driver could not open a new tab")
)
