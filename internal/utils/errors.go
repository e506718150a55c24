package utils

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for presentation purposes.
type Kind string

const (
	// KindValidation marks errors caught locally before any network call.
	KindValidation Kind = "validation"
	// KindAuth marks authentication failures (bad credentials, no session).
	KindAuth Kind = "auth"
	// KindStore marks network or query failures from the remote row store.
	KindStore Kind = "store"
	// KindConfig marks configuration problems detected at startup.
	KindConfig Kind = "config"
)

// ErrorWithSuggestion wraps an error with its kind and a user-friendly
// suggestion.
type ErrorWithSuggestion struct {
	Kind       Kind
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// KindOf returns the kind of err, or "" when it carries none.
func KindOf(err error) Kind {
	var e *ErrorWithSuggestion
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsAuth reports whether err is an authentication error.
func IsAuth(err error) bool { return KindOf(err) == KindAuth }

// IsStore reports whether err is a remote store error.
func IsStore(err error) bool { return KindOf(err) == KindStore }

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool { return KindOf(err) == KindConfig }

// ErrEmptyTitle returns a validation error for a missing task title.
func ErrEmptyTitle() error {
	return &ErrorWithSuggestion{
		Kind:       KindValidation,
		Err:        errors.New("title must not be empty"),
		Suggestion: "Provide a task title, e.g. 'taskdeck add \"Buy milk\"'",
	}
}

// ErrInvalidDate returns a validation error for an invalid date string.
func ErrInvalidDate(dateStr string) error {
	return &ErrorWithSuggestion{
		Kind:       KindValidation,
		Err:        fmt.Errorf("invalid date: %s", dateStr),
		Suggestion: "Use date format YYYY-MM-DD (e.g., 2026-01-15) or a relative form like +7d",
	}
}

// ErrInvalidStatus returns a validation error for an invalid status value.
func ErrInvalidStatus(status string, valid []string) error {
	return &ErrorWithSuggestion{
		Kind:       KindValidation,
		Err:        fmt.Errorf("invalid status: %s", status),
		Suggestion: fmt.Sprintf("Valid options: %s", strings.Join(valid, ", ")),
	}
}

// ErrTaskNotFound returns an error for when a task is not found.
func ErrTaskNotFound(searchTerm string) error {
	return &ErrorWithSuggestion{
		Kind:       KindStore,
		Err:        fmt.Errorf("task not found: %s", searchTerm),
		Suggestion: "Check the id or use 'taskdeck list' to see all tasks",
	}
}

// ErrNotSignedIn returns an auth error for operations that need a session.
func ErrNotSignedIn() error {
	return &ErrorWithSuggestion{
		Kind:       KindAuth,
		Err:        errors.New("not signed in"),
		Suggestion: "Run 'taskdeck login' to sign in",
	}
}

// ErrAuthenticationFailed returns an auth error with the backend's detail.
func ErrAuthenticationFailed(detail string) error {
	return &ErrorWithSuggestion{
		Kind:       KindAuth,
		Err:        fmt.Errorf("authentication failed: %s", detail),
		Suggestion: "Verify your email and password are correct",
	}
}

// ErrSessionExpired returns an auth error for an expired session.
func ErrSessionExpired() error {
	return &ErrorWithSuggestion{
		Kind:       KindAuth,
		Err:        errors.New("session expired"),
		Suggestion: "Run 'taskdeck login' to sign in again",
	}
}

// ErrStoreOffline returns a store error with a context-aware suggestion.
func ErrStoreOffline(reason string) error {
	return &ErrorWithSuggestion{
		Kind:       KindStore,
		Err:        fmt.Errorf("store unreachable: %s", reason),
		Suggestion: getSmartSuggestion(reason),
	}
}

// ErrStoreStatus returns a store error for an unexpected HTTP status.
func ErrStoreStatus(op string, status int, detail string) error {
	err := fmt.Errorf("%s failed: status %d", op, status)
	if detail != "" {
		err = fmt.Errorf("%s failed: status %d: %s", op, status, detail)
	}
	return &ErrorWithSuggestion{
		Kind:       KindStore,
		Err:        err,
		Suggestion: "The request was rejected by the store. Retry, or check the server logs",
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and internet connection"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the server is running and accessible"
	}

	if strings.Contains(lowerReason, "timeout") || strings.Contains(lowerReason, "i/o timeout") {
		return "The server may be slow or unreachable. Try again later"
	}

	return "Check your internet connection and try again"
}

// ErrInvalidStoreURL returns a config error for a malformed store URL.
func ErrInvalidStoreURL(rawURL string) error {
	return &ErrorWithSuggestion{
		Kind:       KindConfig,
		Err:        fmt.Errorf("invalid store URL: %q", rawURL),
		Suggestion: "Set store.url in your config file or TASKDECK_SUPABASE_URL to a valid URL",
	}
}

// ErrMissingAnonKey returns a config error for a missing API key.
func ErrMissingAnonKey() error {
	return &ErrorWithSuggestion{
		Kind:       KindConfig,
		Err:        errors.New("store anon key is not configured"),
		Suggestion: "Set store.anon_key in your config file or TASKDECK_SUPABASE_ANON_KEY",
	}
}

// ErrCredentialsNotFound returns an error when stored credentials are missing.
func ErrCredentialsNotFound(account string) error {
	return &ErrorWithSuggestion{
		Kind:       KindAuth,
		Err:        fmt.Errorf("no stored session for %s", account),
		Suggestion: "Run 'taskdeck login' to sign in",
	}
}
