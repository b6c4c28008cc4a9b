// Package errors provides the closed error taxonomy used across the engine.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies the failure class of an error. The set is closed:
// callers switch on kinds instead of matching error strings.
type Kind string

// Error kinds.
const (
	KindStorage        Kind = "storage"
	KindVectorIndex    Kind = "vector_index"
	KindPersistence    Kind = "persistence"
	KindEmbedding      Kind = "embedding"
	KindNetwork        Kind = "network"
	KindValidation     Kind = "validation"
	KindConfiguration  Kind = "configuration"
	KindAuthentication Kind = "authentication"
	KindQuota          Kind = "quota"
	KindRateLimit      Kind = "rate_limit"
	KindTimeout        Kind = "timeout"
	KindWorker         Kind = "worker"
	KindUnknown        Kind = "unknown"
)

// Severity grades how serious an error is for operators.
type Severity string

// Severity levels.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// kindProfile holds the per-kind defaults applied at construction time.
type kindProfile struct {
	severity    Severity
	recoverable bool
	userMessage string
	suggestion  string
}

var kindProfiles = map[Kind]kindProfile{
	KindStorage:        {SeverityHigh, false, "The document store is unavailable.", "Check the storage engine and retry."},
	KindVectorIndex:    {SeverityHigh, true, "Vector search is temporarily degraded.", "Retry; lexical search remains available."},
	KindPersistence:    {SeverityHigh, false, "Saving data failed.", "Check disk space and storage health."},
	KindEmbedding:      {SeverityMedium, true, "Embedding generation failed.", "The item will be retried automatically."},
	KindNetwork:        {SeverityMedium, true, "A network error occurred.", "Check connectivity and retry."},
	KindValidation:     {SeverityLow, false, "The request was invalid.", "Correct the input and retry."},
	KindConfiguration:  {SeverityHigh, false, "The service is misconfigured.", "Review the collection or provider configuration."},
	KindAuthentication: {SeverityHigh, false, "Authentication with the provider failed.", "Verify the configured API key."},
	KindQuota:          {SeverityMedium, true, "The provider quota was exhausted.", "Wait for the quota window to reset."},
	KindRateLimit:      {SeverityLow, true, "Too many requests.", "Slow down and retry after the indicated delay."},
	KindTimeout:        {SeverityMedium, true, "The operation timed out.", "Retry; consider raising the timeout."},
	KindWorker:         {SeverityHigh, true, "A background worker failed.", "The operation will be retried."},
	KindUnknown:        {SeverityMedium, false, "An unexpected error occurred.", "Check the logs for details."},
}

// Error is the structured error carried through the engine.
type Error struct {
	Kind        Kind           `json:"kind"`
	Message     string         `json:"message"`
	Severity    Severity       `json:"severity"`
	Recoverable bool           `json:"recoverable"`
	UserMessage string         `json:"user_message"`
	Suggestion  string         `json:"suggestion"`
	RetryAfter  time.Duration  `json:"retry_after,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	Err         error          `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind with per-kind defaults applied.
func New(kind Kind, message string) *Error {
	p, ok := kindProfiles[kind]
	if !ok {
		kind = KindUnknown
		p = kindProfiles[KindUnknown]
	}
	return &Error{
		Kind:        kind,
		Message:     message,
		Severity:    p.severity,
		Recoverable: p.recoverable,
		UserMessage: p.userMessage,
		Suggestion:  p.suggestion,
	}
}

// Wrap creates an Error of the given kind wrapping a cause.
func Wrap(kind Kind, message string, err error) *Error {
	e := New(kind, message)
	e.Err = err
	return e
}

// WithContext attaches a single context value to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryAfter records the delay after which a retry may succeed.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	e.RetryAfter = d
	return e
}

// WithSeverity overrides the default severity for this error.
func (e *Error) WithSeverity(s Severity) *Error {
	e.Severity = s
	return e
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the operation that produced err may be
// retried. Validation, configuration and authentication failures are
// always terminal.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout, KindQuota, KindRateLimit, KindWorker, KindVectorIndex, KindEmbedding:
		return true
	default:
		return false
	}
}

// RetryAfterOf returns the retry-after hint carried by err, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}

// As is a convenience re-export so callers need only this package.
func As(err error, target any) bool {
	return errors.As(err, target)
}
