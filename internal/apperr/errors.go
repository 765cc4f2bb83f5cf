// Package apperr defines the error taxonomy shared across the pipeline:
// a small set of error kinds (not concrete types) that callers switch on
// to decide whether to retry, skip, or abort. Every core operation
// returns (T, error) rather than panicking across package boundaries.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation-policy decisions.
type Kind int

const (
	// KindUnknown is the zero value; never intentionally returned.
	KindUnknown Kind = iota
	// KindTransientExternal covers network timeouts and 429/5xx from an
	// external dependency (LLM provider, database). Recovered internally
	// via retry with backoff.
	KindTransientExternal
	// KindRateLimitBlocked indicates the LLM provider signalled a rate
	// limit with an explicit Retry-After; the caller should sleep exactly
	// that duration plus jitter.
	KindRateLimitBlocked
	// KindValidationFailure covers malformed LLM output or a violated
	// invariant (null nucleus, salience out of range).
	KindValidationFailure
	// KindIntegrityConflict covers a unique-index violation, e.g. two
	// cluster cycles racing to create a narrative for the same nucleus.
	KindIntegrityConflict
	// KindPermanentConfig covers missing API keys, bad DSNs, malformed
	// configuration. Fails loudly at startup; re-raised to the job
	// boundary at runtime.
	KindPermanentConfig
	// KindUserInput covers invalid HTTP query parameters.
	KindUserInput
)

func (k Kind) String() string {
	switch k {
	case KindTransientExternal:
		return "transient_external"
	case KindRateLimitBlocked:
		return "rate_limit_blocked"
	case KindValidationFailure:
		return "validation_failure"
	case KindIntegrityConflict:
		return "integrity_conflict"
	case KindPermanentConfig:
		return "permanent_config"
	case KindUserInput:
		return "user_input"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind and the operation name that
// produced it, so callers up the stack can branch on Kind via errors.As
// without string-matching messages.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error for the given kind and operation.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, returning KindUnknown if err does not
// wrap an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
