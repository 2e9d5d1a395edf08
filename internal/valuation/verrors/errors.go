// Package verrors defines the valuation core's error-kind taxonomy.
// Components return these *Error values, directly or wrapped with %w, so
// callers can classify failures with Is without string matching.
package verrors

import "fmt"

// Kind classifies why a valuation operation failed. What matters is the
// distinction between kinds, not the exact names.
type Kind string

const (
	KindValidation              Kind = "validation_error"
	KindNotFound                Kind = "not_found"
	KindCurveUnavailable        Kind = "curve_unavailable"
	KindFxUnavailable           Kind = "fx_unavailable"
	KindProjectionUnsupported   Kind = "projection_unsupported"
	KindExternalProviderTimeout Kind = "external_provider_timeout"
	KindStoreTransient          Kind = "store_transient"
	KindCatastrophicStore       Kind = "catastrophic_store_failure"
	KindNoTargetsFound          Kind = "no_targets_found"
)

// Error carries a Kind alongside the usual message/wrapped-error pair.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a bare Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err (or anything it wraps) is a *Error of kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if ve, ok := err.(*Error); ok {
			if ve.Kind == kind {
				return true
			}
			err = ve.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func ValidationError(format string, args ...interface{}) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func CurveUnavailable(name, asOf string) *Error {
	return New(KindCurveUnavailable, fmt.Sprintf("curve %q unavailable as of %s", name, asOf))
}

func FxUnavailable(from, to, asOf string) *Error {
	return New(KindFxUnavailable, fmt.Sprintf("fx rate %s->%s unavailable as of %s", from, to, asOf))
}

func ProjectionUnsupported(instrumentType string) *Error {
	return New(KindProjectionUnsupported, fmt.Sprintf("no cash-flow engine for instrument type %q", instrumentType))
}

func ExternalProviderTimeout(provider string, err error) *Error {
	return Wrap(KindExternalProviderTimeout, fmt.Sprintf("external provider %q timed out", provider), err)
}

func StoreTransient(op string, err error) *Error {
	return Wrap(KindStoreTransient, fmt.Sprintf("transient store error during %s", op), err)
}

func CatastrophicStoreFailure(op string, err error) *Error {
	return Wrap(KindCatastrophicStore, fmt.Sprintf("store repeatedly failed during %s", op), err)
}

func NoTargetsFound(runType, targetID string) *Error {
	return New(KindNoTargetsFound, fmt.Sprintf("no securities found for %s target %q", runType, targetID))
}
