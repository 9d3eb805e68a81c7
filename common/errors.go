package common

import (
	"errors"
	"fmt"
)

// Category classifies an error per the engine's error-handling design:
// each category has its own transport representation and its own policy
// for whether the enclosing task or handler aborts, and what gets logged.
type Category int

const (
	// Validation: client input did not match a schema. Reported to the
	// client as "info" {text:"WRONG_DATA"}; no mutation persists.
	Validation Category = iota
	// Access: client is in the wrong authentication state, e.g. not
	// logged in. Reported as "info" with the specific reason.
	Access
	// Limit: a per-socket rate limit was exceeded. Reported as "info"
	// {text:"LIMIT_REACHED"}.
	Limit
	// NotFound: an entity lookup failed. Carries a semantic reason
	// string (e.g. "AUTH_USER_NOT_FOUND").
	NotFound
	// Storage: a DB query failed. Logged with the offending SQL; the
	// enclosing task aborts but the scheduler keeps running.
	Storage
	// Configuration: inconsistent sync declarations or similar. Fatal
	// at startup.
	Configuration
	// Unknown: anything else that escapes a handler unexpectedly.
	Unknown
)

func (c Category) String() string {
	switch c {
	case Validation:
		return "validation"
	case Access:
		return "access"
	case Limit:
		return "limit"
	case NotFound:
		return "not_found"
	case Storage:
		return "storage"
	case Configuration:
		return "configuration"
	default:
		return "unknown"
	}
}

// EngineError is a taxonomy-tagged error. Reason is the localized-message
// key sent to the client for client-visible categories (Validation,
// Access, Limit, NotFound); it is ignored for Storage/Configuration/
// Unknown, which are logged instead of surfaced verbatim.
type EngineError struct {
	Category Category
	Reason   string
	Err      error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Reason)
}

func (e *EngineError) Unwrap() error { return e.Err }

func NewError(cat Category, reason string) *EngineError {
	return &EngineError{Category: cat, Reason: reason}
}

func WrapError(cat Category, reason string, err error) *EngineError {
	return &EngineError{Category: cat, Reason: reason, Err: err}
}

func ValidationError(reason string) *EngineError    { return NewError(Validation, reason) }
func AccessError(reason string) *EngineError        { return NewError(Access, reason) }
func LimitError() *EngineError                      { return NewError(Limit, "LIMIT_REACHED") }
func NotFoundError(reason string) *EngineError       { return NewError(NotFound, reason) }
func StorageError(reason string, err error) *EngineError {
	return WrapError(Storage, reason, err)
}
func ConfigurationError(reason string) *EngineError { return NewError(Configuration, reason) }
func UnknownError(err error) *EngineError           { return WrapError(Unknown, "UNKNOWN_ERROR", err) }

// AsEngineError unwraps err into an *EngineError if it is (or wraps) one,
// otherwise classifies it as Unknown.
func AsEngineError(err error) *EngineError {
	if err == nil {
		return nil
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	return UnknownError(err)
}
