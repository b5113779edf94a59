// Package rdperror implements the error taxonomy the Connector and
// Active Stage use to classify every fallible operation: a closed set
// of Kinds plus a chain-carrying Error that still works with errors.Is
// and errors.As, because both engines need to branch on Kind
// programmatically (fatal vs. drop-and-continue) rather than compare
// against specific sentinel values.
package rdperror

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error categories.
type Kind int

const (
	// Parse covers malformed bytes, wrong length, or an unknown tag.
	Parse Kind = iota
	// StateViolation covers a PDU arriving in a state that forbids it.
	StateViolation
	// Negotiation covers a rejected or downgraded security protocol.
	Negotiation
	// Credential covers a CredSSP credential rejection.
	Credential
	// Channel covers an unknown channel id or bad SVC flag combination.
	Channel
	// Codec covers a codec-specific decode failure.
	Codec
	// Capability covers a missing mandatory capability in Confirm Active.
	Capability
	// Resource covers a quota (e.g. reassembly buffer) being exceeded.
	Resource
	// NotImplemented covers an optional feature this core doesn't support.
	NotImplemented
)

func (k Kind) String() string {
	switch k {
	case Parse:
		return "Parse"
	case StateViolation:
		return "StateViolation"
	case Negotiation:
		return "Negotiation"
	case Credential:
		return "Credential"
	case Channel:
		return "Channel"
	case Codec:
		return "Codec"
	case Capability:
		return "Capability"
	case Resource:
		return "Resource"
	case NotImplemented:
		return "NotImplemented"
	default:
		return "Unknown"
	}
}

// Fatal reports whether errors of this Kind must tear the session
// down. NotImplemented is the one kind that is never fatal on its own
// -- it is surfaced as a warning event.
func (k Kind) Fatal() bool {
	return k != NotImplemented
}

// Error is the structured {kind, context_chain} value every fallible
// core operation returns. It wraps an underlying cause so callers that
// only care about the Kind can use errors.Is/errors.As, and callers
// that want the full chain can still Unwrap through to the cause.
type Error struct {
	Kind    Kind
	Context string
	Cause   error
}

// New builds an Error with no wrapped cause.
func New(kind Kind, context string) *Error {
	return &Error{Kind: kind, Context: context}
}

// Wrap builds an Error that chains cause into the context string.
func Wrap(kind Kind, context string, cause error) *Error {
	return &Error{Kind: kind, Context: context, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Context)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, rdperror.New(Channel, "")) match any *Error
// with the same Kind, independent of Context/Cause, which is the
// comparison the Connector and Active Stage actually need when they
// decide whether to abort or drop-and-continue.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error,
// reporting ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
