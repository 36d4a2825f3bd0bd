package bundi

import (
	"fmt"

	"github.com/google/uuid"
)

// Scope specifies how instances of a provider are cached.
type Scope int

const (
	// DefaultScope leaves the scope to the provider's Injectable metadata,
	// falling back to Singleton.
	DefaultScope Scope = iota

	// Singleton specifies that a single instance is created for the
	// application's lifetime and shared by every consumer.
	Singleton

	// Request specifies that one instance is created per request context id
	// and shared by every resolution made while handling that request.
	Request

	// Transient specifies that a new instance is created for every
	// resolution. Transient instances are never cached.
	Transient
)

// String returns the string representation of the Scope.
func (s Scope) String() string {
	switch s {
	case DefaultScope:
		return "Default"
	case Singleton:
		return "Singleton"
	case Request:
		return "Request"
	case Transient:
		return "Transient"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// IsValid checks if the scope is valid.
func (s Scope) IsValid() bool {
	return s >= DefaultScope && s <= Transient
}

// MarshalText implements encoding.TextMarshaler.
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scope) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Default", "default", "":
		*s = DefaultScope
	case "Singleton", "singleton":
		*s = Singleton
	case "Request", "request":
		*s = Request
	case "Transient", "transient":
		*s = Transient
	default:
		return &ScopeError{Value: string(text)}
	}
	return nil
}

// orDefault resolves DefaultScope to fallback.
func (s Scope) orDefault(fallback Scope) Scope {
	if s == DefaultScope {
		if fallback == DefaultScope {
			return Singleton
		}
		return fallback
	}
	return s
}

// ContextID identifies one request scope. Every resolution made while
// handling a request carries the request's ContextID.
type ContextID string

// StaticContextID is the context id used for bootstrap-time resolutions.
const StaticContextID ContextID = "static"

// NewContextID returns a fresh, unique context id.
func NewContextID() ContextID {
	return ContextID(uuid.NewString())
}
