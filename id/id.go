// Package id defines the TypeID identifiers used for log and trace
// correlation: one per job run and one per HTTP request.
//
// IDs are K-sortable (UUIDv7-based) and render as "prefix_suffix". They are
// never persisted as keys; session ids are opaque random bytes and live in
// the session package.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies what an ID refers to.
type Prefix string

const (
	PrefixRun     Prefix = "jrun"
	PrefixRequest Prefix = "req"
)

// ID wraps a TypeID. The zero value is Nil.
//
//nolint:recvcheck // UnmarshalText needs a pointer receiver.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// RunID identifies one execution of a scheduled job.
type RunID = ID

// RequestID identifies one inbound HTTP request.
type RequestID = ID

// New generates an ID with the given prefix. It panics on an invalid
// prefix, which is a programming error.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

// NewRunID generates a job run id.
func NewRunID() RunID { return New(PrefixRun) }

// NewRequestID generates a request id.
func NewRequestID() RequestID { return New(PrefixRequest) }

// Parse parses "prefix_suffix" and checks the prefix when expected is not
// empty.
func Parse(s string, expected Prefix) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse: empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	parsed := ID{inner: tid, valid: true}
	if expected != "" && parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

// String returns the TypeID text, or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the prefix component.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero value.
func (i ID) IsNil() bool { return !i.valid }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data), "")
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
