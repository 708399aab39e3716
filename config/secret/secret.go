// Package secret keeps credentials out of logs, traces and help output.
package secret

import (
	"fmt"
	"io"
)

const redacted = "REDACTED"

// String is a credential such as the honeycomb key or the rollbar token. Printing or
// encoding it yields a placeholder, only Raw returns the value.
type String string

// Raw returns the credential itself.
func (s String) Raw() string {
	return string(s)
}

// IsSet reports whether a credential was supplied.
func (s String) IsSet() bool {
	return s != ""
}

// Format redacts the value for every fmt verb.
func (s String) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, redacted)
}

// MarshalText redacts the value in json and any other text encoding.
func (s String) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}
