package api

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a remote call failure.
type Kind int

const (
	// KindNetwork covers connection failures and timeouts. Recoverable:
	// callers may offer a retry.
	KindNetwork Kind = iota
	// KindSessionExpired marks a backend signal that the session is no
	// longer valid. Callers must force logout, not retry.
	KindSessionExpired
	// KindMalformed marks a response body that could not be decoded into
	// the expected shape.
	KindMalformed
	// KindApplication covers every other HTTP-level application error.
	KindApplication
)

// Error is the failure type returned by all Client calls.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("api: ")
	switch e.Kind {
	case KindNetwork:
		b.WriteString("network failure")
	case KindSessionExpired:
		b.WriteString("session expired")
	case KindMalformed:
		b.WriteString("malformed response")
	case KindApplication:
		b.WriteString("application error")
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsSessionExpired reports whether err carries KindSessionExpired.
func IsSessionExpired(err error) bool { return kindOf(err) == KindSessionExpired }

// IsNetwork reports whether err carries KindNetwork.
func IsNetwork(err error) bool { return kindOf(err) == KindNetwork }

func kindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return -1
}

// The backend reports expiry inconsistently: sometimes a bare 401, sometimes
// a 200-with-error body carrying one of these phrases.
var sessionExpiredPhrases = []string{"sessão expirada", "sessao expirada", "session expired"}

func messageSignalsExpiry(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range sessionExpiredPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
