// Package errs defines the failure taxonomy shared by every layer of pm.
//
// ValidationError is raised locally and never reaches the network. AuthError
// ends the session. RemoteError is recoverable: local state is preserved and
// the operation may be retried. FormatError marks malformed dates coming from
// upstream data.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrBusy is returned when a non-idempotent operation is already in flight.
var ErrBusy = errors.New("operation already in progress")

// ErrNoSession is returned by session providers when no usable token exists.
var ErrNoSession = errors.New("not signed in")

// ValidationError reports draft fields that failed local validation.
type ValidationError struct {
	Entity  string
	Missing []string
	Reason  string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: missing required field(s): %s", e.Entity, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Entity, e.Reason)
}

// AuthError reports a rejected or absent credential (HTTP 401).
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: authentication required: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: authentication required", e.Op)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RemoteError reports any other failed remote call. Status is zero when the
// request never produced a response.
type RemoteError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Status, e.Body)
	case e.Status != 0:
		return fmt.Sprintf("%s: server returned %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": remote call failed"
}

func (e *RemoteError) Unwrap() error { return e.Err }

// NotFound reports whether the server said the target does not exist.
func (e *RemoteError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// Ambiguous reports whether the write may still have been applied server-side:
// transport failures and 5xx responses.
func (e *RemoteError) Ambiguous() bool {
	return e.Status == 0 || e.Status >= http.StatusInternalServerError
}

// FormatError reports a date string that does not match the expected layout.
type FormatError struct {
	Value  string
	Layout string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed date %q: expected %s", e.Value, e.Layout)
}

// IsAuth reports whether err is, or wraps, an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// AsRemote returns the RemoteError in err's chain, if any.
func AsRemote(err error) (*RemoteError, bool) {
	var re *RemoteError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
