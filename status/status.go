// Package status holds the error taxonomy shared by the sync components and the Sink
// used to tell the outside world what the engine is doing.
package status

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

// Failure kinds. SessionExpired, NoMemberships and NoCharacters end the session.
const (
	KindUnknown Kind = iota
	KindNotAuthenticated
	KindExchangeFailed
	KindRefreshFailed
	KindSessionExpired
	KindNoMemberships
	KindNoCharacters
	KindSyncNetwork
	KindSyncDecompress
	KindSyncIO
	KindFetchFailed
	KindCanceled
)

var kindNames = map[Kind]string{
	KindUnknown:          "Unknown",
	KindNotAuthenticated: "NotAuthenticated",
	KindExchangeFailed:   "ExchangeFailed",
	KindRefreshFailed:    "RefreshFailed",
	KindSessionExpired:   "SessionExpired",
	KindNoMemberships:    "NoMemberships",
	KindNoCharacters:     "NoCharacters",
	KindSyncNetwork:      "SyncError.Network",
	KindSyncDecompress:   "SyncError.Decompress",
	KindSyncIO:           "SyncError.IO",
	KindFetchFailed:      "FetchFailed",
	KindCanceled:         "Canceled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("Kind(%d)", int(k))
}

// Fatal reports whether a failure of this kind terminates the session and must force
// the user back through a restart.
func (k Kind) Fatal() bool {
	switch k {
	case KindSessionExpired, KindNoMemberships, KindNoCharacters:
		return true
	}

	return false
}

// Error is a classified failure. Err is the underlying cause and may be nil.
type Error struct {
	Kind Kind
	Err  error
}

// Errorf wraps err with the given kind.
func Errorf(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}

	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is
// regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrNotAuthenticated = &Error{Kind: KindNotAuthenticated}
	ErrExchangeFailed   = &Error{Kind: KindExchangeFailed}
	ErrRefreshFailed    = &Error{Kind: KindRefreshFailed}
	ErrSessionExpired   = &Error{Kind: KindSessionExpired}
	ErrNoMemberships    = &Error{Kind: KindNoMemberships}
	ErrNoCharacters     = &Error{Kind: KindNoCharacters}
	ErrSyncNetwork      = &Error{Kind: KindSyncNetwork}
	ErrSyncDecompress   = &Error{Kind: KindSyncDecompress}
	ErrSyncIO           = &Error{Kind: KindSyncIO}
	ErrFetchFailed      = &Error{Kind: KindFetchFailed}
)

// KindOf returns the kind of the first *Error in err's chain. Context cancellation maps to
// KindCanceled and anything unclassified to KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}

	return KindUnknown
}

// IsFatal reports whether err terminates the session.
func IsFatal(err error) bool {
	return KindOf(err).Fatal()
}
