package chat

import (
	"database/sql"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindMissingField     ErrorKind = "MissingField"
	KindUnknownUser      ErrorKind = "UnknownUser"
	KindUnknownChat      ErrorKind = "UnknownChat"
	KindNotAMember       ErrorKind = "NotAMember"
	KindInvalidType      ErrorKind = "InvalidType"
	KindTextRequired     ErrorKind = "TextRequired"
	KindFileUrlRequired  ErrorKind = "FileUrlRequired"
	KindStoreUnavailable ErrorKind = "StoreUnavailable"
	KindForbidden        ErrorKind = "Forbidden"
	KindRateLimited      ErrorKind = "RateLimited"
)

// Error is a failure reported back to the caller of a chat operation.
// Two errors match with errors.Is when their kinds are equal, so the
// package-level sentinels can be used for classification regardless of the
// message attached to a particular instance.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Msg, e.Err.Error())
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrMissingField     = &Error{Kind: KindMissingField, Msg: "missing required field"}
	ErrUnknownUser      = &Error{Kind: KindUnknownUser, Msg: "user not found"}
	ErrUnknownChat      = &Error{Kind: KindUnknownChat, Msg: "chat not found"}
	ErrNotAMember       = &Error{Kind: KindNotAMember, Msg: "user is not a member of this chat"}
	ErrInvalidType      = &Error{Kind: KindInvalidType, Msg: "invalid message type. Allowed: text, image, video, location, document, audio"}
	ErrTextRequired     = &Error{Kind: KindTextRequired, Msg: "message is required for text type"}
	ErrFileUrlRequired  = &Error{Kind: KindFileUrlRequired, Msg: "file_url is required for file-based messages"}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable, Msg: "store unavailable"}
	ErrForbidden        = &Error{Kind: KindForbidden, Msg: "forbidden"}
	ErrRateLimited      = &Error{Kind: KindRateLimited, Msg: "too many messages, slow down"}
)

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// storeUnavailable wraps a persistence failure. Timeouts are reported the
// same way since the caller's remedy is identical: retry later.
func storeUnavailable(err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Msg: ErrStoreUnavailable.Msg, Err: err}
}

// lookupError maps a single-record lookup failure to notFound when the
// record does not exist and to StoreUnavailable otherwise.
func lookupError(err error, notFound *Error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return storeUnavailable(err)
}

// KindOf returns the kind of err, or the empty kind if err did not
// originate from this package.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// InvalidUsersError reports the member ids of a chat creation request that
// do not resolve to a user.
type InvalidUsersError struct {
	UserIds []string
}

func (e *InvalidUsersError) Error() string {
	return fmt.Sprintf("invalid users: %v", e.UserIds)
}

func (e *InvalidUsersError) Is(target error) bool {
	return target == ErrUnknownUser
}
