package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-groupchat/internal/chat"
)

// ApiError is the JSON body of every failed request.
type ApiError struct {
	StatusCode   int      `json:"-"`
	Success      bool     `json:"success"`
	Message      string   `json:"error"`
	Code         string   `json:"code,omitempty"`
	InvalidUsers []string `json:"invalidUsers,omitempty"`
	Err          error    `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(statusCode int) *ApiError {
	return &ApiError{
		StatusCode: statusCode,
		Message:    lower(http.StatusText(statusCode)),
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest)
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound)
}

func NewInternalServerError(err error) *ApiError {
	e := newApiError(http.StatusInternalServerError)
	e.Err = err
	return e
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized)
}

func NewForbiddenError() *ApiError {
	return newApiError(http.StatusForbidden)
}

func NewRequestTooLargeError() *ApiError {
	return newApiError(http.StatusRequestEntityTooLarge)
}

func NewServiceUnavailableError(err error) *ApiError {
	e := newApiError(http.StatusServiceUnavailable)
	e.Err = err
	return e
}

// NewChatError converts an error returned by the chat services. Errors
// that did not originate from the chat package become internal errors.
func NewChatError(err error) *ApiError {
	var invalid *chat.InvalidUsersError
	if errors.As(err, &invalid) {
		return &ApiError{
			StatusCode:   http.StatusBadRequest,
			Message:      "invalid users",
			Code:         string(chat.KindUnknownUser),
			InvalidUsers: invalid.UserIds,
		}
	}

	var ce *chat.Error
	if !errors.As(err, &ce) {
		return NewInternalServerError(err)
	}

	var status int
	switch ce.Kind {
	case chat.KindMissingField, chat.KindUnknownUser, chat.KindInvalidType,
		chat.KindTextRequired, chat.KindFileUrlRequired:
		status = http.StatusBadRequest
	case chat.KindUnknownChat:
		status = http.StatusNotFound
	case chat.KindNotAMember, chat.KindForbidden:
		status = http.StatusForbidden
	case chat.KindRateLimited:
		status = http.StatusTooManyRequests
	case chat.KindStoreUnavailable:
		e := NewServiceUnavailableError(err)
		e.Message = ce.Msg
		e.Code = string(ce.Kind)
		return e
	default:
		return NewInternalServerError(err)
	}

	return &ApiError{
		StatusCode: status,
		Message:    ce.Msg,
		Code:       string(ce.Kind),
	}
}
