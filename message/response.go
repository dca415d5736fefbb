package message

import (
	"strconv"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
)

// Response reasons not tied to an error kind.
const (
	ReasonUnsupported       = "Message Event Type Unsupported"
	ReasonNoHandler         = "No Handler Registered"
	ReasonUnsupportedAction = "Unsupported Dataset Action"
	ReasonInternal          = "Internal Error"
	ReasonUnavailable       = "Service Unavailable"
	ReasonRateLimited       = "Rate Limit Exceeded"
)

// Response is the envelope returned for every request.
type Response struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Success builds a successful response.
func Success(reason string, data any) *Response {
	return &Response{Success: true, Reason: reason, Data: data}
}

// Failure builds a failed response with no data.
func Failure(reason, message string) *Response {
	return &Response{Reason: reason, Message: message}
}

// FromError converts err to a failed response. Errors that are not DMOD
// errors, and internal ones, are reported without their details.
func FromError(err error) *Response {
	de, ok := errors.AsDMOD(err)
	if !ok || de.Kind == errors.KindInternal {
		return Failure(ReasonInternal, "the request could not be completed due to an internal error")
	}
	reason := de.Reason
	if reason == "" {
		reason = de.Kind.DefaultReason()
	}
	return Failure(reason, de.Message)
}

// UnsupportedMessageType reports a message whose event type the listener does not handle.
func UnsupportedMessageType(actual, listener string) *Response {
	return &Response{
		Reason:  ReasonUnsupported,
		Message: "unsupported message_event_type " + quoteOrMissing(actual),
		Data: map[string]string{
			"actual_event_type": actual,
			"listener_type":     listener,
		},
	}
}

func quoteOrMissing(s string) string {
	if s == "" {
		return "(missing)"
	}
	return strconv.Quote(s)
}
