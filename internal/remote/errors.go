package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// APIError wraps non-2xx responses. The structured fields are filled when
// the body carries {description, message, detail, code}.
type APIError struct {
	StatusCode  int
	Body        string
	Code        string
	Description string
	Message     string
	Detail      string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("api error: status=%d %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *APIError) ErrorDescription() string { return e.Description }
func (e *APIError) ErrorMessage() string     { return e.Message }
func (e *APIError) ErrorDetail() string      { return e.Detail }

// Structured reports whether the server supplied any usable text.
func (e *APIError) Structured() bool {
	return e.Description != "" || e.Message != "" || e.Detail != ""
}

type errorBody struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Message     string `json:"message"`
	Detail      string `json:"detail"`
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Body: string(body)}
	var eb errorBody
	if json.Unmarshal(body, &eb) != nil {
		return e
	}
	if eb == (errorBody{}) {
		// Some endpoints nest the envelope under "error".
		var nested struct {
			Error errorBody `json:"error"`
		}
		if json.Unmarshal(body, &nested) == nil {
			eb = nested.Error
		}
	}
	e.Code = eb.Code
	e.Description = strings.TrimSpace(eb.Description)
	e.Message = strings.TrimSpace(eb.Message)
	e.Detail = strings.TrimSpace(eb.Detail)
	return e
}

// Kind classifies a failed operation.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindRemote
	KindUnstructured
	KindNetwork
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindRemote:
		return "remote"
	case KindUnstructured:
		return "unstructured"
	case KindNetwork:
		return "network"
	case KindCanceled:
		return "canceled"
	}
	return "unknown"
}

// Failure is the closed classification of an error result.
type Failure struct {
	Kind   Kind
	Status int
	Err    error
}

// validationError is satisfied by the filter and wizard validation errors.
type validationError interface {
	error
	Invalid() bool
}

// Classify maps err onto a Failure.
func Classify(err error) Failure {
	if err == nil {
		return Failure{Kind: KindNone}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Failure{Kind: KindCanceled, Err: err}
	}
	var ve validationError
	if errors.As(err, &ve) && ve.Invalid() {
		return Failure{Kind: KindValidation, Err: err}
	}
	var ae *APIError
	if errors.As(err, &ae) {
		if ae.Structured() {
			return Failure{Kind: KindRemote, Status: ae.StatusCode, Err: err}
		}
		return Failure{Kind: KindUnstructured, Status: ae.StatusCode, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return Failure{Kind: KindNetwork, Err: err}
	}
	return Failure{Kind: KindUnstructured, Err: err}
}
