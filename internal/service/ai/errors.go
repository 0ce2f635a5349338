package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Failure kinds. Every error returned by Gateway.Complete matches exactly one
// of these with errors.Is.
var (
	ErrUnconfigured      = errors.New("llm gateway is not configured")
	ErrTransport         = errors.New("llm transport failure")
	ErrAuth              = errors.New("llm credential rejected")
	ErrProvider          = errors.New("llm provider error")
	ErrMalformedResponse = errors.New("llm response malformed")
)

// GatewayError carries the kind of failure together with its cause.
type GatewayError struct {
	Kind     error
	Provider string
	Status   int
	Err      error
}

func (e *GatewayError) Error() string {
	msg := e.Kind.Error()
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Kind returns the failure kind name of err for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnconfigured):
		return "unconfigured"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrProvider):
		return "provider"
	default:
		return "other"
	}
}

// classify maps a failed model call onto the failure kinds using what the
// transport observed.
func classify(provider string, err error, p *callRecord) *GatewayError {
	status, transportErr := p.result()
	ge := &GatewayError{Provider: provider, Status: status, Err: err}
	switch {
	case transportErr != nil:
		ge.Kind = ErrTransport
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		ge.Kind = ErrAuth
	case status >= 400:
		ge.Kind = ErrProvider
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		ge.Kind = ErrTransport
	case status >= 200 && status < 300:
		// the request went through but the body could not be decoded
		ge.Kind = ErrMalformedResponse
	default:
		ge.Kind = ErrProvider
	}
	return ge
}
