// Package fault holds the error classes shared by the incident pipeline stages.
package fault

import (
	"context"
	"errors"

	"github.com/linnemanlabs/go-core/xerrors"
)

var (
	// ErrBackendProtocol means a backend accepted a request but its response
	// broke the expected contract, e.g. a started query with no query id.
	ErrBackendProtocol = xerrors.New("backend protocol error")

	// ErrConfiguration means configuration is present but malformed.
	ErrConfiguration = xerrors.New("configuration error")

	// ErrMalformedEvent means the inbound event could not be shaped into an alarm.
	ErrMalformedEvent = xerrors.New("malformed alarm event")
)

// Class labels an invocation error for metrics and HTTP status mapping.
type Class string

const (
	ClassNone            Class = "ok"
	ClassBackendProtocol Class = "backend_protocol"
	ClassConfiguration   Class = "configuration"
	ClassMalformedEvent  Class = "malformed_event"
	ClassCanceled        Class = "canceled"
	ClassBackend         Class = "backend"
)

// Classify maps err onto its Class. Errors that are not one of the known
// sentinels are unclassified backend failures.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrConfiguration):
		return ClassConfiguration
	case errors.Is(err, ErrMalformedEvent):
		return ClassMalformedEvent
	case errors.Is(err, ErrBackendProtocol):
		return ClassBackendProtocol
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCanceled
	default:
		return ClassBackend
	}
}
