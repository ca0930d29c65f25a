package ha

import (
	"errors"
	"fmt"
)

// Outcome classes drive the retry policy: transport failures retry,
// protocol and precondition failures do not.
type Kind int

const (
	KindOk Kind = iota
	KindTransport
	KindProtocol
	KindPrecondition
)

var (
	ErrNotAssociated = errors.New("station not associated")
	ErrEmptyResponse = errors.New("empty response")
	ErrNotConfigured = errors.New("client not configured")
)

type ProtocolError struct {
	StatusCode int
	Body       string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Classify maps an error returned by the client into its outcome class.
func Classify(err error) Kind {
	if err == nil {
		return KindOk
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return KindProtocol
	}
	if errors.Is(err, ErrNotAssociated) || errors.Is(err, ErrNotConfigured) {
		return KindPrecondition
	}
	var te *TransportError
	if errors.As(err, &te) {
		return KindTransport
	}
	if errors.Is(err, ErrEmptyResponse) {
		return KindProtocol
	}
	return KindTransport
}
