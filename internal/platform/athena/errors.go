package athena

import (
	"errors"
	"fmt"
)

var (
	ErrUpstreamAuth = errors.New("upstream authentication failed")
	ErrUpstreamData = errors.New("upstream data not found")
	// ErrUnavailable means no upstream answer was obtained: transport
	// failure, open circuit or exhausted retries without a status.
	ErrUnavailable = errors.New("upstream unavailable")
)

type Kind string

const (
	KindAuth        Kind = "auth"
	KindData        Kind = "data"
	KindUnavailable Kind = "unavailable"
)

// UpstreamError describes a failed call to the Athena API. StatusCode is 0
// when no response was received.
type UpstreamError struct {
	Kind       Kind
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("athena %s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("athena %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("athena %s: %s failure", e.Op, e.Kind)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstreamAuth:
		return e.Kind == KindAuth
	case ErrUpstreamData:
		return e.Kind == KindData
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	}
	return false
}

// retryable reports whether another attempt might succeed.
func (e *UpstreamError) retryable() bool {
	return e.Kind == KindUnavailable || e.StatusCode >= 500
}
