package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrUpstreamUnavailable matches every gateway failure caused by the backend
// (network, timeout, non-success status, undecodable reply).
var ErrUpstreamUnavailable = errors.New("inference backend unavailable")

type ErrorKind string

const (
	KindConnect ErrorKind = "connect"
	KindTimeout ErrorKind = "timeout"
	KindStatus  ErrorKind = "status"
	KindDecode  ErrorKind = "decode"
	KindStream  ErrorKind = "stream"
)

// UpstreamError carries the cause of an unavailable backend.
type UpstreamError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (%s)", ErrUpstreamUnavailable, e.Kind)
	}
	return fmt.Sprintf("%s (%s): %v", ErrUpstreamUnavailable, e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }

// KindOf returns the kind of an UpstreamError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return ""
}

// transportError classifies a failed round trip. A canceled caller context is
// returned as-is: the caller went away, the backend did not fail.
func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &UpstreamError{Kind: KindTimeout, Err: err}
	}
	return &UpstreamError{Kind: KindConnect, Err: err}
}
