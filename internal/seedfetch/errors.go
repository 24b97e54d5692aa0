package seedfetch

import (
	"errors"
	"fmt"
	"net"
)

// Transport failure kinds, also used as metric labels.
const (
	KindTimeout     = "timeout"
	KindUnknownHost = "unknown_host"
	KindIO          = "io_error"
)

// TransportError is a failure to connect to the seed server or to read its
// response.
type TransportError struct {
	Kind string
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("seed %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is a response with a status other than 200.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("seed server responded %d", e.StatusCode)
}

func newTransportError(op string, err error) *TransportError {
	return &TransportError{Kind: classifyTransportErr(err), Op: op, Err: err}
}

func classifyTransportErr(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return KindUnknownHost
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindIO
}
