package core

import (
	"fmt"
	"net"
	"strconv"
)

// PortInUseError is returned by Listen when another process holds the port.
type PortInUseError struct {
	Addr  string
	Cause error
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("address %s is already in use", e.Addr)
}

func (e *PortInUseError) Unwrap() error {
	return e.Cause
}

// Listen opens the TCP listener for the HTTP server.
func Listen(host string, port int) (net.Listener, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	listener, err := net.Listen("tcp", addr)
	if err == nil {
		return listener, nil
	}
	if isAddrInUse(err) {
		return nil, &PortInUseError{Addr: addr, Cause: err}
	}
	return nil, err
}
