package pin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrInvalidPin is returned when a configured pin is not base-64 of a
	// SHA-256 digest.
	ErrInvalidPin = errors.New("pin: invalid pin")

	// ErrNoPins is returned when a Set would be empty.
	ErrNoPins = errors.New("pin: no pins configured")

	// ErrNoPeerCertificate is returned when the handshake completed without
	// the server presenting a certificate.
	ErrNoPeerCertificate = errors.New("pin: server presented no certificate")
)

// ConnectivityError reports that the TLS connection could not be
// established. Op is "dial" or "handshake".
type ConnectivityError struct {
	Addr string
	Op   string
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("pin: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was caused by the dial or handshake
// deadline.
func (e *ConnectivityError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// MismatchError reports a completed handshake whose leaf certificate pin is
// not in the expected set.
type MismatchError struct {
	// Addr is the dialed host:port. It is empty when the mismatch comes from
	// a VerifyConnection hook, which never sees the address.
	Addr string

	// ServerName is the TLS server name of the connection, when known.
	ServerName string

	Got  string
	Want []string
}

func (e *MismatchError) Error() string {
	where := e.Addr
	if where == "" {
		where = e.ServerName
	}
	if where == "" {
		where = "connection"
	}
	return fmt.Sprintf("pin: mismatch for %s: got %s, want one of [%s]",
		where, e.Got, strings.Join(e.Want, ", "))
}
