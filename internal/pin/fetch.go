package pin

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"strconv"
	"time"
)

// DefaultTimeout bounds the TCP connect and TLS handshake together when a
// Target does not set its own.
const DefaultTimeout = 5 * time.Second

// Target identifies the TLS endpoint whose certificate is pinned.
type Target struct {
	Host string
	Port int

	// ServerName overrides the SNI name. Defaults to Host.
	ServerName string

	// Timeout bounds connect plus handshake. Zero means DefaultTimeout.
	Timeout time.Duration

	// VerifyChain additionally validates the certificate chain and hostname
	// against RootCAs (the system pool when nil). Off by default: the pin is
	// the only trust anchor.
	VerifyChain bool
	RootCAs     *x509.CertPool
}

// Addr returns host:port.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// TLSConfig returns the client TLS configuration used for t.
func (t Target) TLSConfig() *tls.Config {
	name := t.ServerName
	if name == "" {
		name = t.Host
	}
	return &tls.Config{
		ServerName:         name,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !t.VerifyChain, //nolint:gosec // pin-only trust unless verify_chain is set
		RootCAs:            t.RootCAs,
	}
}

func (t Target) timeout() time.Duration {
	if t.Timeout <= 0 {
		return DefaultTimeout
	}
	return t.Timeout
}

// Result is the outcome of a successful Fetch. It is never persisted.
type Result struct {
	Addr string
	Pin  string
	Kind Kind
	Leaf *x509.Certificate
}

// Fetch connects to t, completes a TLS handshake and returns the pin of the
// leaf certificate. Dial and handshake failures are *ConnectivityError.
func Fetch(ctx context.Context, t Target, kind Kind) (*Result, error) {
	addr := t.Addr()

	ctx, cancel := context.WithTimeout(ctx, t.timeout())
	defer cancel()

	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectivityError{Addr: addr, Op: "dial", Err: err}
	}

	conn := tls.Client(raw, t.TLSConfig())
	defer conn.Close()

	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, &ConnectivityError{Addr: addr, Op: "handshake", Err: err}
	}

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, &ConnectivityError{Addr: addr, Op: "handshake", Err: ErrNoPeerCertificate}
	}

	leaf := certs[0]
	return &Result{
		Addr: addr,
		Pin:  FromCertificate(leaf, kind),
		Kind: kind,
		Leaf: leaf,
	}, nil
}

// Verify fetches the pin for t and checks it against want. The Result is
// returned alongside a *MismatchError so callers can report what was seen.
func Verify(ctx context.Context, t Target, kind Kind, want Set) (*Result, error) {
	res, err := Fetch(ctx, t, kind)
	if err != nil {
		return nil, err
	}
	if !want.Contains(res.Pin) {
		return res, &MismatchError{
			Addr:       res.Addr,
			ServerName: t.TLSConfig().ServerName,
			Got:        res.Pin,
			Want:       want.Pins(),
		}
	}
	return res, nil
}

// VerifyConnection returns a tls.Config.VerifyConnection hook that rejects
// any connection whose leaf certificate pin is not in want. It runs even
// when InsecureSkipVerify is set.
func VerifyConnection(kind Kind, want Set) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 {
			return ErrNoPeerCertificate
		}
		got := FromCertificate(cs.PeerCertificates[0], kind)
		if !want.Contains(got) {
			return &MismatchError{ServerName: cs.ServerName, Got: got, Want: want.Pins()}
		}
		return nil
	}
}
