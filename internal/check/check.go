package check

import (
	"context"
	"fmt"
	"time"

	"github.com/securepool/pincheck/internal/config"
	"github.com/securepool/pincheck/internal/pin"
)

// Status is the outcome of a single check.
type Status string

const (
	// StatusPass means the check ran and its expectation held.
	StatusPass Status = "pass"
	// StatusFail means the check ran and its expectation did not hold
	// (pin mismatch, unexpected HTTP status).
	StatusFail Status = "fail"
	// StatusError means the check could not complete (connect, handshake,
	// timeout).
	StatusError Status = "error"
	// StatusSkipped means a required earlier check did not pass.
	StatusSkipped Status = "skipped"
)

// Result is the outcome of one check run.
type Result struct {
	Name   string
	Type   string
	Status Status

	// Detail is a short human-readable description of what was observed.
	Detail string

	// Err is set for every status other than pass.
	Err error

	// Optional results are reported but do not affect the run outcome.
	Optional bool

	Duration time.Duration

	// Pin and NotAfter are populated by pin checks once a handshake
	// completed, including on mismatch.
	Pin      string
	NotAfter time.Time

	// HTTPStatus is the response code seen by http and websocket checks.
	HTTPStatus int
}

// Passed reports whether r has StatusPass.
func (r *Result) Passed() bool { return r.Status == StatusPass }

// Check is the common interface implemented by every check type.
// Run never panics on network failure; failures are reported in the Result.
type Check interface {
	Name() string
	Run(ctx context.Context) *Result
}

// Target carries what every check needs to reach and trust the backend.
type Target struct {
	Pin  pin.Target
	Kind pin.Kind
	Pins pin.Set

	// EnforcePin applies the pin set to HTTP and WebSocket connections.
	EnforcePin bool
}

// New returns the Check implementation for def.
func New(def config.Check, t Target) (Check, error) {
	switch def.Type {
	case config.TypePin:
		return &pinCheck{name: def.Name, target: t}, nil
	case config.TypeHTTP:
		client, err := buildHTTPClient(def, t)
		if err != nil {
			return nil, fmt.Errorf("check %q: build http client: %w", def.Name, err)
		}
		return &httpCheck{def: def, target: t, client: client}, nil
	case config.TypeWebSocket:
		tlsCfg, err := buildTLSConfig(def, t)
		if err != nil {
			return nil, fmt.Errorf("check %q: build tls config: %w", def.Name, err)
		}
		return &wsCheck{def: def, target: t, tlsCfg: tlsCfg}, nil
	default:
		return nil, fmt.Errorf("check: unsupported type %q", def.Type)
	}
}

// newResult initialises a Result for the named check.
func newResult(name, typ string) *Result {
	return &Result{Name: name, Type: typ}
}

func (r *Result) pass(detail string) *Result {
	r.Status = StatusPass
	r.Detail = detail
	return r
}

func (r *Result) fail(status Status, err error) *Result {
	r.Status = status
	r.Err = err
	if r.Detail == "" {
		r.Detail = err.Error()
	}
	return r
}
