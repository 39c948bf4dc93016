package check

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/securepool/pincheck/internal/config"
	"github.com/securepool/pincheck/internal/pin"
)

// maxSnippet caps how much of a response body is kept in Result.Detail.
const maxSnippet = 200

type httpCheck struct {
	def    config.Check
	target Target
	client *http.Client
}

func (c *httpCheck) Name() string { return c.def.Name }

// Run issues one request and compares the response code with the expected
// set. With no expected set, any response proves the endpoint is reachable.
func (c *httpCheck) Run(ctx context.Context) *Result {
	res := newResult(c.def.Name, config.TypeHTTP)
	method := methodOf(c.def)

	var body io.Reader
	if c.def.Body != nil {
		b, err := json.Marshal(c.def.Body)
		if err != nil {
			return res.fail(StatusError, &EndpointError{Method: method, Path: c.def.Path, Err: fmt.Errorf("encode body: %w", err)})
		}
		body = bytes.NewReader(b)
	}

	url := "https://" + c.target.Pin.Addr() + c.def.Path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return res.fail(StatusError, &EndpointError{Method: method, Path: c.def.Path, Err: fmt.Errorf("build request: %w", err)})
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.def.Headers {
		req.Header.Set(k, v)
	}
	if name := c.target.Pin.ServerName; name != "" {
		req.Host = name
	}

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("check: request failed", "check", c.def.Name, "method", method, "path", c.def.Path, "err", err)
		return res.fail(statusFor(err), &EndpointError{Method: method, Path: c.def.Path, Err: err})
	}
	defer resp.Body.Close()

	res.HTTPStatus = resp.StatusCode
	snippet := readSnippet(resp.Body)
	res.Detail = fmt.Sprintf("status %d", resp.StatusCode)
	if snippet != "" {
		res.Detail += ": " + snippet
	}

	if !statusExpected(c.def.ExpectStatus, resp.StatusCode) {
		slog.Warn("check: unexpected status", "check", c.def.Name, "path", c.def.Path,
			"status", resp.StatusCode, "expected", c.def.ExpectStatus)
		return res.fail(StatusFail, &EndpointError{Method: method, Path: c.def.Path, Status: resp.StatusCode})
	}

	slog.Debug("check: endpoint reachable", "check", c.def.Name, "path", c.def.Path, "status", resp.StatusCode)
	return res.pass(res.Detail)
}

func methodOf(def config.Check) string {
	if def.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(def.Method)
}

// statusExpected reports whether code is in want. An empty want accepts
// every code.
func statusExpected(want []int, code int) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if w == code {
			return true
		}
	}
	return false
}

// readSnippet returns at most maxSnippet bytes of r, whitespace-trimmed and
// flattened to one line. A rune cut by the limit is dropped and any other
// invalid UTF-8 is removed.
func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxSnippet))
	b = trimPartialRune(b)
	return strings.Join(strings.Fields(strings.ToValidUTF8(string(b), "")), " ")
}

// trimPartialRune drops an incomplete UTF-8 sequence at the end of b.
func trimPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			break
		}
	}
	return b
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey", "bearer", "basic":
		req = req.Clone(req.Context())
		applyAuth(req.Header, t.auth)
	}
	return t.base.RoundTrip(req)
}

// applyAuth sets the header-based credentials for a onto h.
func applyAuth(h http.Header, a config.AuthConfig) {
	switch a.Mode {
	case "apikey":
		h.Set(a.Header, a.Key())
	case "bearer":
		h.Set("Authorization", "Bearer "+a.Token())
	case "basic":
		cred := base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password()))
		h.Set("Authorization", "Basic "+cred)
	}
}

// buildTLSConfig derives the client TLS configuration for def from the
// target trust model, adding the pin hook and client certificate if needed.
func buildTLSConfig(def config.Check, t Target) (*tls.Config, error) {
	tlsCfg := t.Pin.TLSConfig()
	if t.EnforcePin {
		tlsCfg.VerifyConnection = pin.VerifyConnection(t.Kind, t.Pins)
	}
	if def.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(def.Auth.CertFile, def.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// buildHTTPClient constructs an http.Client for def. Connections are not
// reused so every check performs its own handshake.
func buildHTTPClient(def config.Check, t Target) (*http.Client, error) {
	tlsCfg, err := buildTLSConfig(def, t)
	if err != nil {
		return nil, err
	}
	transport := &authRoundTripper{
		base: &http.Transport{
			TLSClientConfig:   tlsCfg,
			DisableKeepAlives: true,
		},
		auth: def.Auth,
	}
	timeout := t.Pin.Timeout
	if timeout <= 0 {
		timeout = pin.DefaultTimeout
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}
