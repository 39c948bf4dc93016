package check

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/securepool/pincheck/internal/config"
	"github.com/securepool/pincheck/internal/pin"
)

type wsCheck struct {
	def    config.Check
	target Target
	tlsCfg *tls.Config
}

func (c *wsCheck) Name() string { return c.def.Name }

// Run performs a WebSocket upgrade against the configured path and closes
// the connection as soon as it is established. A refused upgrade is
// StatusFail carrying the HTTP status the server answered with.
func (c *wsCheck) Run(ctx context.Context) *Result {
	res := newResult(c.def.Name, config.TypeWebSocket)

	timeout := c.target.Pin.Timeout
	if timeout <= 0 {
		timeout = pin.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := websocket.Dialer{
		TLSClientConfig:  c.tlsCfg,
		HandshakeTimeout: timeout,
	}

	header := http.Header{}
	for k, v := range c.def.Headers {
		header.Set(k, v)
	}
	if name := c.target.Pin.ServerName; name != "" {
		header.Set("Host", name)
	}
	applyAuth(header, c.def.Auth)

	url := "wss://" + c.target.Pin.Addr() + c.def.Path
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil {
		res.HTTPStatus = resp.StatusCode
	}
	if err != nil {
		epErr := &EndpointError{Method: http.MethodGet, Path: c.def.Path, Err: err}
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			epErr.Status = resp.StatusCode
			slog.Warn("check: websocket upgrade refused", "check", c.def.Name, "path", c.def.Path, "status", resp.StatusCode)
			res.Detail = fmt.Sprintf("upgrade refused with status %d", resp.StatusCode)
			return res.fail(StatusFail, epErr)
		}
		slog.Warn("check: websocket dial failed", "check", c.def.Name, "path", c.def.Path, "err", err)
		return res.fail(statusFor(err), epErr)
	}
	defer conn.Close()

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))

	slog.Debug("check: websocket upgraded", "check", c.def.Name, "path", c.def.Path, "subprotocol", conn.Subprotocol())
	return res.pass(fmt.Sprintf("upgraded with status %d", res.HTTPStatus))
}
