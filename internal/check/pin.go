package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/securepool/pincheck/internal/config"
	"github.com/securepool/pincheck/internal/pin"
)

type pinCheck struct {
	name   string
	target Target
}

func (c *pinCheck) Name() string { return c.name }

// Run fetches the leaf certificate pin and compares it with the expected set.
// Connectivity failures are StatusError; a mismatch is StatusFail.
func (c *pinCheck) Run(ctx context.Context) *Result {
	res := newResult(c.name, config.TypePin)

	got, err := pin.Verify(ctx, c.target.Pin, c.target.Kind, c.target.Pins)
	if got != nil {
		res.Pin = got.Pin
		res.NotAfter = got.Leaf.NotAfter
	}

	var me *pin.MismatchError
	switch {
	case err == nil:
		slog.Debug("check: pin matched", "check", c.name, "addr", got.Addr, "pin", got.Pin)
		return res.pass(fmt.Sprintf("%s pin %s matches", got.Kind, got.Pin))
	case errors.As(err, &me):
		slog.Warn("check: pin mismatch", "check", c.name, "addr", me.Addr, "got", me.Got, "want", me.Want)
		return res.fail(StatusFail, err)
	default:
		slog.Warn("check: pin fetch failed", "check", c.name, "addr", c.target.Pin.Addr(), "err", err)
		return res.fail(StatusError, err)
	}
}
