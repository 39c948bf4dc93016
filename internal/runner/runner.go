package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/securepool/pincheck/internal/check"
	"github.com/securepool/pincheck/internal/config"
)

// Step is one check together with its position in the run.
type Step struct {
	Check check.Check

	// Type is the configured check type, reported even when the step is
	// skipped.
	Type string

	// Requires names earlier steps that must pass before this one runs.
	Requires []string

	// Optional steps never fail the run.
	Optional bool
}

// Report is the outcome of one run.
type Report struct {
	RunID      string
	Target     string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []*check.Result
}

// Passed reports whether every non-optional check passed.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Optional && !res.Passed() {
			return false
		}
	}
	return true
}

// Failed returns the non-optional results that did not pass.
func (r *Report) Failed() []*check.Result {
	var out []*check.Result
	for _, res := range r.Results {
		if !res.Optional && !res.Passed() {
			out = append(out, res)
		}
	}
	return out
}

// Result returns the result for the named check, or nil.
func (r *Report) Result(name string) *check.Result {
	for _, res := range r.Results {
		if res.Name == name {
			return res
		}
	}
	return nil
}

// ExitCode maps the report to a process exit status: 0 when Passed, 1
// otherwise.
func (r *Report) ExitCode() int {
	if r.Passed() {
		return 0
	}
	return 1
}

// Runner executes steps one after another. It is not safe for concurrent
// use; each Run is independent.
type Runner struct {
	target string
	steps  []Step
	now    func() time.Time // injectable for deterministic tests
}

// New returns a Runner for the given steps. target is only used for
// reporting.
func New(target string, steps []Step) *Runner {
	return &Runner{target: target, steps: steps, now: time.Now}
}

// FromConfig builds a Runner with one step per configured check.
func FromConfig(cfg *config.Config) (*Runner, error) {
	pt, err := cfg.PinTarget()
	if err != nil {
		return nil, err
	}
	kind, err := cfg.PinKind()
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	pins, err := cfg.PinSet()
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}
	tgt := check.Target{Pin: pt, Kind: kind, Pins: pins, EnforcePin: cfg.Target.TLS.EnforcePin}

	steps := make([]Step, 0, len(cfg.Checks))
	for _, def := range cfg.Checks {
		c, err := check.New(def, tgt)
		if err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
		steps = append(steps, Step{Check: c, Type: def.Type, Requires: def.Requires, Optional: def.Optional})
	}
	return New(pt.Addr(), steps), nil
}

// Run executes every step exactly once, in order. A step whose required
// step did not pass is skipped. Failures are recorded in the Report; Run
// itself never fails.
func (r *Runner) Run(ctx context.Context) *Report {
	rep := &Report{
		RunID:     uuid.NewString(),
		Target:    r.target,
		StartedAt: r.now(),
	}
	log := slog.With("run_id", rep.RunID)
	log.Info("runner: run started", "target", r.target, "checks", len(r.steps))

	passed := make(map[string]bool, len(r.steps))
	for _, st := range r.steps {
		name := st.Check.Name()

		var res *check.Result
		if missing := unmet(st.Requires, passed); len(missing) > 0 {
			res = &check.Result{
				Name:   name,
				Type:   st.Type,
				Status: check.StatusSkipped,
				Err:    fmt.Errorf("runner: requires %s which did not pass", strings.Join(missing, ", ")),
			}
			res.Detail = res.Err.Error()
		} else {
			start := r.now()
			res = st.Check.Run(ctx)
			res.Duration = r.now().Sub(start)
		}
		res.Optional = st.Optional
		passed[name] = res.Passed()
		rep.Results = append(rep.Results, res)

		attrs := []any{"check", name, "type", res.Type, "status", res.Status,
			"optional", res.Optional, "duration", res.Duration}
		if res.Err != nil {
			attrs = append(attrs, "err", res.Err)
		}
		log.Info("runner: check completed", attrs...)
	}

	rep.FinishedAt = r.now()
	log.Info("runner: run finished", "passed", rep.Passed(), "failed", len(rep.Failed()),
		"elapsed", rep.FinishedAt.Sub(rep.StartedAt))
	return rep
}

// unmet returns the names in requires that are not marked passed.
func unmet(requires []string, passed map[string]bool) []string {
	var out []string
	for _, req := range requires {
		if !passed[req] {
			out = append(out, req)
		}
	}
	return out
}
