package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/securepool/pincheck/internal/check"
	"github.com/securepool/pincheck/internal/runner"
)

const rule = "=================================================="

// Print writes a human-readable account of rep to w: one numbered block per
// check followed by a summary line.
func Print(w io.Writer, rep *runner.Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Certificate pinning check: %s\n", rep.Target)
	fmt.Fprintf(&b, "%s\n", rule)

	for i, res := range rep.Results {
		label := res.Name
		if res.Type != "" {
			label += " [" + res.Type + "]"
		}
		if res.Optional {
			label += " (optional)"
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, label)
		fmt.Fprintf(&b, "   %s %s\n", mark(res), res.Detail)
		if res.Pin != "" && !res.Passed() {
			fmt.Fprintf(&b, "   actual pin: %s\n", res.Pin)
		}
	}

	fmt.Fprintf(&b, "%s\n", rule)
	if rep.Passed() {
		fmt.Fprintf(&b, "PASS: %d/%d checks passed (run %s)\n", countPassed(rep), len(rep.Results), rep.RunID)
	} else {
		names := make([]string, 0, len(rep.Failed()))
		for _, res := range rep.Failed() {
			names = append(names, res.Name)
		}
		fmt.Fprintf(&b, "FAIL: %s (run %s)\n", strings.Join(names, ", "), rep.RunID)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// mark returns the status marker shown in front of a result's detail.
// Optional failures are warnings.
func mark(res *check.Result) string {
	switch {
	case res.Passed():
		return "[ok]"
	case res.Status == check.StatusSkipped:
		return "[skip]"
	case res.Optional:
		return "[warn]"
	default:
		return "[" + string(res.Status) + "]"
	}
}

func countPassed(rep *runner.Report) int {
	n := 0
	for _, res := range rep.Results {
		if res.Passed() {
			n++
		}
	}
	return n
}
