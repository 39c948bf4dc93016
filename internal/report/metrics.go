package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/securepool/pincheck/internal/runner"
)

// Metric names written by WriteMetrics.
const (
	metricCheckSuccess  = "pincheck_check_success"
	metricCheckDuration = "pincheck_check_duration_seconds"
	metricRunSuccess    = "pincheck_run_success"
	metricRunTimestamp  = "pincheck_run_timestamp_seconds"
	metricCertExpiry    = "pincheck_certificate_expiry_timestamp_seconds"
)

// WriteMetrics encodes rep as a Prometheus text exposition.
func WriteMetrics(w io.Writer, rep *runner.Report) error {
	for _, mf := range families(rep) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("report: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteMetricsFile writes the exposition for rep to path. The file is
// replaced atomically so a collector never reads a partial file.
func WriteMetricsFile(path string, rep *runner.Report) error {
	var buf bytes.Buffer
	if err := WriteMetrics(&buf, rep); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".pincheck-*.prom")
	if err != nil {
		return fmt.Errorf("report: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("report: write metrics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: close metrics: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("report: chmod metrics: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("report: rename metrics: %w", err)
	}
	return nil
}

// families builds the metric families for rep in a stable order.
func families(rep *runner.Report) []*dto.MetricFamily {
	success := gaugeFamily(metricCheckSuccess, "Whether the check passed (1) or not (0).")
	duration := gaugeFamily(metricCheckDuration, "Wall-clock duration of the check.")
	expiry := gaugeFamily(metricCertExpiry, "NotAfter of the leaf certificate seen by a pin check.")

	for _, res := range rep.Results {
		labels := []*dto.LabelPair{
			label("check", res.Name),
			label("optional", fmt.Sprint(res.Optional)),
			label("status", string(res.Status)),
			label("target", rep.Target),
			label("type", res.Type),
		}
		success.Metric = append(success.Metric, gauge(boolValue(res.Passed()), labels...))
		duration.Metric = append(duration.Metric, gauge(res.Duration.Seconds(),
			label("check", res.Name), label("target", rep.Target)))
		if !res.NotAfter.IsZero() {
			expiry.Metric = append(expiry.Metric, gauge(float64(res.NotAfter.Unix()),
				label("check", res.Name), label("pin", res.Pin), label("target", rep.Target)))
		}
	}

	run := gaugeFamily(metricRunSuccess, "Whether every required check passed.")
	run.Metric = append(run.Metric, gauge(boolValue(rep.Passed()), label("target", rep.Target)))

	ts := gaugeFamily(metricRunTimestamp, "Unix time the run finished.")
	ts.Metric = append(ts.Metric, gauge(float64(rep.FinishedAt.Unix()), label("target", rep.Target)))

	out := []*dto.MetricFamily{success, duration, run, ts}
	if len(expiry.Metric) > 0 {
		out = append(out, expiry)
	}
	return out
}

func gaugeFamily(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func gauge(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{
		Label: labels,
		Gauge: &dto.Gauge{Value: proto.Float64(v)},
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
