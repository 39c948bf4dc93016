// Package report renders a runner.Report for people and for Prometheus.
//
// Print writes numbered per-check narration and a PASS/FAIL summary.
// WriteMetrics and WriteMetricsFile emit a text exposition built from
// client_model families and encoded with expfmt, meant for node_exporter's
// textfile collector.
package report
