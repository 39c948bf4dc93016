// Package runner executes a list of named checks sequentially and collects
// their results into a Report.
//
// Every check runs at most once per Run, with no retries and no
// parallelism. A check listing requires is skipped when any of those
// checks did not pass. Optional checks are reported but never make the
// Report fail. Each run gets a UUID that tags every log line it emits.
package runner
