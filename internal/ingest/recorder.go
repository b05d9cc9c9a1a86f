package ingest

import "time"

// Recorder receives run metrics. internal/metrics provides the Prometheus
// implementation.
type Recorder interface {
	RecordDecision(entity, action string)
	RecordRowError(kind string)
	RecordRun(dryRun bool, status string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(string, string)         {}
func (nopRecorder) RecordRowError(string)                 {}
func (nopRecorder) RecordRun(bool, string, time.Duration) {}
