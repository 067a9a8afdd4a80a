package ingest

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunnerDrainOnce(t *testing.T) {
	f := newPipelineFixture(t, true)
	f.put(t, ideasEndpoint, liveBaseURL, ideasBody("a"))
	f.put(t, ideasEndpoint, liveBaseURL, ideasBody("b"))
	f.put(t, ideasEndpoint, liveBaseURL, ideasBody("c"))

	r := NewRunner(RunnerConfig{Pipeline: f.pipeline, BatchSize: 2, Logger: quietLogger()})
	stats, err := r.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce: %v", err)
	}
	if stats.ProcessedResponses != 3 || stats.BatchesProcessed != 2 {
		t.Errorf("stats = %+v", stats)
	}

	stats, err = r.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("second DrainOnce: %v", err)
	}
	if stats.ProcessedResponses != 0 {
		t.Errorf("empty backlog processed %d", stats.ProcessedResponses)
	}
}

func TestRunnerStartStopsOnCancel(t *testing.T) {
	f := newPipelineFixture(t, true)
	f.put(t, ideasEndpoint, liveBaseURL, ideasBody("a"))

	r := NewRunner(RunnerConfig{Pipeline: f.pipeline, Interval: 10 * time.Millisecond, Logger: quietLogger()})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := r.Start(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Start returned %v, want deadline exceeded", err)
	}
	if n := f.unprocessed(t); n != 0 {
		t.Errorf("unprocessed = %d after Start, want 0", n)
	}
}

func TestRunnerDefaults(t *testing.T) {
	r := NewRunner(RunnerConfig{})
	if r.interval != 60*time.Second || r.batchSize != DefaultChunkSize {
		t.Errorf("defaults = %v %d", r.interval, r.batchSize)
	}
}
