package models

import (
	"time"

	"github.com/google/uuid"
)

// Scan run terminal states.
const (
	RunRunning         = "running"
	RunCompleted       = "completed"
	RunPartiallyFailed = "partially_failed"
	RunFailed          = "failed"
)

// SourceResult holds per-source counters for one scan run.
type SourceResult struct {
	SourceID  string `json:"source_id"`
	Fetched   int    `json:"fetched"`
	New       int    `json:"new"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Skipped   int    `json:"skipped"`
	Error     string `json:"error,omitempty"`
}

// ScanRun is one append-only entry in the scan history log.
type ScanRun struct {
	ID          uuid.UUID      `json:"id"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at"`
	Sources     []SourceResult `json:"sources"`
}

// Totals sums the per-source counters.
func (r *ScanRun) Totals() SourceResult {
	var t SourceResult
	for _, s := range r.Sources {
		t.Fetched += s.Fetched
		t.New += s.New
		t.Updated += s.Updated
		t.Unchanged += s.Unchanged
		t.Skipped += s.Skipped
	}
	return t
}
