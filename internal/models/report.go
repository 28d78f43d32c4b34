package models

import (
	"fmt"
	"time"
)

// SourceFailure records one source that could not be fetched during a cycle.
type SourceFailure struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// CycleReport summarizes one ingestion cycle.
type CycleReport struct {
	Fetched          int             `json:"fetched"`
	Dropped          int             `json:"dropped"`
	Deduped          int             `json:"deduped"`
	Translated       int             `json:"translated"`
	Written          int             `json:"written"`
	Errors           []SourceFailure `json:"errors"`
	EnrichmentQueued bool            `json:"enrichmentQueued"`
	StartedAt        time.Time       `json:"startedAt"`
	FinishedAt       time.Time       `json:"finishedAt"`
}

func (r CycleReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary renders the counts for manual-trigger callers.
func (r CycleReport) Summary() string {
	return fmt.Sprintf("fetched %d, dropped %d, unique %d, written %d, failed sources %d",
		r.Fetched, r.Dropped, r.Deduped, r.Written, len(r.Errors))
}

// CleanupReport summarizes one expiry sweep.
type CleanupReport struct {
	Deleted int64     `json:"deleted"`
	Cutoff  time.Time `json:"cutoff"`
}
