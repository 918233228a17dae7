// Package scan harvests construction opportunities from configured sources,
// reconciles them against persisted projects, and records run history.
package scan

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// Opportunity is the canonical normalized record every adapter emits.
// (SourceID, ExternalID) is the dedup key; fields the canonical schema does
// not model survive only inside RawPayload.
type Opportunity struct {
	SourceID       string
	ExternalID     string
	Title          string
	Description    string
	Agency         string
	Location       string
	Latitude       *float64
	Longitude      *float64
	PostedDate     time.Time
	DueDate        *time.Time
	EstimatedValue *float64
	TradeTags      []string
	SourceStatus   string
	SolicitationNo string
	PermitNumber   string
	Contractor     string
	NAICSCode      string
	SourceURL      string
	RawPayload     json.RawMessage
}

// SourceDescriptor is the static identity of a configured source.
type SourceDescriptor struct {
	ID          string `json:"source_id"`
	Name        string `json:"name"`
	RequiresKey bool   `json:"requires_key"`
	Enabled     bool   `json:"enabled"`
}

// Batch is one adapter fetch result. Skipped counts individual records the
// adapter dropped as malformed; they never abort the batch.
type Batch struct {
	Opportunities []Opportunity
	Skipped       int
}

// Adapter pulls records from one external source and normalizes them.
// Implementations are read-only and idempotent against the source.
type Adapter interface {
	Descriptor() SourceDescriptor
	Fetch(ctx context.Context, since *time.Time) (*Batch, error)
}

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}
