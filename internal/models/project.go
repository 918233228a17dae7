package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Reconcile states recorded on a project after each scan.
const (
	StatusNew       = "new"
	StatusUpdated   = "updated"
	StatusUnchanged = "unchanged"
)

// Project is a persisted construction opportunity. Rows are keyed by
// (source_id, external_id) and are never deleted by the scan pipeline.
type Project struct {
	ID             uuid.UUID       `json:"id"`
	SourceID       string          `json:"source_id"`
	ExternalID     string          `json:"external_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Agency         string          `json:"agency"`
	Location       string          `json:"location"`
	Latitude       *float64        `json:"latitude"`
	Longitude      *float64        `json:"longitude"`
	Category       string          `json:"category"`
	Status         string          `json:"status"` // new, updated, unchanged
	SourceStatus   string          `json:"source_status"`
	SolicitationNo string          `json:"solicitation_number"`
	PermitNumber   string          `json:"permit_number"`
	Contractor     string          `json:"contractor"`
	NAICSCode      string          `json:"naics_code"`
	SourceURL      string          `json:"source_url"`
	PostedDate     time.Time       `json:"posted_date"`
	DueDate        *time.Time      `json:"due_date"`
	EstimatedValue *float64        `json:"estimated_value"`
	TradeTags      []string        `json:"trade_tags"`
	MatchScore     *int            `json:"match_score"` // 0-99, null until scored
	RawPayload     json.RawMessage `json:"raw_payload,omitempty"`
	IsActive       bool            `json:"is_active"`
	FirstSeen      time.Time       `json:"first_seen"`
	LastSeen       time.Time       `json:"last_seen"`
	LastChanged    time.Time       `json:"last_changed"`
}
