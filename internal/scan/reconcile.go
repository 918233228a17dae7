package scan

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yabodle/sitescan/internal/models"
)

// ProjectStore is the persistence surface the reconciler needs. FindByKey
// returns (nil, nil) when no row matches.
type ProjectStore interface {
	FindByKey(ctx context.Context, sourceID, externalID string) (*models.Project, error)
	Insert(ctx context.Context, p *models.Project) error
	Update(ctx context.Context, p *models.Project) error
	Touch(ctx context.Context, id uuid.UUID, seenAt time.Time) error
}

// Reconciler folds fetched opportunities into the project store, keyed on
// (source_id, external_id). Projects are never deleted here; staleness is
// handled separately.
type Reconciler struct {
	store ProjectStore
	now   func() time.Time
}

func NewReconciler(store ProjectStore) *Reconciler {
	return &Reconciler{store: store, now: time.Now}
}

// Reconcile upserts one opportunity and reports whether it was new, updated,
// or unchanged, along with the persisted project. matchScore and the optional
// resolved coordinates are computed by the caller before reconciliation so
// they persist atomically with the row.
func (r *Reconciler) Reconcile(ctx context.Context, opp Opportunity, matchScore *int, category string) (string, *models.Project, error) {
	existing, err := r.store.FindByKey(ctx, opp.SourceID, opp.ExternalID)
	if err != nil {
		return "", nil, err
	}

	seenAt := r.now().UTC()

	if existing == nil {
		p := projectFromOpportunity(opp, matchScore, category, seenAt)
		p.Status = models.StatusNew
		if err := r.store.Insert(ctx, p); err != nil {
			return "", nil, err
		}
		return models.StatusNew, p, nil
	}

	if materiallyEqual(existing, opp, matchScore) {
		if err := r.store.Touch(ctx, existing.ID, seenAt); err != nil {
			return "", nil, err
		}
		existing.Status = models.StatusUnchanged
		existing.LastSeen = seenAt
		return models.StatusUnchanged, existing, nil
	}

	p := projectFromOpportunity(opp, matchScore, category, seenAt)
	p.ID = existing.ID
	p.FirstSeen = existing.FirstSeen
	p.Status = models.StatusUpdated
	// Keep the resolved coordinates when the new record has none.
	if p.Latitude == nil {
		p.Latitude = existing.Latitude
		p.Longitude = existing.Longitude
	}
	if err := r.store.Update(ctx, p); err != nil {
		return "", nil, err
	}
	return models.StatusUpdated, p, nil
}

// materiallyEqual compares the fields a source can legitimately change.
// Timestamps, first_seen, and the synthetic status column are excluded.
func materiallyEqual(p *models.Project, opp Opportunity, matchScore *int) bool {
	if p.Title != opp.Title ||
		p.Description != opp.Description ||
		p.SourceStatus != opp.SourceStatus ||
		p.Contractor != opp.Contractor {
		return false
	}
	if !equalTimePtr(p.DueDate, opp.DueDate) {
		return false
	}
	if !equalFloatPtr(p.EstimatedValue, opp.EstimatedValue) {
		return false
	}
	if !equalIntPtr(p.MatchScore, matchScore) {
		return false
	}
	if !equalTags(p.TradeTags, opp.TradeTags) {
		return false
	}
	return true
}

func projectFromOpportunity(opp Opportunity, matchScore *int, category string, seenAt time.Time) *models.Project {
	return &models.Project{
		SourceID:       opp.SourceID,
		ExternalID:     opp.ExternalID,
		Title:          opp.Title,
		Description:    opp.Description,
		Agency:         opp.Agency,
		Location:       opp.Location,
		Latitude:       opp.Latitude,
		Longitude:      opp.Longitude,
		Category:       category,
		SourceStatus:   opp.SourceStatus,
		SolicitationNo: opp.SolicitationNo,
		PermitNumber:   opp.PermitNumber,
		Contractor:     opp.Contractor,
		NAICSCode:      opp.NAICSCode,
		SourceURL:      opp.SourceURL,
		PostedDate:     opp.PostedDate,
		DueDate:        opp.DueDate,
		EstimatedValue: opp.EstimatedValue,
		TradeTags:      opp.TradeTags,
		MatchScore:     matchScore,
		RawPayload:     opp.RawPayload,
		IsActive:       true,
		FirstSeen:      seenAt,
		LastSeen:       seenAt,
		LastChanged:    seenAt,
	}
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func equalFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
