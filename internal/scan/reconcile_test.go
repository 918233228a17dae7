package scan

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yabodle/sitescan/internal/models"
)

// fakeProjectStore is an in-memory ProjectStore keyed on (source, external id).
type fakeProjectStore struct {
	rows map[string]*models.Project
}

func newFakeProjectStore() *fakeProjectStore {
	return &fakeProjectStore{rows: make(map[string]*models.Project)}
}

func storeKey(sourceID, externalID string) string {
	return sourceID + "\x00" + externalID
}

func (s *fakeProjectStore) FindByKey(_ context.Context, sourceID, externalID string) (*models.Project, error) {
	p, ok := s.rows[storeKey(sourceID, externalID)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakeProjectStore) Insert(_ context.Context, p *models.Project) error {
	p.ID = uuid.New()
	cp := *p
	s.rows[storeKey(p.SourceID, p.ExternalID)] = &cp
	return nil
}

func (s *fakeProjectStore) Update(_ context.Context, p *models.Project) error {
	cp := *p
	s.rows[storeKey(p.SourceID, p.ExternalID)] = &cp
	return nil
}

func (s *fakeProjectStore) Touch(_ context.Context, id uuid.UUID, seenAt time.Time) error {
	for _, p := range s.rows {
		if p.ID == id {
			p.LastSeen = seenAt
			p.Status = models.StatusUnchanged
			return nil
		}
	}
	return nil
}

func scboOpp() Opportunity {
	return Opportunity{
		SourceID:   "scbo",
		ExternalID: "B-77",
		Title:      "Gym Roof Replacement",
		PostedDate: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestReconcileNewThenUnchanged(t *testing.T) {
	store := newFakeProjectStore()
	r := NewReconciler(store)
	ctx := context.Background()
	score := 62

	outcome, p, err := r.Reconcile(ctx, scboOpp(), &score, "commercial")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, outcome)
	require.NotNil(t, p.MatchScore)
	assert.Equal(t, 62, *p.MatchScore)
	firstSeen := p.FirstSeen

	// Same record again: idempotent, only last_seen advances.
	outcome, p, err = r.Reconcile(ctx, scboOpp(), &score, "commercial")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnchanged, outcome)
	assert.Equal(t, firstSeen, p.FirstSeen)
}

func TestReconcileMaterialChangeIsUpdated(t *testing.T) {
	store := newFakeProjectStore()
	r := NewReconciler(store)
	ctx := context.Background()
	score := 62

	_, first, err := r.Reconcile(ctx, scboOpp(), &score, "commercial")
	require.NoError(t, err)

	changed := scboOpp()
	val := 250_000.0
	changed.EstimatedValue = &val

	outcome, second, err := r.Reconcile(ctx, changed, &score, "commercial")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUpdated, outcome)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.FirstSeen, second.FirstSeen)
	assert.True(t, second.LastChanged.After(first.LastChanged) || second.LastChanged.Equal(first.LastChanged))
	require.NotNil(t, second.EstimatedValue)
	assert.Equal(t, val, *second.EstimatedValue)
}

func TestReconcileScoreChangeIsUpdated(t *testing.T) {
	store := newFakeProjectStore()
	r := NewReconciler(store)
	ctx := context.Background()

	low := 62
	_, _, err := r.Reconcile(ctx, scboOpp(), &low, "commercial")
	require.NoError(t, err)

	high := 90
	outcome, p, err := r.Reconcile(ctx, scboOpp(), &high, "commercial")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUpdated, outcome)
	require.NotNil(t, p.MatchScore)
	assert.Equal(t, 90, *p.MatchScore)
}

func TestReconcileKeyUniqueness(t *testing.T) {
	store := newFakeProjectStore()
	r := NewReconciler(store)
	ctx := context.Background()
	score := 50

	// Same external id from two different sources must produce two rows.
	a := scboOpp()
	b := scboOpp()
	b.SourceID = "charleston_city_bids"

	_, _, err := r.Reconcile(ctx, a, &score, "commercial")
	require.NoError(t, err)
	_, _, err = r.Reconcile(ctx, b, &score, "commercial")
	require.NoError(t, err)

	assert.Len(t, store.rows, 2)
}

func TestReconcileKeepsResolvedCoordinates(t *testing.T) {
	store := newFakeProjectStore()
	r := NewReconciler(store)
	ctx := context.Background()
	score := 50

	withCoords := scboOpp()
	lat, lng := 32.7765, -79.9311
	withCoords.Latitude = &lat
	withCoords.Longitude = &lng
	_, _, err := r.Reconcile(ctx, withCoords, &score, "commercial")
	require.NoError(t, err)

	// A later fetch without coordinates must not wipe the resolved ones.
	changed := scboOpp()
	changed.Title = "Gym Roof Replacement Phase 2"
	outcome, p, err := r.Reconcile(ctx, changed, &score, "commercial")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUpdated, outcome)
	require.NotNil(t, p.Latitude)
	assert.Equal(t, lat, *p.Latitude)
}
