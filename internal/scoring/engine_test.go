package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreCoreKeywordAnchorsHigh(t *testing.T) {
	p := DefaultProfile()
	in := Input{
		Title:       "Historic Masonry Restoration - County Courthouse",
		Description: "Repointing and repair of deteriorated brick facades.",
	}

	score := Score(in, p)
	require.GreaterOrEqual(t, score, 90, "core keyword match must score in the core band")
	require.LessOrEqual(t, score, 99)
}

func TestScorePenaltyStrictlyLowers(t *testing.T) {
	p := DefaultProfile()
	base := Input{
		Title:       "Historic Masonry Restoration - County Courthouse",
		Description: "Repointing and repair of deteriorated brick facades.",
	}
	penalized := base
	penalized.Description += " Includes landscaping of surrounding grounds."

	require.Less(t, Score(penalized, p), Score(base, p),
		"adding a penalty keyword must strictly lower the score")
}

func TestScoreDeterministic(t *testing.T) {
	p := DefaultProfile()
	in := Input{Title: "Foundation Repair", Description: "Structural repair and underpinning."}

	first := Score(in, p)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(in, p))
	}
}

func TestScoreMonotonicInCoreMatches(t *testing.T) {
	p := DefaultProfile()

	prev := -1
	desc := ""
	for _, kw := range p.Core.Keywords {
		desc += " " + kw
		score := Score(Input{Title: "Project", Description: desc}, p)
		require.GreaterOrEqual(t, score, prev,
			"score must not decrease as distinct core matches accumulate")
		prev = score
	}
	require.LessOrEqual(t, prev, 99)
}

func TestScoreBounds(t *testing.T) {
	p := DefaultProfile()

	tests := []struct {
		name string
		in   Input
	}{
		{"empty input", Input{}},
		{"all penalties", Input{Description: "landscaping mowing janitorial paving striping"}},
		{"everything at once", Input{
			Title:       "historic masonry restoration repointing tuckpointing",
			Description: "masonry brick stone facade chimney stucco mortar restoration renovation repair concrete",
			TradeTags:   []string{"historic preservation", "facade restoration", "brick repointing"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := Score(tt.in, p)
			assert.GreaterOrEqual(t, score, 0)
			assert.LessOrEqual(t, score, 99)
		})
	}
}

func TestScoreTierSelection(t *testing.T) {
	p := DefaultProfile()

	tests := []struct {
		name string
		in   Input
		lo   int
		hi   int
	}{
		{"core band", Input{Title: "Tuckpointing of chapel walls"}, 90, 99},
		{"strong band", Input{Title: "Chimney and stucco repair"}, 75, 89},
		{"moderate band", Input{Title: "Concrete sidewalk renovation"}, 60, 74},
		{"floor", Input{Title: "New playground equipment installation"}, 40, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := Score(tt.in, p)
			assert.GreaterOrEqual(t, score, tt.lo)
			assert.LessOrEqual(t, score, tt.hi)
		})
	}
}

func TestScoreMetroBonus(t *testing.T) {
	p := DefaultProfile()
	lat, lng := 32.7765, -79.9311 // metro center
	farLat, farLng := 34.8526, -82.3940

	near := Input{Title: "Chimney and stucco repair", Latitude: &lat, Longitude: &lng}
	far := Input{Title: "Chimney and stucco repair", Latitude: &farLat, Longitude: &farLng}

	require.Equal(t, Score(far, p)+p.Metro.Bonus, Score(near, p))
}

func TestScoreTradeTagsContribute(t *testing.T) {
	p := DefaultProfile()
	bare := Input{Title: "Building envelope project"}
	tagged := Input{Title: "Building envelope project", TradeTags: []string{"masonry"}}

	require.Greater(t, Score(tagged, p), Score(bare, p))
}
