package geocode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupStatic(t *testing.T) {
	tests := []struct {
		name     string
		location string
		found    bool
	}{
		{"exact city", "Charleston", true},
		{"city with state", "charleston, sc", true},
		{"county", "Berkeley County", true},
		{"street address containing city", "123 King St, Charleston, SC 29401", true},
		{"case and spacing", "  MOUNT   PLEASANT ", true},
		{"unknown", "Asheville, NC", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := LookupStatic(tt.location)
			assert.Equal(t, tt.found, ok)
			if ok {
				assert.NotZero(t, p.Lat)
				assert.NotZero(t, p.Lng)
			}
		})
	}
}

func TestLookupStaticCharlestonCoordinates(t *testing.T) {
	p, ok := LookupStatic("Charleston")
	require.True(t, ok)
	assert.InDelta(t, 32.7765, p.Lat, 0.001)
	assert.InDelta(t, -79.9311, p.Lng, 0.001)
}
