package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadRegistry(t *testing.T) {
	t.Setenv("SAM_GOV_API_KEY", "test-key-123")

	reg, err := LoadRegistry()
	require.NoError(t, err)
	require.NotEmpty(t, reg.Sources)

	samGov, ok := reg.Get("sam_gov")
	require.True(t, ok)
	assert.Equal(t, "sam_gov", samGov.Strategy)
	assert.True(t, samGov.RequiresKey)
	assert.Equal(t, "test-key-123", samGov.APIKey)
	assert.False(t, samGov.KeyMissing())

	_, ok = reg.Get("nonexistent")
	assert.False(t, ok)
}

func TestKeyMissing(t *testing.T) {
	cfg := SourceConfig{ID: "x", RequiresKey: true}
	assert.True(t, cfg.KeyMissing())

	cfg.APIKey = "   "
	assert.True(t, cfg.KeyMissing())

	cfg.APIKey = "abc"
	assert.False(t, cfg.KeyMissing())

	open := SourceConfig{ID: "y", RequiresKey: false}
	assert.False(t, open.KeyMissing())
}

func TestRegistryKnownSources(t *testing.T) {
	t.Setenv("SAM_GOV_API_KEY", "")

	reg, err := LoadRegistry()
	require.NoError(t, err)

	for _, id := range []string{"sam_gov", "charleston_permits", "scbo", "charleston_city_bids"} {
		_, ok := reg.Get(id)
		assert.True(t, ok, "missing source %s", id)
	}
}

func TestBuildAdaptersCoversEnabledSources(t *testing.T) {
	t.Setenv("SAM_GOV_API_KEY", "k")

	reg, err := LoadRegistry()
	require.NoError(t, err)

	adapters, err := BuildAdapters(reg, zap.NewNop())
	require.NoError(t, err)

	enabled := 0
	for _, cfg := range reg.Sources {
		if cfg.Enabled {
			enabled++
		}
	}
	assert.Len(t, adapters, enabled)
}

func TestBuildAdaptersUnknownStrategy(t *testing.T) {
	reg := &Registry{Sources: []SourceConfig{
		{ID: "weird", Strategy: "carrier_pigeon", Enabled: true},
	}}
	_, err := BuildAdapters(reg, zap.NewNop())
	assert.Error(t, err)
}
