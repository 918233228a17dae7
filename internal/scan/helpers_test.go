package scan

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
		nil_ bool
	}{
		{"plain dollars", "$1,500,000", 1_500_000, false},
		{"millions word", "approximately 1.2 million dollars", 1_200_000, false},
		{"k suffix", "$500k", 500_000, false},
		{"cost range takes first bound", "$500,000 - $1,000,000", 500_000, false},
		{"no amount", "to be determined", 0, true},
		{"empty", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseMoney(tt.in)
			if tt.nil_ {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestNormalizeTags(t *testing.T) {
	got := normalizeTags([]string{"Masonry", "  permit ", "masonry", "", "Brick"})
	assert.Equal(t, []string{"brick", "masonry", "permit"}, got)
}

func TestNormalizeTagsStable(t *testing.T) {
	a := normalizeTags([]string{"b", "a", "c"})
	b := normalizeTags([]string{"c", "a", "b", "A"})
	assert.Equal(t, a, b)
}

func TestSanitizeHTML(t *testing.T) {
	got := sanitizeHTML("<p>Repoint <b>brick</b> facade</p><script>alert(1)</script>")
	assert.Equal(t, "Repoint brick facade", got)
}

func TestValidOpportunity(t *testing.T) {
	base := Opportunity{
		SourceID:   "scbo",
		ExternalID: "B-77",
		Title:      "Roof replacement",
		PostedDate: time.Now(),
	}
	assert.True(t, validOpportunity(base))

	missing := base
	missing.ExternalID = ""
	assert.False(t, validOpportunity(missing))

	noDate := base
	noDate.PostedDate = time.Time{}
	assert.False(t, validOpportunity(noDate))
}

func TestClassifyFetchErr(t *testing.T) {
	assert.Equal(t, KindTimeout, classifyFetchErr(timeoutErr{}))
	assert.Equal(t, KindAuth, classifyFetchErr(errStatus(401)))
	assert.Equal(t, KindAuth, classifyFetchErr(errStatus(403)))
	assert.Equal(t, KindNetwork, classifyFetchErr(errStatus(502)))
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

type errStatus int

func (e errStatus) Error() string { return "unexpected status code: " + strconv.Itoa(int(e)) }
