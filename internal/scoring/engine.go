package scoring

import (
	"math"
	"strings"
)

// Input is the scorable slice of an opportunity. Coordinates are optional;
// callers resolve them before scoring so the engine stays pure.
type Input struct {
	Title       string
	Description string
	TradeTags   []string
	Latitude    *float64
	Longitude   *float64
}

// Score computes a 0-99 relevance score for the input against the profile.
// The highest keyword tier with at least one distinct match anchors the
// score; metro proximity adds a bonus and penalty keywords subtract. The
// result is clamped to [0, 99].
func Score(in Input, p Profile) int {
	text := foldText(in)

	score := p.Floor
	if n := countMatches(text, p.Core.Keywords); n > 0 {
		score = tierScore(p.Core, n)
	} else if n := countMatches(text, p.Strong.Keywords); n > 0 {
		score = tierScore(p.Strong, n)
	} else if n := countMatches(text, p.Moderate.Keywords); n > 0 {
		score = tierScore(p.Moderate, n)
	}

	if p.Metro.Bonus != 0 && in.Latitude != nil && in.Longitude != nil {
		dist := haversineMiles(*in.Latitude, *in.Longitude, p.Metro.Lat, p.Metro.Lng)
		if dist <= p.Metro.RadiusMiles {
			score += p.Metro.Bonus
		}
	}

	score -= p.PenaltyAmount * countMatches(text, p.PenaltyKeywords)

	return clamp(score, 0, 99)
}

func tierScore(t Tier, matches int) int {
	score := t.Base + t.Step*(matches-1)
	if t.Cap > 0 && score > t.Cap {
		score = t.Cap
	}
	return score
}

// foldText builds one lowercase haystack from title, description, and tags.
func foldText(in Input) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(in.Title))
	b.WriteByte(' ')
	b.WriteString(strings.ToLower(in.Description))
	for _, tag := range in.TradeTags {
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(tag))
	}
	return normalizeSpace(b.String())
}

// countMatches returns the number of distinct keywords found in the text.
func countMatches(text string, keywords []string) int {
	n := 0
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		k := normalizeSpace(strings.ToLower(kw))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if strings.Contains(text, k) {
			n++
		}
	}
	return n
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

const earthRadiusMiles = 3958.8

// haversineMiles computes the great-circle distance between two points.
func haversineMiles(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMiles * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
