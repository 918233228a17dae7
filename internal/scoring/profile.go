// Package scoring ranks construction opportunities against a specialty
// profile. The engine is pure: same input and profile always produce the
// same score, with no I/O.
package scoring

// Tier is one keyword band of a profile. A single match anchors the score
// at Base; each additional distinct match adds Step, up to Cap.
type Tier struct {
	Keywords []string `json:"keywords"`
	Base     int      `json:"base"`
	Step     int      `json:"step"`
	Cap      int      `json:"cap"`
}

// Metro defines a geographic bonus region.
type Metro struct {
	Name        string  `json:"name"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	RadiusMiles float64 `json:"radius_miles"`
	Bonus       int     `json:"bonus"`
}

// Profile holds a contractor's relevance criteria. It is a read-only input
// to the engine.
type Profile struct {
	Core            Tier     `json:"core"`
	Strong          Tier     `json:"strong"`
	Moderate        Tier     `json:"moderate"`
	PenaltyKeywords []string `json:"penalty_keywords"`
	PenaltyAmount   int      `json:"penalty_amount"`
	Floor           int      `json:"floor"`
	Metro           Metro    `json:"metro"`
	AlertThreshold  int      `json:"alert_threshold"`
}

// DefaultProfile encodes the historic masonry restoration specialty used
// when a user has not configured their own criteria.
func DefaultProfile() Profile {
	return Profile{
		Core: Tier{
			Keywords: []string{
				"historic masonry", "masonry restoration", "historic restoration",
				"brick repointing", "repointing", "tuckpointing",
				"historic preservation", "facade restoration",
			},
			Base: 90, Step: 3, Cap: 99,
		},
		Strong: Tier{
			Keywords: []string{
				"masonry", "brick repair", "brick", "stone repair", "stonework",
				"facade", "foundation repair", "structural repair", "chimney",
				"stucco", "mortar",
			},
			Base: 75, Step: 2, Cap: 89,
		},
		Moderate: Tier{
			Keywords: []string{
				"restoration", "renovation", "rehabilitation", "repair",
				"concrete", "waterproofing", "retrofit", "preservation",
			},
			Base: 60, Step: 2, Cap: 74,
		},
		PenaltyKeywords: []string{
			"landscaping", "mowing", "janitorial", "hvac only", "electrical only",
			"paving", "striping",
		},
		PenaltyAmount: 15,
		Floor:         40,
		Metro: Metro{
			Name:        "Charleston",
			Lat:         32.7765,
			Lng:         -79.9311,
			RadiusMiles: 50,
			Bonus:       5,
		},
		AlertThreshold: 75,
	}
}

// ProfileFor is the profile as one user sees it: the shared specialty
// criteria with the user's own alert threshold. A zero threshold keeps the
// profile default.
func ProfileFor(base Profile, minScore int) Profile {
	if minScore > 0 {
		base.AlertThreshold = minScore
	}
	return base
}
