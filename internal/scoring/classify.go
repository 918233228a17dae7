package scoring

import "regexp"

// categoryPatterns are evaluated in priority order; first hit wins.
var categoryPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"historic-restoration", regexp.MustCompile(`(?i)\b(historic|restoration|preservation|landmark|heritage)\b`)},
	{"masonry", regexp.MustCompile(`(?i)\b(masonry|brick|stone|mortar|repoint\w*|tuckpoint\w*|stucco)\b`)},
	{"structural", regexp.MustCompile(`(?i)\b(structural|foundation|seismic|retrofit|shoring|underpinning)\b`)},
	{"government", regexp.MustCompile(`(?i)\b(municipal|county|federal|public works|courthouse|school district)\b|city of|state of`)},
	{"commercial", regexp.MustCompile(`(?i)\b(commercial|office|retail|warehouse|hotel|restaurant|mixed.use)\b`)},
}

// Classify assigns a trade category to an opportunity from its text.
func Classify(title, description string) string {
	text := title + " " + description
	for _, p := range categoryPatterns {
		if p.re.MatchString(text) {
			return p.name
		}
	}
	return "residential"
}
