package scan

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// normalizeSpace collapses multiple spaces into one and trims the string.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanText normalizes whitespace (alias for normalizeSpace)
func cleanText(s string) string {
	return normalizeSpace(s)
}

// sanitizeUTF8 removes invalid UTF-8 byte sequences that cause PostgreSQL errors.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}

var strictPolicy = bluemonday.StrictPolicy()

// sanitizeHTML strips all markup, leaving plain text.
func sanitizeHTML(s string) string {
	return cleanText(strictPolicy.Sanitize(s))
}

// normalizeTags dedupes case-insensitively and sorts, giving trade tags
// stable set semantics so unchanged records compare byte-equal.
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(cleanText(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

var moneyRe = regexp.MustCompile(`\$?\s*([\d,]+(?:\.\d+)?)\s*(million|m|k)?`)

// parseMoney extracts a dollar amount from free text such as "$1,500,000",
// "1.2 million", or "Construction Cost Range: $500k". Returns nil when no
// amount is present.
func parseMoney(text string) *float64 {
	m := moneyRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return nil
	}

	raw := strings.ReplaceAll(m[1], ",", "")
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil || val <= 0 {
		return nil
	}

	switch m[2] {
	case "million", "m":
		val *= 1_000_000
	case "k":
		val *= 1_000
	}

	return &val
}

// normalizeOpportunity applies the canonical cleanups every adapter output
// goes through before reconciliation.
func normalizeOpportunity(opp *Opportunity) {
	opp.Title = sanitizeUTF8(cleanText(opp.Title))
	opp.Description = sanitizeUTF8(sanitizeHTML(opp.Description))
	opp.Agency = cleanText(opp.Agency)
	opp.Location = cleanText(opp.Location)
	opp.SourceStatus = cleanText(opp.SourceStatus)
	opp.TradeTags = normalizeTags(opp.TradeTags)
}

// validOpportunity reports whether a normalized record carries the minimum
// required fields. Invalid records are skipped and counted, never fatal.
func validOpportunity(opp Opportunity) bool {
	return opp.SourceID != "" && opp.ExternalID != "" && opp.Title != "" && !opp.PostedDate.IsZero()
}

// classifyFetchErr maps transport errors to an AdapterError kind.
func classifyFetchErr(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		return KindTimeout
	}
	msg := err.Error()
	if strings.Contains(msg, strconv.Itoa(http.StatusUnauthorized)) || strings.Contains(msg, strconv.Itoa(http.StatusForbidden)) {
		return KindAuth
	}
	return KindNetwork
}
