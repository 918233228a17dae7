package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// SCBOAdapter scrapes construction solicitations from the South Carolina
// Business Opportunities daily edition. Each day's page is a flat listing of
// labeled blocks, one per solicitation.
type SCBOAdapter struct {
	cfg     SourceConfig
	fetcher Fetcher
	log     *zap.Logger
	now     func() time.Time
}

func NewSCBOAdapter(cfg SourceConfig, fetcher Fetcher, log *zap.Logger) *SCBOAdapter {
	return &SCBOAdapter{cfg: cfg, fetcher: fetcher, log: log, now: time.Now}
}

func (a *SCBOAdapter) Descriptor() SourceDescriptor {
	return a.cfg.Descriptor()
}

var (
	scboProjectNameRe = regexp.MustCompile(`Project Name:\s*(.+)`)
	scboProjectNumRe  = regexp.MustCompile(`Project Number:\s*(\S+)`)
	scboAgencyRe      = regexp.MustCompile(`Agency/Owner:\s*(.+)`)
	scboCostRangeRe   = regexp.MustCompile(`Construction Cost Range:\s*(.+)`)
	scboLocationRe    = regexp.MustCompile(`Location:\s*(.+)`)
	scboBidDueRe      = regexp.MustCompile(`Bid (?:Due|Opening) Date(?:/Time)?:\s*(\d{1,2}/\d{1,2}/\d{4})`)
)

// Fetch scrapes one daily edition per day in the lookback window. Skipping
// weekends is not worth the complexity; empty editions just parse to zero
// records.
func (a *SCBOAdapter) Fetch(ctx context.Context, since *time.Time) (*Batch, error) {
	days := a.daysBack()
	if since != nil {
		if d := int(a.now().Sub(*since).Hours()/24) + 1; d < days && d > 0 {
			days = d
		}
	}

	batch := &Batch{}
	seen := make(map[string]struct{})
	var lastErr error
	fetched := false

	for i := 0; i < days; i++ {
		day := a.now().AddDate(0, 0, -i)
		editionURL := fmt.Sprintf("%s?c=3-%s", a.cfg.BaseURL, day.Format("01/02/2006"))

		doc, err := a.fetcher.Fetch(ctx, editionURL)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(doc.Body)
		doc.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("edition %s: %w", day.Format("01/02/2006"), err)
			continue
		}
		fetched = true

		dayBatch, err := parseSCBOEdition(body, a.cfg.ID, editionURL, day)
		if err != nil {
			return nil, adapterErr(a.cfg.ID, KindFormat, err)
		}
		batch.Skipped += dayBatch.Skipped
		for _, opp := range dayBatch.Opportunities {
			if _, dup := seen[opp.ExternalID]; dup {
				continue
			}
			seen[opp.ExternalID] = struct{}{}
			batch.Opportunities = append(batch.Opportunities, opp)
		}
	}

	// Whole-call failure only when no edition could be fetched at all.
	if !fetched && lastErr != nil {
		return nil, adapterErr(a.cfg.ID, classifyFetchErr(lastErr), lastErr)
	}

	a.log.Info("scbo fetch complete",
		zap.Int("records", len(batch.Opportunities)),
		zap.Int("skipped", batch.Skipped))

	return batch, nil
}

// parseSCBOEdition extracts labeled solicitation blocks from one daily
// edition page. Blocks without a project number are skipped and counted.
func parseSCBOEdition(body []byte, sourceID, editionURL string, editionDate time.Time) (*Batch, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	text := doc.Find("body").Text()
	if text == "" {
		text = string(body)
	}

	batch := &Batch{}
	chunks := strings.Split(text, "Project Name:")
	for _, chunk := range chunks[1:] {
		chunk = "Project Name:" + chunk

		name := firstMatch(scboProjectNameRe, chunk)
		number := firstMatch(scboProjectNumRe, chunk)
		if name == "" || number == "" {
			batch.Skipped++
			continue
		}

		opp := Opportunity{
			SourceID:       sourceID,
			ExternalID:     number,
			Title:          name,
			Agency:         firstMatch(scboAgencyRe, chunk),
			Location:       firstMatch(scboLocationRe, chunk),
			PostedDate:     editionDate.UTC().Truncate(24 * time.Hour),
			SolicitationNo: number,
			SourceURL:      editionURL,
			TradeTags:      []string{"state", "solicitation"},
		}

		if costRange := firstMatch(scboCostRangeRe, chunk); costRange != "" {
			opp.Description = "Construction cost range: " + costRange
			opp.EstimatedValue = parseMoney(costRange)
		}
		if due := firstMatch(scboBidDueRe, chunk); due != "" {
			if t, err := time.Parse("1/2/2006", due); err == nil {
				opp.DueDate = &t
			}
		}

		raw, _ := json.Marshal(map[string]string{
			"project_name":   name,
			"project_number": number,
			"edition":        editionDate.Format("2006-01-02"),
		})
		opp.RawPayload = raw

		normalizeOpportunity(&opp)
		if !validOpportunity(opp) {
			batch.Skipped++
			continue
		}
		batch.Opportunities = append(batch.Opportunities, opp)
	}

	return batch, nil
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return cleanText(m[1])
}

func (a *SCBOAdapter) daysBack() int {
	if a.cfg.DaysBack > 0 {
		return a.cfg.DaysBack
	}
	return 3
}
