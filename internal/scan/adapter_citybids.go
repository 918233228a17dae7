package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// City of Charleston bid numbers look like "24-B017A": two-digit fiscal year,
// a category letter, three digits, and an optional revision letter.
var cityBidRe = regexp.MustCompile(`(\d{2}-[A-Z]\d{3}[A-Z]?)\s+(.*)`)

// CityBidsAdapter scrapes the City of Charleston's open bid listing page.
// The page is a plain list of links whose text carries the bid number and
// title.
type CityBidsAdapter struct {
	cfg     SourceConfig
	fetcher Fetcher
	log     *zap.Logger
	now     func() time.Time
}

func NewCityBidsAdapter(cfg SourceConfig, fetcher Fetcher, log *zap.Logger) *CityBidsAdapter {
	return &CityBidsAdapter{cfg: cfg, fetcher: fetcher, log: log, now: time.Now}
}

func (a *CityBidsAdapter) Descriptor() SourceDescriptor {
	return a.cfg.Descriptor()
}

// Fetch scrapes the current bid listing. The page only shows open bids, so
// since is ignored; reconciliation handles records seen before.
func (a *CityBidsAdapter) Fetch(ctx context.Context, since *time.Time) (*Batch, error) {
	doc, err := a.fetcher.Fetch(ctx, a.cfg.BaseURL)
	if err != nil {
		return nil, adapterErr(a.cfg.ID, classifyFetchErr(err), err)
	}
	body, err := io.ReadAll(doc.Body)
	doc.Body.Close()
	if err != nil {
		return nil, adapterErr(a.cfg.ID, KindNetwork, err)
	}
	batch, err := parseCityBids(body, a.cfg.ID, a.cfg.BaseURL, a.now().UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, adapterErr(a.cfg.ID, KindFormat, err)
	}

	a.log.Info("city bids fetch complete",
		zap.Int("records", len(batch.Opportunities)),
		zap.Int("skipped", batch.Skipped))

	return batch, nil
}

// parseCityBids extracts bid links from the listing page. Links whose text
// does not match the bid number pattern are ignored; matches with an empty
// title are skipped and counted.
func parseCityBids(body []byte, sourceID, baseURL string, postedDate time.Time) (*Batch, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	batch := &Batch{}
	seen := make(map[string]struct{})

	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		text := cleanText(sel.Text())
		m := cityBidRe.FindStringSubmatch(text)
		if m == nil {
			return
		}
		bidNumber, title := m[1], cleanText(m[2])
		if title == "" {
			batch.Skipped++
			return
		}
		if _, dup := seen[bidNumber]; dup {
			return
		}
		seen[bidNumber] = struct{}{}

		sourceURL := baseURL
		if href, ok := sel.Attr("href"); ok && href != "" {
			if ref, err := url.Parse(href); err == nil {
				sourceURL = base.ResolveReference(ref).String()
			}
		}

		raw, _ := json.Marshal(map[string]string{
			"bid_number": bidNumber,
			"text":       text,
		})

		opp := Opportunity{
			SourceID:       sourceID,
			ExternalID:     bidNumber,
			Title:          title,
			Agency:         "City of Charleston",
			Location:       "Charleston, SC",
			PostedDate:     postedDate,
			SolicitationNo: bidNumber,
			SourceURL:      sourceURL,
			TradeTags:      []string{"municipal", "bid"},
			RawPayload:     raw,
		}

		normalizeOpportunity(&opp)
		if !validOpportunity(opp) {
			batch.Skipped++
			return
		}
		batch.Opportunities = append(batch.Opportunities, opp)
	})

	return batch, nil
}
