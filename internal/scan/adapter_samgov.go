package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Construction-sector NAICS codes queried against SAM.gov. Covers commercial
// and residential building construction plus the masonry, concrete, and
// framing trades.
var samGovNAICSCodes = []string{"236220", "236210", "238140", "238110", "238190"}

const (
	samGovPageSize = 100
	samGovMaxPages = 5
	samGovDateFmt  = "01/02/2006"
)

// SAMGovAdapter pulls federal contract opportunities from the SAM.gov
// Opportunities v2 API. Requires an API key.
type SAMGovAdapter struct {
	cfg     SourceConfig
	fetcher Fetcher
	log     *zap.Logger
	now     func() time.Time
}

func NewSAMGovAdapter(cfg SourceConfig, fetcher Fetcher, log *zap.Logger) *SAMGovAdapter {
	return &SAMGovAdapter{cfg: cfg, fetcher: fetcher, log: log, now: time.Now}
}

func (a *SAMGovAdapter) Descriptor() SourceDescriptor {
	return a.cfg.Descriptor()
}

// samGovResponse matches the Opportunities v2 search schema.
type samGovResponse struct {
	TotalRecords      int            `json:"totalRecords"`
	Limit             int            `json:"limit"`
	Offset            int            `json:"offset"`
	OpportunitiesData []samGovRecord `json:"opportunitiesData"`
}

type samGovRecord struct {
	NoticeID           string `json:"noticeId"`
	Title              string `json:"title"`
	SolicitationNumber string `json:"solicitationNumber"`
	FullParentPathName string `json:"fullParentPathName"`
	PostedDate         string `json:"postedDate"`
	Type               string `json:"type"`
	NAICSCode          string `json:"naicsCode"`
	Active             string `json:"active"`
	ResponseDeadLine   string `json:"responseDeadLine"`
	UILink             string `json:"uiLink"`
	PlaceOfPerformance struct {
		City struct {
			Name string `json:"name"`
		} `json:"city"`
		State struct {
			Code string `json:"code"`
		} `json:"state"`
	} `json:"placeOfPerformance"`
}

// Fetch queries one page per NAICS code until each code's results are
// exhausted or the page cap is hit. Records failing basic validation are
// skipped and counted, never fatal.
func (a *SAMGovAdapter) Fetch(ctx context.Context, since *time.Time) (*Batch, error) {
	if a.cfg.KeyMissing() {
		return nil, adapterErr(a.cfg.ID, KindAuth, fmt.Errorf("api key not configured"))
	}

	postedFrom := a.now().AddDate(0, 0, -a.daysBack())
	if since != nil && since.After(postedFrom) {
		postedFrom = *since
	}
	postedTo := a.now()

	batch := &Batch{}
	seen := make(map[string]struct{})

	for _, naics := range samGovNAICSCodes {
		if err := a.fetchNAICS(ctx, naics, postedFrom, postedTo, seen, batch); err != nil {
			return nil, err
		}
	}

	a.log.Info("sam.gov fetch complete",
		zap.Int("records", len(batch.Opportunities)),
		zap.Int("skipped", batch.Skipped))

	return batch, nil
}

func (a *SAMGovAdapter) fetchNAICS(ctx context.Context, naics string, from, to time.Time, seen map[string]struct{}, batch *Batch) error {
	for page := 0; page < samGovMaxPages; page++ {
		offset := page * samGovPageSize

		q := url.Values{}
		q.Set("api_key", a.cfg.APIKey)
		q.Set("postedFrom", from.Format(samGovDateFmt))
		q.Set("postedTo", to.Format(samGovDateFmt))
		q.Set("ncode", naics)
		q.Set("ptype", "o,k,p") // solicitations, combined synopsis, presolicitations
		q.Set("limit", fmt.Sprintf("%d", samGovPageSize))
		q.Set("offset", fmt.Sprintf("%d", offset))

		doc, err := a.fetcher.Fetch(ctx, a.cfg.BaseURL+"?"+q.Encode())
		if err != nil {
			return adapterErr(a.cfg.ID, classifyFetchErr(err), err)
		}

		body, err := io.ReadAll(doc.Body)
		doc.Body.Close()
		if err != nil {
			return adapterErr(a.cfg.ID, KindNetwork, err)
		}
		// The fetcher only returns documents for 200 responses; auth
		// failures surface as fetch errors and are classified above.
		resp, opps, skipped, err := parseSAMGovPage(body, a.cfg.ID)
		if err != nil {
			return adapterErr(a.cfg.ID, KindFormat, err)
		}
		batch.Skipped += skipped

		for _, opp := range opps {
			if _, dup := seen[opp.ExternalID]; dup {
				continue
			}
			seen[opp.ExternalID] = struct{}{}
			batch.Opportunities = append(batch.Opportunities, opp)
		}

		if offset+len(resp.OpportunitiesData) >= resp.TotalRecords || len(resp.OpportunitiesData) == 0 {
			break
		}
	}
	return nil
}

// parseSAMGovPage decodes one response page. Records missing an identifier,
// a title, or a parseable posted date are dropped and counted.
func parseSAMGovPage(body []byte, sourceID string) (*samGovResponse, []Opportunity, int, error) {
	var resp samGovResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, 0, fmt.Errorf("decode response: %w", err)
	}

	var opps []Opportunity
	skipped := 0
	for _, rec := range resp.OpportunitiesData {
		opp, ok := convertSAMGovRecord(rec, sourceID)
		if !ok {
			skipped++
			continue
		}
		opps = append(opps, opp)
	}
	return &resp, opps, skipped, nil
}

func convertSAMGovRecord(rec samGovRecord, sourceID string) (Opportunity, bool) {
	if rec.NoticeID == "" || rec.Title == "" {
		return Opportunity{}, false
	}

	posted, err := time.Parse("2006-01-02", rec.PostedDate)
	if err != nil {
		return Opportunity{}, false
	}

	location := rec.PlaceOfPerformance.City.Name
	if st := rec.PlaceOfPerformance.State.Code; st != "" {
		if location != "" {
			location += ", " + st
		} else {
			location = st
		}
	}

	raw, _ := json.Marshal(rec)

	opp := Opportunity{
		SourceID:       sourceID,
		ExternalID:     rec.NoticeID,
		Title:          rec.Title,
		Description:    fmt.Sprintf("Federal %s from %s. NAICS %s.", rec.Type, rec.FullParentPathName, rec.NAICSCode),
		Agency:         rec.FullParentPathName,
		Location:       location,
		PostedDate:     posted,
		SourceStatus:   rec.Active,
		SolicitationNo: rec.SolicitationNumber,
		NAICSCode:      rec.NAICSCode,
		SourceURL:      rec.UILink,
		TradeTags:      []string{"federal", "naics-" + rec.NAICSCode},
		RawPayload:     raw,
	}

	if rec.ResponseDeadLine != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-07:00", "2006-01-02"} {
			if t, err := time.Parse(layout, rec.ResponseDeadLine); err == nil {
				opp.DueDate = &t
				break
			}
		}
	}

	normalizeOpportunity(&opp)
	if !validOpportunity(opp) {
		return Opportunity{}, false
	}
	return opp, true
}

func (a *SAMGovAdapter) daysBack() int {
	if a.cfg.DaysBack > 0 {
		return a.cfg.DaysBack
	}
	return 30
}
