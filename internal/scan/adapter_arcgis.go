package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ArcGISPermitsAdapter pulls building permits from a public ArcGIS feature
// layer (Charleston County's permit map service). The layer speaks the
// standard ArcGIS REST query protocol with JSON output.
type ArcGISPermitsAdapter struct {
	cfg     SourceConfig
	fetcher Fetcher
	log     *zap.Logger
	now     func() time.Time
}

func NewArcGISPermitsAdapter(cfg SourceConfig, fetcher Fetcher, log *zap.Logger) *ArcGISPermitsAdapter {
	return &ArcGISPermitsAdapter{cfg: cfg, fetcher: fetcher, log: log, now: time.Now}
}

func (a *ArcGISPermitsAdapter) Descriptor() SourceDescriptor {
	return a.cfg.Descriptor()
}

type arcgisQueryResponse struct {
	Features []struct {
		Attributes arcgisPermitAttributes `json:"attributes"`
	} `json:"features"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// arcgisPermitAttributes mirrors the permit layer's field names. Dates come
// back as epoch milliseconds.
type arcgisPermitAttributes struct {
	ObjectID     int64    `json:"OBJECTID"`
	PermitNumber string   `json:"PERMIT_NUMBER"`
	Description  string   `json:"DESCRIPTION"`
	PermitType   string   `json:"PERMIT_TYPE"`
	WorkClass    string   `json:"WORK_CLASS"`
	PermitStatus string   `json:"PERMIT_STATUS"`
	IssueDate    *int64   `json:"ISSUE_DATE"`
	Valuation    *float64 `json:"VALUATION"`
	Address      string   `json:"ADDRESS"`
	Contractor   string   `json:"CONTRACTOR"`
	Latitude     *float64 `json:"LATITUDE"`
	Longitude    *float64 `json:"LONGITUDE"`
}

// Fetch queries the layer for permits issued inside the lookback window.
func (a *ArcGISPermitsAdapter) Fetch(ctx context.Context, since *time.Time) (*Batch, error) {
	from := a.now().AddDate(0, 0, -a.daysBack())
	if since != nil && since.After(from) {
		from = *since
	}

	q := url.Values{}
	q.Set("where", fmt.Sprintf("ISSUE_DATE >= DATE '%s'", from.Format("2006-01-02")))
	q.Set("outFields", "*")
	q.Set("orderByFields", "ISSUE_DATE DESC")
	q.Set("resultRecordCount", "500")
	q.Set("f", "json")

	doc, err := a.fetcher.Fetch(ctx, a.cfg.BaseURL+"?"+q.Encode())
	if err != nil {
		return nil, adapterErr(a.cfg.ID, classifyFetchErr(err), err)
	}
	body, err := io.ReadAll(doc.Body)
	doc.Body.Close()
	if err != nil {
		return nil, adapterErr(a.cfg.ID, KindNetwork, err)
	}
	batch, err := parseArcGISPermits(body, a.cfg.ID)
	if err != nil {
		return nil, adapterErr(a.cfg.ID, KindFormat, err)
	}

	a.log.Info("permit fetch complete",
		zap.Int("records", len(batch.Opportunities)),
		zap.Int("skipped", batch.Skipped))

	return batch, nil
}

// parseArcGISPermits decodes a feature-layer query response. Features without
// a permit number or issue date are skipped and counted.
func parseArcGISPermits(body []byte, sourceID string) (*Batch, error) {
	var resp arcgisQueryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("layer error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	batch := &Batch{}
	for _, feat := range resp.Features {
		opp, ok := convertPermit(feat.Attributes, sourceID)
		if !ok {
			batch.Skipped++
			continue
		}
		batch.Opportunities = append(batch.Opportunities, opp)
	}
	return batch, nil
}

func convertPermit(attrs arcgisPermitAttributes, sourceID string) (Opportunity, bool) {
	externalID := attrs.PermitNumber
	if externalID == "" && attrs.ObjectID != 0 {
		externalID = fmt.Sprintf("OBJ-%d", attrs.ObjectID)
	}
	if externalID == "" || attrs.IssueDate == nil {
		return Opportunity{}, false
	}

	issued := time.UnixMilli(*attrs.IssueDate).UTC()

	title := attrs.PermitType
	if attrs.Description != "" {
		if title != "" {
			title += " - " + attrs.Description
		} else {
			title = attrs.Description
		}
	}
	if title == "" {
		return Opportunity{}, false
	}

	tags := []string{"permit"}
	if attrs.PermitType != "" {
		tags = append(tags, strings.ToLower(attrs.PermitType))
	}
	if attrs.WorkClass != "" {
		tags = append(tags, strings.ToLower(attrs.WorkClass))
	}

	raw, _ := json.Marshal(attrs)

	opp := Opportunity{
		SourceID:       sourceID,
		ExternalID:     externalID,
		Title:          title,
		Description:    attrs.Description,
		Location:       attrs.Address,
		Latitude:       attrs.Latitude,
		Longitude:      attrs.Longitude,
		PostedDate:     issued,
		EstimatedValue: attrs.Valuation,
		TradeTags:      tags,
		SourceStatus:   attrs.PermitStatus,
		PermitNumber:   attrs.PermitNumber,
		Contractor:     attrs.Contractor,
		RawPayload:     raw,
	}

	normalizeOpportunity(&opp)
	if !validOpportunity(opp) {
		return Opportunity{}, false
	}
	return opp, true
}

func (a *ArcGISPermitsAdapter) daysBack() int {
	if a.cfg.DaysBack > 0 {
		return a.cfg.DaysBack
	}
	return 14
}
