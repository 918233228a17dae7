package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// errFetcher fails every fetch with a fixed error.
type errFetcher struct{ err error }

func (f errFetcher) Fetch(_ context.Context, _ string) (*FetchedDocument, error) {
	return nil, f.err
}

func TestSAMGovFetchAuthErrorClassified(t *testing.T) {
	cfg := SourceConfig{ID: "sam_gov", APIKey: "test-key", BaseURL: "https://api.sam.gov/opportunities/v2/search"}
	adapter := NewSAMGovAdapter(cfg, errFetcher{errors.New("unexpected status code: 401")}, zap.NewNop())

	_, err := adapter.Fetch(context.Background(), nil)
	require.Error(t, err)

	var aerr *AdapterError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, KindAuth, aerr.Kind)
	assert.Equal(t, "sam_gov", aerr.SourceID)
}

const samGovFixture = `{
  "totalRecords": 2,
  "limit": 100,
  "offset": 0,
  "opportunitiesData": [
    {
      "noticeId": "abc123",
      "title": "Masonry Repair - Fort Sumter National Monument",
      "solicitationNumber": "140P5026R0012",
      "fullParentPathName": "INTERIOR, DEPARTMENT OF THE.NATIONAL PARK SERVICE",
      "postedDate": "2026-08-20",
      "type": "Solicitation",
      "naicsCode": "238140",
      "active": "Yes",
      "responseDeadLine": "2026-09-15T17:00:00-04:00",
      "uiLink": "https://sam.gov/opp/abc123/view",
      "placeOfPerformance": {
        "city": {"name": "Charleston"},
        "state": {"code": "SC"}
      }
    },
    {
      "noticeId": "",
      "title": "Broken record with no id",
      "postedDate": "2026-08-20"
    }
  ]
}`

func TestParseSAMGovPage(t *testing.T) {
	resp, opps, skipped, err := parseSAMGovPage([]byte(samGovFixture), "sam_gov")
	require.NoError(t, err)

	assert.Equal(t, 2, resp.TotalRecords)
	assert.Equal(t, 1, skipped)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "sam_gov", opp.SourceID)
	assert.Equal(t, "abc123", opp.ExternalID)
	assert.Equal(t, "Masonry Repair - Fort Sumter National Monument", opp.Title)
	assert.Equal(t, "140P5026R0012", opp.SolicitationNo)
	assert.Equal(t, "238140", opp.NAICSCode)
	assert.Equal(t, "Charleston, SC", opp.Location)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), opp.PostedDate)
	require.NotNil(t, opp.DueDate)
	assert.Contains(t, opp.TradeTags, "naics-238140")
}

func TestParseSAMGovPageBadJSON(t *testing.T) {
	_, _, _, err := parseSAMGovPage([]byte("<html>maintenance page</html>"), "sam_gov")
	assert.Error(t, err)
}

const arcgisFixture = `{
  "features": [
    {
      "attributes": {
        "OBJECTID": 9001,
        "PERMIT_NUMBER": "BLDC-05-26-031337",
        "DESCRIPTION": "Repoint brick facade and repair parapet",
        "PERMIT_TYPE": "Commercial Building",
        "WORK_CLASS": "Alteration",
        "PERMIT_STATUS": "Issued",
        "ISSUE_DATE": 1787097600000,
        "VALUATION": 185000,
        "ADDRESS": "180 MEETING ST, CHARLESTON",
        "CONTRACTOR": "PALMETTO MASONRY LLC",
        "LATITUDE": 32.7795,
        "LONGITUDE": -79.9315
      }
    },
    {
      "attributes": {
        "OBJECTID": 9002,
        "PERMIT_NUMBER": "BLDR-05-26-031400",
        "DESCRIPTION": "No issue date yet",
        "PERMIT_TYPE": "Residential Building",
        "ISSUE_DATE": null
      }
    }
  ]
}`

func TestParseArcGISPermits(t *testing.T) {
	batch, err := parseArcGISPermits([]byte(arcgisFixture), "charleston_permits")
	require.NoError(t, err)

	assert.Equal(t, 1, batch.Skipped)
	require.Len(t, batch.Opportunities, 1)

	opp := batch.Opportunities[0]
	assert.Equal(t, "BLDC-05-26-031337", opp.ExternalID)
	assert.Equal(t, "BLDC-05-26-031337", opp.PermitNumber)
	assert.Equal(t, "Commercial Building - Repoint brick facade and repair parapet", opp.Title)
	assert.Equal(t, "Issued", opp.SourceStatus)
	assert.Equal(t, "PALMETTO MASONRY LLC", opp.Contractor)
	require.NotNil(t, opp.EstimatedValue)
	assert.Equal(t, 185000.0, *opp.EstimatedValue)
	require.NotNil(t, opp.Latitude)
	assert.InDelta(t, 32.7795, *opp.Latitude, 0.0001)
	assert.Contains(t, opp.TradeTags, "permit")
	assert.Contains(t, opp.TradeTags, "alteration")
	assert.Equal(t, 2026, opp.PostedDate.Year())
}

func TestParseArcGISPermitsLayerError(t *testing.T) {
	_, err := parseArcGISPermits([]byte(`{"error":{"code":400,"message":"Invalid query"}}`), "charleston_permits")
	assert.Error(t, err)
}

const scboFixture = `<html><body>
<h2>Construction Solicitations</h2>
<div>
Project Name: COURTHOUSE EXTERIOR RESTORATION
Project Number: H27-B077-JM
Location: Charleston, SC
Agency/Owner: Charleston County Facilities
Construction Cost Range: $500,000 - $1,000,000
Bid Due Date/Time: 09/10/2026
</div>
<div>
Project Name: GYM ROOF REPLACEMENT
Project Number: B-77
Agency/Owner: Dorchester School District Two
Construction Cost Range: Under $250,000
</div>
<div>
Project Name: BLOCK WITHOUT A NUMBER
Agency/Owner: Nobody
</div>
</body></html>`

func TestParseSCBOEdition(t *testing.T) {
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	batch, err := parseSCBOEdition([]byte(scboFixture), "scbo", "https://scbo.sc.gov/online-edition?c=3-08/28/2026", day)
	require.NoError(t, err)

	assert.Equal(t, 1, batch.Skipped)
	require.Len(t, batch.Opportunities, 2)

	first := batch.Opportunities[0]
	assert.Equal(t, "H27-B077-JM", first.ExternalID)
	assert.Equal(t, "COURTHOUSE EXTERIOR RESTORATION", first.Title)
	assert.Equal(t, "Charleston County Facilities", first.Agency)
	assert.Equal(t, "Charleston, SC", first.Location)
	require.NotNil(t, first.EstimatedValue)
	assert.Equal(t, 500_000.0, *first.EstimatedValue)
	require.NotNil(t, first.DueDate)
	assert.Equal(t, time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC), *first.DueDate)

	second := batch.Opportunities[1]
	assert.Equal(t, "B-77", second.ExternalID)
	assert.Equal(t, "GYM ROOF REPLACEMENT", second.Title)
	require.NotNil(t, second.EstimatedValue)
	assert.Equal(t, 250_000.0, *second.EstimatedValue)
}

const cityBidsFixture = `<html><body>
<ul>
<li><a href="/bids/24-B017A.pdf">24-B017A Fire Station 11 Renovation</a></li>
<li><a href="/bids/24-P003.pdf">24-P003 Janitorial Services Citywide</a></li>
<li><a href="/bids/24-B017A.pdf">24-B017A Fire Station 11 Renovation</a></li>
<li><a href="/contact">Contact Procurement</a></li>
</ul>
</body></html>`

func TestParseCityBids(t *testing.T) {
	posted := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	batch, err := parseCityBids([]byte(cityBidsFixture), "charleston_city_bids", "https://www.charleston-sc.gov/Bids.aspx?CatID=17", posted)
	require.NoError(t, err)

	// Duplicate link collapses, unrelated link is ignored.
	require.Len(t, batch.Opportunities, 2)
	assert.Equal(t, 0, batch.Skipped)

	first := batch.Opportunities[0]
	assert.Equal(t, "24-B017A", first.ExternalID)
	assert.Equal(t, "Fire Station 11 Renovation", first.Title)
	assert.Equal(t, "City of Charleston", first.Agency)
	assert.Equal(t, "https://www.charleston-sc.gov/bids/24-B017A.pdf", first.SourceURL)
	assert.Equal(t, posted, first.PostedDate)
}
