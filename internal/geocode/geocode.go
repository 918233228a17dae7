// Package geocode resolves free-text locations to coordinates. Known metro
// areas hit a static table; anything else falls back to Nominatim with an
// in-memory cache and polite request pacing.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Point is a resolved coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// staticLocations covers the Lowcountry and common SC procurement locations
// so the usual case never leaves the process.
var staticLocations = map[string]Point{
	"charleston":           {32.7765, -79.9311},
	"charleston, sc":       {32.7765, -79.9311},
	"charleston county":    {32.8217, -79.9926},
	"north charleston":     {32.8546, -79.9748},
	"mount pleasant":       {32.8323, -79.8284},
	"summerville":          {33.0185, -80.1756},
	"james island":         {32.7341, -79.9431},
	"johns island":         {32.6849, -80.0970},
	"daniel island":        {32.8664, -79.9073},
	"west ashley":          {32.7847, -80.0347},
	"goose creek":          {32.9810, -80.0326},
	"moncks corner":        {33.1960, -80.0131},
	"berkeley county":      {33.1960, -80.0131},
	"dorchester county":    {33.0185, -80.1756},
	"columbia":             {34.0007, -81.0348},
	"columbia, sc":         {34.0007, -81.0348},
	"richland county":      {34.0007, -81.0348},
	"greenville":           {34.8526, -82.3940},
	"greenville, sc":       {34.8526, -82.3940},
	"myrtle beach":         {33.6891, -78.8867},
	"horry county":         {33.6891, -78.8867},
	"beaufort":             {32.4316, -80.6698},
	"beaufort county":      {32.4316, -80.6698},
	"hilton head":          {32.2163, -80.7526},
	"hilton head island":   {32.2163, -80.7526},
	"spartanburg":          {34.9496, -81.9320},
	"florence":             {34.1954, -79.7626},
	"rock hill":            {34.9249, -81.0251},
	"south carolina":       {33.8361, -81.1637},
	"statewide":            {33.8361, -81.1637},
	"sc":                   {33.8361, -81.1637},
	"georgetown":           {33.3768, -79.2945},
	"georgetown county":    {33.3768, -79.2945},
	"aiken":                {33.5604, -81.7196},
	"orangeburg":           {33.4918, -80.8556},
	"sumter":               {33.9204, -80.3415},
	"anderson":             {34.5034, -82.6501},
	"conway":               {33.8360, -79.0478},
	"walterboro":           {32.9052, -80.6668},
	"colleton county":      {32.9052, -80.6668},
	"charleston peninsula": {32.7876, -79.9403},
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Resolver caches lookups and paces outbound Nominatim requests.
type Resolver struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	log     *zap.Logger

	mu    sync.Mutex
	cache map[string]*Point // nil entry = known miss
}

// NewResolver builds a Resolver. Nominatim's usage policy caps at one
// request per second, so pacing is slightly over a second.
func NewResolver(log *zap.Logger) *Resolver {
	return &Resolver{
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(1100*time.Millisecond), 1),
		baseURL: "https://nominatim.openstreetmap.org/search",
		log:     log,
		cache:   make(map[string]*Point),
	}
}

// LookupStatic resolves against the static table only.
func LookupStatic(location string) (Point, bool) {
	key := normalizeKey(location)
	if key == "" {
		return Point{}, false
	}
	if p, ok := staticLocations[key]; ok {
		return p, true
	}
	// Fall back to a contained city name, e.g. "123 King St, Charleston, SC 29401".
	for name, p := range staticLocations {
		if len(name) > 3 && strings.Contains(key, name) {
			return p, true
		}
	}
	return Point{}, false
}

// Resolve returns coordinates for a location string, or false when it
// cannot be resolved. Static hits never touch the network.
func (r *Resolver) Resolve(ctx context.Context, location string) (Point, bool) {
	key := normalizeKey(location)
	if key == "" {
		return Point{}, false
	}

	if p, ok := LookupStatic(key); ok {
		return p, true
	}

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		if cached == nil {
			return Point{}, false
		}
		return *cached, true
	}
	r.mu.Unlock()

	p, err := r.query(ctx, location)
	if err != nil {
		r.log.Debug("geocode lookup failed", zap.String("location", location), zap.Error(err))
		r.remember(key, nil)
		return Point{}, false
	}

	r.remember(key, &p)
	return p, true
}

func (r *Resolver) remember(key string, p *Point) {
	r.mu.Lock()
	r.cache[key] = p
	r.mu.Unlock()
}

func (r *Resolver) query(ctx context.Context, location string) (Point, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Point{}, err
	}

	q := url.Values{}
	q.Set("q", location+", South Carolina, USA")
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Point{}, err
	}
	req.Header.Set("User-Agent", "sitescan/1.0")

	resp, err := r.client.Do(req)
	if err != nil {
		return Point{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Point{}, fmt.Errorf("nominatim status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Point{}, err
	}
	if len(results) == 0 {
		return Point{}, fmt.Errorf("no results for %q", location)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Point{}, err
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Point{}, err
	}

	return Point{Lat: lat, Lng: lng}, nil
}

func normalizeKey(location string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(location))), " ")
}
