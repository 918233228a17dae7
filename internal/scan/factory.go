package scan

import (
	"fmt"

	"go.uber.org/zap"
)

// BuildAdapters constructs an adapter per enabled source in the registry.
// JSON API sources share one rate-limited HTTP fetcher; HTML sources get a
// Colly fetcher tuned to their fetch settings. Sources that need an API key
// but have none are still returned (so Sources() can report them) but their
// Fetch fails with an auth error.
func BuildAdapters(reg *Registry, log *zap.Logger) ([]Adapter, error) {
	httpFetcher := NewRateLimitedFetcher(FetchConfig{})

	var adapters []Adapter
	for _, cfg := range reg.Sources {
		if !cfg.Enabled {
			continue
		}

		switch cfg.Strategy {
		case "sam_gov":
			httpFetcher.Configure(cfg.BaseURL, cfg.Fetch)
			adapters = append(adapters, NewSAMGovAdapter(cfg, httpFetcher, log.With(zap.String("source", cfg.ID))))
		case "arcgis_permits":
			httpFetcher.Configure(cfg.BaseURL, cfg.Fetch)
			adapters = append(adapters, NewArcGISPermitsAdapter(cfg, httpFetcher, log.With(zap.String("source", cfg.ID))))
		case "scbo_html":
			f := CollyFetcherWithConfig(cfg.Fetch, log)
			adapters = append(adapters, NewSCBOAdapter(cfg, f, log.With(zap.String("source", cfg.ID))))
		case "city_bids":
			f := CollyFetcherWithConfig(cfg.Fetch, log)
			adapters = append(adapters, NewCityBidsAdapter(cfg, f, log.With(zap.String("source", cfg.ID))))
		default:
			return nil, fmt.Errorf("source %s: unknown strategy %q", cfg.ID, cfg.Strategy)
		}
	}
	return adapters, nil
}
