package scan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// CollyFetcher implements Fetcher using Colly for the HTML sources. Colly
// gives us per-domain delays, retries, and robots.txt handling for free.
type CollyFetcher struct {
	UserAgent         string
	MaxRetries        int
	RequestTimeout    time.Duration
	DomainDelay       time.Duration
	RandomDelayFactor float64
	MaxBodySize       int
	DetectCharset     bool

	log *zap.Logger
}

// NewCollyFetcher creates a CollyFetcher with sensible defaults.
func NewCollyFetcher(log *zap.Logger) *CollyFetcher {
	return &CollyFetcher{
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		MaxRetries:        3,
		RequestTimeout:    30 * time.Second,
		DomainDelay:       1 * time.Second,
		RandomDelayFactor: 0.5,
		MaxBodySize:       10 * 1024 * 1024,
		DetectCharset:     true,
		log:               log,
	}
}

// CollyFetcherWithConfig applies a source's fetch settings on top of the defaults.
func CollyFetcherWithConfig(cfg FetchConfig, log *zap.Logger) *CollyFetcher {
	f := NewCollyFetcher(log)
	if cfg.TimeoutSeconds > 0 {
		f.RequestTimeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.RateLimitRPS > 0 {
		f.DomainDelay = time.Duration(float64(time.Second) / cfg.RateLimitRPS)
	}
	if cfg.MaxRetries > 0 {
		f.MaxRetries = cfg.MaxRetries
	}
	return f
}

func (f *CollyFetcher) buildCollector(allowedDomains []string) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(f.UserAgent),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowURLRevisit(),
	}
	if len(allowedDomains) > 0 {
		opts = append(opts, colly.AllowedDomains(allowedDomains...))
	}
	if f.DetectCharset {
		opts = append(opts, colly.DetectCharset())
	}

	c := colly.NewCollector(opts...)

	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       f.DomainDelay,
		RandomDelay: time.Duration(float64(f.DomainDelay) * f.RandomDelayFactor),
	})

	c.SetRequestTimeout(f.RequestTimeout)

	c.OnError(func(r *colly.Response, err error) {
		if r.Request.Ctx.GetAny("retries") == nil {
			r.Request.Ctx.Put("retries", 0)
		}
		retries := r.Request.Ctx.GetAny("retries").(int)
		if retries < f.MaxRetries {
			r.Request.Ctx.Put("retries", retries+1)
			if f.log != nil {
				f.log.Warn("retrying fetch",
					zap.String("url", r.Request.URL.String()),
					zap.Int("attempt", retries+1),
					zap.Error(err))
			}
			time.Sleep(time.Duration(retries+1) * time.Second)
			r.Request.Retry()
		}
	})

	return c
}

// Fetch retrieves a single page and returns it as a FetchedDocument.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	// colly matches allowed domains against the hostname without the port.
	c := f.buildCollector([]string{parsedURL.Hostname()})

	var result *FetchedDocument
	var fetchErr error
	var once sync.Once
	done := make(chan struct{})

	// finish records the outcome exactly once, whichever path gets there
	// first: response, exhausted retries, context cancellation, or a
	// synchronous Visit failure.
	finish := func(err error) {
		once.Do(func() {
			fetchErr = err
			close(done)
		})
	}

	c.OnResponse(func(r *colly.Response) {
		result = &FetchedDocument{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        io.NopCloser(bytes.NewReader(r.Body)),
			FetchedAt:   time.Now(),
			Headers:     map[string][]string(r.Headers.Clone()),
		}
		finish(nil)
	})

	c.OnError(func(r *colly.Response, err error) {
		retries := 0
		if r.Request.Ctx.GetAny("retries") != nil {
			retries = r.Request.Ctx.GetAny("retries").(int)
		}
		if retries >= f.MaxRetries {
			finish(fmt.Errorf("fetch failed after %d retries: %w", f.MaxRetries, err))
		}
	})

	go func() {
		select {
		case <-ctx.Done():
			finish(ctx.Err())
		case <-done:
		}
	}()

	if err := c.Visit(targetURL); err != nil {
		finish(fmt.Errorf("visit failed: %w", err))
	}

	<-done

	if fetchErr != nil {
		return nil, fetchErr
	}
	if result == nil {
		return nil, fmt.Errorf("no response received for %s", targetURL)
	}
	return result, nil
}
