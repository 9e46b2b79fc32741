// Package collyfetcher implements Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Transport overrides the pooled default, mostly for tests.
	Transport http.RoundTripper
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = crawler.DefaultRequestTimeout
	}
	if cfg.Transport == nil {
		cfg.Transport = newHTTPTransport()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	// Clones share the backend client, so it is configured once here.
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(cfg.Transport)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// visit is the state one collector run produces. It is owned by the visiting
// goroutine until it is sent back to Fetch.
type visit struct {
	page crawler.Page
	err  error
}

// Fetch executes a single HTTP GET using Colly. Every error is a
// *crawler.FetchFailure.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.Page, error) {
	done := make(chan visit, 1)
	go func() {
		done <- f.visit(url, time.Now())
	}()

	select {
	case <-ctx.Done():
		return crawler.Page{}, crawler.ClassifyFetchError(url, 0, fmt.Errorf("colly fetch canceled: %w", ctx.Err()))
	case v := <-done:
		if v.err != nil {
			return crawler.Page{}, crawler.ClassifyFetchError(url, v.page.StatusCode, v.err)
		}
		if failure := crawler.ClassifyFetchError(url, v.page.StatusCode, nil); failure != nil {
			return crawler.Page{}, failure
		}
		v.page.URL = url
		return v.page, nil
	}
}

func (f *Fetcher) visit(url string, start time.Time) visit {
	var v visit
	collector := f.buildCollector(start, &v)
	visitErr := collector.Visit(url)
	switch {
	case v.err != nil:
		v.err = fmt.Errorf("colly response failed: %w", v.err)
	case visitErr != nil:
		v.err = fmt.Errorf("colly visit failed: %w", visitErr)
	}
	return v
}

func (f *Fetcher) buildCollector(start time.Time, v *visit) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true

	f.configureCollectorHooks(collector, start, v)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, start time.Time, v *visit) {
	hooks.OnRequest(func(r *colly.Request) {
		if f.cfg.UserAgent != "" {
			r.Headers.Set("User-Agent", f.cfg.UserAgent)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		v.page = crawler.Page{
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	// Colly reports non-2xx responses through OnError with the response set.
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			v.page.StatusCode = r.StatusCode
			v.page.Duration = time.Since(start)
		}
		v.err = err
	})
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
