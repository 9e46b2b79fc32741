package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

func TestNewChromedpValidatesAndDefaults(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.ErrorContains(t, err, "headless.max_parallel")

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)
	require.NotNil(t, fetcher.tabs)
	require.Equal(t, 45*time.Second, fetcher.cfg.NavigationTimeout)
	require.Equal(t, "body", fetcher.cfg.WaitSelector)
	require.Equal(t, "es-CL,es;q=0.9", fetcher.cfg.Headers.Get("Accept-Language"))

	unbounded, err := NewChromedp(Config{Headers: http.Header{"Accept-Language": {"en"}}})
	require.NoError(t, err)
	t.Cleanup(unbounded.Close)
	require.Nil(t, unbounded.tabs)
	require.Equal(t, "en", unbounded.cfg.Headers.Get("Accept-Language"))
}

func TestNetworkHeadersJoinsValues(t *testing.T) {
	t.Parallel()

	got := networkHeaders(http.Header{"X-Test": {"a", "b"}, "X-Empty": {}})
	require.Equal(t, "a, b", got["X-Test"])
	require.NotContains(t, got, "X-Empty")
}

func TestDocumentResponseKeepsLastDocument(t *testing.T) {
	t.Parallel()

	doc := &documentResponse{}
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 302, URL: "https://example.com/old"},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 404, URL: "https://example.com/app.js"},
	})
	doc.observe(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  200,
			URL:     "https://example.com/diputado.aspx?prmId=7",
			Headers: network.Headers{"Set-Cookie": "a=1\nb=2"},
		},
	})

	status, headers, url := doc.result("https://req", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://example.com/diputado.aspx?prmId=7", url)
	require.Equal(t, []string{"a=1", "b=2"}, headers.Values("Set-Cookie"))
}

func TestDocumentResponseFallbacks(t *testing.T) {
	t.Parallel()

	status, headers, url := (&documentResponse{}).result("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, headers)
	require.Equal(t, "https://final", url)

	_, _, url = (&documentResponse{}).result("https://req", "")
	require.Equal(t, "https://req", url)
}

func TestFetchRespectsCanceledContextWhileWaitingForTab(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{MaxParallel: 1})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	require.NoError(t, fetcher.tabs.Acquire(context.Background(), 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = fetcher.Fetch(ctx, "https://example.com")
	var failure *crawler.FetchFailure
	require.ErrorAs(t, err, &failure)
	require.ErrorIs(t, err, context.Canceled)
}
