package discovery

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

const listingURL = "https://www.camara.cl/diputados/diputados.aspx"

type stubFetcher struct {
	pages map[string]crawler.Page
	err   error
	calls int
}

func (s *stubFetcher) Fetch(_ context.Context, url string) (crawler.Page, error) {
	s.calls++
	if s.err != nil {
		return crawler.Page{}, s.err
	}
	page, ok := s.pages[url]
	if !ok {
		return crawler.Page{}, &crawler.FetchFailure{Kind: crawler.FailureHTTP, URL: url, StatusCode: http.StatusNotFound}
	}
	return page, nil
}

type stubDetector struct {
	promote bool
	seen    []crawler.Page
}

func (s *stubDetector) ShouldPromote(page crawler.Page) bool {
	s.seen = append(s.seen, page)
	return s.promote
}

func listing(body string) *stubFetcher {
	return &stubFetcher{pages: map[string]crawler.Page{
		listingURL: {URL: listingURL, StatusCode: http.StatusOK, Body: []byte("<html><body>" + body + "</body></html>")},
	}}
}

func newDiscoverer(f crawler.Fetcher) *Discoverer {
	return New(crawler.Options{}.WithDefaults(), f, zap.NewNop())
}

func TestDiscoverDedupesFirstWins(t *testing.T) {
	t.Parallel()

	f := listing(`
<a href="diputado.aspx?prmId=101">Ana Rojas</a>
<a href="/diputados/diputado.aspx?prmId=102">Pedro Soto</a>
<a href="diputado.aspx?prmId=101&tab=bio">Ana Rojas (bio)</a>`)

	refs, err := newDiscoverer(f).Discover(context.Background())
	require.NoError(t, err)
	require.Equal(t, []crawler.EntityRef{
		{ID: "101", DisplayName: "Ana Rojas", URL: "https://www.camara.cl/diputados/diputado.aspx?prmId=101"},
		{ID: "102", DisplayName: "Pedro Soto", URL: "https://www.camara.cl/diputados/diputado.aspx?prmId=102"},
	}, refs)
}

func TestDiscoverIgnoresUnrelatedLinks(t *testing.T) {
	t.Parallel()

	f := listing(`
<a href="/noticias/noticia.aspx?prmId=7">Noticia</a>
<a href="diputado.aspx?prmId=abc">Sin id</a>
<a href="diputado.aspx?otroId=8">Otro parámetro</a>
<a href="Diputado.aspx?PRMID=9#perfil">Camila Díaz</a>`)

	refs, err := newDiscoverer(f).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, "9", refs[0].ID)
	require.Equal(t, "https://www.camara.cl/diputados/Diputado.aspx?PRMID=9", refs[0].URL)
}

func TestDiscoverRecoversNameFromAncestors(t *testing.T) {
	t.Parallel()

	f := listing(`
<ul>
  <li><div class="nombre">Juan Carlos Pérez Soto</div><a href="diputado.aspx?prmId=5">»</a></li>
  <li><a href="diputado.aspx?prmId=6"><img src="foto.jpg"></a></li>
</ul>`)

	refs, err := newDiscoverer(f).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 2)
	require.Equal(t, "Juan Carlos Pérez Soto »", refs[0].DisplayName)
	require.Equal(t, "Entity 6", refs[1].DisplayName)
}

func TestDiscoverCapsNames(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("Ñ", 150)
	refs, err := newDiscoverer(listing(`<a href="diputado.aspx?prmId=1">` + long + `</a>`)).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, 100, crawler.RuneLen(refs[0].DisplayName))
}

func TestDiscoverFallsBackToScripts(t *testing.T) {
	t.Parallel()

	f := listing(`
<div id="app"></div>
<script>var rows = ["diputado.aspx?prmId=200", "diputado.aspx?prmId=201", {"prmId=200": true}];</script>
<script src="bundle.js"></script>`)

	refs, err := newDiscoverer(f).Discover(context.Background())
	require.NoError(t, err)
	require.Equal(t, []crawler.EntityRef{
		{ID: "200", DisplayName: "Entity 200", URL: "https://www.camara.cl/diputados/diputado.aspx?prmId=200"},
		{ID: "201", DisplayName: "Entity 201", URL: "https://www.camara.cl/diputados/diputado.aspx?prmId=201"},
	}, refs)
}

func TestDiscoverEmptyListing(t *testing.T) {
	t.Parallel()

	refs, err := newDiscoverer(listing(`<p>Sin resultados</p>`)).Discover(context.Background())
	require.NoError(t, err)
	require.NotNil(t, refs)
	require.Empty(t, refs)
}

func TestDiscoverListingFetchFailure(t *testing.T) {
	t.Parallel()

	failure := &crawler.FetchFailure{Kind: crawler.FailureTimeout, URL: listingURL, Detail: "deadline"}
	_, err := newDiscoverer(&stubFetcher{err: failure}).Discover(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, failure)
	require.Contains(t, err.Error(), "discover listing")
}

func TestDiscoverPromotesToHeadlessOnce(t *testing.T) {
	t.Parallel()

	shell := listing(`<div id="__next"></div>`)
	rendered := &stubFetcher{pages: map[string]crawler.Page{
		listingURL: {
			URL:        listingURL,
			StatusCode: http.StatusOK,
			Headless:   true,
			Body:       []byte(`<html><body><a href="diputado.aspx?prmId=300">Lucía Vera</a></body></html>`),
		},
	}}
	detector := &stubDetector{promote: true}

	refs, err := newDiscoverer(shell).WithHeadless(rendered, detector).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	require.Equal(t, "Lucía Vera", refs[0].DisplayName)
	require.Equal(t, 1, rendered.calls)
	require.Len(t, detector.seen, 1)
}

func TestDiscoverSkipsHeadlessWhenDetectorDeclines(t *testing.T) {
	t.Parallel()

	rendered := &stubFetcher{}
	refs, err := newDiscoverer(listing(`<p>vacío</p>`)).
		WithHeadless(rendered, &stubDetector{promote: false}).
		Discover(context.Background())
	require.NoError(t, err)
	require.Empty(t, refs)
	require.Zero(t, rendered.calls)
}

func TestDiscoverHeadlessFailureYieldsEmpty(t *testing.T) {
	t.Parallel()

	rendered := &stubFetcher{err: errors.New("chrome missing")}
	refs, err := newDiscoverer(listing(`<div id="root"></div>`)).
		WithHeadless(rendered, &stubDetector{promote: true}).
		Discover(context.Background())
	require.NoError(t, err)
	require.Empty(t, refs)
}
