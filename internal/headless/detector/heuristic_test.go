package detector

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

func page(body string) crawler.Page {
	return crawler.Page{StatusCode: http.StatusOK, Body: []byte(body)}
}

func TestShouldPromoteEmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(page("")))
	require.True(t, h.ShouldPromote(page("  \n ")))
}

func TestShouldPromoteMountPointWithoutText(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(page(`<html><body><div id="__next"></div></body></html>`)))
	require.True(t, h.ShouldPromote(page(`<html><body ng-app="roster"><p>Cargando…</p></body></html>`)))

	rendered := `<div id="app"><p>` + strings.Repeat("Diputada Ana Pérez, Región de Ñuble. ", 10) + `</p></div>`
	require.False(t, h.ShouldPromote(page(rendered)))
}

func TestShouldPromoteScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	require.True(t, h.ShouldPromote(page(`<html><script>var roster = load();</script><p>t</p></html>`)))

	h = NewHeuristic(10)
	require.False(t, h.ShouldPromote(page(`<html><script>var roster = load();</script><p>t</p></html>`)),
		"pages over the threshold are not judged by script share")
}

func TestShouldPromoteIgnoresStyleText(t *testing.T) {
	t.Parallel()

	s := scan([]byte(`<style>` + strings.Repeat("p{}", 100) + `</style><div id="root">hola</div>`))
	require.True(t, s.mount)
	require.Equal(t, 4, s.visibleText)
	require.Zero(t, s.scriptBytes)
}

func TestShouldPromoteMarkersShortCircuit(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000, "Diputado.aspx")
	body := `<div id="root"><a href="diputado.aspx?prmId=1">A</a></div>`
	require.False(t, h.ShouldPromote(page(body)))
	require.True(t, NewHeuristic(1000).ShouldPromote(page(body)))
}

func TestShouldPromoteSkipsRenderedAndErrors(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.False(t, h.ShouldPromote(crawler.Page{StatusCode: http.StatusNotFound}))
	require.False(t, h.ShouldPromote(crawler.Page{StatusCode: http.StatusOK, Headless: true}))
}

func TestNewHeuristicDefaults(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0, " ", "Diputado.aspx")
	require.Equal(t, 2048, h.BodyLengthThreshold)
	require.Equal(t, []string{"diputado.aspx"}, h.Markers)
}
