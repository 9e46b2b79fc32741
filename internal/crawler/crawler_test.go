package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordClampEnforcesCaps(t *testing.T) {
	t.Parallel()

	committees := make([]string, 25)
	for i := range committees {
		committees[i] = fmt.Sprintf("Comisión %d", i)
	}
	rec := Record{
		Committees: committees,
		Biography:  strings.Repeat("ñ", 4000),
	}

	clamped := rec.Clamp()
	require.Len(t, clamped.Committees, MaxCommittees)
	require.Equal(t, "Comisión 0", clamped.Committees[0])
	require.Equal(t, MaxBiographyLen, RuneLen(clamped.Biography))
	require.Len(t, rec.Committees, 25, "clamp must not mutate the input slice header")
}

func TestRecordClampNormalizesNilCommittees(t *testing.T) {
	t.Parallel()

	clamped := Record{}.Clamp()
	require.NotNil(t, clamped.Committees)
	require.Empty(t, clamped.Committees)
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"shorter", "abc", 5, "abc"},
		{"exact", "abc", 3, "abc"},
		{"ascii", "abcdef", 4, "abcd"},
		{"multibyte", "áéíóú", 2, "áé"},
		{"zero", "abc", 0, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, TruncateRunes(tc.in, tc.n))
		})
	}
}

func TestClassifyFetchError(t *testing.T) {
	t.Parallel()

	require.Nil(t, ClassifyFetchError("https://example.com", http.StatusOK, nil))

	httpFailure := ClassifyFetchError("https://example.com", http.StatusNotFound, nil)
	require.Equal(t, FailureHTTP, httpFailure.Kind)
	require.Equal(t, http.StatusNotFound, httpFailure.StatusCode)

	timeout := ClassifyFetchError("https://example.com", 0, fmt.Errorf("visit: %w", context.DeadlineExceeded))
	require.Equal(t, FailureTimeout, timeout.Kind)
	require.ErrorIs(t, timeout, context.DeadlineExceeded)

	conn := ClassifyFetchError("https://example.com", 0, errors.New("connection refused"))
	require.Equal(t, FailureConnection, conn.Kind)

	again := ClassifyFetchError("https://other.example", 0, fmt.Errorf("wrapped: %w", conn))
	require.Same(t, conn, again)
}

func TestCheckTransition(t *testing.T) {
	t.Parallel()

	require.NoError(t, CheckTransition(TaskPending, TaskInFlight))
	require.NoError(t, CheckTransition(TaskInFlight, TaskSucceeded))
	require.NoError(t, CheckTransition(TaskInFlight, TaskFailed))
	require.Error(t, CheckTransition(TaskPending, TaskSucceeded))
	require.Error(t, CheckTransition(TaskSucceeded, TaskFailed))
	require.Error(t, CheckTransition(TaskFailed, TaskInFlight))
}

func TestOptionsDefaultsAndEntityURL(t *testing.T) {
	t.Parallel()

	opts := Options{}.WithDefaults()
	require.NoError(t, opts.Validate())
	require.Equal(t, DefaultConcurrencyLimit, opts.ConcurrencyLimit)
	require.Equal(t, DefaultRequestTimeout, opts.RequestTimeout)

	got, err := opts.EntityURL("1019")
	require.NoError(t, err)
	require.Equal(t, "https://www.camara.cl/diputados/diputado.aspx?prmId=1019", got)
}

func TestOptionsValidate(t *testing.T) {
	t.Parallel()

	base := Options{}.WithDefaults()

	bad := base
	bad.ListingURL = "/relative"
	require.Error(t, bad.Validate())

	bad = base
	bad.ConcurrencyLimit = -1
	require.Error(t, bad.Validate())

	bad = base
	bad.EntityURLTemplate = "entity.aspx"
	require.Error(t, bad.Validate())
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	got, err := ResolveURL("https://example.com/a/list.aspx", "detail.aspx?prmId=7#top")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/a/detail.aspx?prmId=7", got)

	_, err = ResolveURL("", "detail.aspx")
	require.Error(t, err)
}

func TestSiteLabel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", SiteLabel("https://Example.com/path"))
	require.Equal(t, "example.com", SiteLabel("example.com"))
	require.Equal(t, "unknown", SiteLabel(""))
}
