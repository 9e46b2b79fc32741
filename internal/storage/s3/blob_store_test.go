package s3

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordedPut struct {
	path        string
	contentType string
	body        string
}

func newFakeS3(t *testing.T, status int) (*httptest.Server, func() []recordedPut) {
	t.Helper()

	var (
		mu   sync.Mutex
		puts []recordedPut
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusOK)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, recordedPut{path: r.URL.Path, contentType: r.Header.Get("Content-Type"), body: string(body)})
		mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedPut {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedPut(nil), puts...)
	}
}

func testConfig(srv *httptest.Server) Config {
	return Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "roster",
		SecretKey: "roster-secret",
		Bucket:    "roster",
		Region:    "us-east-1",
	}
}

func TestPutObjectUploadsToBucketPath(t *testing.T) {
	t.Parallel()

	srv, puts := newFakeS3(t, http.StatusOK)
	store, err := New(testConfig(srv))
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "out/roster.json", "application/json", bytes.NewReader([]byte(`{"total":0}`)))
	require.NoError(t, err)
	require.Equal(t, "s3://roster/out/roster.json", uri)

	got := puts()
	require.Len(t, got, 1)
	require.Equal(t, "/roster/out/roster.json", got[0].path)
	require.Equal(t, "application/json", got[0].contentType)
	require.Contains(t, got[0].body, `{"total":0}`)
}

func TestPutObjectReportsServerError(t *testing.T) {
	t.Parallel()

	srv, _ := newFakeS3(t, http.StatusForbidden)
	store, err := New(testConfig(srv))
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "roster.json", "", bytes.NewReader([]byte("x")))
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "roster"}
	require.NoError(t, valid.Validate())

	withScheme := valid
	withScheme.Endpoint = "http://localhost:9000"
	require.Error(t, withScheme.Validate())

	noBucket := valid
	noBucket.Bucket = ""
	require.Error(t, noBucket.Validate())
}
