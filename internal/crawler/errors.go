package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrDiscoveryEmpty is returned when the listing page yields no references.
var ErrDiscoveryEmpty = errors.New("discovery returned no entity references")

// FailureKind classifies why a task did not produce a record.
type FailureKind string

// Failure kinds recorded per task.
const (
	FailureTimeout    FailureKind = "timeout"
	FailureConnection FailureKind = "connection_error"
	FailureHTTP       FailureKind = "http_error"
	FailurePanic      FailureKind = "panic"
)

// FetchFailure is the classified error returned by fetchers and recorded on
// failed outcomes.
type FetchFailure struct {
	Kind       FailureKind
	URL        string
	StatusCode int
	Detail     string
	Err        error
}

func (f *FetchFailure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s fetching %s (status %d): %s", f.Kind, f.URL, f.StatusCode, f.Detail)
	}
	return fmt.Sprintf("%s fetching %s: %s", f.Kind, f.URL, f.Detail)
}

func (f *FetchFailure) Unwrap() error {
	return f.Err
}

// ClassifyFetchError converts a transport error or a non-2xx status into a
// FetchFailure. It returns nil when err is nil and status is 2xx.
func ClassifyFetchError(rawURL string, status int, err error) *FetchFailure {
	var existing *FetchFailure
	if errors.As(err, &existing) {
		return existing
	}
	if err == nil {
		if status >= 200 && status < 300 {
			return nil
		}
		return &FetchFailure{
			Kind:       FailureHTTP,
			URL:        rawURL,
			StatusCode: status,
			Detail:     http.StatusText(status),
		}
	}
	failure := &FetchFailure{
		Kind:       FailureConnection,
		URL:        rawURL,
		StatusCode: status,
		Detail:     err.Error(),
		Err:        err,
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		failure.Kind = FailureTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		failure.Kind = FailureTimeout
	case status >= 300:
		failure.Kind = FailureHTTP
	}
	return failure
}

// PanicFailure builds the failure recorded when a task panics.
func PanicFailure(rawURL string, recovered any) *FetchFailure {
	return &FetchFailure{
		Kind:   FailurePanic,
		URL:    rawURL,
		Detail: fmt.Sprint(recovered),
	}
}
