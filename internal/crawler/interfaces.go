package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata. Errors are
// *FetchFailure values.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(page Page) bool
}

// Extractor turns an entity page into a record. It never fails; fields no
// strategy could fill are returned by name.
type Extractor interface {
	ExtractDetailed(body []byte, ref EntityRef) (Record, []string)
}

// Discoverer produces the ordered, deduplicated references for a run.
type Discoverer interface {
	Discover(ctx context.Context) ([]EntityRef, error)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// RecordStore persists extracted records in a database.
type RecordStore interface {
	SaveRecords(ctx context.Context, runID string, records []Record) error
	Close() error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Pacer blocks until a request to url may proceed.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// Hasher computes digests for archive naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
