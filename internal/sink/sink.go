// Package sink persists the result set of a run: the full and reduced JSON
// payloads through a blob store, the records through an optional database,
// and a completion notice through an optional publisher.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
	"github.com/JakeFAU/roster-crawler/internal/metrics"
)

// DefaultName is the file name of the full payload.
const DefaultName = "roster.json"

const contentTypeJSON = "application/json; charset=utf-8"

// Config names the output artifacts.
type Config struct {
	// Name of the full payload; the reduced one gets a _min suffix.
	Name   string
	Prefix string
	// Topic receives a completion notice when a publisher is set.
	Topic string
}

// Artifacts reports where a run's output went.
type Artifacts struct {
	FullURI    string `json:"fullUri"`
	ReducedURI string `json:"reducedUri"`
	MessageID  string `json:"messageId,omitempty"`
	// Warnings lists best-effort destinations that failed.
	Warnings []string `json:"warnings,omitempty"`
}

// Writer persists ResultSets.
type Writer struct {
	blobs     crawler.BlobStore
	records   crawler.RecordStore
	publisher crawler.Publisher
	cfg       Config
	logger    *zap.Logger
}

// Option configures optional destinations.
type Option func(*Writer)

// WithRecordStore also saves records to a database.
func WithRecordStore(store crawler.RecordStore) Option {
	return func(w *Writer) { w.records = store }
}

// WithPublisher also publishes a completion notice to cfg.Topic.
func WithPublisher(pub crawler.Publisher) Option {
	return func(w *Writer) { w.publisher = pub }
}

// New creates a Writer over blobs.
func New(blobs crawler.BlobStore, cfg Config, logger *zap.Logger, opts ...Option) *Writer {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{blobs: blobs, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write stores both payloads and then the optional destinations. Only blob
// failures are returned; database and publish failures become warnings.
func (w *Writer) Write(ctx context.Context, runID string, set crawler.ResultSet) (Artifacts, error) {
	var art Artifacts

	full, err := EncodeFull(set)
	if err != nil {
		return art, err
	}
	reduced, err := EncodeReduced(set)
	if err != nil {
		return art, err
	}

	fullPath, reducedPath := w.paths()
	art.FullURI, err = w.blobs.PutObject(ctx, fullPath, contentTypeJSON, bytes.NewReader(full))
	metrics.ObserveResultWrite("blob", err)
	if err != nil {
		return art, fmt.Errorf("write %s: %w", fullPath, err)
	}
	art.ReducedURI, err = w.blobs.PutObject(ctx, reducedPath, contentTypeJSON, bytes.NewReader(reduced))
	metrics.ObserveResultWrite("blob", err)
	if err != nil {
		return art, fmt.Errorf("write %s: %w", reducedPath, err)
	}
	w.logger.Info("result set written",
		zap.String("run_id", runID),
		zap.Int("total", set.Total),
		zap.String("full_uri", art.FullURI),
		zap.String("reduced_uri", art.ReducedURI),
	)

	if w.records != nil {
		err := w.records.SaveRecords(ctx, runID, set.Records)
		metrics.ObserveResultWrite("database", err)
		if err != nil {
			w.logger.Error("save records failed", zap.String("run_id", runID), zap.Error(err))
			art.Warnings = append(art.Warnings, "database: "+err.Error())
		}
	}

	if w.publisher != nil && w.cfg.Topic != "" {
		id, err := w.publisher.Publish(ctx, w.cfg.Topic, Notice{
			RunID:       runID,
			GeneratedAt: set.GeneratedAt,
			Total:       set.Total,
			FullURI:     art.FullURI,
			ReducedURI:  art.ReducedURI,
		})
		metrics.ObserveResultWrite("pubsub", err)
		if err != nil {
			w.logger.Error("publish notice failed", zap.String("run_id", runID), zap.Error(err))
			art.Warnings = append(art.Warnings, "pubsub: "+err.Error())
		} else {
			art.MessageID = id
		}
	}
	return art, nil
}

func (w *Writer) paths() (string, string) {
	name := w.cfg.Name
	ext := path.Ext(name)
	reduced := strings.TrimSuffix(name, ext) + "_min" + ext
	prefix := strings.Trim(w.cfg.Prefix, "/")
	if prefix == "" {
		return name, reduced
	}
	return path.Join(prefix, name), path.Join(prefix, reduced)
}

// Notice is the completion message published after a run is written.
type Notice struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Total       int       `json:"total"`
	FullURI     string    `json:"full_uri"`
	ReducedURI  string    `json:"reduced_uri"`
}

// ReducedRecord is a Record without its internal-only fields.
type ReducedRecord struct {
	Affiliation string   `json:"affiliation"`
	Biography   string   `json:"biography"`
	Committees  []string `json:"committees"`
	District    string   `json:"district"`
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	ID          string   `json:"id"`
	Period      string   `json:"period"`
	Phone       string   `json:"phone"`
	PhotoURL    string   `json:"photoUrl"`
	Region      string   `json:"region"`
}

// ReducedPayload is the companion output consumed by lightweight clients.
type ReducedPayload struct {
	LastUpdated time.Time       `json:"lastUpdated"`
	Records     []ReducedRecord `json:"records"`
}

// Reduce projects a result set onto the reduced payload.
func Reduce(set crawler.ResultSet) ReducedPayload {
	out := ReducedPayload{
		LastUpdated: set.GeneratedAt,
		Records:     make([]ReducedRecord, 0, len(set.Records)),
	}
	for _, rec := range set.Records {
		committees := rec.Committees
		if committees == nil {
			committees = []string{}
		}
		out.Records = append(out.Records, ReducedRecord{
			Affiliation: rec.Affiliation,
			Biography:   rec.Biography,
			Committees:  committees,
			District:    rec.District,
			DisplayName: rec.DisplayName,
			Email:       rec.Email,
			ID:          rec.ID,
			Period:      rec.Period,
			Phone:       rec.Phone,
			PhotoURL:    rec.PhotoURL,
			Region:      rec.Region,
		})
	}
	return out
}

// EncodeFull renders the indented full payload.
func EncodeFull(set crawler.ResultSet) ([]byte, error) {
	if set.Records == nil {
		set.Records = []crawler.Record{}
	}
	return encode(set, "  ")
}

// EncodeReduced renders the compact reduced payload.
func EncodeReduced(set crawler.ResultSet) ([]byte, error) {
	return encode(Reduce(set), "")
}

func encode(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return buf.Bytes(), nil
}
