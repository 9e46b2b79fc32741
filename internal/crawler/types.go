package crawler

import (
	"net/http"
	"time"
	"unicode/utf8"
)

// Record field caps enforced on every extracted record.
const (
	MaxCommittees   = 10
	MaxBiographyLen = 1500
)

// EntityRef points at one entity detail page discovered on the listing page.
type EntityRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	URL         string `json:"url"`
}

// Record is the structured result of extracting one entity page. JSON keys are
// declared in alphabetical order so encoded output has a stable, sorted layout.
type Record struct {
	Affiliation string    `json:"affiliation"`
	Biography   string    `json:"biography"`
	Committees  []string  `json:"committees"`
	District    string    `json:"district"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	FetchedAt   time.Time `json:"fetchedAt"`
	ID          string    `json:"id"`
	Period      string    `json:"period"`
	Phone       string    `json:"phone"`
	PhotoURL    string    `json:"photoUrl"`
	Region      string    `json:"region"`
	SourceURL   string    `json:"sourceUrl"`
}

// Clamp enforces the committee count and biography length caps and normalizes
// a nil committee list to an empty one.
func (r Record) Clamp() Record {
	if r.Committees == nil {
		r.Committees = []string{}
	}
	if len(r.Committees) > MaxCommittees {
		r.Committees = append([]string(nil), r.Committees[:MaxCommittees]...)
	}
	r.Biography = TruncateRunes(r.Biography, MaxBiographyLen)
	return r
}

// Page is the raw response returned by a Fetcher.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Headless   bool
}

// ContentLength returns the size of the page body.
func (p Page) ContentLength() int {
	return len(p.Body)
}

// Outcome is the terminal result of one fetch+extract task. Exactly one of
// Record or Failure is set.
type Outcome struct {
	Ref     EntityRef
	Record  *Record
	Failure *FetchFailure
}

// Succeeded reports whether the task produced a record.
func (o Outcome) Succeeded() bool {
	return o.Record != nil && o.Failure == nil
}

// SuccessOutcome wraps a record.
func SuccessOutcome(ref EntityRef, rec Record) Outcome {
	return Outcome{Ref: ref, Record: &rec}
}

// FailureOutcome wraps a failure.
func FailureOutcome(ref EntityRef, failure *FetchFailure) Outcome {
	return Outcome{Ref: ref, Failure: failure}
}

// ResultSet is the sorted, persisted output of one run.
type ResultSet struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Records     []Record  `json:"records"`
	Total       int       `json:"total"`
}

// Summary carries the run counters reported to the operator.
type Summary struct {
	Processed      int                 `json:"processed"`
	Succeeded      int                 `json:"succeeded"`
	Failed         int                 `json:"failed"`
	FailuresByKind map[FailureKind]int `json:"failuresByKind,omitempty"`
}

// TruncateRunes caps s at n runes without splitting a multi-byte sequence.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
