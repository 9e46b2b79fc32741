// Package results turns task outcomes into the sorted result set of a run.
package results

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
)

// Aggregate keeps successful records, counts failures by kind and sorts the
// records. Outcome order does not affect the result.
func Aggregate(outcomes []crawler.Outcome, now time.Time) (crawler.ResultSet, crawler.Summary) {
	records := make([]crawler.Record, 0, len(outcomes))
	summary := crawler.Summary{Processed: len(outcomes)}
	for _, out := range outcomes {
		if out.Succeeded() {
			records = append(records, *out.Record)
			continue
		}
		summary.Failed++
		if summary.FailuresByKind == nil {
			summary.FailuresByKind = map[crawler.FailureKind]int{}
		}
		kind := crawler.FailurePanic
		if out.Failure != nil {
			kind = out.Failure.Kind
		}
		summary.FailuresByKind[kind]++
	}
	summary.Succeeded = len(records)
	Sort(records)
	return crawler.ResultSet{
		GeneratedAt: now.UTC(),
		Records:     records,
		Total:       len(records),
	}, summary
}

// Sort orders records by display name, then by id. It is stable and
// idempotent.
func Sort(records []crawler.Record) {
	slices.SortStableFunc(records, func(a, b crawler.Record) int {
		return cmp.Or(
			strings.Compare(a.DisplayName, b.DisplayName),
			strings.Compare(a.ID, b.ID),
		)
	})
}

// Fields supported by Distribution.
const (
	ByAffiliation = "affiliation"
	ByRegion      = "region"
)

// Count is one bucket of a distribution.
type Count struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Distribution returns the n most frequent non-empty values of field, most
// frequent first and ties broken by value. n <= 0 returns every bucket.
func Distribution(records []crawler.Record, field string, n int) []Count {
	var value func(crawler.Record) string
	switch field {
	case ByAffiliation:
		value = func(r crawler.Record) string { return r.Affiliation }
	case ByRegion:
		value = func(r crawler.Record) string { return r.Region }
	default:
		return nil
	}
	counts := map[string]int{}
	for _, rec := range records {
		if v := value(rec); v != "" {
			counts[v]++
		}
	}
	out := make([]Count, 0, len(counts))
	for v, c := range counts {
		out = append(out, Count{Value: v, Count: c})
	}
	slices.SortFunc(out, func(a, b Count) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), strings.Compare(a.Value, b.Value))
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
