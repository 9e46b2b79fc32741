// Package cmd defines and implements the CLI commands for the roster-crawler
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/roster-crawler/internal/crawler"
	"github.com/JakeFAU/roster-crawler/internal/pipeline"
	"github.com/JakeFAU/roster-crawler/internal/results"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl of the roster and writes the result set",
		Long: `Fetches the listing page, discovers entity references, extracts every
entity page with at most crawl.concurrency_limit requests in flight, and
writes the sorted result set. The whole batch is bounded by
crawl.batch_timeout.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	report, err := appInstance.Crawl(cmd.Context())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	// An interrupted run still prints what it finished, then fails.
	printSummary(cmd.OutOrStdout(), report)
	return err
}

func printSummary(w io.Writer, report pipeline.Report) {
	s := report.Summary
	fmt.Fprintf(w, "run %s\n", report.RunID)
	fmt.Fprintf(w, "processed: %d  succeeded: %d  failed: %d\n", s.Processed, s.Succeeded, s.Failed)

	kinds := make([]crawler.FailureKind, 0, len(s.FailuresByKind))
	for kind := range s.FailuresByKind {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(w, "  %s: %d\n", kind, s.FailuresByKind[kind])
	}

	for _, field := range []string{results.ByAffiliation, results.ByRegion} {
		counts := report.Distributions[field]
		if len(counts) == 0 {
			continue
		}
		fmt.Fprintf(w, "top %s:\n", field)
		for _, c := range counts {
			fmt.Fprintf(w, "  %-40s %d\n", c.Value, c.Count)
		}
	}

	if report.Artifacts.FullURI != "" {
		fmt.Fprintf(w, "written: %s\n", report.Artifacts.FullURI)
		fmt.Fprintf(w, "reduced: %s\n", report.Artifacts.ReducedURI)
	}
	for _, warning := range report.Artifacts.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}
