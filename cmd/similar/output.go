package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/timmy/stylematch/internal/domain"
	"github.com/timmy/stylematch/internal/service"
)

func printProducts(w io.Writer, records []domain.ProductRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT_ID\tTYPE\tNAME")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ProductID, r.ProductType, r.DisplayName())
	}
	tw.Flush()
}

func printResponse(w io.Writer, resp *service.SimilarityResponse) {
	ref := resp.Reference
	fmt.Fprintf(w, "Reference: %s (%s) %s\n\n", ref.ProductID, ref.ProductType, ref.DisplayName())

	if len(resp.Results) == 0 {
		fmt.Fprintln(w, "No similar products found.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RANK\tPRODUCT_ID\tTYPE\tSCORE\tNAME")
		for i, r := range resp.Results {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%.4f\t%s\n", i+1, r.CandidateID, r.ProductType, r.Score, r.DisplayName)
		}
		tw.Flush()
	}

	if len(resp.Diagnostics) > 0 {
		fmt.Fprintf(w, "\nSkipped %d candidate(s):\n", len(resp.Diagnostics))
		for _, d := range resp.Diagnostics {
			fmt.Fprintf(w, "  %s: %s\n", d.ProductID, d.Message())
		}
	}

	s := resp.Stats
	fmt.Fprintf(w, "\n%d candidates, %d scored, %d returned, %d cache hits in %s (run %s)\n",
		s.Candidates, s.Scored, s.Returned, s.CacheHits, s.Duration.Round(time.Millisecond), resp.RunID)
}
