package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"ProductScout/internal/app"
	"ProductScout/internal/domain"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	rankColor    = color.New(color.FgGreen, color.Bold)
	warnColor    = color.New(color.FgYellow)
	failColor    = color.New(color.FgRed)
	citeColor    = color.New(color.FgHiBlack)
	maxQuoteCols = 100
)

func printOutcome(w io.Writer, outcome app.RunOutcome) {
	res := outcome.Result
	if !res.Success {
		failColor.Fprintf(w, "✗ query %s failed: %s\n", res.QueryID, res.Error)
		return
	}

	headerColor.Fprintf(w, "%s\n", outcome.Query.Text)
	if intent := outcome.Query.Intent; intent != nil {
		fmt.Fprintf(w, "use case: %s | category: %s\n", intent.Intent.UseCase, intent.InferredCategory)
		if intent.Fallback {
			warnColor.Fprintln(w, "⚠ intent parsing fell back to heuristics")
		}
	}
	fmt.Fprintf(w, "%d candidates, %d ranked in %dms\n\n", res.CandidateCount, res.Top10Count, res.DurationMs)

	if outcome.Ranking == nil || len(outcome.Ranking.Entries) == 0 {
		warnColor.Fprintln(w, "no products found")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPRODUCT\tOVERALL\tFIT\tREDDIT\tCOVERAGE\tRISK\tCONFIDENCE")
	for _, e := range outcome.Ranking.Entries {
		s := e.Scores
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			rankColor.Sprintf("#%d", e.Rank), e.Name, s.Overall, s.QueryFit, s.RedditEndorsement, s.SocialProofCoverage, s.RiskScore, s.ConfidenceScore)
	}
	tw.Flush()

	fmt.Fprintln(w)
	for _, e := range outcome.Ranking.Entries {
		rankColor.Fprintf(w, "#%d %s\n", e.Rank, e.Name)
		fmt.Fprintf(w, "   %s\n", e.Rationale)
		for _, c := range e.Citations {
			citeColor.Fprintf(w, "   %q %s\n", clip(c.Quote), citationSource(c))
		}
	}
}

func citationSource(c domain.Citation) string {
	if c.SourceURL == "" {
		return "(" + string(c.Platform) + ")"
	}
	return "(" + string(c.Platform) + " " + c.SourceURL + ")"
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxQuoteCols {
		return s
	}
	return string(r[:maxQuoteCols-1]) + "…"
}
