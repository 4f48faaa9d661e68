package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/nameatlas/nameatlas/internal/aggregator"
	"github.com/nameatlas/nameatlas/internal/conf"
)

// RunOnce performs a single analysis of the name lists in settings.Input and
// prints the results to stdout, as JSON when requested or as a table
// otherwise. Ctrl-C cancels in-flight lookups; already resolved parts are
// not lost, the run simply returns the cancellation error.
func RunOnce(settings *conf.Settings) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg, gw, err := buildPipeline(settings)
	if err != nil {
		return err
	}
	defer gw.Close()

	result, err := agg.Analyze(ctx,
		settings.Input.FirstNames,
		settings.Input.MiddleNames,
		settings.Input.LastName,
		aggregator.Options{})
	if err != nil {
		return err
	}

	if settings.Input.JSON {
		return printJSON(result)
	}
	return printTable(result)
}

func printJSON(result *aggregator.Result) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func printTable(result *aggregator.Result) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)

	fmt.Fprintln(w, "NAME\tSTATUS\tGENDER\tMEANING\tCULTURES\tNICKNAMES")
	for i := range result.Combinations {
		c := &result.Combinations[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.FullName,
			c.Status.Worst(),
			c.Gender,
			truncate(c.Meaning, 60),
			strings.Join(c.Cultures.Positive, ","),
			strings.Join(c.Nicknames.Good, ","),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, r := range result.Rejected {
		fmt.Fprintf(os.Stderr, "rejected %q: %s\n", r.Part, r.Reason)
	}

	s := result.Stats
	fmt.Printf("\n%d combinations from %d distinct parts, %d lookups (%d resolved, %d failed, %d without data) in %dms\n",
		s.Combinations, s.DistinctParts, s.Lookups, s.PartsResolved, s.PartsFailed, s.PartsNotFound, s.ElapsedMS)

	return nil
}

// truncate shortens long meaning texts so the table stays readable.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
