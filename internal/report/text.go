package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

// WriteText prints one line per scenario and a summary, the way a terminal
// reader wants it.
func WriteText(w io.Writer, r *Report) error {
	fmt.Fprintf(w, "Suite: %s\n", r.Suite())
	if r.BaseURL() != "" {
		fmt.Fprintf(w, "Base URL: %s\n", r.BaseURL())
	}
	fmt.Fprintf(w, "Run: %s\n\n", r.RunID())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, res := range r.Results() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Outcome, res.ID(), res.Duration.Round(time.Millisecond))
		if res.Message != "" {
			fmt.Fprintf(tw, "\t  %s\t\n", indent(res.Message))
		}
		if res.TeardownError != "" {
			fmt.Fprintf(tw, "\t  teardown: %s\t\n", indent(res.TeardownError))
		}
		if res.Screenshot != "" {
			fmt.Fprintf(tw, "\t  screenshot: %s\t\n", res.Screenshot)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := r.Summary()
	fmt.Fprintf(w, "\n%d scenarios: %d passed, %d failed, %d errors, %d skipped (%s)\n",
		s.Total, s.Pass, s.Fail, s.Error, s.Skip, r.Duration().Round(time.Millisecond))
	if r.Aborted() != "" {
		fmt.Fprintf(w, "Run aborted: %s\n", r.Aborted())
	}
	_, err := fmt.Fprintln(w, verdict(r))
	return err
}

func verdict(r *Report) string {
	if r.Failed() {
		return "FAILED"
	}
	return "OK"
}

// indent keeps multi-line messages (the bank's error text has blank lines)
// inside their column.
func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n\t    ")
}
