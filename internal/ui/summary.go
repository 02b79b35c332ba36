package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/fastsql2json/sql2json/internal/pipeline"
)

// PrintSummary writes a short human summary of a run to w.
func PrintSummary(w io.Writer, r *pipeline.Report) {
	fmt.Fprintf(w, "\n%s\n\n", headerStyle.Render("Run summary"))
	fmt.Fprintf(w, "  %s %d generated (%d rows)\n", RenderPass("✓"), r.Generated, r.Rows)
	fmt.Fprintf(w, "  %s %d up to date\n", RenderMuted("·"), r.Fresh)
	if r.Locked > 0 {
		fmt.Fprintf(w, "  %s %d skipped (locked)\n", RenderWarn("⚠"), r.Locked)
	}
	if r.Failed > 0 {
		fmt.Fprintf(w, "  %s %d failed\n", RenderFail("✗"), r.Failed)
		for _, o := range r.Failures() {
			fmt.Fprintf(w, "      %s %s\n", o.Path, RenderMuted("("+o.Category()+")"))
		}
	}
	fmt.Fprintf(w, "\n  %d files in %v\n", r.Total(), r.Duration.Round(time.Millisecond))
}
