package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/rickgao/motionfeed/internal/metrics"
	"github.com/rickgao/motionfeed/internal/model"
	"github.com/rickgao/motionfeed/internal/poller"
	"github.com/rickgao/motionfeed/internal/writer"
)

// Summary collects what a run produced.
type Summary struct {
	RunID     uuid.UUID
	DataURL   string
	Reason    poller.StopReason
	Duration  time.Duration
	Stats     poller.Stats
	Series    []model.Series
	Latency   metrics.LatencySummary
	Writer    *writer.WriterMetrics // nil when persistence is off
	FeedDrops int64
}

// Write prints s to w.
func Write(w io.Writer, s Summary) {
	color.New(color.FgCyan).Add(color.Bold).Fprintln(w, "\n=== Poll Run Report ===")

	fmt.Fprintf(w, "  Run ID               : %s\n", s.RunID)
	fmt.Fprintf(w, "  Data URL             : %s\n", s.DataURL)
	fmt.Fprintf(w, "  Duration             : %v\n", roundDuration(s.Duration))
	reasonColor(s.Reason).Fprintf(w, "  Stopped              : %s\n", s.Reason)

	color.New(color.FgGreen).Add(color.Bold).Fprintln(w, "\nFetches:")
	fmt.Fprintf(w, "  Requests             : %d\n", s.Stats.Fetches)
	fmt.Fprintf(w, "  Transport Errors     : %d\n", s.Stats.Errors)
	fmt.Fprintf(w, "  Empty Responses      : %d\n", s.Stats.EmptyResponses)
	fmt.Fprintf(w, "  Skipped Ticks        : %d\n", s.Stats.SkippedTicks)
	if s.Latency.Count > 0 {
		fmt.Fprintf(w, "  Latency              : p50=%v  p90=%v  p95=%v  max=%v\n",
			roundDuration(s.Latency.P50), roundDuration(s.Latency.P90),
			roundDuration(s.Latency.P95), roundDuration(s.Latency.Max))
	} else {
		fmt.Fprintln(w, "  Latency              : N/A")
	}

	color.New(color.FgGreen).Add(color.Bold).Fprintln(w, "\nSeries:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	t := tabby.NewCustom(tw)
	t.AddHeader("Series", "Points", "Last X", "Last Y")
	for _, ser := range s.Series {
		last, ok := ser.Last()
		if !ok {
			t.AddLine(ser.Name, 0, "-", "-")
			continue
		}
		t.AddLine(ser.Name, len(ser.Data), last.X, fmt.Sprintf("%.3f", last.Y))
	}
	t.Print()

	fmt.Fprintf(w, "\n  Points Merged        : %d\n", s.Stats.PointsMerged)
	fmt.Fprintf(w, "  Duplicates Skipped   : %d\n", s.Stats.Duplicates)
	fmt.Fprintf(w, "  Gaps                 : %d\n", s.Stats.Gaps)
	fmt.Fprintf(w, "  Feed Frames Dropped  : %d\n", s.FeedDrops)

	if s.Writer != nil {
		color.New(color.FgGreen).Add(color.Bold).Fprintln(w, "\nStorage:")
		fmt.Fprintf(w, "  Inserted             : %d\n", s.Writer.Inserts)
		fmt.Fprintf(w, "  Conflicts            : %d\n", s.Writer.Conflicts)
		fmt.Fprintf(w, "  Failed Batches       : %d\n", s.Writer.Errors)
	}
	fmt.Fprintln(w)
}

func reasonColor(r poller.StopReason) *color.Color {
	switch r {
	case poller.StopReasonErrors:
		return color.New(color.FgRed)
	case poller.StopReasonEmpty:
		return color.New(color.FgYellow)
	default:
		return color.New(color.Reset)
	}
}

func roundDuration(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(10 * time.Microsecond)
	}
	return d.Round(10 * time.Millisecond)
}
