package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"voxelnav.ai/internal/persistence/indexdb"
)

type runRow struct {
	RunID      string   `json:"run_id"`
	Agent      string   `json:"agent"`
	Target     string   `json:"target"`
	Outcome    string   `json:"outcome"`
	Distance   *float64 `json:"distance"`
	Steps      int      `json:"steps"`
	PathNodes  int      `json:"path_nodes"`
	GraphNodes int      `json:"graph_nodes"`
	StartedAt  string   `json:"started_at"`
	DurationMs int64    `json:"duration_ms"`
	Error      string   `json:"error,omitempty"`
}

// openIndex parses fs with a -db flag and opens an existing index.
func openIndex(fs *flag.FlagSet, args []string) *indexdb.SQLiteIndex {
	dbPath := fs.String("db", "./data/index/runs.sqlite", "sqlite run index")
	_ = fs.Parse(args)
	path := strings.TrimSpace(*dbPath)
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return idx
}

func runsCmd(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	agent := fs.String("agent", "", "agent filter")
	outcome := fs.String("outcome", "", "outcome filter (ARRIVED, STALLED, TIMED_OUT, TARGET_LOST, FAILED)")
	limit := fs.Int("limit", 20, "result limit")
	idx := openIndex(fs, args)
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	runs, err := idx.ListRuns(ctx, indexdb.ListOptions{Agent: *agent, Outcome: strings.ToUpper(*outcome), Limit: *limit})
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range runs {
		row := runRow{
			RunID:      r.RunID,
			Agent:      r.Agent,
			Target:     r.Target,
			Outcome:    r.Outcome,
			Steps:      r.Steps,
			PathNodes:  r.PathNodes,
			GraphNodes: r.GraphNodes,
			StartedAt:  r.StartedAt.Format(time.RFC3339Nano),
			DurationMs: r.Duration.Milliseconds(),
			Error:      r.Error,
		}
		if !math.IsNaN(r.Distance) {
			d := r.Distance
			row.Distance = &d
		}
		_ = enc.Encode(row)
	}
}

func statsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	agent := fs.String("agent", "", "agent filter")
	idx := openIndex(fs, args)
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	counts, err := idx.OutcomeCounts(ctx, *agent)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	total := 0
	for _, c := range counts {
		total += c.Runs
	}
	for _, c := range counts {
		pct := 0.0
		if total > 0 {
			pct = 100 * float64(c.Runs) / float64(total)
		}
		fmt.Printf("%-12s runs=%-6d %5.1f%% avg_duration_ms=%.0f avg_steps=%.1f\n", c.Outcome, c.Runs, pct, c.AvgDurationMs, c.AvgSteps)
	}
	fmt.Printf("total=%d\n", total)
}
