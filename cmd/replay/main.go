package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"voxelnav.ai/internal/nav/motion"
	persistlog "voxelnav.ai/internal/persistence/log"
)

func main() {
	var (
		traceDir = flag.String("traces", "./data/traces", "dir containing trace-*.jsonl.zst")
		file     = flag.String("file", "", "single trace file (overrides -traces)")
		runID    = flag.String("run", "", "only this run id")
		agent    = flag.String("agent", "", "only this agent")
		events   = flag.Bool("events", false, "print every event of the selected runs")
	)
	flag.Parse()

	files := []string{*file}
	if *file == "" {
		var err error
		files, err = persistlog.TraceFiles(*traceDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list traces:", err)
			os.Exit(1)
		}
		if len(files) == 0 {
			fmt.Fprintln(os.Stderr, "no trace files found in", *traceDir)
			os.Exit(1)
		}
	}

	f := filter{runID: *runID, agent: *agent}
	if *events {
		f.out = os.Stdout
	}
	runs := map[string]*runSummary{}
	for _, path := range files {
		if err := persistlog.ReadTrace(path, func(ev motion.TraceEvent) error {
			f.add(runs, ev)
			return nil
		}); err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
			os.Exit(1)
		}
	}
	for _, s := range sortedRuns(runs) {
		fmt.Println(s)
	}
	fmt.Printf("runs=%d files=%d\n", len(runs), len(files))
}

type filter struct {
	runID string
	agent string
	out   io.Writer
}

type runSummary struct {
	RunID  string
	Agent  string
	First  time.Time
	Last   time.Time
	Events int
	Kinds  map[string]int
	// Ticks commanded per kind.
	Ticks     map[string]int
	Waypoints int
	Final     float64
}

func (f filter) add(runs map[string]*runSummary, ev motion.TraceEvent) {
	if f.runID != "" && ev.RunID != f.runID {
		return
	}
	if f.agent != "" && ev.Agent != f.agent {
		return
	}
	if f.out != nil {
		fmt.Fprintf(f.out, "%s run=%s agent=%s %s wp=%d pass=%d dist=%.3f err=%.3f %s%s ticks=%d\n",
			ev.Time.Format(time.RFC3339Nano), ev.RunID, ev.Agent, ev.Kind, ev.Waypoint, ev.Pass,
			ev.Distance, ev.OrientationError, ev.Direction, ev.Movement, ev.Ticks)
	}
	s, ok := runs[ev.RunID]
	if !ok {
		s = &runSummary{RunID: ev.RunID, Agent: ev.Agent, First: ev.Time, Kinds: map[string]int{}, Ticks: map[string]int{}}
		runs[ev.RunID] = s
	}
	if ev.Time.Before(s.First) {
		s.First = ev.Time
	}
	if ev.Time.After(s.Last) {
		s.Last = ev.Time
	}
	s.Events++
	s.Kinds[ev.Kind]++
	s.Ticks[ev.Kind] += ev.Ticks
	if ev.Waypoint+1 > s.Waypoints {
		s.Waypoints = ev.Waypoint + 1
	}
	s.Final = ev.Distance
}

func sortedRuns(runs map[string]*runSummary) []*runSummary {
	out := make([]*runSummary, 0, len(runs))
	for _, s := range runs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].First.Equal(out[j].First) {
			return out[i].First.Before(out[j].First)
		}
		return out[i].RunID < out[j].RunID
	})
	return out
}

func (s *runSummary) String() string {
	kinds := make([]string, 0, len(s.Kinds))
	for k := range s.Kinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	var b strings.Builder
	fmt.Fprintf(&b, "run=%s agent=%s events=%d waypoints=%d span=%s final_distance=%.3f",
		s.RunID, s.Agent, s.Events, s.Waypoints, s.Last.Sub(s.First).Round(time.Millisecond), s.Final)
	for _, k := range kinds {
		fmt.Fprintf(&b, " %s=%d/%dt", k, s.Kinds[k], s.Ticks[k])
	}
	return b.String()
}
