package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"voxelnav.ai/internal/nav/motion"
)

func TestSummariseRuns(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	evs := []motion.TraceEvent{
		{Time: t0, RunID: "b", Agent: "eng", Kind: motion.TraceRotate, Ticks: 10, Distance: 4},
		{Time: t0.Add(time.Second), RunID: "b", Agent: "eng", Kind: motion.TraceMove, Ticks: 20, Distance: 3},
		{Time: t0.Add(2 * time.Second), RunID: "b", Agent: "eng", Kind: motion.TraceArrive, Waypoint: 2, Distance: 0.3},
		{Time: t0.Add(-time.Minute), RunID: "a", Agent: "other", Kind: motion.TraceMove, Ticks: 6, Distance: 9},
	}
	var out bytes.Buffer
	f := filter{out: &out}
	runs := map[string]*runSummary{}
	for _, ev := range evs {
		f.add(runs, ev)
	}
	if strings.Count(out.String(), "\n") != len(evs) {
		t.Fatalf("expected one line per event, got %q", out.String())
	}

	got := sortedRuns(runs)
	if len(got) != 2 || got[0].RunID != "a" || got[1].RunID != "b" {
		t.Fatalf("order: %+v", got)
	}
	b := got[1]
	if b.Events != 3 || b.Waypoints != 3 || b.Final != 0.3 {
		t.Fatalf("summary: %+v", b)
	}
	if b.Ticks[motion.TraceMove] != 20 || b.Kinds[motion.TraceRotate] != 1 {
		t.Fatalf("kinds: %+v ticks: %+v", b.Kinds, b.Ticks)
	}
	line := b.String()
	if !strings.Contains(line, "span=2s") || !strings.Contains(line, "final_distance=0.300") {
		t.Fatalf("line: %s", line)
	}
}

func TestFilterByAgent(t *testing.T) {
	f := filter{agent: "eng"}
	runs := map[string]*runSummary{}
	f.add(runs, motion.TraceEvent{RunID: "x", Agent: "eng", Kind: motion.TraceMove})
	f.add(runs, motion.TraceEvent{RunID: "y", Agent: "other", Kind: motion.TraceMove})
	if len(runs) != 1 || runs["x"] == nil {
		t.Fatalf("runs: %+v", runs)
	}
}
