package log

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"voxelnav.ai/internal/geom"
	"voxelnav.ai/internal/nav/motion"
)

func TestTraceLogger_WriteAndRead(t *testing.T) {
	dir := t.TempDir()
	l := NewTraceLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	l.Trace(motion.TraceEvent{Kind: motion.TraceRotate, RunID: "r1", Direction: motion.RotateLeft, Ticks: 10})
	l.Trace(motion.TraceEvent{Kind: motion.TraceMove, RunID: "r1", Movement: motion.Run, Ticks: 20, Position: geom.Vec3{X: 1}})
	clock = clock.Add(2 * time.Minute)
	l.Trace(motion.TraceEvent{Kind: motion.TraceArrive, RunID: "r1", Distance: 0.3})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}

	files, err := TraceFiles(dir)
	if err != nil {
		t.Fatalf("TraceFiles: %v", err)
	}
	want := []string{
		filepath.Join(dir, "trace-2026-03-01-10.jsonl.zst"),
		filepath.Join(dir, "trace-2026-03-01-11.jsonl.zst"),
	}
	if len(files) != 2 || files[0] != want[0] || files[1] != want[1] {
		t.Fatalf("files=%v", files)
	}

	var kinds []string
	for _, f := range files {
		if err := ReadTrace(f, func(ev motion.TraceEvent) error {
			kinds = append(kinds, ev.Kind)
			return nil
		}); err != nil {
			t.Fatalf("ReadTrace: %v", err)
		}
	}
	if len(kinds) != 3 || kinds[0] != motion.TraceRotate || kinds[2] != motion.TraceArrive {
		t.Fatalf("kinds=%v", kinds)
	}
}

func TestJSONLZstdWriter_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		w := NewJSONLZstdWriter(dir, "trace")
		w.now = func() time.Time { return clock }
		if err := w.Write(motion.TraceEvent{Kind: motion.TraceObserve, Pass: i}); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	var passes []int
	err := ReadTrace(filepath.Join(dir, "trace-2026-03-01-10.jsonl.zst"), func(ev motion.TraceEvent) error {
		passes = append(passes, ev.Pass)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadTrace: %v", err)
	}
	if len(passes) != 2 || passes[0] != 0 || passes[1] != 1 {
		t.Fatalf("passes=%v", passes)
	}
}

func TestReadTrace_StopsOnCallbackError(t *testing.T) {
	dir := t.TempDir()
	l := NewTraceLogger(dir)
	l.w.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	for i := 0; i < 5; i++ {
		l.Trace(motion.TraceEvent{Kind: motion.TraceMove})
	}
	_ = l.Close()
	files, _ := TraceFiles(dir)
	if len(files) != 1 {
		t.Fatalf("files=%v", files)
	}
	stop := errors.New("stop")
	n := 0
	err := ReadTrace(files[0], func(motion.TraceEvent) error {
		n++
		if n == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || n != 2 {
		t.Fatalf("err=%v n=%d", err, n)
	}
}

func TestTraceFiles_MissingDir(t *testing.T) {
	if _, err := TraceFiles(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error")
	}
}
