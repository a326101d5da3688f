package navigator

import "time"

// RunRecord summarises one NavigateTo call for the run index.
type RunRecord struct {
	RunID      string        `json:"run_id"`
	Agent      string        `json:"agent"`
	Structure  string        `json:"structure"`
	Target     string        `json:"target"`
	Outcome    string        `json:"outcome"`
	Distance   float64       `json:"distance"`
	Steps      int           `json:"steps"`
	PathNodes  int           `json:"path_nodes"`
	GraphNodes int           `json:"graph_nodes"`
	GraphEdges int           `json:"graph_edges"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Recorder receives a RunRecord after every navigation. Implementations must not block.
type Recorder interface {
	RecordRun(RunRecord)
}

type RecorderFunc func(RunRecord)

func (f RecorderFunc) RecordRun(r RunRecord) { f(r) }
