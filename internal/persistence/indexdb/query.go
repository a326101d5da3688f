package indexdb

import (
	"context"
	"database/sql"
	"math"
	"time"

	"voxelnav.ai/internal/nav/navigator"
)

type ListOptions struct {
	Agent   string
	Outcome string
	// Limit <= 0 means 50.
	Limit int
}

// ListRuns returns the newest runs first.
func (s *SQLiteIndex) ListRuns(ctx context.Context, opt ListOptions) ([]navigator.RunRecord, error) {
	if opt.Limit <= 0 {
		opt.Limit = 50
	}
	q := `SELECT run_id,agent,structure,target,outcome,distance,steps,path_nodes,graph_nodes,graph_edges,started_at,duration_ms,error
		FROM runs WHERE (?='' OR agent=?) AND (?='' OR outcome=?)
		ORDER BY started_at DESC, run_id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, opt.Agent, opt.Agent, opt.Outcome, opt.Outcome, opt.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []navigator.RunRecord
	for rows.Next() {
		var (
			r        navigator.RunRecord
			distance sql.NullFloat64
			started  string
			ms       int64
			errText  sql.NullString
		)
		if err := rows.Scan(&r.RunID, &r.Agent, &r.Structure, &r.Target, &r.Outcome, &distance,
			&r.Steps, &r.PathNodes, &r.GraphNodes, &r.GraphEdges, &started, &ms, &errText); err != nil {
			return nil, err
		}
		r.Distance = math.NaN()
		if distance.Valid {
			r.Distance = distance.Float64
		}
		if t, err := time.Parse(timeLayout, started); err == nil {
			r.StartedAt = t
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		r.Error = errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}

type OutcomeCount struct {
	Outcome       string
	Runs          int
	AvgDurationMs float64
	AvgSteps      float64
}

// OutcomeCounts aggregates runs per outcome, optionally for one agent.
func (s *SQLiteIndex) OutcomeCounts(ctx context.Context, agent string) ([]OutcomeCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*), AVG(duration_ms), AVG(steps)
		FROM runs WHERE (?='' OR agent=?) GROUP BY outcome ORDER BY outcome`, agent, agent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OutcomeCount
	for rows.Next() {
		var c OutcomeCount
		if err := rows.Scan(&c.Outcome, &c.Runs, &c.AvgDurationMs, &c.AvgSteps); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
