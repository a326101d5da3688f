package navigator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// FleetJob is one agent's navigation. Jobs must not share a World connection.
type FleetJob struct {
	Agent  string
	World  WorldInterface
	Target Target
}

type FleetResult struct {
	Agent  string
	Result Result
	Err    error
}

// Fleet navigates independent agents concurrently. Agents share no mutable state;
// each job gets its own Navigator built from Options.
type Fleet struct {
	Options Options
	// Limit caps concurrent navigations; <= 0 runs every job at once.
	Limit int
}

// Run returns one result per job, in job order. A failed navigation does not
// stop the others; ctx cancellation stops them all.
func (f *Fleet) Run(ctx context.Context, jobs []FleetJob, timeout time.Duration) []FleetResult {
	out := make([]FleetResult, len(jobs))
	var g errgroup.Group
	if f.Limit > 0 {
		g.SetLimit(f.Limit)
	}
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			opts := f.Options
			opts.Agent = job.Agent
			res, err := New(job.World, opts).NavigateTo(ctx, job.Target, timeout)
			out[i] = FleetResult{Agent: job.Agent, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
