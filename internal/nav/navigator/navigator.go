package navigator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"voxelnav.ai/internal/geom"
	"voxelnav.ai/internal/nav/graph"
	"voxelnav.ai/internal/nav/motion"
	"voxelnav.ai/internal/nav/pathfind"
	"voxelnav.ai/internal/sim/tuning"
)

var (
	// ErrTargetNotFound means the target structure or block is not in the current observation.
	ErrTargetNotFound = errors.New("target not found")
	// ErrStalled means the agent stopped closing in on its last waypoint.
	ErrStalled = errors.New("agent stalled before the target")
)

// WorldInterface is everything a navigation needs from the world.
type WorldInterface interface {
	motion.World
	ObserveStructure(ctx context.Context, id string) (graph.Snapshot, error)
}

// Target names where to go: a structure plus either a named block or a world location.
// With neither set, the tuned target block name is used.
type Target struct {
	StructureID string
	BlockName   string
	Location    *geom.Vec3
}

func (t Target) String() string {
	switch {
	case t.Location != nil:
		return fmt.Sprintf("%s@%s", t.StructureID, *t.Location)
	case t.BlockName != "":
		return t.StructureID + "/" + t.BlockName
	default:
		return t.StructureID
	}
}

// Result reports one navigation. Graph and Path are set once planning succeeded.
// Outcome is Arrived exactly when NavigateTo returned a nil error; a stall on the
// last waypoint comes back as Stalled together with ErrStalled.
type Result struct {
	RunID    string
	Outcome  motion.Outcome
	Distance float64
	Steps    int

	Graph     *graph.NavGraph
	Path      []graph.NodeID
	Waypoints []geom.Vec3
}

type Options struct {
	Tuning    tuning.Tuning
	Scheduler motion.Scheduler
	Tracer    motion.Tracer
	Logger    *log.Logger
	Metrics   *Metrics
	Recorder  Recorder
	Agent     string
	Movement  motion.MovementType
}

// Navigator plans and drives one agent. Like motion.Controller it is not safe for
// concurrent use; Fleet gives every agent its own.
type Navigator struct {
	world WorldInterface
	opts  Options
	log   *log.Logger
}

func New(w WorldInterface, opts Options) *Navigator {
	opts.Tuning.Normalize()
	if opts.Movement == "" {
		opts.Movement = motion.Run
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Navigator{world: w, opts: opts, log: logger}
}

// ResolveUp picks the structure's up axis from its gravity hint, falling back to
// the observed agent up when the hint is zero.
func ResolveUp(snap graph.Snapshot, agentUp geom.Vec3) geom.AxisDirection {
	if snap.UpHint.LengthSquared() > 0 {
		return geom.ResolveAxis(snap.UpHint)
	}
	return geom.ResolveAxis(agentUp)
}

// BuildNavGraph turns a structure snapshot into a frozen graph of every walkable cell.
func BuildNavGraph(snap graph.Snapshot, up geom.AxisDirection) *graph.NavGraph {
	g := graph.Freeze(graph.Build(snap.Cells(), up, snap.Placement()))
	g.StructureID = snap.ID
	return g
}

// BuildReachableNavGraph keeps only the walkable cells of start's layer connected to start.
func BuildReachableNavGraph(snap graph.Snapshot, up geom.AxisDirection, start geom.Vec3i) *graph.NavGraph {
	g := graph.Freeze(graph.BuildReachable(snap.Cells(), up, snap.Placement(), start))
	g.StructureID = snap.ID
	return g
}

// FindPath returns the node ids from start to goal, both included. It is empty
// when start == goal and fails with pathfind.ErrNoPath across disconnected parts.
func FindPath(g *graph.NavGraph, start, goal graph.NodeID) ([]graph.NodeID, error) {
	return pathfind.FindPath[graph.NodeID](g, start, goal)
}

// NavigateTo observes the target structure, plans a path from the agent's nearest
// node to the node nearest the target and drives the agent along it. A zero
// timeout uses the tuned navigate timeout. The timeout covers planning as well
// as motion; running out of it at any point yields TimedOut and ErrTimedOut.
func (n *Navigator) NavigateTo(ctx context.Context, target Target, timeout time.Duration) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	started := time.Now()
	if timeout <= 0 {
		timeout = n.opts.Tuning.NavigateTimeout()
	}
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := n.navigate(ctx, target, &res)
	switch {
	case err == nil && res.Outcome == motion.Stalled:
		err = fmt.Errorf("%w: %.2f from last waypoint", ErrStalled, res.Distance)
	case err != nil && !errors.Is(err, motion.ErrTimedOut) &&
		errors.Is(err, context.DeadlineExceeded) && !errors.Is(parent.Err(), context.Canceled):
		res.Outcome = motion.TimedOut
		err = fmt.Errorf("%w: %v", motion.ErrTimedOut, err)
	case err != nil && res.Outcome == "":
		res.Outcome = motion.Failed
	}
	n.finish(target, started, res, err)
	return res, err
}

func (n *Navigator) navigate(ctx context.Context, target Target, res *Result) error {
	snap, goalPos, err := n.locate(ctx, target)
	if err != nil {
		if errors.Is(err, ErrTargetNotFound) {
			res.Outcome = motion.TargetLost
		}
		return err
	}

	planStart := time.Now()
	obs, err := n.world.ObserveAgent(ctx)
	if err != nil {
		return fmt.Errorf("observe agent: %w", err)
	}
	up := ResolveUp(snap, obs.OrientationUp)
	t := n.opts.Tuning
	feet := obs.Position.Sub(up.Vec3().Scale(t.StandingOffset))

	var g *graph.NavGraph
	if t.ReachableOnly {
		g = BuildReachableNavGraph(snap, up, snap.Placement().CellAt(feet))
		if g.Len() == 0 {
			n.log.Printf("agent=%s not standing on %s; using every walkable cell", n.opts.Agent, snap.ID)
		}
	}
	if g == nil || g.Len() == 0 {
		g = BuildNavGraph(snap, up)
	}
	res.Graph = g

	idx := graph.NewSpatialIndex(g)
	start, ok := idx.Nearest(feet)
	if !ok {
		return fmt.Errorf("structure %s has no walkable cell: %w", snap.ID, pathfind.ErrNoPath)
	}
	goal, _ := idx.Nearest(goalPos)
	path, err := FindPath(g, start, goal)
	if n.opts.Metrics != nil {
		n.opts.Metrics.observePlan(time.Since(planStart), g, path)
	}
	if err != nil {
		return fmt.Errorf("plan %d -> %d: %w", start, goal, err)
	}
	res.Path = path

	// An empty path still centers the agent on its node.
	nodes := path
	if len(nodes) == 0 {
		nodes = []graph.NodeID{start}
	}
	res.Waypoints = make([]geom.Vec3, 0, len(nodes))
	for _, id := range nodes {
		p, _ := g.Position(id)
		res.Waypoints = append(res.Waypoints, p.Add(up.Vec3().Scale(t.StandingOffset)))
	}

	ctrl := motion.NewController(n.world, motion.Config{
		Tuning:    t,
		Scheduler: n.opts.Scheduler,
		Tracer:    n.opts.Tracer,
		Logger:    n.log,
		Agent:     n.opts.Agent,
		RunID:     res.RunID,
	})
	deadline, _ := ctx.Deadline()
	mr, err := ctrl.NavigateAlongPath(ctx, res.Waypoints, n.opts.Movement, time.Until(deadline))
	res.Outcome, res.Distance, res.Steps = mr.Outcome, mr.Distance, mr.Steps
	return err
}

// locate finds the target structure and the world position to head for.
func (n *Navigator) locate(ctx context.Context, target Target) (graph.Snapshot, geom.Vec3, error) {
	snap, err := n.world.ObserveStructure(ctx, target.StructureID)
	if errors.Is(err, graph.ErrStructureNotFound) {
		return snap, geom.Vec3{}, fmt.Errorf("%w: structure %q", ErrTargetNotFound, target.StructureID)
	}
	if err != nil {
		return snap, geom.Vec3{}, fmt.Errorf("observe structure %s: %w", target.StructureID, err)
	}
	if target.Location != nil {
		return snap, *target.Location, nil
	}
	name := target.BlockName
	if name == "" {
		name = n.opts.Tuning.TargetBlockName
	}
	b, ok := snap.FindBlock(name)
	if !ok {
		return snap, geom.Vec3{}, fmt.Errorf("%w: block %q in %s", ErrTargetNotFound, name, snap.ID)
	}
	return snap, snap.Placement().Position(b.Cell), nil
}

func (n *Navigator) finish(target Target, started time.Time, res Result, err error) {
	elapsed := time.Since(started)
	if n.opts.Metrics != nil {
		n.opts.Metrics.observeRun(res.Outcome, elapsed)
	}
	if err != nil {
		n.log.Printf("agent=%s run=%s %s: %s after %s: %v", n.opts.Agent, res.RunID, target, res.Outcome, elapsed.Round(time.Millisecond), err)
	} else {
		n.log.Printf("agent=%s run=%s %s: %s in %d steps, %.2f from target", n.opts.Agent, res.RunID, target, res.Outcome, res.Steps, res.Distance)
	}
	if n.opts.Recorder == nil {
		return
	}
	rec := RunRecord{
		RunID:     res.RunID,
		Agent:     n.opts.Agent,
		Structure: target.StructureID,
		Target:    target.String(),
		Outcome:   string(res.Outcome),
		Distance:  res.Distance,
		Steps:     res.Steps,
		PathNodes: len(res.Path),
		StartedAt: started.UTC(),
		Duration:  elapsed,
	}
	if res.Graph != nil {
		rec.GraphNodes, rec.GraphEdges = res.Graph.Len(), len(res.Graph.Edges)
	}
	if err != nil {
		rec.Error = err.Error()
	}
	n.opts.Recorder.RecordRun(rec)
}
