package motion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"time"

	"voxelnav.ai/internal/geom"
	"voxelnav.ai/internal/sim/tuning"
)

// ErrTimedOut is returned when a movement or navigation exceeds its time budget.
var ErrTimedOut = errors.New("navigation timed out")

// ContractViolationError reports an orientation error no tick bucket accepts.
// It means the geometry feeding the controller is broken.
type ContractViolationError struct {
	Value float64
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("unexpected orientation difference: %v", e.Value)
}

type Outcome string

const (
	Arrived    Outcome = "ARRIVED"
	Stalled    Outcome = "STALLED"
	TimedOut   Outcome = "TIMED_OUT"
	TargetLost Outcome = "TARGET_LOST"
	Failed     Outcome = "FAILED"
)

type Result struct {
	Outcome  Outcome
	Distance float64
	// Steps counts move commands issued.
	Steps int
}

// closeOrientationLoosen widens the heading tolerance once the agent is near the target.
const closeOrientationLoosen = 2

const stopTimeout = 2 * time.Second

type Config struct {
	Tuning    tuning.Tuning
	Scheduler Scheduler
	Tracer    Tracer
	Logger    *log.Logger
	Agent     string
	RunID     string
}

// Controller runs one agent's control loop. It is not safe for concurrent use;
// navigate several agents with one Controller each.
type Controller struct {
	world  World
	tuning tuning.Tuning
	sched  Scheduler
	tracer Tracer
	logger *log.Logger
	agent  string
	runID  string
}

func NewController(w World, cfg Config) *Controller {
	c := &Controller{
		world:  w,
		tuning: cfg.Tuning,
		sched:  cfg.Scheduler,
		tracer: cfg.Tracer,
		logger: cfg.Logger,
		agent:  cfg.Agent,
		runID:  cfg.RunID,
	}
	c.tuning.Normalize()
	if c.sched == nil {
		c.sched = RealScheduler{}
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard, "", 0)
	}
	return c
}

func (c *Controller) Tuning() tuning.Tuning { return c.tuning }

// cursor locates the loop inside a navigation for tracing.
type cursor struct {
	waypoint int
	pass     int
}

// EstimateStepSize maps an orientation error onto a rotation tick budget. The
// first bucket containing the value wins.
func (c *Controller) EstimateStepSize(orientationError float64) (int, error) {
	for _, b := range c.tuning.Buckets {
		if orientationError >= b.Min && orientationError <= b.Max {
			return b.Ticks, nil
		}
	}
	return 0, &ContractViolationError{Value: orientationError}
}

// MoveToLocation runs every configured pass toward target. A pass ends when the
// agent is within its tolerance or stops making progress. The result is Arrived
// only if the final pass ended inside its tolerance.
func (c *Controller) MoveToLocation(ctx context.Context, target geom.Vec3, movement MovementType, timeout time.Duration) (Result, error) {
	return c.moveToLocation(ctx, cursor{}, target, movement, timeout)
}

func (c *Controller) moveToLocation(ctx context.Context, cur cursor, target geom.Vec3, movement MovementType, timeout time.Duration) (Result, error) {
	parent := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var res Result
	steps := 0
	for i, p := range c.tuning.Passes {
		cur.pass = i
		r, err := c.approach(ctx, cur, target, movement, p)
		steps += r.Steps
		r.Steps = steps
		if err != nil {
			return c.fail(parent, cur, target, r, err)
		}
		res = r
	}
	return res, nil
}

func (c *Controller) approach(ctx context.Context, cur cursor, target geom.Vec3, movement MovementType, p tuning.Pass) (Result, error) {
	last := math.MaxFloat64
	res := Result{Distance: math.NaN()}
	for {
		obs, err := c.world.ObserveAgent(ctx)
		if err != nil {
			return res, fmt.Errorf("observe agent: %w", err)
		}
		d := obs.Position.Distance(target)
		res.Distance = d
		if d < p.Tolerance {
			res.Outcome = Arrived
			c.trace(TraceEvent{Kind: TraceArrive, Pass: cur.pass, Waypoint: cur.waypoint, Position: obs.Position, Target: target, Distance: d})
			return res, nil
		}
		if d > last+c.tuning.AllowedRegression {
			res.Outcome = Stalled
			c.trace(TraceEvent{Kind: TraceStall, Pass: cur.pass, Waypoint: cur.waypoint, Position: obs.Position, Target: target, Distance: d})
			return res, nil
		}
		last = d

		if err := c.rotateToward(ctx, cur, obs, target, p.Tolerance); err != nil {
			return res, err
		}
		if err := c.world.Move(ctx, movement, p.StepTicks); err != nil {
			return res, fmt.Errorf("move: %w", err)
		}
		res.Steps++
		c.trace(TraceEvent{Kind: TraceMove, Pass: cur.pass, Waypoint: cur.waypoint, Position: obs.Position, Target: target, Distance: d, Movement: movement, Ticks: p.StepTicks})
		if err := c.sched.Wait(ctx, c.ticksDelay(p.StepTicks)); err != nil {
			return res, err
		}
	}
}

// RotateToward turns the agent toward target. distanceTolerance is the positional
// tolerance of the caller's pass; near the target the heading tolerance is loosened
// and fewer correction rounds are allowed.
func (c *Controller) RotateToward(ctx context.Context, target geom.Vec3, distanceTolerance float64) error {
	obs, err := c.world.ObserveAgent(ctx)
	if err != nil {
		return fmt.Errorf("observe agent: %w", err)
	}
	return c.rotateToward(ctx, cursor{}, obs, target, distanceTolerance)
}

func (c *Controller) rotateToward(ctx context.Context, cur cursor, obs Observation, target geom.Vec3, distanceTolerance float64) error {
	t := c.tuning
	offset := target.Sub(obs.Position)
	distance := offset.Length()

	// Turning happens about the agent's up axis, so only the horizontal part of
	// the heading can be matched.
	heading := offset.Reject(obs.OrientationUp.Normalize())
	if heading.Length() < 1e-9 {
		return nil
	}
	heading = heading.Normalize()

	tolerance := t.OrientationTolerance
	if distance < t.CloseOrientationFactor*distanceTolerance {
		tolerance *= closeOrientationLoosen
	}
	limit := t.RotationBudgetTicks / t.MaxRotationTicks
	if distance < t.CloseIterationFactor*distanceTolerance {
		limit = t.CloseIterations
	}

	for i := 0; i < limit; i++ {
		if i > 0 {
			var err error
			if obs, err = c.world.ObserveAgent(ctx); err != nil {
				return fmt.Errorf("observe agent: %w", err)
			}
		}
		e := geom.UnitDistance(heading, obs.OrientationForward)
		if e < tolerance {
			return nil
		}
		ticks, err := c.EstimateStepSize(e)
		if err != nil {
			return err
		}
		dir := guessRotationDirection(obs, heading)
		if err := c.world.Rotate(ctx, dir, ticks); err != nil {
			return fmt.Errorf("rotate: %w", err)
		}
		c.trace(TraceEvent{Kind: TraceRotate, Pass: cur.pass, Waypoint: cur.waypoint, Position: obs.Position, Target: target, Distance: distance, OrientationError: e, Direction: dir, Ticks: ticks})
		if err := c.sched.Wait(ctx, c.ticksDelay(ticks)); err != nil {
			return err
		}
	}
	return nil
}

// guessRotationDirection picks the side whose lateral vector is closer to the
// desired heading, which is always the shorter turn.
func guessRotationDirection(obs Observation, heading geom.Vec3) RotationDirection {
	f := obs.Frame()
	if heading.Distance(f.Right()) < heading.Distance(f.Left()) {
		return RotateRight
	}
	return RotateLeft
}

// NavigateAlongPath visits waypoints in order under one overall timeout. Each
// waypoint additionally gets the tuned per-waypoint timeout. Exceeding either
// stops the agent where it is and returns ErrTimedOut.
func (c *Controller) NavigateAlongPath(ctx context.Context, waypoints []geom.Vec3, movement MovementType, timeout time.Duration) (Result, error) {
	parent := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res := Result{Outcome: Arrived}
	start := time.Now()
	for i, wp := range waypoints {
		r, err := c.moveToLocation(ctx, cursor{waypoint: i}, wp, movement, c.tuning.WaypointTimeout())
		res.Steps += r.Steps
		res.Outcome, res.Distance = r.Outcome, r.Distance
		if err != nil {
			if errors.Is(err, ErrTimedOut) && parent.Err() == nil {
				c.logger.Printf("agent=%s waypoint %d/%d timed out after %s", c.agent, i+1, len(waypoints), time.Since(start).Round(time.Millisecond))
			}
			return res, err
		}
		if r.Outcome != Arrived {
			c.logger.Printf("agent=%s waypoint %d/%d %s at distance %.2f", c.agent, i+1, len(waypoints), r.Outcome, r.Distance)
		}
	}
	return res, nil
}

// fail classifies err. Deadlines set by this package become ErrTimedOut and the
// agent is told to stop. A cancelled caller context is passed through.
func (c *Controller) fail(parent context.Context, cur cursor, target geom.Vec3, res Result, err error) (Result, error) {
	var cv *ContractViolationError
	switch {
	case errors.As(err, &cv):
		res.Outcome = Failed
		return res, err
	case errors.Is(err, ErrTimedOut):
		res.Outcome = TimedOut
		return res, err
	case errors.Is(err, context.DeadlineExceeded) && !errors.Is(parent.Err(), context.Canceled):
		res.Outcome = TimedOut
		c.stop()
		c.trace(TraceEvent{Kind: TraceTimeout, Pass: cur.pass, Waypoint: cur.waypoint, Target: target, Distance: res.Distance})
		return res, fmt.Errorf("%w: %v", ErrTimedOut, err)
	default:
		res.Outcome = Failed
		return res, err
	}
}

func (c *Controller) stop() {
	s, ok := c.world.(Stopper)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		c.logger.Printf("agent=%s stop after timeout: %v", c.agent, err)
	}
}

func (c *Controller) ticksDelay(ticks int) time.Duration {
	return time.Duration(ticks) * c.tuning.DelayPerTick()
}

func (c *Controller) trace(ev TraceEvent) {
	if c.tracer == nil {
		return
	}
	ev.Time = time.Now().UTC()
	ev.Agent = c.agent
	ev.RunID = c.runID
	c.tracer.Trace(ev)
}
