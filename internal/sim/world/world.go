package world

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"voxelnav.ai/internal/geom"
	"voxelnav.ai/internal/nav/graph"
	"voxelnav.ai/internal/nav/motion"
)

var (
	ErrUnknownAgent     = errors.New("unknown agent")
	ErrUnknownStructure = graph.ErrStructureNotFound
	ErrAgentClaimed     = errors.New("agent already controlled")
	ErrNoFreeAgent      = errors.New("no free agent")
	ErrBadCommand       = errors.New("bad command")
)

// Config sets the kinematics. Speeds are per tick; movement types scale SpeedPerTick.
type Config struct {
	TickRateHz   int     `yaml:"tick_rate_hz"`
	YawPerTick   float64 `yaml:"yaw_per_tick"`
	SpeedPerTick float64 `yaml:"speed_per_tick"`
}

func (c *Config) normalize() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 60
	}
	if c.YawPerTick <= 0 {
		c.YawPerTick = 0.02
	}
	if c.SpeedPerTick <= 0 {
		c.SpeedPerTick = 0.1
	}
}

type agent struct {
	id      string
	pos     geom.Vec3
	forward geom.Vec3
	up      geom.Vec3
	vel     geom.Vec3

	rotDir    motion.RotationDirection
	rotTicks  int
	movement  motion.MovementType
	moveTicks int

	claimed bool
}

// World is a tick-stepped kinematic world: agents turn about their up axis and
// walk along their heading. There is no collision and no gravity.
// All methods are safe for concurrent use.
type World struct {
	cfg Config
	log *log.Logger

	tick atomic.Uint64

	mu         sync.Mutex
	agents     map[string]*agent
	agentOrder []string
	structures map[string]graph.Snapshot

	stopOnce sync.Once
	stop     chan struct{}
}

func New(cfg Config, logger *log.Logger) *World {
	cfg.normalize()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &World{
		cfg:        cfg,
		log:        logger,
		agents:     map[string]*agent{},
		structures: map[string]graph.Snapshot{},
		stop:       make(chan struct{}),
	}
}

func (w *World) Config() Config { return w.cfg }

func (w *World) TickRateHz() int { return w.cfg.TickRateHz }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// AddStructure registers or replaces a structure snapshot.
func (w *World) AddStructure(s graph.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.structures[s.ID] = s
}

func (w *World) StructureIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.structureIDsLocked()
}

func (w *World) structureIDsLocked() []string {
	ids := make([]string, 0, len(w.structures))
	for id := range w.structures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddAgent spawns an agent. forward is made orthogonal to up.
func (w *World) AddAgent(id string, pos, forward, up geom.Vec3) error {
	if id == "" {
		return fmt.Errorf("%w: empty agent id", ErrBadCommand)
	}
	up = up.Normalize()
	if up.LengthSquared() == 0 {
		up = geom.Up.Vec3()
	}
	forward = forward.Reject(up).Normalize()
	if forward.LengthSquared() == 0 {
		return fmt.Errorf("%w: forward parallel to up", ErrBadCommand)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.agents[id]; ok {
		return fmt.Errorf("%w: duplicate agent %s", ErrBadCommand, id)
	}
	w.agents[id] = &agent{id: id, pos: pos, forward: forward, up: up}
	w.agentOrder = append(w.agentOrder, id)
	return nil
}

// Claim reserves an agent for one controller. An empty id picks the first free agent.
func (w *World) Claim(id string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id == "" {
		for _, aid := range w.agentOrder {
			if !w.agents[aid].claimed {
				id = aid
				break
			}
		}
		if id == "" {
			return "", ErrNoFreeAgent
		}
	}
	a, ok := w.agents[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	if a.claimed {
		return "", fmt.Errorf("%w: %s", ErrAgentClaimed, id)
	}
	a.claimed = true
	return id, nil
}

// Release frees a claimed agent and cancels its pending commands.
func (w *World) Release(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if a, ok := w.agents[id]; ok {
		a.claimed = false
		a.rotTicks, a.moveTicks = 0, 0
		a.vel = geom.Vec3{}
	}
}

func (w *World) ObserveAgent(id string) (motion.Observation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.agents[id]
	if !ok {
		return motion.Observation{}, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	return motion.Observation{Position: a.pos, OrientationForward: a.forward, OrientationUp: a.up, Velocity: a.vel}, nil
}

func (w *World) ObserveStructure(id string) (graph.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.structures[id]
	if !ok {
		return graph.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownStructure, id)
	}
	out := s
	out.Blocks = append([]graph.Block(nil), s.Blocks...)
	return out, nil
}

// Rotate replaces any pending rotation of the agent.
func (w *World) Rotate(id string, dir motion.RotationDirection, ticks int) error {
	if !dir.Valid() {
		return fmt.Errorf("%w: rotation direction %q", ErrBadCommand, dir)
	}
	if ticks <= 0 {
		return fmt.Errorf("%w: ticks must be > 0", ErrBadCommand)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	a.rotDir, a.rotTicks = dir, ticks
	return nil
}

// Move replaces any pending movement of the agent.
func (w *World) Move(id string, m motion.MovementType, ticks int) error {
	if !m.Valid() {
		return fmt.Errorf("%w: movement %q", ErrBadCommand, m)
	}
	if ticks <= 0 {
		return fmt.Errorf("%w: ticks must be > 0", ErrBadCommand)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	a.movement, a.moveTicks = m, ticks
	return nil
}

// Stop drops the agent's pending rotation and movement.
func (w *World) Stop(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.agents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	a.rotTicks, a.moveTicks = 0, 0
	a.vel = geom.Vec3{}
	return nil
}

// Advance runs n simulation ticks.
func (w *World) Advance(n int) {
	if n <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := 0; i < n; i++ {
		for _, id := range w.agentOrder {
			w.stepAgent(w.agents[id])
		}
		w.tick.Add(1)
	}
}

func (w *World) stepAgent(a *agent) {
	if a.rotTicks > 0 {
		angle := w.cfg.YawPerTick
		right := a.forward.Cross(a.up).Normalize()
		if a.rotDir == motion.RotateLeft {
			right = right.Neg()
		}
		a.forward = a.forward.Scale(math.Cos(angle)).Add(right.Scale(math.Sin(angle))).Normalize()
		a.rotTicks--
	}
	if a.moveTicks > 0 {
		a.vel = a.forward.Reject(a.up).Normalize().Scale(w.cfg.SpeedPerTick * a.movement.Speed())
		a.pos = a.pos.Add(a.vel)
		a.moveTicks--
	} else {
		a.vel = geom.Vec3{}
	}
}

// Run advances the world at its tick rate until ctx ends or Close is called.
func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case <-ticker.C:
			w.Advance(1)
		}
	}
}

func (w *World) Close() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// LockstepScheduler advances the world by the number of ticks a wait stands for
// instead of sleeping. Controllers driven by it are deterministic.
func (w *World) LockstepScheduler(delayPerTick time.Duration) motion.Scheduler {
	return motion.SchedulerFunc(func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if delayPerTick > 0 {
			w.Advance(int(math.Round(float64(d) / float64(delayPerTick))))
		}
		return nil
	})
}

// Pose is an agent's kinematic state as seen by spectators.
type Pose struct {
	ID       string
	Position geom.Vec3
	Forward  geom.Vec3
	Up       geom.Vec3
	Velocity geom.Vec3
	Claimed  bool
}

// Poses lists every agent in spawn order.
func (w *World) Poses() []Pose {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Pose, 0, len(w.agentOrder))
	for _, id := range w.agentOrder {
		a := w.agents[id]
		out = append(out, Pose{ID: a.id, Position: a.pos, Forward: a.forward, Up: a.up, Velocity: a.vel, Claimed: a.claimed})
	}
	return out
}
