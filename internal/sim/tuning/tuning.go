package tuning

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning holds the empirically tuned constants of the navigation controller.
// They are tied to the tick duration of the simulation being driven.
type Tuning struct {
	TickRateHz     int `yaml:"tick_rate_hz"`
	DelayPerTickMs int `yaml:"delay_per_tick_ms"`

	Passes            []Pass  `yaml:"passes"`
	AllowedRegression float64 `yaml:"allowed_regression"`

	OrientationTolerance   float64 `yaml:"orientation_tolerance"`
	CloseOrientationFactor float64 `yaml:"close_orientation_factor"`
	CloseIterationFactor   float64 `yaml:"close_iteration_factor"`
	CloseIterations        int     `yaml:"close_iterations"`
	RotationBudgetTicks    int     `yaml:"rotation_budget_ticks"`
	MaxRotationTicks       int     `yaml:"max_rotation_ticks"`

	Buckets []Bucket `yaml:"buckets"`

	MoveTimeoutMs     int `yaml:"move_timeout_ms"`
	WaypointTimeoutMs int `yaml:"waypoint_timeout_ms"`
	NavigateTimeoutMs int `yaml:"navigate_timeout_ms"`

	StandingOffset  float64 `yaml:"standing_offset"`
	ReachableOnly   bool    `yaml:"reachable_only"`
	TargetBlockName string  `yaml:"target_block_name"`
}

// Pass is one approach loop: fixed-length move commands until within Tolerance.
type Pass struct {
	StepTicks int     `yaml:"step_ticks"`
	Tolerance float64 `yaml:"tolerance"`
}

// Bucket maps an orientation error in [Min, Max] to a rotation tick budget.
type Bucket struct {
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Ticks int     `yaml:"ticks"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:     60,
		DelayPerTickMs: 12,
		Passes: []Pass{
			{StepTicks: 20, Tolerance: 1.2},
			{StepTicks: 6, Tolerance: 0.4},
		},
		AllowedRegression: 0.01,

		OrientationTolerance:   0.04,
		CloseOrientationFactor: 3,
		CloseIterationFactor:   2,
		CloseIterations:        3,
		RotationBudgetTicks:    180,
		MaxRotationTicks:       10,
		Buckets: []Bucket{
			{Min: 0.5, Max: 2, Ticks: 10},
			{Min: 0.1, Max: 0.5, Ticks: 5},
			{Min: 0.05, Max: 0.1, Ticks: 3},
			{Min: 0, Max: 0.05, Ticks: 1},
		},

		MoveTimeoutMs:     20000,
		WaypointTimeoutMs: 5000,
		NavigateTimeoutMs: 120000,

		StandingOffset:  1,
		ReachableOnly:   true,
		TargetBlockName: "MazeTarget",
	}
}

// Load reads a tuning file over Defaults. An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Normalize fills zero values from Defaults and keeps buckets ordered from the
// largest error down.
func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	d := Defaults()
	if t.TickRateHz <= 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.DelayPerTickMs <= 0 {
		t.DelayPerTickMs = d.DelayPerTickMs
	}
	if len(t.Passes) == 0 {
		t.Passes = d.Passes
	}
	if t.OrientationTolerance <= 0 {
		t.OrientationTolerance = d.OrientationTolerance
	}
	if t.CloseOrientationFactor <= 0 {
		t.CloseOrientationFactor = d.CloseOrientationFactor
	}
	if t.CloseIterationFactor <= 0 {
		t.CloseIterationFactor = d.CloseIterationFactor
	}
	if t.CloseIterations <= 0 {
		t.CloseIterations = d.CloseIterations
	}
	if t.RotationBudgetTicks <= 0 {
		t.RotationBudgetTicks = d.RotationBudgetTicks
	}
	if t.MaxRotationTicks <= 0 {
		t.MaxRotationTicks = d.MaxRotationTicks
	}
	if len(t.Buckets) == 0 {
		t.Buckets = d.Buckets
	}
	sort.SliceStable(t.Buckets, func(i, j int) bool { return t.Buckets[i].Max > t.Buckets[j].Max })
	if t.MoveTimeoutMs <= 0 {
		t.MoveTimeoutMs = d.MoveTimeoutMs
	}
	if t.NavigateTimeoutMs <= 0 {
		t.NavigateTimeoutMs = d.NavigateTimeoutMs
	}
	if t.WaypointTimeoutMs < 0 {
		t.WaypointTimeoutMs = 0
	}
	if strings.TrimSpace(t.TargetBlockName) == "" {
		t.TargetBlockName = d.TargetBlockName
	}
}

func (t Tuning) Validate() error {
	for i, p := range t.Passes {
		if p.StepTicks <= 0 {
			return fmt.Errorf("passes[%d].step_ticks must be > 0", i)
		}
		if p.Tolerance <= 0 {
			return fmt.Errorf("passes[%d].tolerance must be > 0", i)
		}
	}
	if len(t.Passes) == 0 {
		return fmt.Errorf("passes must not be empty")
	}
	if t.AllowedRegression < 0 {
		return fmt.Errorf("allowed_regression must be >= 0")
	}
	if len(t.Buckets) == 0 {
		return fmt.Errorf("buckets must not be empty")
	}
	for i, b := range t.Buckets {
		if b.Min < 0 || b.Max < b.Min {
			return fmt.Errorf("buckets[%d] range [%v, %v] is invalid", i, b.Min, b.Max)
		}
		if b.Ticks <= 0 || b.Ticks > t.MaxRotationTicks {
			return fmt.Errorf("buckets[%d].ticks must be in [1, max_rotation_ticks]", i)
		}
	}
	// Orientation error lives in [0, 2]; every value must land in some bucket.
	covered := 0.0
	for i := len(t.Buckets) - 1; i >= 0; i-- {
		b := t.Buckets[i]
		if b.Min > covered {
			return fmt.Errorf("buckets leave a gap at [%v, %v]", covered, b.Min)
		}
		if b.Max > covered {
			covered = b.Max
		}
	}
	if covered < 2 {
		return fmt.Errorf("buckets must cover orientation errors up to 2, got %v", covered)
	}
	if t.StandingOffset < 0 {
		return fmt.Errorf("standing_offset must be >= 0")
	}
	return nil
}

func (t Tuning) DelayPerTick() time.Duration {
	return time.Duration(t.DelayPerTickMs) * time.Millisecond
}

func (t Tuning) TickDuration() time.Duration {
	if t.TickRateHz <= 0 {
		return 0
	}
	return time.Second / time.Duration(t.TickRateHz)
}

func (t Tuning) MoveTimeout() time.Duration { return ms(t.MoveTimeoutMs) }

// WaypointTimeout is zero when per-waypoint timeouts are disabled.
func (t Tuning) WaypointTimeout() time.Duration { return ms(t.WaypointTimeoutMs) }

func (t Tuning) NavigateTimeout() time.Duration { return ms(t.NavigateTimeoutMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
