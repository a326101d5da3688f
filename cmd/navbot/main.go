package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voxelnav.ai/internal/geom"
	"voxelnav.ai/internal/nav/motion"
	"voxelnav.ai/internal/nav/navigator"
	"voxelnav.ai/internal/persistence/indexdb"
	persistlog "voxelnav.ai/internal/persistence/log"
	"voxelnav.ai/internal/sim/tuning"
	"voxelnav.ai/internal/transport/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name       = flag.String("name", "navbot", "agent name")
		agentID    = flag.String("agent", "", "agent id to drive (empty: any free agent)")
		token      = flag.String("token", "", "server token (or set VN_TOKEN)")
		structure  = flag.String("structure", "maze", "target structure id")
		block      = flag.String("block", "", "target block name (default: tuning target_block_name)")
		location   = flag.String("location", "", "target world location x,y,z (overrides -block)")
		movement   = flag.String("movement", "RUN", "WALK, RUN or SPRINT")
		fleetSpec  = flag.String("fleet", "", "agent:block pairs navigated concurrently, comma separated")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml (empty: defaults)")
		timeout    = flag.Duration("timeout", 0, "navigation timeout (0: tuning navigate_timeout_ms)")
		traceDir   = flag.String("trace_dir", "./data/traces", "trace output directory (empty to disable)")
		dbPath     = flag.String("db", "./data/index/runs.sqlite", "sqlite run index (empty to disable)")
		metrics    = flag.String("metrics_addr", "", "serve /metrics on this address while running")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[navbot] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune, err = tuning.Defaults(), nil
	}
	if err != nil {
		logger.Printf("load tuning: %v", err)
		return 2
	}
	mv, ok := motion.ParseMovementType(*movement)
	if !ok {
		logger.Printf("bad -movement %q", *movement)
		return 2
	}
	if *token == "" {
		*token = strings.TrimSpace(os.Getenv("VN_TOKEN"))
	}

	ctx, cancel := signalContext()
	defer cancel()

	reg := prometheus.NewRegistry()
	opts := navigator.Options{
		Tuning:   tune,
		Logger:   logger,
		Metrics:  navigator.NewMetrics(reg),
		Movement: mv,
	}
	if *metrics != "" {
		srv := &http.Server{Addr: *metrics, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("metrics: %v", err)
			}
		}()
		defer srv.Close()
	}
	if *traceDir != "" {
		tl := persistlog.NewTraceLogger(*traceDir)
		defer func() {
			if err := tl.Err(); err != nil {
				logger.Printf("trace: %v", err)
			}
			_ = tl.Close()
		}()
		opts.Tracer = tl
	}
	if *dbPath != "" {
		idx, err := indexdb.OpenSQLite(*dbPath)
		if err != nil {
			logger.Printf("open index: %v", err)
			return 1
		}
		defer func() {
			st := idx.Stats()
			if st.DroppedTotal > 0 {
				logger.Printf("index: dropped %d runs", st.DroppedTotal)
			}
			_ = idx.Close()
		}()
		opts.Recorder = idx
	}

	dial := func(agent string) (*ws.Client, error) {
		return ws.Dial(ctx, *url, ws.DialOptions{AgentName: *name, AgentID: agent, Token: *token, Logger: logger})
	}

	if *fleetSpec != "" {
		return runFleet(ctx, logger, opts, dial, *structure, *fleetSpec, *timeout)
	}

	target := navigator.Target{StructureID: *structure, BlockName: *block}
	if *location != "" {
		p, err := parseVec3(*location)
		if err != nil {
			logger.Printf("bad -location: %v", err)
			return 2
		}
		target.Location = &p
	}

	c, err := dial(*agentID)
	if err != nil {
		logger.Printf("dial: %v", err)
		return 1
	}
	defer c.Close()
	w := c.Welcome()
	logger.Printf("WELCOME agent_id=%s tick_rate=%d structures=%v", w.AgentID, w.WorldParams.TickRateHz, w.WorldParams.Structures)
	if w.WorldParams.TickRateHz != tune.TickRateHz {
		logger.Printf("world ticks at %d Hz but tuning was measured at %d Hz", w.WorldParams.TickRateHz, tune.TickRateHz)
	}

	opts.Agent = c.AgentID()
	res, err := navigator.New(c, opts).NavigateTo(ctx, target, *timeout)
	if err != nil {
		logger.Printf("navigate %s: %v", target, err)
	}
	if res.Graph != nil {
		fmt.Printf("run=%s outcome=%s distance=%.3f steps=%d path=%d path_length=%.2f\n",
			res.RunID, res.Outcome, res.Distance, res.Steps, len(res.Path), res.Graph.HorizontalLength(res.Path))
	}
	if err != nil || res.Outcome != motion.Arrived {
		return 1
	}
	return 0
}

func runFleet(ctx context.Context, logger *log.Logger, opts navigator.Options, dial func(string) (*ws.Client, error), structure, pairs string, timeout time.Duration) int {
	var jobs []navigator.FleetJob
	for _, pair := range strings.Split(pairs, ",") {
		agent, block, _ := strings.Cut(strings.TrimSpace(pair), ":")
		if agent == "" {
			continue
		}
		c, err := dial(agent)
		if err != nil {
			logger.Printf("dial %s: %v", agent, err)
			return 1
		}
		defer c.Close()
		jobs = append(jobs, navigator.FleetJob{
			Agent:  c.AgentID(),
			World:  c,
			Target: navigator.Target{StructureID: structure, BlockName: block},
		})
	}
	fleet := &navigator.Fleet{Options: opts}
	code := 0
	for _, r := range fleet.Run(ctx, jobs, timeout) {
		fmt.Printf("agent=%s run=%s outcome=%s distance=%.3f steps=%d\n", r.Agent, r.Result.RunID, r.Result.Outcome, r.Result.Distance, r.Result.Steps)
		if r.Err != nil || r.Result.Outcome != motion.Arrived {
			code = 1
		}
	}
	return code
}

func parseVec3(s string) (geom.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return geom.Vec3{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geom.Vec3{}, err
		}
		v[i] = f
	}
	return geom.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
