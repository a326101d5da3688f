package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voxelnav.ai/internal/nav/navigator"
	"voxelnav.ai/internal/persistence/snapshot"
	"voxelnav.ai/internal/sim/world"
	"voxelnav.ai/internal/transport/observer"
	"voxelnav.ai/internal/transport/ws"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "http listen address")
		scenarioPath = flag.String("scenario", "./configs/scenarios/maze.yaml", "scenario yaml")
		token        = flag.String("token", "", "shared token agents must present in HELLO (or set VN_TOKEN)")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		snapPath     = flag.String("snapshot", "", "snapshot to resume from (optional)")
		loadLatest   = flag.Bool("load_latest_snapshot", false, "resume from the latest snapshot of this scenario when -snapshot is empty")
		snapEvery    = flag.Duration("snapshot_every", time.Minute, "snapshot interval (0 disables; a final snapshot is written on shutdown)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[simserver] ", log.LstdFlags|log.Lmicroseconds)

	sc, err := world.LoadScenario(*scenarioPath)
	if err != nil {
		logger.Fatalf("load scenario: %v", err)
	}
	w, err := sc.Build(logger)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	snapDir := filepath.Join(*dataDir, "snapshots", scenarioName(sc, *scenarioPath))
	toLoad := strings.TrimSpace(*snapPath)
	if toLoad == "" && *loadLatest {
		toLoad = snapshot.Latest(snapDir)
	}
	if toLoad != "" {
		snap, err := snapshot.ReadSnapshot(toLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(toLoad), w.CurrentTick())
	}
	logger.Printf("scenario=%s structures=%v tick_rate=%d", sc.Name, w.StructureIDs(), w.TickRateHz())

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	writeSnapshot := func() {
		snap := w.ExportSnapshot(sc.Name)
		path := filepath.Join(snapDir, snapshot.FileName(snap.Header.Tick))
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			logger.Printf("snapshot write: %v", err)
		}
	}
	if *snapEvery > 0 {
		go func() {
			t := time.NewTicker(*snapEvery)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					writeSnapshot()
				}
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "voxelnav_world_tick",
			Help: "Current world tick.",
		}, func() float64 { return float64(w.CurrentTick()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "voxelnav_world_structures",
			Help: "Structures in the world.",
		}, func() float64 { return float64(len(w.StructureIDs())) }),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	if envBool("VN_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only; renders the nav graph of a structure as GeoJSON seen from above.
		mux.HandleFunc("/admin/v1/graph", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			snap, err := w.ObserveStructure(r.URL.Query().Get("structure"))
			if err != nil {
				http.Error(rw, err.Error(), http.StatusNotFound)
				return
			}
			up := navigator.ResolveUp(snap, snap.UpHint)
			g := navigator.BuildNavGraph(snap, up)
			rw.Header().Set("Content-Type", "application/geo+json")
			_ = json.NewEncoder(rw).Encode(g.GeoJSON())
		})

		obsSrv := observer.NewServer(w, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled (VN_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("VN_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	wsSrv := ws.NewServer(w, logger)
	wsSrv.Token = strings.TrimSpace(*token)
	if wsSrv.Token == "" {
		wsSrv.Token = strings.TrimSpace(os.Getenv("VN_TOKEN"))
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	w.Close()
	writeSnapshot()
}

func scenarioName(sc world.Scenario, path string) string {
	if sc.Name != "" {
		return sc.Name
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
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

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
