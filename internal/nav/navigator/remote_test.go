package navigator

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voxelnav.ai/internal/geom"
	"voxelnav.ai/internal/nav/graph"
	"voxelnav.ai/internal/nav/motion"
	"voxelnav.ai/internal/sim/tuning"
	"voxelnav.ai/internal/sim/world"
	"voxelnav.ai/internal/transport/ws"
)

// Drives a real-time world through the websocket client.
func TestNavigateTo_OverWebsocket(t *testing.T) {
	w := world.New(world.Config{TickRateHz: 1000}, nil)
	var blocks []graph.Block
	for x := 0; x < 4; x++ {
		for z := 0; z < 2; z++ {
			blocks = append(blocks, graph.Block{Cell: geom.Vec3i{X: x, Z: z}})
		}
	}
	blocks = append(blocks, graph.Block{Cell: geom.Vec3i{X: 3, Y: 1, Z: 1}, Name: "Beacon"})
	w.AddStructure(graph.Snapshot{ID: "deck", CellSize: 2.5, UpHint: geom.Vec3{Y: 1}, Blocks: blocks})
	if err := w.AddAgent("eng", geom.Vec3{Y: 1}, geom.Forward.Vec3(), geom.Up.Vec3()); err != nil {
		t.Fatalf("AddAgent: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	hs := httptest.NewServer(ws.NewServer(w, nil).Handler())
	defer hs.Close()
	c, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(hs.URL, "http"), ws.DialOptions{AgentName: "remote-test"})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	tn := tuning.Defaults()
	tn.DelayPerTickMs = 1
	nav := New(c, Options{Tuning: tn, Agent: c.AgentID()})
	res, err := nav.NavigateTo(ctx, Target{StructureID: "deck", BlockName: "Beacon"}, 20*time.Second)
	if err != nil {
		t.Fatalf("NavigateTo: %v", err)
	}
	if res.Outcome != motion.Arrived {
		t.Fatalf("outcome=%s distance=%.3f", res.Outcome, res.Distance)
	}
	// Beacon covers (3,0,1); the nearest walkable neighbours are (2,0,1) and (3,0,0).
	n, _ := res.Graph.Node(res.Path[len(res.Path)-1])
	if n.Cell != (geom.Vec3i{X: 2, Z: 1}) {
		t.Fatalf("ended at %v", n.Cell)
	}
}
