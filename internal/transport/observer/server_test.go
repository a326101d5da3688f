package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelnav.ai/internal/geom"
	"voxelnav.ai/internal/nav/graph"
	"voxelnav.ai/internal/nav/motion"
	"voxelnav.ai/internal/observerproto"
	"voxelnav.ai/internal/sim/world"
)

func newObserverWorld(t *testing.T) *world.World {
	t.Helper()
	w := world.New(world.Config{TickRateHz: 100}, nil)
	w.AddStructure(graph.Snapshot{ID: "deck"})
	for _, id := range []string{"a", "b"} {
		if err := w.AddAgent(id, geom.Vec3{}, geom.Forward.Vec3(), geom.Up.Vec3()); err != nil {
			t.Fatalf("AddAgent: %v", err)
		}
	}
	return w
}

func TestBootstrap(t *testing.T) {
	w := newObserverWorld(t)
	w.Advance(7)
	hs := httptest.NewServer(NewServer(w, nil).BootstrapHandler())
	defer hs.Close()

	resp, err := http.Get(hs.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var b observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Tick != 7 || b.TickRateHz != 100 || len(b.Structures) != 1 || b.Structures[0] != "deck" {
		t.Fatalf("bootstrap: %+v", b)
	}

	post, err := http.Post(hs.URL, "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST status=%d", post.StatusCode)
	}
}

func TestStreamFrames(t *testing.T) {
	w := newObserverWorld(t)
	hs := httptest.NewServer(NewServer(w, nil).WSHandler())
	defer hs.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	sub := observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version, EveryTicks: 1, Agents: []string{"b"}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	read := func() observerproto.TickMsg {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var m observerproto.TickMsg
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		return m
	}

	first := read()
	if first.Type != observerproto.TypeTick || first.Tick != 0 {
		t.Fatalf("first frame: %+v", first)
	}
	if len(first.Agents) != 1 || first.Agents[0].ID != "b" {
		t.Fatalf("agent filter: %+v", first.Agents)
	}

	if err := w.Move("b", motion.Run, 4); err != nil {
		t.Fatalf("Move: %v", err)
	}
	w.Advance(4)
	next := read()
	if next.Tick != 4 {
		t.Fatalf("next frame tick=%d", next.Tick)
	}
	if got := next.Agents[0].Position; got[2] > -0.39 || got[2] < -0.41 {
		t.Fatalf("position=%v", got)
	}
}

func TestRejectsNonSubscribe(t *testing.T) {
	w := newObserverWorld(t)
	hs := httptest.NewServer(NewServer(w, nil).WSHandler())
	defer hs.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(map[string]string{"type": "HELLO"})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("want policy close, got %v", err)
	}
}

func TestDecodeSubscribeClamps(t *testing.T) {
	sub, ok := decodeSubscribe([]byte(`{"type":"SUBSCRIBE","protocol_version":"0.1","every_ticks":100000}`))
	if !ok || sub.EveryTicks != 600 {
		t.Fatalf("clamp high: %+v ok=%v", sub, ok)
	}
	sub, ok = decodeSubscribe([]byte(`{"type":"SUBSCRIBE","protocol_version":"0.1"}`))
	if !ok || sub.EveryTicks != 6 {
		t.Fatalf("default: %+v ok=%v", sub, ok)
	}
	if _, ok := decodeSubscribe([]byte(`{"type":"SUBSCRIBE","protocol_version":"9"}`)); ok {
		t.Fatalf("accepted wrong version")
	}
}
