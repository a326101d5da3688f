package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelnav.ai/internal/geom"
	"voxelnav.ai/internal/nav/graph"
	"voxelnav.ai/internal/nav/motion"
	"voxelnav.ai/internal/protocol"
	"voxelnav.ai/internal/sim/world"
)

func startServer(t *testing.T, token string) (*world.World, string) {
	t.Helper()
	w := world.New(world.Config{}, nil)
	w.AddStructure(graph.Snapshot{
		ID:       "maze",
		CellSize: 2.5,
		UpHint:   geom.Vec3{Y: 1},
		Blocks:   []graph.Block{{Cell: geom.Vec3i{}}, {Cell: geom.Vec3i{X: 1}, Name: "MazeTarget"}},
	})
	if err := w.AddAgent("eng-1", geom.Vec3{}, geom.Forward.Vec3(), geom.Up.Vec3()); err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	srv := NewServer(w, nil)
	srv.Token = token
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return w, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, url string, opts DialOptions) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, opts)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientServer_RoundTrip(t *testing.T) {
	w, url := startServer(t, "")
	c := dial(t, url, DialOptions{AgentName: "test"})
	ctx := context.Background()

	welcome := c.Welcome()
	if c.AgentID() != "eng-1" || welcome.WorldParams.TickRateHz != 60 {
		t.Fatalf("welcome: %+v", welcome)
	}
	if len(welcome.WorldParams.Structures) != 1 || welcome.WorldParams.Structures[0] != "maze" {
		t.Fatalf("structures: %v", welcome.WorldParams.Structures)
	}

	if err := c.Move(ctx, motion.Run, 10); err != nil {
		t.Fatalf("Move: %v", err)
	}
	w.Advance(10)
	obs, err := c.ObserveAgent(ctx)
	if err != nil {
		t.Fatalf("ObserveAgent: %v", err)
	}
	if obs.Position.Distance(geom.Vec3{Z: -1}) > 1e-9 {
		t.Fatalf("position=%v", obs.Position)
	}
	if obs.OrientationUp != geom.Up.Vec3() {
		t.Fatalf("up=%v", obs.OrientationUp)
	}

	if err := c.Rotate(ctx, motion.RotateLeft, 5); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	snap, err := c.ObserveStructure(ctx, "maze")
	if err != nil {
		t.Fatalf("ObserveStructure: %v", err)
	}
	if snap.CellSize != 2.5 || len(snap.Blocks) != 2 {
		t.Fatalf("snapshot: %+v", snap)
	}
	if b, ok := snap.FindBlock("MazeTarget"); !ok || b.Cell != (geom.Vec3i{X: 1}) {
		t.Fatalf("target: %v %v", b, ok)
	}
}

func TestClientServer_Errors(t *testing.T) {
	_, url := startServer(t, "")
	c := dial(t, url, DialOptions{})
	ctx := context.Background()

	_, err := c.ObserveStructure(ctx, "nope")
	if !errors.Is(err, graph.ErrStructureNotFound) {
		t.Fatalf("unknown structure: %v", err)
	}
	var re *protocol.RemoteError
	if !errors.As(err, &re) || re.Code != protocol.ErrNotFound {
		t.Fatalf("remote error: %v", err)
	}

	err = c.Move(ctx, motion.Run, 0)
	if !errors.Is(err, &protocol.RemoteError{Code: protocol.ErrBadRequest}) {
		t.Fatalf("zero ticks: %v", err)
	}
	err = c.Rotate(ctx, "SIDEWAYS", 1)
	if !errors.Is(err, &protocol.RemoteError{Code: protocol.ErrBadRequest}) {
		t.Fatalf("bad direction: %v", err)
	}
	err = c.Move(ctx, "CRAWL", 1)
	if !errors.Is(err, &protocol.RemoteError{Code: protocol.ErrBadRequest}) {
		t.Fatalf("bad movement: %v", err)
	}
}

func TestClient_ContextCanceled(t *testing.T) {
	_, url := startServer(t, "")
	c := dial(t, url, DialOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.ObserveAgent(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	// The connection stays usable.
	if _, err := c.ObserveAgent(context.Background()); err != nil {
		t.Fatalf("after cancel: %v", err)
	}
}

func TestClient_Closed(t *testing.T) {
	_, url := startServer(t, "")
	c := dial(t, url, DialOptions{})
	_ = c.Close()
	if _, err := c.ObserveAgent(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("err=%v", err)
	}
	select {
	case <-c.Done():
	default:
		t.Fatalf("Done not closed")
	}
}

func TestServer_AgentBusyAndReleased(t *testing.T) {
	w, url := startServer(t, "")
	first := dial(t, url, DialOptions{AgentID: "eng-1"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Dial(ctx, url, DialOptions{AgentID: "eng-1"})
	if !errors.Is(err, &protocol.RemoteError{Code: protocol.ErrBusy}) {
		t.Fatalf("second claim: %v", err)
	}
	_, err = Dial(ctx, url, DialOptions{AgentID: "ghost"})
	if !errors.Is(err, &protocol.RemoteError{Code: protocol.ErrUnknownAgent}) {
		t.Fatalf("unknown agent: %v", err)
	}

	if err := first.Move(ctx, motion.Run, 1000); err != nil {
		t.Fatalf("Move: %v", err)
	}
	_ = first.Close()

	// Disconnect stops and releases the agent.
	deadline := time.Now().Add(5 * time.Second)
	for {
		id, err := w.Claim("eng-1")
		if err == nil && id == "eng-1" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("agent not released: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	w.Advance(10)
	obs, _ := w.ObserveAgent("eng-1")
	if obs.Position.LengthSquared() != 0 {
		t.Fatalf("agent kept walking after disconnect: %v", obs.Position)
	}
}

func TestServer_Token(t *testing.T) {
	_, url := startServer(t, "s3cret")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := Dial(ctx, url, DialOptions{Token: "wrong"}); err == nil {
		t.Fatalf("expected rejection")
	}
	c := dial(t, url, DialOptions{Token: "s3cret"})
	if c.AgentID() != "eng-1" {
		t.Fatalf("agent=%q", c.AgentID())
	}
}

func rawConn(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readResult(t *testing.T, conn *websocket.Conn) protocol.ResultMsg {
	t.Helper()
	var res protocol.ResultMsg
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatalf("read: %v", err)
	}
	return res
}

func TestServer_BadVersionHello(t *testing.T) {
	_, url := startServer(t, "")
	conn := rawConn(t, url)
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0.9", AgentName: "old"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	res := readResult(t, conn)
	if res.OK || res.Code != protocol.ErrProtoVersion {
		t.Fatalf("result=%+v", res)
	}
}

func TestServer_MalformedRequests(t *testing.T) {
	_, url := startServer(t, "")
	conn := rawConn(t, url)
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, AgentName: "raw"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil || welcome.Type != protocol.TypeWelcome {
		t.Fatalf("welcome: %+v %v", welcome, err)
	}

	cases := []struct {
		msg  string
		ref  string
		code string
	}{
		{`{"type":"JUMP","protocol_version":"1.0","id":"a"}`, "a", protocol.ErrProtoBadRequest},
		{`{"type":"MOVE","protocol_version":"2.0","id":"b","ticks":1}`, "b", protocol.ErrProtoVersion},
		{`{"type":"STOP","protocol_version":"1.0"}`, "", protocol.ErrProtoBadRequest},
		{`not json`, "", protocol.ErrProtoBadRequest},
	}
	for _, tc := range cases {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(tc.msg)); err != nil {
			t.Fatalf("write: %v", err)
		}
		res := readResult(t, conn)
		if res.OK || res.Ref != tc.ref || res.Code != tc.code {
			t.Fatalf("%s: result=%+v", tc.msg, res)
		}
	}

	req, _ := json.Marshal(protocol.RequestMsg{Type: protocol.TypeObserveAgent, ProtocolVersion: protocol.Version, ID: "ok"})
	_ = conn.WriteMessage(websocket.TextMessage, req)
	res := readResult(t, conn)
	if !res.OK || res.Ref != "ok" || res.Agent == nil {
		t.Fatalf("observe: %+v", res)
	}
}
