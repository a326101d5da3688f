package observer

import (
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"voxelnav.ai/internal/geom"
	"voxelnav.ai/internal/observerproto"
	"voxelnav.ai/internal/sim/world"
)

// Backend is the read-only world view spectators get.
type Backend interface {
	CurrentTick() uint64
	TickRateHz() int
	StructureIDs() []string
	Poses() []world.Pose
}

type Server struct {
	world Backend
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w Backend, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			Tick:            s.world.CurrentTick(),
			TickRateHz:      s.world.TickRateHz(),
			Structures:      s.world.StructureIDs(),
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := decodeSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		updates := make(chan observerproto.SubscribeMsg, 1)
		done := make(chan struct{})
		writeErr := make(chan error, 1)
		go func() { writeErr <- s.stream(conn, sub, updates, done) }()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, ok := decodeSubscribe(msg)
			if !ok {
				continue
			}
			select {
			case updates <- sub:
			default:
				// Drop updates under load; the client may resend.
			}
		}

		close(done)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// stream sends one frame per sub.EveryTicks world ticks until done closes.
func (s *Server) stream(conn *websocket.Conn, sub observerproto.SubscribeMsg, updates <-chan observerproto.SubscribeMsg, done <-chan struct{}) error {
	tickDur := time.Second / time.Duration(max(s.world.TickRateHz(), 1))
	t := time.NewTicker(tickDur)
	defer t.Stop()

	var last uint64
	sent := false
	for {
		select {
		case <-done:
			return nil
		case sub = <-updates:
			sent = false
		case <-t.C:
			tick := s.world.CurrentTick()
			if sent && tick < last+uint64(sub.EveryTicks) {
				continue
			}
			last, sent = tick, true
			b, _ := json.Marshal(frame(tick, s.world.Poses(), sub.Agents))
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return err
			}
		}
	}
}

func frame(tick uint64, poses []world.Pose, only []string) observerproto.TickMsg {
	msg := observerproto.TickMsg{
		Type:            observerproto.TypeTick,
		ProtocolVersion: observerproto.Version,
		Tick:            tick,
		Agents:          []observerproto.AgentState{},
	}
	want := map[string]bool{}
	for _, id := range only {
		want[id] = true
	}
	for _, p := range poses {
		if len(want) > 0 && !want[p.ID] {
			continue
		}
		msg.Agents = append(msg.Agents, observerproto.AgentState{
			ID:       p.ID,
			Position: arr(p.Position),
			Forward:  arr(p.Forward),
			Up:       arr(p.Up),
			Speed:    p.Velocity.Length(),
			Claimed:  p.Claimed,
		})
	}
	return msg
}

func arr(v geom.Vec3) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func decodeSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	if sub.EveryTicks <= 0 {
		sub.EveryTicks = 6
	}
	if sub.EveryTicks > 600 {
		sub.EveryTicks = 600
	}
	return sub, true
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
