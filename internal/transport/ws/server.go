package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelnav.ai/internal/nav/graph"
	"voxelnav.ai/internal/nav/motion"
	"voxelnav.ai/internal/protocol"
	"voxelnav.ai/internal/sim/world"
)

const (
	readTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second
	handshakeTimeout = 5 * time.Second
	outQueue         = 64
)

// Backend is the world a Server exposes. *world.World implements it.
type Backend interface {
	TickRateHz() int
	CurrentTick() uint64
	StructureIDs() []string

	Claim(agentID string) (string, error)
	Release(agentID string)

	ObserveAgent(agentID string) (motion.Observation, error)
	ObserveStructure(id string) (graph.Snapshot, error)
	Rotate(agentID string, dir motion.RotationDirection, ticks int) error
	Move(agentID string, m motion.MovementType, ticks int) error
	Stop(agentID string) error
}

type Server struct {
	backend Backend
	log     *log.Logger

	// Token, when set, must be presented in HELLO.auth.token.
	Token string

	upgrader websocket.Upgrader
}

func NewServer(b Backend, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		backend: b,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		agentID, sessionID := s.handshake(conn)
		if agentID == "" {
			return
		}
		s.log.Printf("session %s: agent %s connected from %s", sessionID, agentID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		out := make(chan []byte, outQueue)

		conn.SetPingHandler(func(data string) error {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			res := s.dispatch(agentID, msg)
			b, err := json.Marshal(res)
			if err != nil {
				s.log.Printf("session %s: marshal result: %v", sessionID, err)
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		// Cleanup: a vanished controller must not leave its agent walking.
		_ = s.backend.Stop(agentID)
		s.backend.Release(agentID)
		s.log.Printf("session %s: agent %s disconnected", sessionID, agentID)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (agentID, sessionID string) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", ""
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return "", ""
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closePolicy(conn, "bad HELLO")
		return "", ""
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.Failure("", protocol.ErrProtoVersion, "unsupported protocol_version "+hello.ProtocolVersion))
		closePolicy(conn, "bad protocol_version")
		return "", ""
	}
	if s.Token != "" {
		tok := ""
		if hello.Auth != nil {
			tok = strings.TrimSpace(hello.Auth.Token)
		}
		if tok != s.Token {
			closePolicy(conn, "bad token")
			return "", ""
		}
	}

	agentID, err = s.backend.Claim(strings.TrimSpace(hello.AgentID))
	if err != nil {
		f := protocol.Failure("", codeFor(err), err.Error())
		f.Tick = s.backend.CurrentTick()
		_ = writeJSON(conn, f)
		closePolicy(conn, f.Code)
		return "", ""
	}

	sessionID = uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		AgentID:         agentID,
		WorldParams: protocol.WorldParams{
			TickRateHz: s.backend.TickRateHz(),
			Structures: s.backend.StructureIDs(),
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.backend.Release(agentID)
		return "", ""
	}
	return agentID, sessionID
}

// dispatch executes one request and builds its RESULT.
func (s *Server) dispatch(agentID string, msg []byte) protocol.ResultMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return s.stamp(protocol.Failure("", protocol.ErrProtoBadRequest, "malformed json"))
	}
	if !protocol.IsRequestType(base.Type) {
		return s.stamp(protocol.Failure(base.ID, protocol.ErrProtoBadRequest, "unknown type "+base.Type))
	}
	var req protocol.RequestMsg
	if err := json.Unmarshal(msg, &req); err != nil {
		return s.stamp(protocol.Failure(base.ID, protocol.ErrProtoBadRequest, err.Error()))
	}
	if req.ProtocolVersion != protocol.Version {
		return s.stamp(protocol.Failure(req.ID, protocol.ErrProtoVersion, "unsupported protocol_version "+req.ProtocolVersion))
	}
	if strings.TrimSpace(req.ID) == "" {
		return s.stamp(protocol.Failure("", protocol.ErrProtoBadRequest, "missing id"))
	}

	res := protocol.ResultMsg{Type: protocol.TypeResult, ProtocolVersion: protocol.Version, Ref: req.ID, OK: true}
	switch req.Type {
	case protocol.TypeObserveAgent:
		obs, err := s.backend.ObserveAgent(agentID)
		if err != nil {
			return s.fail(req.ID, err)
		}
		res.Agent = agentState(obs)
	case protocol.TypeObserveStructure:
		snap, err := s.backend.ObserveStructure(req.StructureID)
		if err != nil {
			return s.fail(req.ID, err)
		}
		res.Structure = structureState(snap)
	case protocol.TypeRotate:
		if err := s.backend.Rotate(agentID, motion.RotationDirection(req.Direction), req.Ticks); err != nil {
			return s.fail(req.ID, err)
		}
	case protocol.TypeMove:
		m, ok := motion.ParseMovementType(req.Movement)
		if !ok {
			return s.fail(req.ID, fmt.Errorf("%w: movement %q", world.ErrBadCommand, req.Movement))
		}
		if err := s.backend.Move(agentID, m, req.Ticks); err != nil {
			return s.fail(req.ID, err)
		}
	case protocol.TypeStop:
		if err := s.backend.Stop(agentID); err != nil {
			return s.fail(req.ID, err)
		}
	}
	return s.stamp(res)
}

func (s *Server) fail(ref string, err error) protocol.ResultMsg {
	return s.stamp(protocol.Failure(ref, codeFor(err), err.Error()))
}

func (s *Server) stamp(r protocol.ResultMsg) protocol.ResultMsg {
	r.Tick = s.backend.CurrentTick()
	return r
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, world.ErrUnknownAgent):
		return protocol.ErrUnknownAgent
	case errors.Is(err, graph.ErrStructureNotFound):
		return protocol.ErrNotFound
	case errors.Is(err, world.ErrAgentClaimed), errors.Is(err, world.ErrNoFreeAgent):
		return protocol.ErrBusy
	case errors.Is(err, world.ErrBadCommand):
		return protocol.ErrBadRequest
	default:
		return protocol.ErrInternal
	}
}

func agentState(o motion.Observation) *protocol.AgentState {
	return &protocol.AgentState{
		Position: o.Position,
		Forward:  o.OrientationForward,
		Up:       o.OrientationUp,
		Velocity: o.Velocity,
	}
}

func observation(a *protocol.AgentState) motion.Observation {
	return motion.Observation{
		Position:           a.Position,
		OrientationForward: a.Forward,
		OrientationUp:      a.Up,
		Velocity:           a.Velocity,
	}
}

func structureState(s graph.Snapshot) *protocol.StructureState {
	st := &protocol.StructureState{
		ID:       s.ID,
		Origin:   s.Origin,
		CellSize: s.CellSize,
		UpHint:   s.UpHint,
		Blocks:   make([]protocol.BlockState, 0, len(s.Blocks)),
	}
	for _, b := range s.Blocks {
		st.Blocks = append(st.Blocks, protocol.BlockState{Cell: b.Cell, Name: b.Name})
	}
	return st
}

func snapshot(st *protocol.StructureState) graph.Snapshot {
	s := graph.Snapshot{
		ID:       st.ID,
		Origin:   st.Origin,
		CellSize: st.CellSize,
		UpHint:   st.UpHint,
		Blocks:   make([]graph.Block, 0, len(st.Blocks)),
	}
	for _, b := range st.Blocks {
		s.Blocks = append(s.Blocks, graph.Block{Cell: b.Cell, Name: b.Name})
	}
	return s
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
