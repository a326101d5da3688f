package protocol

import "voxelnav.ai/internal/geom"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	AgentName       string     `json:"agent_name"`
	AgentID         string     `json:"agent_id,omitempty"` // which spawned agent to drive; empty picks the first free one
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	AgentID         string      `json:"agent_id"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz int      `json:"tick_rate_hz"`
	Structures []string `json:"structures"`
}

// RequestMsg carries every command. Fields that do not apply to Type are left empty.
type RequestMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`

	StructureID string `json:"structure_id,omitempty"` // OBSERVE_STRUCTURE
	Direction   string `json:"direction,omitempty"`    // ROTATE: LEFT|RIGHT
	Movement    string `json:"movement,omitempty"`     // MOVE: WALK|RUN|SPRINT
	Ticks       int    `json:"ticks,omitempty"`        // ROTATE, MOVE
}

// RESULT (server -> client), one per request.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Tick            uint64 `json:"tick"`

	Agent     *AgentState     `json:"agent,omitempty"`
	Structure *StructureState `json:"structure,omitempty"`
}

type AgentState struct {
	Position geom.Vec3 `json:"position"`
	Forward  geom.Vec3 `json:"forward"`
	Up       geom.Vec3 `json:"up"`
	Velocity geom.Vec3 `json:"velocity"`
}

type StructureState struct {
	ID       string       `json:"id"`
	Origin   geom.Vec3    `json:"origin"`
	CellSize float64      `json:"cell_size"`
	UpHint   geom.Vec3    `json:"up_hint"`
	Blocks   []BlockState `json:"blocks"`
}

type BlockState struct {
	Cell geom.Vec3i `json:"cell"`
	Name string     `json:"name,omitempty"`
}

// Failure builds a failed RESULT for the request ref.
func Failure(ref, code, msg string) ResultMsg {
	return ResultMsg{Type: TypeResult, ProtocolVersion: Version, Ref: ref, Code: code, Message: msg}
}

// Err returns the RESULT's failure as an error, or nil when OK.
func (r ResultMsg) Err() error {
	if r.OK {
		return nil
	}
	code := r.Code
	if code == "" {
		code = ErrInternal
	}
	return &RemoteError{Code: code, Message: r.Message}
}
