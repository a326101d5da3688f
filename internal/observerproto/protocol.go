package observerproto

// Version is the observer protocol version (separate from the agent WS protocol).
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeTick      = "TICK"
)

// Client -> Server. First message on the observer WS connection; can be re-sent to
// change the frame rate.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// EveryTicks sends one frame per this many world ticks.
	EveryTicks int `json:"every_ticks"`
	// Agents restricts frames to these agent ids; empty means all.
	Agents []string `json:"agents,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string   `json:"protocol_version"`
	Tick            uint64   `json:"tick"`
	TickRateHz      int      `json:"tick_rate_hz"`
	Structures      []string `json:"structures"`
}

// Server -> Client.
type TickMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	Agents          []AgentState `json:"agents"`
}

type AgentState struct {
	ID       string     `json:"id"`
	Position [3]float64 `json:"position"`
	Forward  [3]float64 `json:"forward"`
	Up       [3]float64 `json:"up"`
	Speed    float64    `json:"speed"`
	Claimed  bool       `json:"claimed"`
}
