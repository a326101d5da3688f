package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeResult  = "RESULT"

	TypeObserveAgent     = "OBSERVE_AGENT"
	TypeObserveStructure = "OBSERVE_STRUCTURE"
	TypeRotate           = "ROTATE"
	TypeMove             = "MOVE"
	TypeStop             = "STOP"
)

var requestTypes = map[string]struct{}{
	TypeObserveAgent:     {},
	TypeObserveStructure: {},
	TypeRotate:           {},
	TypeMove:             {},
	TypeStop:             {},
}

func IsRequestType(t string) bool {
	_, ok := requestTypes[t]
	return ok
}

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ID              string `json:"id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
