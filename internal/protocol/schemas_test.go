package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelnav.ai/internal/geom"
	"voxelnav.ai/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// asJSON round-trips v through encoding/json so the validator sees wire values.
func asJSON(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func raw(t *testing.T, s string) any {
	t.Helper()
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	return out
}

func TestSchemas_ValidateSamples(t *testing.T) {
	helloSchema := compile(t, "hello.schema.json")
	welcomeSchema := compile(t, "welcome.schema.json")
	requestSchema := compile(t, "request.schema.json")
	resultSchema := compile(t, "result.schema.json")

	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	validate(helloSchema, asJSON(t, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       "navbot",
		AgentID:         "eng-1",
	}))

	validate(welcomeSchema, asJSON(t, protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "s-1",
		AgentID:         "eng-1",
		WorldParams:     protocol.WorldParams{TickRateHz: 60, Structures: []string{"maze"}},
	}))

	reqs := []protocol.RequestMsg{
		{Type: protocol.TypeObserveAgent, ID: "r1"},
		{Type: protocol.TypeObserveStructure, ID: "r2", StructureID: "maze"},
		{Type: protocol.TypeRotate, ID: "r3", Direction: "LEFT", Ticks: 10},
		{Type: protocol.TypeMove, ID: "r4", Movement: "RUN", Ticks: 20},
		{Type: protocol.TypeStop, ID: "r5"},
	}
	for _, r := range reqs {
		r.ProtocolVersion = protocol.Version
		validate(requestSchema, asJSON(t, r))
	}

	validate(resultSchema, asJSON(t, protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Ref:             "r1",
		OK:              true,
		Tick:            42,
		Agent: &protocol.AgentState{
			Position: geom.Vec3{X: 1, Y: 2, Z: 3},
			Forward:  geom.Vec3{Z: -1},
			Up:       geom.Vec3{Y: 1},
		},
	}))
	validate(resultSchema, asJSON(t, protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		Ref:             "r2",
		OK:              true,
		Structure: &protocol.StructureState{
			ID:       "maze",
			CellSize: 2.5,
			UpHint:   geom.Vec3{Y: 0.999},
			Blocks:   []protocol.BlockState{{Cell: geom.Vec3i{X: 1}}, {Cell: geom.Vec3i{X: 2}, Name: "MazeTarget"}},
		},
	}))
	validate(resultSchema, asJSON(t, protocol.Failure("r3", protocol.ErrNotFound, "no structure maze")))
}

func TestSchemas_RejectMalformed(t *testing.T) {
	requestSchema := compile(t, "request.schema.json")
	resultSchema := compile(t, "result.schema.json")

	bad := []struct {
		name   string
		schema *jsonschema.Schema
		doc    string
	}{
		{"rotate without direction", requestSchema, `{"type":"ROTATE","protocol_version":"1.0","id":"a","ticks":3}`},
		{"zero ticks", requestSchema, `{"type":"MOVE","protocol_version":"1.0","id":"a","ticks":0}`},
		{"unknown type", requestSchema, `{"type":"JUMP","protocol_version":"1.0","id":"a"}`},
		{"missing id", requestSchema, `{"type":"STOP","protocol_version":"1.0"}`},
		{"failure without code", resultSchema, `{"type":"RESULT","protocol_version":"1.0","ref":"a","ok":false,"tick":0}`},
		{"fractional cell", resultSchema, `{"type":"RESULT","protocol_version":"1.0","ref":"a","ok":true,"tick":0,
			"structure":{"id":"m","origin":{"x":0,"y":0,"z":0},"cell_size":1,"up_hint":{"x":0,"y":1,"z":0},
			"blocks":[{"cell":{"x":0.5,"y":0,"z":0}}]}}`},
	}
	for _, tc := range bad {
		if err := tc.schema.Validate(raw(t, tc.doc)); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestResultErr(t *testing.T) {
	ok := protocol.ResultMsg{OK: true}
	if ok.Err() != nil {
		t.Fatalf("ok result returned error")
	}
	fail := protocol.Failure("x", protocol.ErrBadRequest, "ticks must be > 0")
	err := fail.Err()
	if err == nil || err.Error() != "E_BAD_REQUEST: ticks must be > 0" {
		t.Fatalf("Err()=%v", err)
	}
	empty := protocol.ResultMsg{}
	var re *protocol.RemoteError
	if e := empty.Err(); e == nil {
		t.Fatalf("missing error")
	} else if re, _ = e.(*protocol.RemoteError); re == nil || re.Code != protocol.ErrInternal {
		t.Fatalf("code=%v", re)
	}
}
