package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelnav.ai/internal/nav/graph"
	"voxelnav.ai/internal/nav/motion"
	"voxelnav.ai/internal/protocol"
)

var ErrClosed = errors.New("ws: connection closed")

const pingInterval = 20 * time.Second

type DialOptions struct {
	AgentName string
	// AgentID selects the agent to drive; empty lets the server pick a free one.
	AgentID string
	Token   string
	Logger  *log.Logger
}

// Client drives one agent of a remote world. Calls are safe for concurrent use;
// each request waits for the RESULT carrying its id.
type Client struct {
	conn    *websocket.Conn
	log     *log.Logger
	welcome protocol.WelcomeMsg

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan protocol.ResultMsg
	err     error

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects and completes the HELLO/WELCOME handshake.
func Dial(ctx context.Context, url string, opts DialOptions) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.AgentName == "" {
		opts.AgentName = "navbot"
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       opts.AgentName,
		AgentID:         opts.AgentID,
	}
	if opts.Token != "" {
		hello.Auth = &protocol.HelloAuth{Token: opts.Token}
	}
	if err := writeJSON(conn, hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("hello: %w", err)
	}

	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("welcome: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	base, err := protocol.DecodeBase(msg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("welcome: %w", err)
	}
	switch base.Type {
	case protocol.TypeWelcome:
	case protocol.TypeResult:
		var res protocol.ResultMsg
		_ = json.Unmarshal(msg, &res)
		_ = conn.Close()
		return nil, fmt.Errorf("hello rejected: %w", res.Err())
	default:
		_ = conn.Close()
		return nil, fmt.Errorf("welcome: unexpected %s", base.Type)
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &welcome); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("welcome: %w", err)
	}
	if welcome.ProtocolVersion != protocol.Version {
		_ = conn.Close()
		return nil, fmt.Errorf("welcome: unsupported protocol_version %q", welcome.ProtocolVersion)
	}

	c := &Client{
		conn:    conn,
		log:     opts.Logger,
		welcome: welcome,
		pending: map[string]chan protocol.ResultMsg{},
		done:    make(chan struct{}),
	}
	go c.readLoop()
	go c.keepalive()
	return c, nil
}

func (c *Client) Welcome() protocol.WelcomeMsg { return c.welcome }

func (c *Client) AgentID() string { return c.welcome.AgentID }

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.conn.Close()
		close(c.done)
	})
}

func (c *Client) readLoop() {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		var res protocol.ResultMsg
		if err := json.Unmarshal(msg, &res); err != nil || res.Type != protocol.TypeResult {
			c.log.Printf("ws client: ignoring message: %.80s", msg)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[res.Ref]
		delete(c.pending, res.Ref)
		c.mu.Unlock()
		if ok {
			ch <- res
		}
	}
}

func (c *Client) keepalive() {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.shutdown(fmt.Errorf("%w: ping: %v", ErrClosed, err))
				return
			}
		}
	}
}

func (c *Client) call(ctx context.Context, req protocol.RequestMsg) (protocol.ResultMsg, error) {
	if err := ctx.Err(); err != nil {
		return protocol.ResultMsg{}, fmt.Errorf("%s: %w", req.Type, err)
	}
	req.ProtocolVersion = protocol.Version
	req.ID = uuid.NewString()
	b, err := json.Marshal(req)
	if err != nil {
		return protocol.ResultMsg{}, err
	}

	ch := make(chan protocol.ResultMsg, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return protocol.ResultMsg{}, err
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()
	forget := func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}

	c.writeMu.Lock()
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	err = c.conn.WriteMessage(websocket.TextMessage, b)
	c.writeMu.Unlock()
	if err != nil {
		forget()
		if ctx.Err() != nil {
			return protocol.ResultMsg{}, fmt.Errorf("%s: %w", req.Type, ctx.Err())
		}
		return protocol.ResultMsg{}, fmt.Errorf("%s: %w", req.Type, err)
	}

	select {
	case res := <-ch:
		if err := res.Err(); err != nil {
			return res, fmt.Errorf("%s: %w", req.Type, err)
		}
		return res, nil
	case <-ctx.Done():
		forget()
		return protocol.ResultMsg{}, fmt.Errorf("%s: %w", req.Type, ctx.Err())
	case <-c.done:
		c.mu.Lock()
		err := c.err
		c.mu.Unlock()
		return protocol.ResultMsg{}, fmt.Errorf("%s: %w", req.Type, err)
	}
}

func (c *Client) ObserveAgent(ctx context.Context) (motion.Observation, error) {
	res, err := c.call(ctx, protocol.RequestMsg{Type: protocol.TypeObserveAgent})
	if err != nil {
		return motion.Observation{}, err
	}
	if res.Agent == nil {
		return motion.Observation{}, fmt.Errorf("%s: result without agent", protocol.TypeObserveAgent)
	}
	return observation(res.Agent), nil
}

func (c *Client) ObserveStructure(ctx context.Context, id string) (graph.Snapshot, error) {
	res, err := c.call(ctx, protocol.RequestMsg{Type: protocol.TypeObserveStructure, StructureID: id})
	if errors.Is(err, &protocol.RemoteError{Code: protocol.ErrNotFound}) {
		return graph.Snapshot{}, fmt.Errorf("%w: %w", graph.ErrStructureNotFound, err)
	}
	if err != nil {
		return graph.Snapshot{}, err
	}
	if res.Structure == nil {
		return graph.Snapshot{}, fmt.Errorf("%s: result without structure", protocol.TypeObserveStructure)
	}
	return snapshot(res.Structure), nil
}

func (c *Client) Rotate(ctx context.Context, dir motion.RotationDirection, ticks int) error {
	_, err := c.call(ctx, protocol.RequestMsg{Type: protocol.TypeRotate, Direction: string(dir), Ticks: ticks})
	return err
}

func (c *Client) Move(ctx context.Context, m motion.MovementType, ticks int) error {
	_, err := c.call(ctx, protocol.RequestMsg{Type: protocol.TypeMove, Movement: string(m), Ticks: ticks})
	return err
}

func (c *Client) Stop(ctx context.Context) error {
	_, err := c.call(ctx, protocol.RequestMsg{Type: protocol.TypeStop})
	return err
}
