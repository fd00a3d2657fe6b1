package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// maxFrameBytes caps a single runner response frame. The runner echoes
// payload output, which for exhaustion probes can be large; anything past
// this limit indicates a runaway capture and is rejected before allocation.
const maxFrameBytes = 4 << 20 // 4MB

// Client speaks JSON-RPC 2.0 over a WebSocket to the runner daemon.
// The engine issues calls sequentially, so requests and responses are
// correlated by a monotonically increasing ID with no pipelining.
// Text frames only; binary frames from the daemon are a protocol error.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	nextID uint64
}

// Dial connects to the runner daemon at the given WebSocket URL.
func Dial(ctx context.Context, rawURL string) (*Client, error) {
	conn, _, _, err := ws.Dial(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("sandbox: dialing %s: %w", rawURL, err)
	}
	return &Client{conn: conn}, nil
}

// Close tears down the WebSocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// call performs one JSON-RPC round trip. The context deadline is applied to
// the underlying connection so a hung runner cannot stall the suite past
// the executor's timeout.
func (c *Client) call(ctx context.Context, op, method string, params, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("sandbox: %s: connection closed", op)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("sandbox: %s: setting deadline: %w", op, err)
		}
		defer func() { _ = c.conn.SetDeadline(time.Time{}) }()
	}

	c.nextID++
	req := rpcRequest{JSONRPC: rpcVersion, ID: c.nextID, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("sandbox: %s: encoding params: %w", op, err)
		}
		req.Params = raw
	}

	frame, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("sandbox: %s: encoding request: %w", op, err)
	}
	if err := wsutil.WriteClientText(c.conn, frame); err != nil {
		return fmt.Errorf("sandbox: %s: writing frame: %w", op, err)
	}

	// The daemon may interleave notifications; skip anything that is not
	// the response to our request ID.
	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			return fmt.Errorf("sandbox: %s: reading frame: %w", op, err)
		}
		if len(data) > maxFrameBytes {
			return fmt.Errorf("sandbox: %s: frame too large: %d bytes (max %d)", op, len(data), maxFrameBytes)
		}

		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("sandbox: %s: decoding response: %w", op, err)
		}
		if resp.ID != req.ID {
			continue
		}
		if resp.Error != nil {
			return &Error{Op: op, Code: resp.Error.Code, Message: resp.Error.Message}
		}
		if result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("sandbox: %s: decoding result: %w", op, err)
			}
		}
		return nil
	}
}

// ExecuteCommand sends the literal payload to the runner daemon.
func (c *Client) ExecuteCommand(ctx context.Context, payload, sessionID string) (ExecResult, error) {
	var res execResult
	err := c.call(ctx, "execute", "runner.execute", execParams{Payload: payload, SessionID: sessionID}, &res)
	if err != nil {
		return ExecResult{}, err
	}
	return ExecResult{
		Output:  res.Output,
		Elapsed: time.Duration(res.ElapsedMs * float64(time.Millisecond)),
	}, nil
}

// CreateSession creates a named runner session.
func (c *Client) CreateSession(ctx context.Context, name string) (Session, error) {
	var res sessionResult
	err := c.call(ctx, "create_session", "runner.createSession", sessionParams{Name: name}, &res)
	if err != nil {
		return Session{}, err
	}
	return Session{ID: res.ID, Name: res.Name}, nil
}

// DestroySession tears down a runner session.
func (c *Client) DestroySession(ctx context.Context, id string) error {
	return c.call(ctx, "destroy_session", "runner.destroySession", sessionParams{ID: id}, nil)
}

// GetOutput returns up to maxBytes of buffered session output.
func (c *Client) GetOutput(ctx context.Context, maxBytes int) (string, error) {
	var res outputResult
	err := c.call(ctx, "get_output", "runner.getOutput", outputParams{MaxBytes: maxBytes}, &res)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// SwitchSession makes the given session current.
func (c *Client) SwitchSession(ctx context.Context, id string) error {
	return c.call(ctx, "switch_session", "runner.switchSession", sessionParams{ID: id}, nil)
}
