package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// UDSClient issues commands to a running daemon over its control socket.
// One connection per call; the daemon treats every line independently, so
// there is nothing to keep alive between commands.
type UDSClient struct {
	socketPath string
	timeout    time.Duration
	seq        atomic.Uint64
}

// NewUDSClient creates a client for the socket at socketPath. A zero
// timeout means 10 seconds.
func NewUDSClient(socketPath string, timeout time.Duration) *UDSClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &UDSClient{socketPath: socketPath, timeout: timeout}
}

// Call sends one command and waits for its response.
func (c *UDSClient) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	reqID := fmt.Sprintf("cli-%d", c.seq.Add(1))
	if err := c.send(conn, method, params, reqID); err != nil {
		return nil, err
	}
	return c.receive(conn, reqID)
}

func (c *UDSClient) send(conn net.Conn, method string, params interface{}, reqID string) error {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		raw = data
	}

	req := JSONRPCRequest{JSONRPC: "2.0", Method: method, Params: raw, ID: reqID}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

func (c *UDSClient) receive(conn net.Conn, reqID string) (*Response, error) {
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return nil, fmt.Errorf("connection closed without response")
	}

	var resp JSONRPCResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	gotID := fmt.Sprintf("%v", resp.ID)
	if gotID != reqID {
		return nil, fmt.Errorf("response ID mismatch: expected %v, got %v", reqID, gotID)
	}

	return &Response{ID: gotID, Result: resp.Result, Error: resp.Error}, nil
}

// Ping checks whether the daemon is alive.
func (c *UDSClient) Ping(ctx context.Context) error {
	resp, err := c.Call(ctx, "ping", nil)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("ping failed: %s", resp.Error.Message)
	}
	return nil
}

// Status fetches the daemon and bridge status snapshot.
func (c *UDSClient) Status(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "daemon_status", nil)
}

// Shutdown asks the daemon to stop gracefully.
func (c *UDSClient) Shutdown(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "daemon_shutdown", nil)
}
