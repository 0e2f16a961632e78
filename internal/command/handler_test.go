package command

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"icc.tech/tunbridge/internal/bridge"
)

type fakeStatus struct {
	status bridge.Status
}

func (f *fakeStatus) Status() bridge.Status {
	return f.status
}

func TestHandler_Ping(t *testing.T) {
	h := NewCommandHandler(&fakeStatus{})

	resp := h.Handle(context.Background(), Command{Method: "ping", ID: "1"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("result is not a map")
	}
	if result["status"] != "pong" {
		t.Errorf("status = %v, want pong", result["status"])
	}
}

func TestHandler_DaemonStatus(t *testing.T) {
	provider := &fakeStatus{status: bridge.Status{
		State:             "Bridging",
		TunName:           "tun0",
		SerialAddr:        "127.0.0.1:5556",
		FramesSerialToTun: 42,
	}}
	h := NewCommandHandler(provider)

	resp := h.Handle(context.Background(), Command{Method: "daemon_status", ID: "2"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("result is not a map")
	}

	st, ok := result["bridge"].(bridge.Status)
	if !ok {
		t.Fatalf("bridge field has type %T", result["bridge"])
	}
	if st.State != "Bridging" {
		t.Errorf("state = %q, want Bridging", st.State)
	}
	if st.FramesSerialToTun != 42 {
		t.Errorf("frames = %d, want 42", st.FramesSerialToTun)
	}
	if _, exists := result["uptime_sec"]; !exists {
		t.Error("result missing 'uptime_sec' field")
	}
}

func TestHandler_DaemonStatusWithoutBridge(t *testing.T) {
	h := NewCommandHandler(nil)

	resp := h.Handle(context.Background(), Command{Method: "daemon_status", ID: "3"})
	if resp.Error == nil {
		t.Fatal("expected error when bridge is not available")
	}
	if resp.Error.Code != ErrCodeInternalError {
		t.Errorf("error code = %d, want %d", resp.Error.Code, ErrCodeInternalError)
	}
}

func TestHandler_DaemonShutdown(t *testing.T) {
	h := NewCommandHandler(&fakeStatus{})

	// Without a registered callback the command must fail.
	resp := h.Handle(context.Background(), Command{Method: "daemon_shutdown", ID: "4"})
	if resp.Error == nil {
		t.Fatal("expected error without shutdown func")
	}

	var called atomic.Bool
	done := make(chan struct{})
	h.SetShutdownFunc(func() {
		called.Store(true)
		close(done)
	})

	resp = h.Handle(context.Background(), Command{Method: "daemon_shutdown", ID: "5"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown func not invoked")
	}
	if !called.Load() {
		t.Error("shutdown func not called")
	}
}

func TestHandler_MethodNotFound(t *testing.T) {
	h := NewCommandHandler(&fakeStatus{})

	resp := h.Handle(context.Background(), Command{Method: "task_create", ID: "6"})
	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, ErrCodeMethodNotFound)
	}
}
