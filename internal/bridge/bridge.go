// Package bridge implements the event-driven relay loop between the serial
// transport and the TUN device.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"icc.tech/tunbridge/internal/frame"
	"icc.tech/tunbridge/internal/metrics"
	"icc.tech/tunbridge/internal/serial"
	"icc.tech/tunbridge/internal/tun"
)

// Endpoint failure classes. Serial failures feed the reconnection policy;
// TUN failures end the process, since the interface cannot be reopened
// without re-running the full creation sequence.
var (
	errSerialFailed = errors.New("serial endpoint failed")
	errTunFailed    = errors.New("tun endpoint failed")
)

// Config assembles a Bridge.
type Config struct {
	Tun         tun.Config
	Dialer      *serial.Dialer
	Ethernet    bool          // translate between Ethernet frames and raw IP
	PollTimeout time.Duration // readiness wait bound; also the shutdown latency bound

	// OpenDevice overrides TUN device creation. Nil means tun.Open.
	OpenDevice func(tun.Config) (tun.Device, error)
}

// Bridge owns both endpoints. A single goroutine runs the loop; nothing
// else touches the socket or the device handle, so no locking guards them.
type Bridge struct {
	cfg        Config
	openDevice func(tun.Config) (tun.Device, error)

	dev      tun.Device
	conn     net.Conn
	serialFd int
	readBuf  []byte

	state      atomic.Int32
	frames     [2]atomic.Uint64 // indexed by direction
	bytes      [2]atomic.Uint64
	drops      atomic.Uint64
	reconnects atomic.Uint64
	started    time.Time

	mu      sync.Mutex // guards tunName for Status snapshots only
	tunName string

	cleanupOnce sync.Once
}

// Status is a point-in-time snapshot for the control plane.
type Status struct {
	State             string `json:"state"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	TunName           string `json:"tun_name"`
	SerialAddr        string `json:"serial_addr"`
	FramesSerialToTun uint64 `json:"frames_serial_to_tun"`
	FramesTunToSerial uint64 `json:"frames_tun_to_serial"`
	BytesSerialToTun  uint64 `json:"bytes_serial_to_tun"`
	BytesTunToSerial  uint64 `json:"bytes_tun_to_serial"`
	Drops             uint64 `json:"drops"`
	Reconnects        uint64 `json:"reconnects"`
}

const (
	dirSerialToTun = 0
	dirTunToSerial = 1
)

// New creates a Bridge. Run must be called to start relaying.
func New(cfg Config) *Bridge {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	open := cfg.OpenDevice
	if open == nil {
		open = tun.Open
	}
	b := &Bridge{
		cfg:        cfg,
		openDevice: open,
		started:    time.Now(),
		readBuf:    make([]byte, frame.MaxFrameSize),
	}
	b.state.Store(int32(StateInitializing))
	return b
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Status returns a snapshot for the status command.
func (b *Bridge) Status() Status {
	b.mu.Lock()
	name := b.tunName
	b.mu.Unlock()

	return Status{
		State:             b.State().String(),
		UptimeSeconds:     int64(time.Since(b.started).Seconds()),
		TunName:           name,
		SerialAddr:        b.cfg.Dialer.Addr(),
		FramesSerialToTun: b.frames[dirSerialToTun].Load(),
		FramesTunToSerial: b.frames[dirTunToSerial].Load(),
		BytesSerialToTun:  b.bytes[dirSerialToTun].Load(),
		BytesTunToSerial:  b.bytes[dirTunToSerial].Load(),
		Drops:             b.drops.Load(),
		Reconnects:        b.reconnects.Load(),
	}
}

// Run drives the state machine until ctx is cancelled or a fatal error
// occurs. Cleanup runs exactly once, inside Run, never in signal context.
// A nil return means clean shutdown.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.cleanup()

	b.setState(StateInitializing)
	dev, err := b.openDevice(b.cfg.Tun)
	if err != nil {
		// Fatal: no retry for device creation.
		return fmt.Errorf("creating tun device: %w", err)
	}
	b.dev = dev
	b.mu.Lock()
	b.tunName = dev.Name()
	b.mu.Unlock()

	b.setState(StateConnectingSerial)

	for {
		if ctx.Err() != nil {
			return nil
		}

		if b.conn == nil {
			if err := b.connectSerial(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			b.setState(StateBridging)
			slog.Info("bridge active",
				"tun", b.dev.Name(), "serial", b.cfg.Dialer.Addr(),
				"ethernet", b.cfg.Ethernet)
		}

		ready, err := b.wait()
		if err != nil {
			return fmt.Errorf("readiness wait: %w", err)
		}

		if ready.serial {
			if err := b.serialToTun(); err != nil {
				if errors.Is(err, errTunFailed) {
					return err
				}
				b.dropSerial(err)
				continue
			}
		}
		if ready.tun {
			if err := b.tunToSerial(); err != nil {
				if errors.Is(err, errTunFailed) {
					return err
				}
				b.dropSerial(err)
			}
		}
	}
}

type readiness struct {
	serial bool
	tun    bool
}

// wait blocks until an endpoint is readable or the poll timeout elapses.
// The bounded timeout keeps the loop responsive to cancellation even when
// both endpoints are idle.
func (b *Bridge) wait() (readiness, error) {
	fds := []unix.PollFd{
		{Fd: int32(b.serialFd), Events: unix.POLLIN},
		{Fd: int32(b.dev.Fd()), Events: unix.POLLIN},
	}

	n, err := unix.Poll(fds, int(b.cfg.PollTimeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return readiness{}, nil
		}
		return readiness{}, err
	}
	if n == 0 {
		return readiness{}, nil
	}

	const readable = unix.POLLIN | unix.POLLHUP | unix.POLLERR
	return readiness{
		serial: fds[0].Revents&readable != 0,
		tun:    fds[1].Revents&readable != 0,
	}, nil
}

// connectSerial dials the transport and caches the socket's descriptor for
// the readiness poll.
func (b *Bridge) connectSerial(ctx context.Context) error {
	conn, err := b.cfg.Dialer.Dial(ctx)
	if err != nil {
		return err
	}

	fd, err := connFd(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("extracting serial socket descriptor: %w", err)
	}

	b.conn = conn
	b.serialFd = fd
	return nil
}

// dropSerial discards the failed socket and arms reconnection. The TUN
// device persists so kernel-buffered traffic is not lost.
func (b *Bridge) dropSerial(cause error) {
	slog.Warn("serial connection lost, reconnecting", "error", cause)
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.reconnects.Add(1)
	metrics.ReconnectsTotal.Inc()
	b.setState(StateReconnectingSerial)
}

// maxWire is the largest acceptable declared frame length on the serial
// side: the MTU, plus the Ethernet header when translation is enabled.
func (b *Bridge) maxWire() int {
	if b.cfg.Ethernet {
		return frame.MaxFrameSize + frame.EthernetHeaderLen
	}
	return frame.MaxFrameSize
}

// serialToTun relays one frame from the serial transport to the TUN
// device: decode, optionally strip the Ethernet header, write the IP
// packet. Malformed frames are dropped without disturbing the connection.
func (b *Bridge) serialToTun() error {
	payload, err := frame.ReadFrame(b.conn, b.maxWire())
	if err != nil {
		if errors.Is(err, frame.ErrInvalidLength) {
			b.drop("invalid_length", err)
			return nil
		}
		return fmt.Errorf("%w: %v", errSerialFailed, err)
	}

	packet := payload
	if b.cfg.Ethernet {
		packet, err = frame.StripEthernet(payload)
		if err != nil {
			b.drop("short_ethernet", err)
			return nil
		}
	}

	if _, err := b.dev.Write(packet); err != nil {
		return fmt.Errorf("%w: write: %v", errTunFailed, err)
	}

	b.account(dirSerialToTun, metrics.DirSerialToTun, len(packet))
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug("serial→tun", "packet", frame.Summary(packet))
	}
	return nil
}

// tunToSerial relays one IP packet from the TUN device to the serial
// transport: read, optionally add the Ethernet header, encode and send.
func (b *Bridge) tunToSerial() error {
	n, err := b.dev.Read(b.readBuf)
	if err != nil {
		return fmt.Errorf("%w: read: %v", errTunFailed, err)
	}
	if n == 0 {
		return nil
	}
	packet := b.readBuf[:n]

	out := packet
	if b.cfg.Ethernet {
		out = frame.AddEthernet(packet)
	}

	if err := frame.WriteFrame(b.conn, out); err != nil {
		return fmt.Errorf("%w: %v", errSerialFailed, err)
	}

	b.account(dirTunToSerial, metrics.DirTunToSerial, len(packet))
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug("tun→serial", "packet", frame.Summary(packet))
	}
	return nil
}

func (b *Bridge) account(dir int, label string, nbytes int) {
	b.frames[dir].Add(1)
	b.bytes[dir].Add(uint64(nbytes))
	metrics.FramesTotal.WithLabelValues(label).Inc()
	metrics.BytesTotal.WithLabelValues(label).Add(float64(nbytes))
}

func (b *Bridge) drop(reason string, cause error) {
	slog.Warn("dropping frame", "reason", reason, "error", cause)
	b.drops.Add(1)
	metrics.DropsTotal.WithLabelValues(reason).Inc()
}

func (b *Bridge) setState(s State) {
	prev := State(b.state.Swap(int32(s)))
	if prev != s {
		slog.Info("bridge state transition", "from", prev.String(), "to", s.String())
	}
	for _, st := range states {
		v := 0.0
		if st == s {
			v = 1.0
		}
		metrics.BridgeState.WithLabelValues(st.String()).Set(v)
	}
}

// cleanup closes the socket and tears down the TUN device, in that order.
// Runs exactly once regardless of which state the loop stopped in.
func (b *Bridge) cleanup() {
	b.cleanupOnce.Do(func() {
		b.setState(StateShuttingDown)
		if b.conn != nil {
			b.conn.Close()
			b.conn = nil
		}
		if b.dev != nil {
			if err := b.dev.Close(); err != nil {
				slog.Error("tun teardown failed", "error", err)
			}
			b.dev = nil
		}
		slog.Info("bridge cleanup complete")
	})
}

// connFd extracts the file descriptor backing a TCP connection for the
// readiness poll. The descriptor stays owned by the net.Conn; it is only
// watched, never read through directly.
func connFd(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, fmt.Errorf("connection does not expose a descriptor")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}
	fd := -1
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return 0, err
	}
	return fd, nil
}
