// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"icc.tech/tunbridge/internal/bridge"
	"icc.tech/tunbridge/internal/command"
	"icc.tech/tunbridge/internal/config"
	logpkg "icc.tech/tunbridge/internal/log"
	"icc.tech/tunbridge/internal/metrics"
	"icc.tech/tunbridge/internal/serial"
	"icc.tech/tunbridge/internal/tun"
)

// Daemon manages the tunbridge daemon process lifecycle.
type Daemon struct {
	config     *config.Config
	configPath string
	socketPath string
	pidFile    string

	bridge        *bridge.Bridge
	cmdHandler    *command.CommandHandler
	udsServer     *command.UDSServer
	metricsServer *metrics.Server // nil if metrics disabled

	ctx          context.Context
	cancel       context.CancelFunc
	bridgeDone   chan error
	shutdownChan chan struct{}
	sigChan      chan os.Signal // promoted from Run() local for cleanup in Stop()

	// logClose releases the rotated log file, if any. Set by Start.
	logClose func()

	// openDevice overrides TUN creation, for tests.
	openDevice func(tun.Config) (tun.Device, error)
}

// New creates a new Daemon instance. socketPath and pidFile override the
// configured paths when non-empty.
func New(configPath, socketPath, pidFile string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if socketPath == "" {
		socketPath = cfg.Control.Socket
	}
	if pidFile == "" {
		pidFile = cfg.Control.PIDFile
	}

	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		socketPath:   socketPath,
		pidFile:      pidFile,
		bridgeDone:   make(chan error, 1),
		shutdownChan: make(chan struct{}, 1),
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d, nil
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	logClose, err := logpkg.Init(d.config.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	d.logClose = logClose

	slog.Info("starting tunbridge daemon",
		"version", "0.1.0",
		"serial", fmt.Sprintf("%s:%d", d.config.Serial.Host, d.config.Serial.Port),
		"tun", d.config.Tun.Name,
		"config", d.configPath,
		"socket", d.socketPath,
	)

	// Interface creation needs CAP_NET_ADMIN; fail early with a clear
	// message instead of a cryptic ioctl error later.
	if os.Geteuid() != 0 {
		slog.Warn("not running as root, tun creation will likely fail")
	}

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Create the bridge
	d.bridge = bridge.New(bridge.Config{
		Tun: tun.Config{
			Name:    d.config.Tun.Name,
			Address: d.config.Tun.Address,
			Netmask: d.config.Tun.Netmask,
			Peer:    d.config.Tun.Peer,
			MTU:     d.config.Tun.MTU,
			Backend: tun.Backend(d.config.Tun.Backend),
		},
		Dialer: &serial.Dialer{
			Host:          d.config.Serial.Host,
			Port:          d.config.Serial.Port,
			RetryInterval: d.config.Serial.RetryInterval,
		},
		Ethernet:    d.config.Bridge.Ethernet,
		PollTimeout: d.config.Bridge.PollTimeout,
		OpenDevice:  d.openDevice,
	})

	// 5. Create command handler and wire graceful shutdown
	d.cmdHandler = command.NewCommandHandler(d.bridge)
	d.cmdHandler.SetShutdownFunc(func() {
		slog.Info("shutdown triggered via daemon_shutdown command")
		d.TriggerShutdown()
	})

	// 6. Start UDS server for CLI control
	d.udsServer = command.NewUDSServer(d.socketPath, d.cmdHandler)
	go func() {
		if err := d.udsServer.Start(d.ctx); err != nil && err != context.Canceled {
			slog.Error("control socket failed", "error", err)
		}
	}()

	// 7. Start the bridge loop
	go func() {
		d.bridgeDone <- d.bridge.Run(d.ctx)
	}()

	slog.Info("daemon started successfully")
	return nil
}

// Stop performs graceful shutdown of all daemon components.
func (d *Daemon) Stop() {
	slog.Info("initiating graceful shutdown")

	// 1. Cancel context: the bridge loop notices within its poll timeout
	// and tears down the serial connection and the tun device itself.
	d.cancel()

	select {
	case err := <-d.bridgeDone:
		if err != nil && err != context.Canceled {
			slog.Error("bridge stopped with error", "error", err)
		}
	case <-time.After(d.config.Bridge.PollTimeout + 2*time.Second):
		slog.Error("bridge did not stop in time")
	}

	// 2. Stop UDS server (no new CLI commands)
	slog.Info("stopping control socket")
	d.udsServer.Stop()

	// 3. Stop metrics server
	if d.metricsServer != nil {
		slog.Info("stopping metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
	}

	// 4. Unregister signal handler to prevent goroutine leak
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 5. Remove PID file
	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
	}

	slog.Info("daemon stopped gracefully")

	// 6. Release the log file, after the final log lines
	if d.logClose != nil {
		d.logClose()
	}
}

// Run runs the daemon main loop, blocking until shutdown is triggered.
// Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. daemon_shutdown command via the control socket
//  3. Fatal bridge failure (tun device lost)
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT)

	slog.Info("daemon running, waiting for signals or commands")

	select {
	case sig := <-d.sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		d.Stop()
		return nil

	case <-d.shutdownChan:
		slog.Info("shutdown triggered by command")
		d.Stop()
		return nil

	case err := <-d.bridgeDone:
		// Refill so Stop's drain does not block.
		d.bridgeDone <- err
		if err != nil && err != context.Canceled {
			slog.Error("bridge failed", "error", err)
			d.Stop()
			return err
		}
		d.Stop()
		return nil
	}
}

// TriggerShutdown requests a graceful stop. Safe to call more than once.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file written", "path", d.pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file removed", "path", d.pidFile)
	return nil
}
