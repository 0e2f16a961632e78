// Package tun manages the host's virtual network interface. Two backends
// produce the same Device: one assisted by the water library, one driving
// the kernel's tunnel control node directly. Call sites never distinguish
// between them.
package tun

import (
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"strings"
)

// Device is an open TUN interface handle. Read and Write exchange raw IP
// packets (no packet-info prefix). Fd exposes the underlying descriptor for
// readiness polling. Close is idempotent and tears the interface down.
type Device interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Fd() int
	Name() string
	Close() error
}

// Backend selects how the device is created.
type Backend string

const (
	// BackendAuto probes the assisted backend and falls back to raw.
	BackendAuto Backend = "auto"
	// BackendAssisted creates the device through the water library.
	BackendAssisted Backend = "assisted"
	// BackendRaw opens /dev/net/tun and configures it with ioctls.
	BackendRaw Backend = "raw"
)

// Config describes the interface to create.
type Config struct {
	Name    string
	Address string // local address, e.g. 192.168.100.1
	Netmask string // dotted quad, e.g. 255.255.255.0
	Peer    string // device address; set for a point-to-point link
	MTU     int
	Backend Backend
}

// Open creates, addresses and brings up a TUN interface according to cfg.
// Interface creation is privileged; callers get a plain error when it is
// not (the caller decides whether that is fatal).
func Open(cfg Config) (Device, error) {
	switch cfg.Backend {
	case BackendAssisted:
		return openAssisted(cfg)
	case BackendRaw:
		return openRaw(cfg)
	case BackendAuto, "":
		dev, err := openAssisted(cfg)
		if err == nil {
			return dev, nil
		}
		slog.Warn("assisted tun backend unavailable, falling back to raw",
			"error", err)
		return openRaw(cfg)
	default:
		return nil, fmt.Errorf("unknown tun backend %q", cfg.Backend)
	}
}

// prefixLen converts a dotted-quad netmask into a CIDR prefix length.
// Only the dotted-quad textual form is accepted: ParseIP would also take
// IPv4-mapped IPv6 spellings, which ip(8) does not.
func prefixLen(netmask string) (int, error) {
	ip := net.ParseIP(netmask)
	if ip == nil || ip.To4() == nil || strings.Contains(netmask, ":") {
		return 0, fmt.Errorf("invalid netmask %q", netmask)
	}
	ones, bits := net.IPMask(ip.To4()).Size()
	if bits == 0 {
		return 0, fmt.Errorf("non-contiguous netmask %q", netmask)
	}
	return ones, nil
}

// configureInterface assigns the address and MTU and brings the link up
// using the ip command, as one composed step.
func configureInterface(name string, cfg Config) error {
	ones, err := prefixLen(cfg.Netmask)
	if err != nil {
		return err
	}
	cidr := fmt.Sprintf("%s/%d", cfg.Address, ones)

	addrArgs := []string{"addr", "add", cidr, "dev", name}
	if cfg.Peer != "" {
		addrArgs = []string{"addr", "add", cfg.Address,
			"peer", fmt.Sprintf("%s/%d", cfg.Peer, ones), "dev", name}
	}
	if out, err := exec.Command("ip", addrArgs...).CombinedOutput(); err != nil {
		return fmt.Errorf("assigning %s to %s: %w (%s)", cidr, name, err, out)
	}
	if out, err := exec.Command("ip", "link", "set", "dev", name, "mtu", fmt.Sprint(cfg.MTU)).CombinedOutput(); err != nil {
		return fmt.Errorf("setting mtu on %s: %w (%s)", name, err, out)
	}
	if out, err := exec.Command("ip", "link", "set", "dev", name, "up").CombinedOutput(); err != nil {
		return fmt.Errorf("bringing up %s: %w (%s)", name, err, out)
	}

	slog.Info("tun interface configured",
		"name", name, "address", cidr, "mtu", cfg.MTU)
	return nil
}

// linkDown brings the interface down, ignoring errors: the device may
// already be gone by the time teardown runs.
func linkDown(name string) {
	_ = exec.Command("ip", "link", "set", "dev", name, "down").Run()
}

// removeInterface deletes a kernel-persistent TUN interface. Used by the
// raw backend, whose interface does not vanish reliably on close when
// creation was aborted halfway.
func removeInterface(name string) {
	_ = exec.Command("ip", "tuntap", "del", "dev", name, "mode", "tun").Run()
}
