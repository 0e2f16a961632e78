//go:build linux

package tun

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"
)

// rawDevice drives the kernel's generic tunnel control node directly:
// open /dev/net/tun, bind the handle to a named interface with TUNSETIFF,
// then address it with the external ip command.
type rawDevice struct {
	fd   int
	name string

	closeOnce sync.Once
}

func openRaw(cfg Config) (Device, error) {
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening /dev/net/tun: %w", err)
	}

	// IFF_NO_PI: raw IP packets, no 4-byte packet-info prefix.
	ifr, err := unix.NewIfreq(cfg.Name)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("invalid interface name %q: %w", cfg.Name, err)
	}
	ifr.SetUint16(unix.IFF_TUN | unix.IFF_NO_PI)
	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("binding tun interface %q: %w", cfg.Name, err)
	}

	if err := configureInterface(cfg.Name, cfg); err != nil {
		unix.Close(fd)
		removeInterface(cfg.Name)
		return nil, err
	}

	slog.Info("tun device created", "backend", "raw", "name", cfg.Name)
	return &rawDevice{fd: fd, name: cfg.Name}, nil
}

func (d *rawDevice) Read(p []byte) (int, error) {
	n, err := unix.Read(d.fd, p)
	if err != nil {
		return 0, fmt.Errorf("tun read: %w", err)
	}
	return n, nil
}

func (d *rawDevice) Write(p []byte) (int, error) {
	n, err := unix.Write(d.fd, p)
	if err != nil {
		return 0, fmt.Errorf("tun write: %w", err)
	}
	return n, nil
}

func (d *rawDevice) Fd() int      { return d.fd }
func (d *rawDevice) Name() string { return d.name }

// Close releases the descriptor and removes the interface. Safe to call
// twice.
func (d *rawDevice) Close() error {
	var err error
	d.closeOnce.Do(func() {
		linkDown(d.name)
		err = unix.Close(d.fd)
		removeInterface(d.name)
		slog.Info("tun device closed", "name", d.name)
	})
	return err
}
