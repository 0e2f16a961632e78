package tun

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/songgao/water"
)

// assistedDevice wraps a water.Interface. water opens and binds the
// interface; address assignment and link state still go through
// configureInterface so both backends produce identical devices.
type assistedDevice struct {
	iface *water.Interface
	file  *os.File
	name  string

	closeOnce sync.Once
}

func openAssisted(cfg Config) (Device, error) {
	wc := water.Config{DeviceType: water.TUN}
	wc.Name = cfg.Name

	iface, err := water.New(wc)
	if err != nil {
		return nil, fmt.Errorf("creating tun device with water: %w", err)
	}

	// The readiness poll needs the raw descriptor. On Linux water wraps the
	// /dev/net/tun handle in an *os.File behind its ReadWriteCloser.
	file, ok := iface.ReadWriteCloser.(*os.File)
	if !ok {
		iface.Close()
		return nil, fmt.Errorf("water backend does not expose a pollable descriptor")
	}

	if err := configureInterface(iface.Name(), cfg); err != nil {
		iface.Close()
		return nil, err
	}

	slog.Info("tun device created", "backend", "assisted", "name", iface.Name())
	return &assistedDevice{iface: iface, file: file, name: iface.Name()}, nil
}

func (d *assistedDevice) Read(p []byte) (int, error)  { return d.iface.Read(p) }
func (d *assistedDevice) Write(p []byte) (int, error) { return d.iface.Write(p) }
func (d *assistedDevice) Name() string                { return d.name }

func (d *assistedDevice) Fd() int {
	return int(d.file.Fd())
}

// Close brings the link down and releases the handle. The kernel removes
// the interface once the descriptor is closed. Safe to call twice.
func (d *assistedDevice) Close() error {
	var err error
	d.closeOnce.Do(func() {
		linkDown(d.name)
		err = d.iface.Close()
		slog.Info("tun device closed", "name", d.name)
	})
	return err
}
