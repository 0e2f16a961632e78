// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Direction label values for relay counters.
const (
	DirSerialToTun = "serial_to_tun"
	DirTunToSerial = "tun_to_serial"
)

var (
	// FramesTotal counts frames relayed per direction.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunbridge_frames_total",
			Help: "Total number of frames relayed",
		},
		[]string{"direction"},
	)

	// BytesTotal counts relayed payload bytes per direction.
	BytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunbridge_bytes_total",
			Help: "Total payload bytes relayed",
		},
		[]string{"direction"},
	)

	// DropsTotal counts dropped frames by reason.
	DropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunbridge_drops_total",
			Help: "Total number of frames dropped",
		},
		[]string{"reason"},
	)

	// ReconnectsTotal counts serial reconnection cycles.
	ReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tunbridge_serial_reconnects_total",
			Help: "Total number of serial transport reconnections",
		},
	)

	// BridgeState tracks the current state machine state (one-hot gauge).
	BridgeState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tunbridge_state",
			Help: "Current bridge state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)
)
