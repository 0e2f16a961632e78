// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"icc.tech/tunbridge/internal/config"
	"icc.tech/tunbridge/internal/serial"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the bridge configuration",
	Long: `Validate the bridge configuration file without starting the daemon.

With --probe, additionally attempt to reach the configured serial
endpoint (bounded retries, no traffic is relayed).

Examples:
  tunbridge validate -c /etc/tunbridge/config.yml
  tunbridge validate -c config.yml --probe`,
	Run: func(cmd *cobra.Command, args []string) {
		runValidateCommand()
	},
}

var validateProbe bool

func init() {
	validateCmd.Flags().BoolVar(&validateProbe, "probe", false,
		"also probe the serial endpoint")
}

func runValidateCommand() {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("VALID: serial %s:%d, tun %s (%s/%s), ethernet=%v\n",
		cfg.Serial.Host, cfg.Serial.Port,
		cfg.Tun.Name, cfg.Tun.Address, cfg.Tun.Netmask,
		cfg.Bridge.Ethernet,
	)

	if !validateProbe {
		return
	}

	dialer := &serial.Dialer{
		Host:          cfg.Serial.Host,
		Port:          cfg.Serial.Port,
		RetryInterval: cfg.Serial.RetryInterval,
		MaxAttempts:   3,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := dialer.Dial(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "PROBE FAILED: %v\n", err)
		os.Exit(1)
	}
	conn.Close()

	fmt.Printf("PROBE OK: serial endpoint %s reachable\n", dialer.Addr())
}
