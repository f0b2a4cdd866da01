package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blecentral/pkg/central"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for named BLE devices",
	Long: `Scan for Bluetooth Low Energy devices in the vicinity and list the named ones.

Each device is reported once per scan window. Devices that do not advertise
a name are ignored.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanWatch    bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (defaults to scan_timeout from config, 3s)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Print devices as they are found")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signalContext(cmd)
	defer cancel()

	duration := s.cfg.ScanTimeout
	if scanDuration > 0 {
		duration = scanDuration
	}

	out := newPrinter(cmd.OutOrStdout())
	progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for BLE devices", "Scanning", duration)

	if err := s.client.StartScan(duration); err != nil {
		return err
	}
	progress.Start()
	defer progress.Stop()

	stopped, err := waitFor[central.ScanStopped](ctx, s, func(e central.Event) error {
		if found, ok := e.(central.DeviceFound); ok && scanWatch {
			out.notification(found.Address, []byte(found.Name), false, true)
		}
		return nil
	})
	progress.Stop()

	var devices = stopped.Devices
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			return err
		}
		// Interrupted: report what was seen so far
		_ = s.client.StopScan()
		devices = s.client.Devices()
	}

	if scanFormat == "json" {
		return out.devicesJSON(devices)
	}
	return out.devicesTable(devices)
}
