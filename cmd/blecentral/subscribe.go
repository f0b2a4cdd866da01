package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/pkg/central"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-address> <service-uuid> <char-uuid>",
	Short: "Subscribe to characteristic notifications",
	Long: `Connects to a device, discovers its services, enables notifications on a
characteristic and prints every received value until interrupted.

Examples:
  # Heart rate measurement
  blecentral subscribe AA:BB:CC:DD:EE:FF 180d 2a37 --hex`,
	Args: cobra.ExactArgs(3),
	RunE: runSubscribe,
}

var (
	subscribeHex     bool
	subscribeTimeout time.Duration
)

func init() {
	subscribeCmd.Flags().BoolVar(&subscribeHex, "hex", false, "Output as hex string; raw bytes by default")
	subscribeCmd.Flags().DurationVar(&subscribeTimeout, "timeout", 0, "Connection timeout (defaults to connect_timeout from config)")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	address, serviceUUID, charUUID := args[0], args[1], args[2]
	if _, err := device.ValidateUUID(serviceUUID, charUUID); err != nil {
		return err
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

	connectCtx := ctx
	if subscribeTimeout > 0 {
		var cancelConnect context.CancelFunc
		connectCtx, cancelConnect = context.WithTimeout(ctx, subscribeTimeout)
		defer cancelConnect()
	}

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Subscribing to %s", address), "Connecting")
	progress.Start()
	defer progress.Stop()

	// Connection loss at any stage ends the command
	lost := func(e central.Event) error {
		if d, ok := e.(central.GattDisconnected); ok {
			if d.Err != nil {
				return fmt.Errorf("%w: %w", ErrConnectionLost, d.Err)
			}
			return ErrConnectionLost
		}
		return nil
	}

	if err := s.client.Connect(connectCtx, address); err != nil {
		return err
	}
	if _, err := waitFor[central.GattConnected](ctx, s, lost); err != nil {
		return err
	}

	progress.SetPhase("Discovering")
	if err := s.client.Discover(); err != nil {
		return err
	}
	discovered, err := waitFor[central.GattServicesDiscovered](ctx, s, lost)
	if err != nil {
		return err
	}
	if discovered.Err != nil {
		s.logger.WithError(discovered.Err).Warn("Service discovery reported an error, resolving anyway")
	}

	progress.SetPhase("Subscribing")
	if err := s.client.Subscribe(ctx, serviceUUID, charUUID); err != nil {
		return err
	}
	progress.Stop()

	out := newPrinter(cmd.OutOrStdout())
	errOut := newPrinter(cmd.ErrOrStderr())
	fmt.Fprintf(cmd.ErrOrStderr(), "Subscribed to %s. Press Ctrl+C to stop...\n", device.NormalizeUUID(charUUID))

	disconnected, err := waitFor[central.GattDisconnected](ctx, s, func(e central.Event) error {
		switch e := e.(type) {
		case central.Notification:
			out.notification(e.CharacteristicUUID, e.Value, subscribeHex, false)
		case central.DescriptorWritten:
			if e.Err != nil {
				errOut.warning("peripheral rejected notifications for %s: %v", e.CharacteristicUUID, e.Err)
			}
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		// User cancelled
		return nil
	}
	if err != nil {
		return err
	}
	return lost(disconnected)
}
