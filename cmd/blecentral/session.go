package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blecentral/internal/device"
	goble "github.com/srg/blecentral/internal/device/go-ble"
	"github.com/srg/blecentral/pkg/central"
	"github.com/srg/blecentral/pkg/config"
)

// newStack creates the radio stack (can be overridden in tests)
var newStack = func(logger *logrus.Logger) device.Stack {
	return goble.NewStack(logger)
}

// session bundles a client with the listener the command consumes events from.
type session struct {
	client *central.Client
	events *central.ChannelListener
	logger *logrus.Logger
	cfg    *config.Config
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	events := central.NewChannelListener(cfg.ListenerBuffer)
	client, err := central.New(newStack(logger),
		central.WithLogger(logger),
		central.WithConfig(cfg),
		central.WithListener(events),
	)
	if err != nil {
		events.Close()
		return nil, fmt.Errorf("failed to create BLE client: %w", err)
	}

	return &session{client: client, events: events, logger: logger, cfg: cfg}, nil
}

func (s *session) Close() {
	if err := s.client.Close(); err != nil {
		s.logger.WithError(err).Warn("Failed to close BLE client")
	}
	s.events.Close()
	s.logger.WithFields(logrus.Fields{
		"delivered": s.events.Delivered(),
		"dropped":   s.events.Dropped(),
	}).Debug("Event listener closed")
}

// waitFor consumes events until one of type T arrives. onOther sees every
// other event; a non-nil error from it aborts the wait.
func waitFor[T central.Event](ctx context.Context, s *session, onOther func(central.Event) error) (T, error) {
	var zero T
	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case e, ok := <-s.events.Events():
			if !ok {
				return zero, device.ErrNotInitialized
			}
			if typed, ok := e.(T); ok {
				return typed, nil
			}
			if onOther != nil {
				if err := onOther(e); err != nil {
					return zero, err
				}
			}
		}
	}
}

// signalContext derives a context cancelled by Ctrl+C or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
