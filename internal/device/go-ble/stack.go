package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/groutine"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking as goble.DeviceFactory
var DeviceFactory = newDefaultDevice

// Stack implements device.Stack on top of a go-ble host device.
// The blocking go-ble calls (Scan, Dial, DiscoverProfile, WriteDescriptor) run on
// named goroutines and report back through device.StackCallbacks.
type Stack struct {
	logger *logrus.Logger

	mu         sync.Mutex
	dev        ble.Device
	scanCancel context.CancelFunc
}

// NewStack creates a Stack. The host device is opened lazily on first use.
func NewStack(logger *logrus.Logger) *Stack {
	if logger == nil {
		logger = logrus.New()
	}
	return &Stack{logger: logger}
}

// hostDevice returns the shared ble.Device, creating it on first call.
// Must be called with s.mu held.
func (s *Stack) hostDevice() (ble.Device, error) {
	if s.dev != nil {
		return s.dev, nil
	}

	dev, err := DeviceFactory()
	if err != nil {
		s.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	s.dev = dev
	return dev, nil
}

// StartScan begins discovery. A scan already in progress is left running.
func (s *Stack) StartScan(cb device.StackCallbacks) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scanCancel != nil {
		s.logger.Debug("Scan already running")
		return nil
	}

	dev, err := s.hostDevice()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.scanCancel = cancel

	groutine.Go(ctx, "ble-scan", func(ctx context.Context) {
		s.logger.Debug("Scanning for BLE advertisements...")
		err := dev.Scan(ctx, false, func(adv ble.Advertisement) {
			cb.OnScanResult(NewBLEAdvertisement(adv))
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.logger.WithFields(logrus.Fields{
				"goroutine": groutine.GetName(ctx),
				"error":     NormalizeError(err),
			}).Error("BLE scan failed")
		}
		s.logger.Debug("BLE scan finished")
	})

	return nil
}

// StopScan cancels discovery started by StartScan.
func (s *Stack) StopScan() error {
	s.mu.Lock()
	cancel := s.scanCancel
	s.scanCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// Connect dials address on a background goroutine and returns the pending link.
func (s *Stack) Connect(address string, cb device.StackCallbacks) (device.Link, error) {
	s.mu.Lock()
	dev, err := s.hostDevice()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := newLink(address, cb, cancel, s.logger)

	groutine.Go(ctx, "ble-dial", func(ctx context.Context) {
		l.dial(ctx, dev)
	})

	return l, nil
}

// Close stops scanning and releases the host device.
func (s *Stack) Close() error {
	_ = s.StopScan()

	s.mu.Lock()
	dev := s.dev
	s.dev = nil
	s.mu.Unlock()

	if dev == nil {
		return nil
	}
	if err := dev.Stop(); err != nil {
		return fmt.Errorf("failed to stop BLE device: %w", NormalizeError(err))
	}
	return nil
}
