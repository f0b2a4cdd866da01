package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/srg/blecentral/internal/device"
)

// errorRule maps fragments of go-ble, CoreBluetooth and BlueZ error text onto a device sentinel.
type errorRule struct {
	sentinel  error
	fragments []string
}

// Order matters: "already connected" must win over the broader "connected" rules.
var errorRules = []errorRule{
	{device.ErrBluetoothOff, []string{"is bluetooth turned on", "bluetooth is turned off", "powered off"}},
	{device.ErrAlreadyConnected, []string{"device already connected", "already connected"}},
	{device.ErrNotConnected, []string{"device not connected", "disconnected", "connection closed"}},
	{device.ErrNotInitialized, []string{"connection is not initialized"}},
	{device.ErrTimeout, []string{"timeout", "timed out"}},
	{device.ErrUnsupported, []string{"not supported", "not implemented"}},
}

var sentinels = []error{
	device.ErrBluetoothOff,
	device.ErrNotConnected,
	device.ErrAlreadyConnected,
	device.ErrConnectInProgress,
	device.ErrNotInitialized,
	device.ErrTimeout,
	device.ErrUnsupported,
}

// NormalizeError wraps a go-ble error with the device sentinel it corresponds to,
// keeping the original message. Errors that already carry a sentinel, and errors
// nothing matches, are returned unchanged.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", device.ErrTimeout, err)
	case errors.Is(err, ble.ErrNotImplemented):
		return fmt.Errorf("%w: %v", device.ErrUnsupported, err)
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range errorRules {
		for _, fragment := range rule.fragments {
			if strings.Contains(msg, fragment) {
				return fmt.Errorf("%w: %v", rule.sentinel, err)
			}
		}
	}
	return err
}
