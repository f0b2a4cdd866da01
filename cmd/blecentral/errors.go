package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/pkg/central"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the BLE connection was unexpectedly lost during operation.
	// This is distinct from device.ErrNotConnected, which indicates an attempt to use
	// a device that was never connected or was already disconnected.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns an error chain into a one-line message for the terminal.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var resErr *central.ResolutionError
	var notFound *device.NotFoundError

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or unavailable; enable the adapter and retry"
	case errors.As(err, &resErr):
		return fmt.Sprintf("%s (gave up after %d attempts)", describeNotFound(resErr.Cause), resErr.Attempts)
	case errors.As(err, &notFound):
		return describeNotFound(notFound)
	case errors.Is(err, device.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("operation timed out (%v)", err)
	case errors.Is(err, ErrConnectionLost):
		return "connection to the device was lost"
	case errors.Is(err, device.ErrNotConnected):
		return "device is not connected"
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("not supported: %v", err)
	}
	return err.Error()
}

func describeNotFound(err error) string {
	var notFound *device.NotFoundError
	if errors.As(err, &notFound) {
		return notFound.Error()
	}
	if err == nil {
		return "resource"
	}
	return err.Error()
}
