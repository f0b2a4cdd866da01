//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
	"github.com/srg/blecentral/internal/device"
)

// cccdManagedBySubscribe is set where the host stack rejects direct CCCD writes.
var cccdManagedBySubscribe = false

func newDefaultDevice() (ble.Device, error) {
	return nil, fmt.Errorf("no BLE backend for %s: %w", runtime.GOOS, device.ErrUnsupported)
}
