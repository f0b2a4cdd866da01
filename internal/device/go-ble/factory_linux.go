//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

// cccdManagedBySubscribe is set where the host stack rejects direct CCCD writes.
var cccdManagedBySubscribe = false

func newDefaultDevice() (ble.Device, error) {
	return linux.NewDevice()
}
