//go:build darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// cccdManagedBySubscribe is set where the host stack rejects direct CCCD writes.
var cccdManagedBySubscribe = true

func newDefaultDevice() (ble.Device, error) {
	return darwin.NewDevice()
}
