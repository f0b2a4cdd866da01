package central

import (
	"fmt"

	"github.com/srg/blecentral/internal/device"
)

// Event is a domain event delivered to listeners. The set is closed: only
// types declared in this package implement it.
type Event interface {
	fmt.Stringer
	event()
}

// Ready is emitted once when the client has been initialized.
type Ready struct{}

// DeviceFound is emitted the first time a named device is seen in a scan session.
type DeviceFound struct {
	Address string
	Name    string
}

// ScanStopped is emitted once when a scan session ends, by timeout or by request.
type ScanStopped struct {
	Devices []device.Device
}

// GattConnected is emitted when the stack reports the connection as established.
type GattConnected struct {
	Address string
}

// GattDisconnected is emitted when the connection is lost, closed, or fails to establish.
// Err is nil for a requested disconnect.
type GattDisconnected struct {
	Address string
	Err     error
}

// GattServicesDiscovered is emitted when service enumeration finishes, successful or not.
type GattServicesDiscovered struct {
	Address string
	Err     error
}

// Notification carries a value change of a subscribed characteristic.
type Notification struct {
	CharacteristicUUID string
	Value              []byte
}

// DescriptorWritten reports the outcome of a descriptor write. Err is nil on success.
type DescriptorWritten struct {
	CharacteristicUUID string
	DescriptorUUID     string
	Err                error
}

func (Ready) event()                  {}
func (DeviceFound) event()            {}
func (ScanStopped) event()            {}
func (GattConnected) event()          {}
func (GattDisconnected) event()       {}
func (GattServicesDiscovered) event() {}
func (Notification) event()           {}
func (DescriptorWritten) event()      {}

func (Ready) String() string { return "Ready" }

func (e DeviceFound) String() string {
	return fmt.Sprintf("DeviceFound(%s %q)", e.Address, e.Name)
}

func (e ScanStopped) String() string {
	return fmt.Sprintf("ScanStopped(%d devices)", len(e.Devices))
}

func (e GattConnected) String() string {
	return fmt.Sprintf("GattConnected(%s)", e.Address)
}

func (e GattDisconnected) String() string {
	if e.Err != nil {
		return fmt.Sprintf("GattDisconnected(%s: %v)", e.Address, e.Err)
	}
	return fmt.Sprintf("GattDisconnected(%s)", e.Address)
}

func (e GattServicesDiscovered) String() string {
	if e.Err != nil {
		return fmt.Sprintf("GattServicesDiscovered(%s: %v)", e.Address, e.Err)
	}
	return fmt.Sprintf("GattServicesDiscovered(%s)", e.Address)
}

func (e Notification) String() string {
	return fmt.Sprintf("Notification(%s % X)", e.CharacteristicUUID, e.Value)
}

func (e DescriptorWritten) String() string {
	if e.Err != nil {
		return fmt.Sprintf("DescriptorWritten(%s/%s: %v)", e.CharacteristicUUID, e.DescriptorUUID, e.Err)
	}
	return fmt.Sprintf("DescriptorWritten(%s/%s)", e.CharacteristicUUID, e.DescriptorUUID)
}
