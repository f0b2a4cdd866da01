package device

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a GATT resource is not present on the connected peripheral
type NotFoundError struct {
	Resource string   // "service", "characteristic", "descriptor"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	parentResource := "service"
	if e.Resource == "descriptor" {
		parentResource = "characteristic"
	}
	return fmt.Sprintf("%s %q not found in %s %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], parentResource, e.UUIDs[0])
}

// ConnectionProblem names the kind of connection state failure
type ConnectionProblem string

const (
	NotConnected      ConnectionProblem = "not_connected"
	AlreadyConnected  ConnectionProblem = "already_connected"
	ConnectInProgress ConnectionProblem = "connect_in_progress"
	NotInitialized    ConnectionProblem = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	Problem ConnectionProblem
	Msg     string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Problem)
	}
	return fmt.Sprintf("%s: %s", e.Problem, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by Problem
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.Problem == t.Problem
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected      = &ConnectionError{Problem: NotConnected}
	ErrAlreadyConnected  = &ConnectionError{Problem: AlreadyConnected}
	ErrConnectInProgress = &ConnectionError{Problem: ConnectInProgress}
	ErrNotInitialized    = &ConnectionError{Problem: NotInitialized}
)

// Operation errors
var (
	ErrTimeout      = errors.New("timeout")
	ErrUnsupported  = errors.New("unsupported")
	ErrBluetoothOff = errors.New("bluetooth is turned off")
)

// IsConnectionProblem reports whether err is a ConnectionError with the given problem
func IsConnectionProblem(err error, problem ConnectionProblem) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.Problem == problem
	}
	return false
}

// ConnectionState is the lifecycle state of the single GATT connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Device is a peripheral sighted during a scan. Address is the unique key.
type Device struct {
	Address string
	Name    string
}

// NormalizeAddress canonicalizes a hardware address for comparisons (trimmed, upper case).
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}

// Advertisement is the subset of an advertising report the central consumes
type Advertisement interface {
	LocalName() string
	Addr() string
	RSSI() int
	Connectable() bool
}

// StackCallbacks receives asynchronous reports from a radio stack.
// Implementations must tolerate concurrent invocation from different goroutines.
type StackCallbacks interface {
	OnScanResult(adv Advertisement)
	OnConnectionStateChange(link Link, state ConnectionState, err error)
	OnServicesDiscovered(link Link, err error)
	OnCharacteristicChanged(link Link, charUUID string, value []byte)
	OnDescriptorWrite(link Link, charUUID, descUUID string, err error)
}

// Stack is the radio stack the central drives. None of its methods may invoke
// callbacks synchronously; results are always reported from another goroutine.
type Stack interface {
	// StartScan begins discovery; every advertising report goes to cb.OnScanResult.
	StartScan(cb StackCallbacks) error
	// StopScan cancels discovery. Calling it while idle is not an error.
	StopScan() error
	// Connect requests a GATT connection. State changes of the returned link are
	// reported through cb.OnConnectionStateChange.
	Connect(address string, cb StackCallbacks) (Link, error)
}

// Link is one GATT connection handle owned by a Stack.
type Link interface {
	Address() string
	// DiscoverServices requests full enumeration; completion goes to OnServicesDiscovered.
	DiscoverServices() error
	// Service looks the service up in the stack's cache.
	Service(uuid string) (GattService, bool)
	// EnableNotification turns on local delivery of value changes for char.
	EnableNotification(char GattCharacteristic) error
	// WriteDescriptor starts a descriptor write; completion goes to OnDescriptorWrite.
	WriteDescriptor(char GattCharacteristic, desc GattDescriptor, value []byte) error
	Close() error
}

type GattService interface {
	UUID() string
	Characteristic(uuid string) (GattCharacteristic, bool)
}

type GattCharacteristic interface {
	UUID() string
	Descriptors() []GattDescriptor
}

type GattDescriptor interface {
	UUID() string
}

// ClientCharacteristicConfigUUID is the normalized UUID of the CCCD.
const ClientCharacteristicConfigUUID = "2902"

// EnableNotificationValue is written to the CCCD to request notifications.
var EnableNotificationValue = []byte{0x01, 0x00}
