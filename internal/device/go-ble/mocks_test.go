package goble

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
	"github.com/srg/blecentral/internal/device"
	"github.com/stretchr/testify/mock"
)

// mockDevice overrides the ble.Device methods the stack uses; the embedded
// interface is nil, so any other call panics.
type mockDevice struct {
	ble.Device
	mock.Mock
}

func (m *mockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	args := m.Called(ctx, allowDup, h)
	return args.Error(0)
}

func (m *mockDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	args := m.Called(ctx, a)
	client, _ := args.Get(0).(ble.Client)
	return client, args.Error(1)
}

func (m *mockDevice) Stop() error {
	return m.Called().Error(0)
}

type mockClient struct {
	ble.Client
	mock.Mock

	disconnected chan struct{}
}

func newMockClient() *mockClient {
	return &mockClient{disconnected: make(chan struct{})}
}

func (m *mockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	profile, _ := args.Get(0).(*ble.Profile)
	return profile, args.Error(1)
}

func (m *mockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return m.Called(c, ind, h).Error(0)
}

func (m *mockClient) WriteDescriptor(d *ble.Descriptor, v []byte) error {
	return m.Called(d, v).Error(0)
}

func (m *mockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *mockClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

type mockAdvertisement struct {
	ble.Advertisement
	name string
	addr string
	rssi int
}

func (a *mockAdvertisement) LocalName() string { return a.name }
func (a *mockAdvertisement) Addr() ble.Addr    { return ble.NewAddr(a.addr) }
func (a *mockAdvertisement) RSSI() int         { return a.rssi }
func (a *mockAdvertisement) Connectable() bool { return true }

type stateChange struct {
	state device.ConnectionState
	err   error
}

type descriptorWrite struct {
	charUUID string
	descUUID string
	err      error
}

type notification struct {
	charUUID string
	value    []byte
}

// recordingCallbacks captures stack reports on buffered channels
type recordingCallbacks struct {
	mu          sync.Mutex
	ads         []device.Advertisement
	states      chan stateChange
	discovered  chan error
	writes      chan descriptorWrite
	changes     chan notification
	scanResults chan struct{}
}

func newRecordingCallbacks() *recordingCallbacks {
	return &recordingCallbacks{
		states:      make(chan stateChange, 8),
		discovered:  make(chan error, 8),
		writes:      make(chan descriptorWrite, 8),
		changes:     make(chan notification, 8),
		scanResults: make(chan struct{}, 8),
	}
}

func (r *recordingCallbacks) OnScanResult(adv device.Advertisement) {
	r.mu.Lock()
	r.ads = append(r.ads, adv)
	r.mu.Unlock()
	r.scanResults <- struct{}{}
}

func (r *recordingCallbacks) OnConnectionStateChange(_ device.Link, state device.ConnectionState, err error) {
	r.states <- stateChange{state: state, err: err}
}

func (r *recordingCallbacks) OnServicesDiscovered(_ device.Link, err error) {
	r.discovered <- err
}

func (r *recordingCallbacks) OnCharacteristicChanged(_ device.Link, charUUID string, value []byte) {
	r.changes <- notification{charUUID: charUUID, value: value}
}

func (r *recordingCallbacks) OnDescriptorWrite(_ device.Link, charUUID, descUUID string, err error) {
	r.writes <- descriptorWrite{charUUID: charUUID, descUUID: descUUID, err: err}
}

func (r *recordingCallbacks) advertisements() []device.Advertisement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]device.Advertisement(nil), r.ads...)
}
