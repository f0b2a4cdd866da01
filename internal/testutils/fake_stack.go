package testutils

import (
	"sync"

	"github.com/srg/blecentral/internal/device"
)

// DescriptorWrite records one WriteDescriptor request issued on a FakeLink
type DescriptorWrite struct {
	CharUUID string
	DescUUID string
	Value    []byte
}

// FakeStack is a scriptable device.Stack. Tests drive the callbacks explicitly
// (Advertise, FakeLink.ReportConnected, ...) from their own goroutine, so no
// callback ever runs inside a Stack method.
type FakeStack struct {
	mu         sync.Mutex
	cb         device.StackCallbacks
	scanning   bool
	startScans int
	stopScans  int
	startErr   error
	connectErr error
	profile    DeviceProfileConfig
	links      []*FakeLink
}

// NewFakeStack creates a stack whose links serve an empty GATT profile
func NewFakeStack() *FakeStack {
	return &FakeStack{}
}

// WithProfile sets the GATT profile served by links created after this call
func (s *FakeStack) WithProfile(profile DeviceProfileConfig) *FakeStack {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
	return s
}

// FailStartScan makes subsequent StartScan calls return err
func (s *FakeStack) FailStartScan(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startErr = err
}

// FailConnect makes subsequent Connect calls return err
func (s *FakeStack) FailConnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErr = err
}

func (s *FakeStack) StartScan(cb device.StackCallbacks) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.startScans++
	if s.startErr != nil {
		return s.startErr
	}
	s.scanning = true
	s.cb = cb
	return nil
}

func (s *FakeStack) StopScan() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopScans++
	s.scanning = false
	return nil
}

func (s *FakeStack) Connect(address string, cb device.StackCallbacks) (device.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connectErr != nil {
		return nil, s.connectErr
	}
	link := newFakeLink(address, cb, s.profile)
	s.links = append(s.links, link)
	return link, nil
}

// Advertise delivers adv to the scan callback. Returns false when no scan is running.
func (s *FakeStack) Advertise(adv device.Advertisement) bool {
	s.mu.Lock()
	cb, scanning := s.cb, s.scanning
	s.mu.Unlock()

	if !scanning || cb == nil {
		return false
	}
	cb.OnScanResult(adv)
	return true
}

// AdvertiseStale delivers adv to the last scan callback even after StopScan,
// mimicking a report already in flight when the scan was cancelled.
func (s *FakeStack) AdvertiseStale(adv device.Advertisement) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()

	if cb != nil {
		cb.OnScanResult(adv)
	}
}

func (s *FakeStack) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

func (s *FakeStack) StartScanCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startScans
}

func (s *FakeStack) StopScanCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopScans
}

func (s *FakeStack) Links() []*FakeLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FakeLink(nil), s.links...)
}

// LastLink returns the most recently created link, or nil
func (s *FakeStack) LastLink() *FakeLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.links) == 0 {
		return nil
	}
	return s.links[len(s.links)-1]
}

// FakeLink is a scriptable device.Link. Services become visible only after
// CompleteDiscovery(nil); each service or characteristic may additionally stay
// hidden for a configured number of lookups.
type FakeLink struct {
	address string
	cb      device.StackCallbacks

	mu          sync.Mutex
	services    map[string]*fakeService
	discovered  bool
	discoveries int
	closed      int
	enableErr   error
	writeErr    error
	writeStatus error
	enabled     []string
	writes      []DescriptorWrite
}

func newFakeLink(address string, cb device.StackCallbacks, profile DeviceProfileConfig) *FakeLink {
	l := &FakeLink{
		address:  address,
		cb:       cb,
		services: make(map[string]*fakeService),
	}
	for _, sc := range profile.Services {
		svc := &fakeService{
			link:         l,
			uuid:         device.NormalizeUUID(sc.UUID),
			visibleAfter: sc.VisibleAfter,
			chars:        make(map[string]*fakeCharacteristic),
		}
		for _, cc := range sc.Characteristics {
			char := &fakeCharacteristic{
				uuid:         device.NormalizeUUID(cc.UUID),
				visibleAfter: cc.VisibleAfter,
			}
			if !cc.NoCCCD {
				char.descriptors = []device.GattDescriptor{fakeDescriptor(device.ClientCharacteristicConfigUUID)}
			}
			svc.chars[char.uuid] = char
		}
		l.services[svc.uuid] = svc
	}
	return l
}

func (l *FakeLink) Address() string { return l.address }

// ReportConnected signals a successful connection through the stack callbacks
func (l *FakeLink) ReportConnected() {
	l.cb.OnConnectionStateChange(l, device.Connected, nil)
}

// ReportDisconnected signals connection loss (or a failed attempt) with err
func (l *FakeLink) ReportDisconnected(err error) {
	l.cb.OnConnectionStateChange(l, device.Disconnected, err)
}

// CompleteDiscovery finishes a discovery round. A nil err publishes the profile.
func (l *FakeLink) CompleteDiscovery(err error) {
	if err == nil {
		l.mu.Lock()
		l.discovered = true
		l.mu.Unlock()
	}
	l.cb.OnServicesDiscovered(l, err)
}

// Notify pushes a value change for charUUID through the stack callbacks
func (l *FakeLink) Notify(charUUID string, value []byte) {
	l.cb.OnCharacteristicChanged(l, device.NormalizeUUID(charUUID), value)
}

// FailEnableNotification makes EnableNotification return err
func (l *FakeLink) FailEnableNotification(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enableErr = err
}

// FailWriteDescriptor makes WriteDescriptor return err synchronously
func (l *FakeLink) FailWriteDescriptor(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeErr = err
}

// SetWriteStatus sets the status reported by asynchronous write completions
func (l *FakeLink) SetWriteStatus(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeStatus = err
}

func (l *FakeLink) DiscoverServices() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed > 0 {
		return device.ErrNotConnected
	}
	l.discoveries++
	return nil
}

func (l *FakeLink) Service(uuid string) (device.GattService, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.discovered {
		return nil, false
	}
	svc, ok := l.services[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, false
	}
	svc.lookups++
	if svc.lookups <= svc.visibleAfter {
		return nil, false
	}
	return svc, true
}

func (l *FakeLink) EnableNotification(char device.GattCharacteristic) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed > 0 {
		return device.ErrNotConnected
	}
	if l.enableErr != nil {
		return l.enableErr
	}
	l.enabled = append(l.enabled, char.UUID())
	return nil
}

func (l *FakeLink) WriteDescriptor(char device.GattCharacteristic, desc device.GattDescriptor, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed > 0 {
		return device.ErrNotConnected
	}
	if l.writeErr != nil {
		return l.writeErr
	}
	l.writes = append(l.writes, DescriptorWrite{
		CharUUID: char.UUID(),
		DescUUID: desc.UUID(),
		Value:    append([]byte(nil), value...),
	})

	status := l.writeStatus
	charUUID, descUUID := char.UUID(), desc.UUID()
	go l.cb.OnDescriptorWrite(l, charUUID, descUUID, status)
	return nil
}

func (l *FakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed++
	return nil
}

func (l *FakeLink) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed > 0
}

func (l *FakeLink) DiscoverRequests() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.discoveries
}

// Enabled lists characteristics for which local notification delivery was enabled
func (l *FakeLink) Enabled() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.enabled...)
}

func (l *FakeLink) Writes() []DescriptorWrite {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]DescriptorWrite(nil), l.writes...)
}

// ServiceLookups returns how many times the service was looked up after discovery
func (l *FakeLink) ServiceLookups(uuid string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if svc, ok := l.services[device.NormalizeUUID(uuid)]; ok {
		return svc.lookups
	}
	return 0
}

type fakeService struct {
	link         *FakeLink
	uuid         string
	visibleAfter int
	lookups      int
	chars        map[string]*fakeCharacteristic
}

func (s *fakeService) UUID() string { return s.uuid }

func (s *fakeService) Characteristic(uuid string) (device.GattCharacteristic, bool) {
	s.link.mu.Lock()
	defer s.link.mu.Unlock()

	char, ok := s.chars[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, false
	}
	char.lookups++
	if char.lookups <= char.visibleAfter {
		return nil, false
	}
	return char, true
}

type fakeCharacteristic struct {
	uuid         string
	visibleAfter int
	lookups      int
	descriptors  []device.GattDescriptor
}

func (c *fakeCharacteristic) UUID() string                         { return c.uuid }
func (c *fakeCharacteristic) Descriptors() []device.GattDescriptor { return c.descriptors }

type fakeDescriptor string

func (d fakeDescriptor) UUID() string { return string(d) }
