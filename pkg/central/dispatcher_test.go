package central_test

import (
	"sync"
	"testing"
	"time"

	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/testutils"
	"github.com/srg/blecentral/pkg/central"
	"github.com/srg/blecentral/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type DispatcherTestSuite struct {
	ClientSuite
}

func (s *DispatcherTestSuite) TestPanickingListenerDoesNotBreakDelivery() {
	s.Client.AddListener(central.ListenerFunc(func(central.Event) {
		panic("listener bug")
	}))
	after := central.NewChannelListener(4)
	defer after.Close()
	s.Client.AddListener(after)

	s.Require().NoError(s.Client.StartScan(0))
	s.Stack.Advertise(named("HRM", testAddress).Build())
	s.Stack.Advertise(named("Scale", otherAddress).Build())

	expectEvent[central.DeviceFound](s)
	expectEvent[central.DeviceFound](s)
	s.Equal(central.DeviceFound{Address: testAddress, Name: "HRM"}, <-after.Events())
	s.Equal(central.DeviceFound{Address: otherAddress, Name: "Scale"}, <-after.Events())
}

func (s *DispatcherTestSuite) TestRemovedListenerStopsReceiving() {
	var mu sync.Mutex
	var got []central.Event
	remove := s.Client.AddListener(central.ListenerFunc(func(e central.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	}))

	s.Require().NoError(s.Client.StartScan(0))
	s.Stack.Advertise(named("HRM", testAddress).Build())
	expectEvent[central.DeviceFound](s)

	remove()
	remove()
	s.Stack.Advertise(named("Scale", otherAddress).Build())
	expectEvent[central.DeviceFound](s)

	mu.Lock()
	defer mu.Unlock()
	s.Equal([]central.Event{central.DeviceFound{Address: testAddress, Name: "HRM"}}, got)
}

func (s *DispatcherTestSuite) TestEventsAreNotReplayedToLateListeners() {
	s.Require().NoError(s.Client.StartScan(0))
	s.Stack.Advertise(named("HRM", testAddress).Build())
	expectEvent[central.DeviceFound](s)

	late := central.NewChannelListener(4)
	defer late.Close()
	s.Client.AddListener(late)

	s.Stack.Advertise(named("Scale", otherAddress).Build())
	expectEvent[central.DeviceFound](s)

	s.Equal(central.DeviceFound{Address: otherAddress, Name: "Scale"}, <-late.Events())
	s.Equal(0, len(late.Events()))
}

func TestDispatcherTestSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}

func TestChannelListenerDropsOldest(t *testing.T) {
	l := central.NewChannelListener(2)
	l.HandleEvent(central.DeviceFound{Address: "1"})
	l.HandleEvent(central.DeviceFound{Address: "2"})
	l.HandleEvent(central.DeviceFound{Address: "3"})
	l.Close()
	l.HandleEvent(central.DeviceFound{Address: "4"})

	var got []central.Event
	for e := range l.Events() {
		got = append(got, e)
	}
	assert.Equal(t, []central.Event{
		central.DeviceFound{Address: "2"},
		central.DeviceFound{Address: "3"},
	}, got)
	assert.Equal(t, int64(1), l.Dropped())
	assert.Equal(t, int64(3), l.Delivered())
}

func TestNewRequiresStack(t *testing.T) {
	_, err := central.New(nil)
	assert.ErrorIs(t, err, device.ErrNotInitialized)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Resolve.Attempts = 0

	_, err := central.New(testutils.NewFakeStack(), central.WithConfig(cfg))
	assert.ErrorContains(t, err, "resolve.attempts must be positive")
}

func TestReadyReachesInitialListeners(t *testing.T) {
	l := central.NewChannelListener(1)
	client, err := central.New(testutils.NewFakeStack(), central.WithListener(l))
	require.NoError(t, err)
	defer client.Close()

	select {
	case e := <-l.Events():
		assert.Equal(t, central.Ready{}, e)
	case <-time.After(time.Second):
		t.Fatal("Ready not delivered")
	}
	assert.Equal(t, device.Disconnected, client.State())
}

func TestEventStrings(t *testing.T) {
	tests := []struct {
		event    central.Event
		expected string
	}{
		{central.Ready{}, "Ready"},
		{central.DeviceFound{Address: "AA", Name: "HRM"}, `DeviceFound(AA "HRM")`},
		{central.ScanStopped{Devices: make([]device.Device, 2)}, "ScanStopped(2 devices)"},
		{central.GattConnected{Address: "AA"}, "GattConnected(AA)"},
		{central.GattDisconnected{Address: "AA", Err: device.ErrTimeout}, "GattDisconnected(AA: timeout)"},
		{central.GattServicesDiscovered{Address: "AA"}, "GattServicesDiscovered(AA)"},
		{central.Notification{CharacteristicUUID: "2a37", Value: []byte{0x01, 0xAB}}, "Notification(2a37 01 AB)"},
		{central.DescriptorWritten{CharacteristicUUID: "2a37", DescriptorUUID: "2902"}, "DescriptorWritten(2a37/2902)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.event.String())
		})
	}
}
