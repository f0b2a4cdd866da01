package central_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/testutils"
	"github.com/srg/blecentral/pkg/central"
	"github.com/stretchr/testify/suite"
)

type SubscriberTestSuite struct {
	ClientSuite
}

// connect, discover, then subscribe to a characteristic that shows up on the
// second lookup attempt.
func (s *SubscriberTestSuite) TestSubscribeScenario() {
	s.Stack.WithProfile(testutils.NewPeripheralDeviceBuilder().
		WithService("180D").
		WithCharacteristic("2A37").
		VisibleAfter(1).
		Build())

	s.Require().NoError(s.Client.Connect(context.Background(), testAddress))
	link := s.Stack.LastLink()
	link.ReportConnected()
	expectEvent[central.GattConnected](s)

	s.Require().NoError(s.Client.Discover())
	link.CompleteDiscovery(nil)
	expectEvent[central.GattServicesDiscovered](s)
	s.expectNoEvent(20 * time.Millisecond)

	start := time.Now()
	s.Require().NoError(s.Client.Subscribe(context.Background(), "180D", "2A37"))
	elapsed := time.Since(start)
	s.GreaterOrEqual(elapsed, 100*time.Millisecond)
	s.Less(elapsed, 200*time.Millisecond)

	s.Equal([]string{"2a37"}, link.Enabled())
	s.Equal([]testutils.DescriptorWrite{{
		CharUUID: "2a37",
		DescUUID: device.ClientCharacteristicConfigUUID,
		Value:    []byte{0x01, 0x00},
	}}, link.Writes())

	written := expectEvent[central.DescriptorWritten](s)
	s.Equal(central.DescriptorWritten{CharacteristicUUID: "2a37", DescriptorUUID: "2902"}, written)

	payload := []byte{0x16, 0x48}
	link.Notify("2A37", payload)
	payload[0] = 0xFF

	ev := expectEvent[central.Notification](s)
	s.Equal("2a37", ev.CharacteristicUUID)
	s.Equal([]byte{0x16, 0x48}, ev.Value)

	ch, err := s.Client.Resolve(context.Background(), "180D", "2A37")
	s.Require().NoError(err)
	s.Equal([]byte{0x16, 0x48}, ch.LastValue())
}

func (s *SubscriberTestSuite) TestSubscribeAfterDisconnectFails() {
	link := s.connect(testAddress)
	s.discover(link)
	s.Require().NoError(s.Client.Subscribe(context.Background(), "180D", "2A37"))
	expectEvent[central.DescriptorWritten](s)

	link.ReportDisconnected(nil)
	expectEvent[central.GattDisconnected](s)

	err := s.Client.Subscribe(context.Background(), "180F", "2A19")
	s.ErrorIs(err, device.ErrNotConnected)

	link.Notify("2A37", []byte{1})
	s.expectNoEvent(30 * time.Millisecond)
	s.Len(link.Writes(), 1)
}

func (s *SubscriberTestSuite) TestSubscribeTwiceIsNoop() {
	link := s.connect(testAddress)
	s.discover(link)

	s.Require().NoError(s.Client.Subscribe(context.Background(), "180D", "2A37"))
	expectEvent[central.DescriptorWritten](s)
	s.Require().NoError(s.Client.Subscribe(context.Background(), "180D", "2A37"))

	s.expectNoEvent(30 * time.Millisecond)
	s.Len(link.Writes(), 1)
}

func (s *SubscriberTestSuite) TestSubscribeWithoutCCCD() {
	s.Stack.WithProfile(testutils.NewPeripheralDeviceBuilder().
		WithService("180F").
		WithCharacteristic("2A19").
		WithoutCCCD().
		Build())

	link := s.connect(testAddress)
	s.discover(link)

	err := s.Client.Subscribe(context.Background(), "180F", "2A19")
	s.ErrorIs(err, device.ErrUnsupported)
	s.Empty(link.Enabled())
	s.Empty(link.Writes())

	link.Notify("2A19", []byte{42})
	s.expectNoEvent(30 * time.Millisecond)
}

func (s *SubscriberTestSuite) TestDescriptorWriteFailureIsReported() {
	link := s.connect(testAddress)
	s.discover(link)

	status := errors.New("gatt status 133")
	link.SetWriteStatus(status)
	s.Require().NoError(s.Client.Subscribe(context.Background(), "180D", "2A37"))

	ev := expectEvent[central.DescriptorWritten](s)
	s.ErrorIs(ev.Err, status)

	link.SetWriteStatus(nil)
	s.Require().NoError(s.Client.Subscribe(context.Background(), "180D", "2A37"))
	ev = expectEvent[central.DescriptorWritten](s)
	s.NoError(ev.Err)
	s.Len(link.Writes(), 2)
}

func (s *SubscriberTestSuite) TestEnableNotificationFailure() {
	link := s.connect(testAddress)
	s.discover(link)
	link.FailEnableNotification(device.ErrUnsupported)

	err := s.Client.Subscribe(context.Background(), "180D", "2A37")
	s.ErrorIs(err, device.ErrUnsupported)
	s.Empty(link.Writes())

	link.Notify("2A37", []byte{1})
	s.expectNoEvent(30 * time.Millisecond)
}

func (s *SubscriberTestSuite) TestWriteRequestFailure() {
	link := s.connect(testAddress)
	s.discover(link)
	link.FailWriteDescriptor(device.ErrTimeout)

	err := s.Client.Subscribe(context.Background(), "180D", "2A37")
	s.ErrorIs(err, device.ErrTimeout)
	s.expectNoEvent(30 * time.Millisecond)
}

func (s *SubscriberTestSuite) TestUnsubscribedNotificationsAreIgnored() {
	link := s.connect(testAddress)
	s.discover(link)
	s.Require().NoError(s.Client.Subscribe(context.Background(), "180D", "2A37"))
	expectEvent[central.DescriptorWritten](s)

	link.Notify("2A19", []byte{99})
	link.Notify("2A37", []byte{60})

	ev := expectEvent[central.Notification](s)
	s.Equal("2a37", ev.CharacteristicUUID)
	s.expectNoEvent(30 * time.Millisecond)
}

func (s *SubscriberTestSuite) TestSubscribeExhaustion() {
	link := s.connect(testAddress)
	s.discover(link)

	err := s.Client.Subscribe(context.Background(), "180D", "2A99")
	s.ErrorIs(err, central.ErrResolutionExhausted)
	s.Empty(link.Enabled())
}

func TestSubscriberTestSuite(t *testing.T) {
	suite.Run(t, new(SubscriberTestSuite))
}
