package central_test

import (
	"errors"
	"testing"
	"time"

	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/pkg/central"
	"github.com/srg/blecentral/pkg/config"
	"github.com/stretchr/testify/suite"
)

type ScanTestSuite struct {
	ClientSuite
}

func (s *ScanTestSuite) TestDuplicateSightingsRaiseOneDeviceFound() {
	s.Require().NoError(s.Client.StartScan(0))
	s.True(s.Stack.Scanning())

	for i := 0; i < 3; i++ {
		s.True(s.Stack.Advertise(named("HRM", testAddress).WithRSSI(-40 - i).Build()))
	}
	s.Stack.Advertise(named("Scale", otherAddress).Build())
	s.Stack.Advertise(named("HRM", "aa:bb:cc:dd:ee:01").Build())

	first := expectEvent[central.DeviceFound](s)
	s.Equal(central.DeviceFound{Address: testAddress, Name: "HRM"}, first)
	second := expectEvent[central.DeviceFound](s)
	s.Equal(otherAddress, second.Address)
	s.expectNoEvent(50 * time.Millisecond)

	s.Equal([]device.Device{
		{Address: testAddress, Name: "HRM"},
		{Address: otherAddress, Name: "Scale"},
	}, s.Client.Devices())
}

func (s *ScanTestSuite) TestUnnamedDevicesAreIgnored() {
	s.Require().NoError(s.Client.StartScan(0))

	s.Stack.Advertise(named("", testAddress).Build())
	s.Stack.Advertise(named("Beacon", "").Build())
	s.expectNoEvent(50 * time.Millisecond)

	_, ok := s.Client.GetDevice(testAddress)
	s.False(ok)
}

func (s *ScanTestSuite) TestNewSessionResetsRegistry() {
	s.Require().NoError(s.Client.StartScan(0))
	s.Stack.Advertise(named("HRM", testAddress).Build())
	expectEvent[central.DeviceFound](s)

	s.Require().NoError(s.Client.StartScan(0))
	stopped := expectEvent[central.ScanStopped](s)
	s.Len(stopped.Devices, 1)
	s.Empty(s.Client.Devices())

	s.Stack.Advertise(named("HRM", testAddress).Build())
	expectEvent[central.DeviceFound](s)
}

func (s *ScanTestSuite) TestTimeoutStopsScan() {
	start := time.Now()
	s.Require().NoError(s.Client.StartScan(60 * time.Millisecond))

	expectEvent[central.ScanStopped](s)
	s.GreaterOrEqual(time.Since(start), 60*time.Millisecond)
	s.False(s.Stack.Scanning())
	s.False(s.Client.Scanning())
	s.Equal(1, s.Stack.StopScanCalls())
}

func (s *ScanTestSuite) TestStopScanCancelsTimeout() {
	s.Require().NoError(s.Client.StartScan(80 * time.Millisecond))
	s.Require().NoError(s.Client.StopScan())
	expectEvent[central.ScanStopped](s)

	s.expectNoEvent(150 * time.Millisecond)
	s.Equal(1, s.Stack.StopScanCalls())

	s.Require().NoError(s.Client.StopScan())
	s.Equal(1, s.Stack.StopScanCalls())
}

func (s *ScanTestSuite) TestStaleTimeoutDoesNotStopLaterSession() {
	s.Require().NoError(s.Client.StartScan(60 * time.Millisecond))
	s.Require().NoError(s.Client.StopScan())
	expectEvent[central.ScanStopped](s)

	s.Require().NoError(s.Client.StartScan(0))
	s.expectNoEvent(120 * time.Millisecond)
	s.True(s.Client.Scanning())
	s.True(s.Stack.Scanning())
}

func (s *ScanTestSuite) TestReportsAfterStopAreIgnored() {
	s.Require().NoError(s.Client.StartScan(0))
	s.Require().NoError(s.Client.StopScan())
	expectEvent[central.ScanStopped](s)

	s.Stack.AdvertiseStale(named("Late", testAddress).Build())
	s.expectNoEvent(50 * time.Millisecond)
}

func (s *ScanTestSuite) TestStartScanFailure() {
	s.Stack.FailStartScan(device.ErrBluetoothOff)

	err := s.Client.StartScan(time.Second)
	s.ErrorIs(err, device.ErrBluetoothOff)
	s.False(s.Client.Scanning())
	s.expectNoEvent(20 * time.Millisecond)
}

func (s *ScanTestSuite) TestScanRefusedWhileConnected() {
	s.connect(testAddress)

	err := s.Client.Scan()
	s.ErrorIs(err, device.ErrAlreadyConnected)
	s.Equal(0, s.Stack.StartScanCalls())
}

// A named advertisement at 1/3 of the window and a duplicate at 2/3 yield one
// DeviceFound, and the scan stops itself at the end of the window.
func (s *ScanTestSuite) TestScanWindowScenario() {
	s.Restart(func(cfg *config.Config) { cfg.ScanTimeout = 300 * time.Millisecond })

	start := time.Now()
	s.Require().NoError(s.Client.Scan())

	time.Sleep(100 * time.Millisecond)
	s.Stack.Advertise(named("HRM", testAddress).Build())
	time.Sleep(100 * time.Millisecond)
	s.Stack.Advertise(named("HRM", testAddress).Build())

	found := expectEvent[central.DeviceFound](s)
	s.Equal(testAddress, found.Address)

	stopped := expectEvent[central.ScanStopped](s)
	s.GreaterOrEqual(time.Since(start), 300*time.Millisecond)
	s.Equal([]device.Device{{Address: testAddress, Name: "HRM"}}, stopped.Devices)
	s.False(s.Stack.Scanning())
}

func (s *ScanTestSuite) TestClosedClientRefusesScan() {
	s.Require().NoError(s.Client.Close())
	s.True(errors.Is(s.Client.Scan(), device.ErrNotInitialized))
}

func TestScanTestSuite(t *testing.T) {
	suite.Run(t, new(ScanTestSuite))
}
