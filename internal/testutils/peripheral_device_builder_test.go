package testutils

import (
	"errors"
	"testing"
	"time"

	"github.com/srg/blecentral/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// PeripheralDeviceBuilderTestSuite tests PeripheralDeviceBuilder and the FakeLink it configures
type PeripheralDeviceBuilderTestSuite struct {
	suite.Suite
}

func (s *PeripheralDeviceBuilderTestSuite) TestFluentBuild() {
	profile := NewPeripheralDeviceBuilder().
		WithService("180D").
		WithCharacteristic("2A37").
		VisibleAfter(2).
		WithCharacteristic("2A38").
		WithoutCCCD().
		WithService("180F").
		VisibleAfter(1).
		Build()

	s.Require().Len(profile.Services, 2)
	s.Equal(CharacteristicConfig{UUID: "2A37", VisibleAfter: 2}, profile.Services[0].Characteristics[0])
	s.Equal(CharacteristicConfig{UUID: "2A38", NoCCCD: true}, profile.Services[0].Characteristics[1])
	s.Equal(1, profile.Services[1].VisibleAfter)
}

func (s *PeripheralDeviceBuilderTestSuite) TestFromJSON() {
	profile := NewPeripheralDeviceBuilder().FromJSON(`{
		"services": [
			{"uuid": "%s", "characteristics": [{"uuid": "2A19", "noCCCD": true, "visibleAfter": 3}]}
		]
	}`, "180F").Build()

	s.Require().Len(profile.Services, 1)
	s.Equal("180F", profile.Services[0].UUID)
	s.Equal(CharacteristicConfig{UUID: "2A19", NoCCCD: true, VisibleAfter: 3}, profile.Services[0].Characteristics[0])
}

func (s *PeripheralDeviceBuilderTestSuite) TestPanicsWithoutService() {
	s.Panics(func() { NewPeripheralDeviceBuilder().WithCharacteristic("2A37") })
	s.Panics(func() { NewPeripheralDeviceBuilder().WithService("180D").WithoutCCCD() })
	s.Panics(func() { NewPeripheralDeviceBuilder().FromJSON("{") })
}

func TestPeripheralDeviceBuilderTestSuite(t *testing.T) {
	suite.Run(t, new(PeripheralDeviceBuilderTestSuite))
}

type writeRecorder struct {
	writes chan error
}

func (r *writeRecorder) OnScanResult(device.Advertisement)                                  {}
func (r *writeRecorder) OnConnectionStateChange(device.Link, device.ConnectionState, error) {}
func (r *writeRecorder) OnServicesDiscovered(device.Link, error)                            {}
func (r *writeRecorder) OnCharacteristicChanged(device.Link, string, []byte)                {}
func (r *writeRecorder) OnDescriptorWrite(_ device.Link, _, _ string, err error)            { r.writes <- err }

func TestFakeLinkVisibility(t *testing.T) {
	stack := NewFakeStack().WithProfile(NewPeripheralDeviceBuilder().
		WithService("180D").
		VisibleAfter(1).
		WithCharacteristic("2A37").
		VisibleAfter(2).
		Build())

	l, err := stack.Connect("AA:BB", &writeRecorder{writes: make(chan error, 1)})
	require.NoError(t, err)
	link := l.(*FakeLink)

	_, ok := link.Service("180D")
	assert.False(t, ok, "services are hidden until discovery completes")

	link.mu.Lock()
	link.discovered = true
	link.mu.Unlock()

	_, ok = link.Service("180D")
	assert.False(t, ok, "first lookup misses")
	svc, ok := link.Service("0000180d-0000-1000-8000-00805f9b34fb")
	require.True(t, ok)

	_, ok = svc.Characteristic("2A37")
	assert.False(t, ok)
	_, ok = svc.Characteristic("2A37")
	assert.False(t, ok)
	char, ok := svc.Characteristic("2a37")
	require.True(t, ok)
	require.Len(t, char.Descriptors(), 1)
	assert.Equal(t, device.ClientCharacteristicConfigUUID, char.Descriptors()[0].UUID())
	assert.Equal(t, 2, link.ServiceLookups("180D"))
}

func TestFakeLinkDescriptorWrite(t *testing.T) {
	rec := &writeRecorder{writes: make(chan error, 1)}
	stack := NewFakeStack().WithProfile(DefaultPeripheral().Build())

	l, err := stack.Connect("AA:BB", rec)
	require.NoError(t, err)
	link := l.(*FakeLink)
	link.discovered = true

	svc, _ := link.Service("180F")
	char, _ := svc.Characteristic("2A19")

	status := errors.New("gatt status 133")
	link.SetWriteStatus(status)
	require.NoError(t, link.WriteDescriptor(char, char.Descriptors()[0], device.EnableNotificationValue))

	select {
	case err := <-rec.writes:
		assert.Equal(t, status, err)
	case <-time.After(time.Second):
		t.Fatal("write completion not reported")
	}

	require.NoError(t, link.Close())
	assert.ErrorIs(t, link.WriteDescriptor(char, char.Descriptors()[0], nil), device.ErrNotConnected)
	assert.Equal(t, []DescriptorWrite{{CharUUID: "2a19", DescUUID: "2902", Value: []byte{0x01, 0x00}}}, link.Writes())
}
