package testutils

import (
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// StackSuite provides a FakeStack-backed base for central tests.
//
// Usage:
//
//	type MyTestSuite struct {
//	    testutils.StackSuite
//	}
//
//	func (s *MyTestSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("180D").
//	        WithCharacteristic("2A37")
//	    s.StackSuite.SetupTest()
//	}
type StackSuite struct {
	suite.Suite
	Helper *TestHelper
	Logger *logrus.Logger
	Stack  *FakeStack

	// PeripheralBuilder is consumed by SetupTest; nil selects the default profile
	PeripheralBuilder *PeripheralDeviceBuilder
}

// SetupSuite prepares the logger shared by all tests
func (s *StackSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
}

// SetupTest creates a fresh FakeStack serving the configured profile
func (s *StackSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = DefaultPeripheral()
	}
	s.Stack = NewFakeStack().WithProfile(s.PeripheralBuilder.Build())
}

func (s *StackSuite) TearDownTest() {
	s.PeripheralBuilder = nil
}

// WithPeripheral returns a fresh builder that SetupTest will use
func (s *StackSuite) WithPeripheral() *PeripheralDeviceBuilder {
	s.PeripheralBuilder = NewPeripheralDeviceBuilder()
	return s.PeripheralBuilder
}

// DefaultPeripheral is a heart-rate and battery peripheral
func DefaultPeripheral() *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder().
		WithService("180D").
		WithCharacteristic("2A37").
		WithService("180F").
		WithCharacteristic("2A19")
}
