package central_test

import (
	"context"
	"testing"
	"time"

	"github.com/srg/blecentral/internal/testutils"
	"github.com/srg/blecentral/pkg/central"
	"github.com/srg/blecentral/pkg/config"
	"github.com/stretchr/testify/require"
)

const (
	eventTimeout = time.Second
	testAddress  = "AA:BB:CC:DD:EE:01"
	otherAddress = "AA:BB:CC:DD:EE:02"
)

// ClientSuite runs each test against a fresh Client over a FakeStack and
// records every event it emits.
type ClientSuite struct {
	testutils.StackSuite
	Config *config.Config
	Client *central.Client
	Events *central.ChannelListener
}

func (s *ClientSuite) SetupTest() {
	s.StackSuite.SetupTest()
	s.Restart(nil)
}

func (s *ClientSuite) TearDownTest() {
	s.closeClient()
	s.StackSuite.TearDownTest()
}

// Restart replaces the client with one built from a tweaked default config.
func (s *ClientSuite) Restart(tweak func(cfg *config.Config)) {
	s.closeClient()

	s.Config = config.DefaultConfig()
	if tweak != nil {
		tweak(s.Config)
	}
	s.Events = central.NewChannelListener(256)

	client, err := central.New(s.Stack,
		central.WithLogger(s.Logger),
		central.WithConfig(s.Config),
		central.WithListener(s.Events),
	)
	s.Require().NoError(err)
	s.Client = client

	expectEvent[central.Ready](s)
}

func (s *ClientSuite) closeClient() {
	if s.Client != nil {
		s.NoError(s.Client.Close())
		s.Client = nil
	}
	if s.Events != nil {
		s.Events.Close()
		s.Events = nil
	}
}

func (s *ClientSuite) nextEvent() central.Event {
	s.T().Helper()
	select {
	case e, ok := <-s.Events.Events():
		s.Require().True(ok, "event channel closed")
		return e
	case <-time.After(eventTimeout):
		s.FailNow("timed out waiting for an event")
		return nil
	}
}

func (s *ClientSuite) expectNoEvent(within time.Duration) {
	s.T().Helper()
	select {
	case e := <-s.Events.Events():
		s.Failf("unexpected event", "got %s", e)
	case <-time.After(within):
	}
}

type eventSource interface {
	T() *testing.T
	nextEvent() central.Event
}

// expectEvent asserts that the next event has type T and returns it.
func expectEvent[T central.Event](s eventSource) T {
	s.T().Helper()
	e := s.nextEvent()
	typed, ok := e.(T)
	require.Truef(s.T(), ok, "expected %T, got %s", *new(T), e)
	return typed
}

// connect establishes a connection to address and returns its link.
func (s *ClientSuite) connect(address string) *testutils.FakeLink {
	s.T().Helper()
	s.Require().NoError(s.Client.Connect(context.Background(), address))
	link := s.Stack.LastLink()
	s.Require().NotNil(link)

	link.ReportConnected()
	ev := expectEvent[central.GattConnected](s)
	s.Equal(address, ev.Address)
	return link
}

// discover runs a successful service discovery round on link.
func (s *ClientSuite) discover(link *testutils.FakeLink) {
	s.T().Helper()
	s.Require().NoError(s.Client.Discover())
	s.Equal(1, link.DiscoverRequests())
	link.CompleteDiscovery(nil)
	ev := expectEvent[central.GattServicesDiscovered](s)
	s.NoError(ev.Err)
}

func named(name, address string) *testutils.AdvertisementBuilder {
	return testutils.CreateMockAdvertisement(name, address, -60)
}
