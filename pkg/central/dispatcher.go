package central

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/ringchan"
)

// Listener receives domain events. HandleEvent runs on the goroutine that
// delivered the underlying stack callback and must not block for long.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a plain function to a Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) HandleEvent(e Event) { f(e) }

// ChannelListener buffers events in a bounded ring; once full the oldest event is dropped.
type ChannelListener struct {
	ring *ringchan.RingChannel[Event]
}

// NewChannelListener creates a channel-backed listener holding up to capacity events.
func NewChannelListener(capacity int) *ChannelListener {
	return &ChannelListener{ring: ringchan.New[Event](capacity)}
}

func (l *ChannelListener) HandleEvent(e Event) { l.ring.Send(e) }

// Events returns the receive side; it is closed by Close.
func (l *ChannelListener) Events() <-chan Event { return l.ring.C() }

// Delivered returns how many events were accepted into the buffer.
func (l *ChannelListener) Delivered() int64 { return l.ring.Written() }

// Dropped returns how many events were overwritten before being consumed.
func (l *ChannelListener) Dropped() int64 { return l.ring.Dropped() }

func (l *ChannelListener) Close() { l.ring.Close() }

// dispatcher fans events out to the listeners registered at delivery time.
type dispatcher struct {
	logger *logrus.Logger

	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]Listener
	order     []uint64
}

func newDispatcher(logger *logrus.Logger) *dispatcher {
	return &dispatcher{
		logger:    logger,
		listeners: make(map[uint64]Listener),
	}
}

func (d *dispatcher) add(l Listener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.listeners[id] = l
	d.order = append(d.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(id) })
	}
}

func (d *dispatcher) remove(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.listeners, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

func (d *dispatcher) snapshot() []Listener {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Listener, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.listeners[id])
	}
	return out
}

// emit delivers every event to every current listener, in registration order.
// No event is retained when there are no listeners.
func (d *dispatcher) emit(events ...Event) {
	if len(events) == 0 {
		return
	}
	listeners := d.snapshot()
	for _, e := range events {
		d.logger.WithField("event", e.String()).Debug("Dispatching event")
		for _, l := range listeners {
			d.deliver(l, e)
		}
	}
}

func (d *dispatcher) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logrus.Fields{
				"event": e.String(),
				"panic": r,
			}).Error("Listener panicked")
		}
	}()
	l.HandleEvent(e)
}

// ----------------------------
// Stack callback variants
// ----------------------------

// stackReport is one stack callback converted into a value so that every
// callback funnels through Client.dispatch.
type stackReport interface {
	report()
}

type scanResult struct {
	adv device.Advertisement
}

type connectionStateChanged struct {
	link  device.Link
	state device.ConnectionState
	err   error
}

type servicesDiscovered struct {
	link device.Link
	err  error
}

type characteristicChanged struct {
	link     device.Link
	charUUID string
	value    []byte
}

type descriptorWritten struct {
	link     device.Link
	charUUID string
	descUUID string
	err      error
}

func (scanResult) report()             {}
func (connectionStateChanged) report() {}
func (servicesDiscovered) report()     {}
func (characteristicChanged) report()  {}
func (descriptorWritten) report()      {}

// stackCallbacks implements device.StackCallbacks on behalf of a Client.
type stackCallbacks struct {
	c *Client
}

func (s stackCallbacks) OnScanResult(adv device.Advertisement) {
	s.c.dispatch(scanResult{adv: adv})
}

func (s stackCallbacks) OnConnectionStateChange(link device.Link, state device.ConnectionState, err error) {
	s.c.dispatch(connectionStateChanged{link: link, state: state, err: err})
}

func (s stackCallbacks) OnServicesDiscovered(link device.Link, err error) {
	s.c.dispatch(servicesDiscovered{link: link, err: err})
}

func (s stackCallbacks) OnCharacteristicChanged(link device.Link, charUUID string, value []byte) {
	s.c.dispatch(characteristicChanged{link: link, charUUID: charUUID, value: value})
}

func (s stackCallbacks) OnDescriptorWrite(link device.Link, charUUID, descUUID string, err error) {
	s.c.dispatch(descriptorWritten{link: link, charUUID: charUUID, descUUID: descUUID, err: err})
}

// dispatch routes a stack report to its handler.
func (c *Client) dispatch(r stackReport) {
	switch r := r.(type) {
	case scanResult:
		c.handleScanResult(r.adv)
	case connectionStateChanged:
		c.handleConnectionState(r.link, r.state, r.err)
	case servicesDiscovered:
		c.handleServicesDiscovered(r.link, r.err)
	case characteristicChanged:
		c.handleCharacteristicChanged(r.link, r.charUUID, r.value)
	case descriptorWritten:
		c.handleDescriptorWritten(r.link, r.charUUID, r.descUUID, r.err)
	default:
		c.logger.WithField("report", r).Warn("Unhandled stack report")
	}
}
