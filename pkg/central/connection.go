package central

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/groutine"
)

// Connection is the single GATT connection owned by a Client. Everything
// resolved under it becomes invalid once it leaves the Connected state.
type Connection struct {
	generation uint64
	device     device.Device
	link       device.Link

	// state is guarded by the Client mutex; alive mirrors state == Connected
	// for lock-free checks.
	state device.ConnectionState
	alive atomic.Bool

	// ops admits one GATT operation at a time.
	ops   chan struct{}
	chars *hashmap.Map[string, *Characteristic]
	subs  *hashmap.Map[string, *Characteristic]

	done      chan struct{}
	settled   chan struct{}
	settle    sync.Once
	settleErr error
	closeOnce sync.Once
}

func newConnection(generation uint64, dev device.Device) *Connection {
	return &Connection{
		generation: generation,
		device:     dev,
		state:      device.Connecting,
		ops:        make(chan struct{}, 1),
		chars:      hashmap.New[string, *Characteristic](),
		subs:       hashmap.New[string, *Characteristic](),
		done:       make(chan struct{}),
		settled:    make(chan struct{}),
	}
}

// Device returns the peripheral this connection targets.
func (conn *Connection) Device() device.Device { return conn.device }

// Connected reports whether the connection is still established.
func (conn *Connection) Connected() bool { return conn.alive.Load() }

// acquire takes the operation guard, queueing behind a running operation.
func (conn *Connection) acquire(ctx context.Context) error {
	select {
	case conn.ops <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-conn.done:
		return device.ErrNotConnected
	}
}

func (conn *Connection) release() {
	<-conn.ops
}

// markSettled records the outcome of the Connecting phase once.
func (conn *Connection) markSettled(err error) {
	conn.settle.Do(func() {
		conn.settleErr = err
		close(conn.settled)
	})
}

func (conn *Connection) logFields() logrus.Fields {
	return logrus.Fields{
		"address":    conn.device.Address,
		"generation": conn.generation,
	}
}

// Connect stops any scan and requests a connection to address. It returns once
// the request is issued; GattConnected or GattDisconnected reports the outcome.
// ctx and the configured connect timeout bound the Connecting phase only.
// A second Connect while a connection exists is rejected.
func (c *Client) Connect(ctx context.Context, address string) error {
	addr := device.NormalizeAddress(address)
	if addr == "" {
		return fmt.Errorf("connect: address must not be empty")
	}

	c.mu.Lock()
	if err := c.checkOpenLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if existing := c.conn; existing != nil {
		state := existing.state
		c.mu.Unlock()
		if state == device.Connected {
			return fmt.Errorf("cannot connect to %s, %s is connected: %w", addr, existing.device.Address, device.ErrAlreadyConnected)
		}
		return fmt.Errorf("cannot connect to %s, %s is connecting: %w", addr, existing.device.Address, device.ErrConnectInProgress)
	}

	var events []Event
	if c.scanning {
		events = append(events, c.endScanLocked())
	}

	dev, ok := c.registry.get(addr)
	if !ok {
		dev = device.Device{Address: addr}
	}

	c.generation++
	conn := newConnection(c.generation, dev)

	// Stack callbacks never run synchronously, so they observe conn.link only
	// after the lock is released.
	link, err := c.stack.Connect(addr, c.callbacks)
	if err != nil {
		c.mu.Unlock()
		c.events.emit(events...)
		c.logger.WithError(err).WithFields(conn.logFields()).Warn("Connect request failed")
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	conn.link = link
	c.conn = conn
	c.mu.Unlock()

	c.events.emit(events...)
	c.logger.WithFields(conn.logFields()).Info("Connecting")

	timeout := c.cfg.ConnectTimeout
	groutine.Go(ctx, "gatt-connect-watch", func(ctx context.Context) {
		var expired <-chan time.Time
		if timeout > 0 {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			expired = timer.C
		}

		select {
		case <-conn.settled:
		case <-expired:
			c.abortConnect(conn, fmt.Errorf("no connection within %s: %w", timeout, device.ErrTimeout))
		case <-ctx.Done():
			c.abortConnect(conn, ctx.Err())
		}
	})
	return nil
}

// AwaitConnected blocks until the pending connection is established or fails.
func (c *Client) AwaitConnected(ctx context.Context) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return device.ErrNotConnected
	}

	select {
	case <-conn.settled:
		return conn.settleErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the connection, if any, and emits GattDisconnected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil
	}
	c.teardownLocked(conn, device.ErrNotConnected)
	c.mu.Unlock()

	c.logger.WithFields(conn.logFields()).Info("Disconnected by request")
	err := c.closeLink(conn)
	c.events.emit(GattDisconnected{Address: conn.device.Address})
	if err != nil {
		return fmt.Errorf("failed to close connection to %s: %w", conn.device.Address, err)
	}
	return nil
}

// State reports the state of the current connection.
func (c *Client) State() device.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return device.Disconnected
	}
	return c.conn.state
}

// Connection returns the current connection, or nil.
func (c *Client) Connection() *Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// connected returns the current connection if it is established.
func (c *Client) connected() (*Connection, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil || c.conn.state != device.Connected {
		return nil, device.ErrNotConnected
	}
	return c.conn, nil
}

// current returns the connection that owns link, or nil for a superseded link.
func (c *Client) current(link device.Link) *Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil || c.conn.link != link {
		return nil
	}
	return c.conn
}

func (c *Client) abortConnect(conn *Connection, cause error) {
	c.mu.Lock()
	if c.conn != conn || conn.state != device.Connecting {
		c.mu.Unlock()
		return
	}
	c.teardownLocked(conn, cause)
	c.mu.Unlock()

	c.logger.WithError(cause).WithFields(conn.logFields()).Warn("Connection attempt aborted")
	if err := c.closeLink(conn); err != nil {
		c.logger.WithError(err).WithFields(conn.logFields()).Debug("Failed to close aborted link")
	}
	c.events.emit(GattDisconnected{Address: conn.device.Address, Err: cause})
}

// teardownLocked moves conn to Disconnected and invalidates everything resolved
// under it. The connection is detached from the client, so its subscriptions
// no longer receive notifications.
func (c *Client) teardownLocked(conn *Connection, cause error) {
	if c.conn == conn {
		c.conn = nil
	}
	conn.state = device.Disconnected
	conn.alive.Store(false)
	conn.markSettled(cause)
	close(conn.done)
}

func (c *Client) closeLink(conn *Connection) error {
	var err error
	conn.closeOnce.Do(func() {
		err = conn.link.Close()
	})
	return err
}

func (c *Client) handleConnectionState(link device.Link, state device.ConnectionState, cause error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil || conn.link != link {
		c.mu.Unlock()
		c.logger.WithField("state", state).Debug("Ignoring state change of a superseded link")
		return
	}

	switch state {
	case device.Connected:
		if conn.state == device.Connected {
			c.mu.Unlock()
			return
		}
		conn.state = device.Connected
		conn.alive.Store(true)
		conn.markSettled(nil)
		c.mu.Unlock()

		c.logger.WithFields(conn.logFields()).Info("Connected")
		c.events.emit(GattConnected{Address: conn.device.Address})

	case device.Disconnected:
		prev := conn.state
		c.teardownLocked(conn, disconnectCause(cause))
		c.mu.Unlock()

		c.logger.WithFields(conn.logFields()).WithFields(logrus.Fields{
			"state": prev,
			"error": cause,
		}).Info("Connection lost")
		if err := c.closeLink(conn); err != nil {
			c.logger.WithError(err).WithFields(conn.logFields()).Debug("Failed to close lost link")
		}
		c.events.emit(GattDisconnected{Address: conn.device.Address, Err: cause})

	default:
		c.mu.Unlock()
	}
}

func disconnectCause(err error) error {
	if err != nil {
		return err
	}
	return device.ErrNotConnected
}
