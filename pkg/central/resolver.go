package central

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/groutine"
)

// ErrResolutionExhausted is wrapped by every ResolutionError.
var ErrResolutionExhausted = errors.New("resolution exhausted")

// ResolutionError reports that a service or characteristic stayed absent for every attempt.
type ResolutionError struct {
	ServiceUUID        string
	CharacteristicUUID string
	Attempts           int
	// Cause is the *device.NotFoundError of the last attempt.
	Cause error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve %s/%s after %d attempts: %v",
		e.ServiceUUID, e.CharacteristicUUID, e.Attempts, e.Cause)
}

func (e *ResolutionError) Unwrap() []error {
	return []error{ErrResolutionExhausted, e.Cause}
}

// Service is a service resolved on a connection.
type Service struct {
	UUID string
	conn *Connection
}

// Valid reports whether the owning connection is still established.
func (s *Service) Valid() bool { return s.conn.Connected() }

// Characteristic is a characteristic resolved on a connection. Its last value
// is updated by notifications once subscribed.
type Characteristic struct {
	UUID    string
	Service *Service

	raw device.GattCharacteristic

	mu    sync.RWMutex
	value []byte
}

// Valid reports whether the owning connection is still established.
func (ch *Characteristic) Valid() bool { return ch.Service.Valid() }

// LastValue returns a copy of the most recently notified value.
func (ch *Characteristic) LastValue() []byte {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return bytes.Clone(ch.value)
}

// Descriptors lists the normalized descriptor UUIDs.
func (ch *Characteristic) Descriptors() []string {
	descs := ch.raw.Descriptors()
	out := make([]string, 0, len(descs))
	for _, d := range descs {
		out = append(out, device.NormalizeUUID(d.UUID()))
	}
	return out
}

func (ch *Characteristic) descriptor(uuid string) device.GattDescriptor {
	for _, d := range ch.raw.Descriptors() {
		if device.NormalizeUUID(d.UUID()) == uuid {
			return d
		}
	}
	return nil
}

func (ch *Characteristic) setValue(v []byte) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.value = v
}

// ResolveResult is delivered by ResolveAsync.
type ResolveResult struct {
	Characteristic *Characteristic
	Err            error
}

// Discover requests service enumeration. GattServicesDiscovered reports completion.
func (c *Client) Discover() error {
	conn, err := c.connected()
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	if err := conn.link.DiscoverServices(); err != nil {
		return fmt.Errorf("failed to discover services on %s: %w", conn.device.Address, err)
	}
	c.logger.WithFields(conn.logFields()).Debug("Service discovery requested")
	return nil
}

// Resolve looks up a characteristic of a service, retrying while the stack's
// cache is still being populated. Exhaustion yields a *ResolutionError.
func (c *Client) Resolve(ctx context.Context, serviceID, characteristicID string) (*Characteristic, error) {
	res := <-c.ResolveAsync(ctx, serviceID, characteristicID)
	return res.Characteristic, res.Err
}

// ResolveAsync runs Resolve on its own goroutine and delivers exactly one result.
func (c *Client) ResolveAsync(ctx context.Context, serviceID, characteristicID string) <-chan ResolveResult {
	out := make(chan ResolveResult, 1)
	groutine.Go(ctx, "gatt-resolve", func(ctx context.Context) {
		char, err := c.resolve(ctx, serviceID, characteristicID)
		out <- ResolveResult{Characteristic: char, Err: err}
	})
	return out
}

func (c *Client) resolve(ctx context.Context, serviceID, characteristicID string) (*Characteristic, error) {
	conn, err := c.connected()
	if err != nil {
		return nil, fmt.Errorf("resolve %s/%s: %w", serviceID, characteristicID, err)
	}
	if err := conn.acquire(ctx); err != nil {
		return nil, fmt.Errorf("resolve %s/%s: %w", serviceID, characteristicID, err)
	}
	defer conn.release()

	return c.lookup(ctx, conn, serviceID, characteristicID)
}

// lookup runs the bounded retry. Callers hold the connection's operation guard.
func (c *Client) lookup(ctx context.Context, conn *Connection, serviceID, characteristicID string) (*Characteristic, error) {
	uuids, err := device.ValidateUUID(serviceID, characteristicID)
	if err != nil {
		return nil, err
	}
	svcUUID, charUUID := uuids[0], uuids[1]
	key := svcUUID + "/" + charUUID

	if ch, ok := conn.chars.Get(key); ok {
		return ch, nil
	}

	attempts := c.cfg.Resolve.Attempts
	var missing error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !conn.Connected() {
			return nil, fmt.Errorf("resolve %s: %w", key, device.ErrNotConnected)
		}

		ch, err := c.find(conn, svcUUID, charUUID)
		if err == nil {
			conn.chars.Set(key, ch)
			c.logger.WithFields(conn.logFields()).WithFields(logrus.Fields{
				"service_uuid": svcUUID,
				"char_uuid":    charUUID,
				"attempt":      attempt,
			}).Debug("Characteristic resolved")
			return ch, nil
		}
		missing = err

		c.logger.WithFields(logrus.Fields{
			"service_uuid": svcUUID,
			"char_uuid":    charUUID,
			"attempt":      attempt,
			"error":        err,
		}).Debug("Lookup missed, retrying")

		if err := groutine.Wait(ctx, c.cfg.Resolve.Backoff, conn.done, device.ErrNotConnected); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", key, err)
		}
	}

	return nil, &ResolutionError{
		ServiceUUID:        svcUUID,
		CharacteristicUUID: charUUID,
		Attempts:           attempts,
		Cause:              missing,
	}
}

func (c *Client) find(conn *Connection, svcUUID, charUUID string) (*Characteristic, error) {
	svc, ok := conn.link.Service(svcUUID)
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{svcUUID}}
	}
	raw, ok := svc.Characteristic(charUUID)
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{svcUUID, charUUID}}
	}
	return &Characteristic{
		UUID:    charUUID,
		Service: &Service{UUID: svcUUID, conn: conn},
		raw:     raw,
	}, nil
}

func (c *Client) handleServicesDiscovered(link device.Link, err error) {
	conn := c.current(link)
	if conn == nil {
		return
	}

	entry := c.logger.WithFields(conn.logFields())
	if err != nil {
		entry.WithError(err).Warn("Service discovery finished with error")
	} else {
		entry.Info("Services discovered")
	}
	c.events.emit(GattServicesDiscovered{Address: conn.device.Address, Err: err})
}
