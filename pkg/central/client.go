// Package central implements a BLE central-role GATT client: scanning with a
// timeout, a single tracked connection, bounded-retry service resolution and
// notification subscription, all reported to the host as domain events.
package central

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/pkg/config"
)

// Client drives a device.Stack on behalf of a host. It owns at most one
// connection at a time; all methods are safe for concurrent use.
type Client struct {
	stack     device.Stack
	cfg       *config.Config
	logger    *logrus.Logger
	events    *dispatcher
	callbacks stackCallbacks

	// mu guards the registry, the scan session and the connection.
	mu         sync.RWMutex
	registry   *registry
	scanning   bool
	session    uint64
	scanTimer  *time.Timer
	conn       *Connection
	generation uint64
	closed     bool
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	logger    *logrus.Logger
	cfg       *config.Config
	listeners []Listener
}

// WithLogger sets the logger. A nil logger falls back to logrus.New().
func WithLogger(logger *logrus.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// WithConfig sets timeouts and retry parameters. Defaults come from config.DefaultConfig.
func WithConfig(cfg *config.Config) Option {
	return func(o *clientOptions) { o.cfg = cfg }
}

// WithListener registers a listener before the client is initialized so that
// it also receives the Ready event.
func WithListener(l Listener) Option {
	return func(o *clientOptions) { o.listeners = append(o.listeners, l) }
}

// New creates a client over stack and emits Ready.
func New(stack device.Stack, opts ...Option) (*Client, error) {
	if stack == nil {
		return nil, fmt.Errorf("stack is required: %w", device.ErrNotInitialized)
	}

	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
	}
	if o.cfg == nil {
		o.cfg = config.DefaultConfig()
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Client{
		stack:    stack,
		cfg:      o.cfg,
		logger:   o.logger,
		events:   newDispatcher(o.logger),
		registry: newRegistry(),
	}
	c.callbacks = stackCallbacks{c: c}

	for _, l := range o.listeners {
		c.events.add(l)
	}

	c.logger.WithFields(logrus.Fields{
		"scan_timeout":    c.cfg.ScanTimeout,
		"resolve_retries": c.cfg.Resolve.Attempts,
		"resolve_backoff": c.cfg.Resolve.Backoff,
	}).Debug("Central client initialized")
	c.events.emit(Ready{})
	return c, nil
}

// AddListener registers l for all subsequent events and returns a function
// that unregisters it.
func (c *Client) AddListener(l Listener) (remove func()) {
	return c.events.add(l)
}

// GetDevice returns the device with the given address from the current or last scan session.
func (c *Client) GetDevice(address string) (device.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.get(address)
}

// Devices lists the devices of the current or last scan session in discovery order.
func (c *Client) Devices() []device.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.list()
}

// Close stops scanning, drops the connection and releases the stack if it is closable.
// The client cannot be used afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	// Marked first so no Connect or StartScan can slip in behind the teardown.
	c.closed = true
	c.mu.Unlock()

	var errs []error
	if err := c.StopScan(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Disconnect(); err != nil {
		errs = append(errs, err)
	}

	if closer, ok := c.stack.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close stack: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Client) checkOpenLocked() error {
	if c.closed {
		return fmt.Errorf("client closed: %w", device.ErrNotInitialized)
	}
	return nil
}
