package central

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
)

// Scan starts a scan session bounded by the configured scan timeout.
func (c *Client) Scan() error {
	return c.StartScan(c.cfg.ScanTimeout)
}

// StartScan resets the registry and starts discovery. The session stops by
// itself after timeout; a non-positive timeout scans until StopScan.
// A session already running is stopped first. Scanning is refused while a
// connection exists, since discovery and connection cannot coexist.
func (c *Client) StartScan(timeout time.Duration) error {
	c.mu.Lock()
	if err := c.checkOpenLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.conn != nil {
		state := c.conn.state
		c.mu.Unlock()
		return fmt.Errorf("cannot scan while %s: %w", state, device.ErrAlreadyConnected)
	}

	var events []Event
	if c.scanning {
		events = append(events, c.endScanLocked())
	}

	c.session++
	session := c.session
	c.registry.reset()

	if err := c.stack.StartScan(c.callbacks); err != nil {
		c.mu.Unlock()
		c.events.emit(events...)
		c.logger.WithError(err).WithField("session", session).Warn("Failed to start scan")
		return fmt.Errorf("failed to start scan: %w", err)
	}
	c.scanning = true
	if timeout > 0 {
		c.scanTimer = time.AfterFunc(timeout, func() {
			c.stopScanSession(session)
		})
	}
	c.mu.Unlock()

	c.events.emit(events...)
	c.logger.WithFields(logrus.Fields{
		"session": session,
		"timeout": timeout,
	}).Info("Scan started")
	return nil
}

// StopScan ends the running scan session. It is a no-op when idle.
func (c *Client) StopScan() error {
	c.mu.Lock()
	if !c.scanning {
		c.mu.Unlock()
		return nil
	}
	ev := c.endScanLocked()
	c.mu.Unlock()

	c.events.emit(ev)
	return nil
}

// Scanning reports whether a scan session is running.
func (c *Client) Scanning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scanning
}

// stopScanSession is the timeout path; it only stops the session that armed it.
func (c *Client) stopScanSession(session uint64) {
	c.mu.Lock()
	if !c.scanning || c.session != session {
		c.mu.Unlock()
		c.logger.WithField("session", session).Debug("Ignoring stale scan timeout")
		return
	}
	ev := c.endScanLocked()
	c.mu.Unlock()

	c.logger.WithField("session", session).Debug("Scan timed out")
	c.events.emit(ev)
}

// endScanLocked stops discovery and the pending timer. Callers hold c.mu and
// emit the returned event after releasing it.
func (c *Client) endScanLocked() Event {
	if c.scanTimer != nil {
		c.scanTimer.Stop()
		c.scanTimer = nil
	}
	c.scanning = false
	if err := c.stack.StopScan(); err != nil {
		c.logger.WithError(err).WithField("session", c.session).Warn("Failed to stop scan")
	}

	c.logger.WithFields(logrus.Fields{
		"session": c.session,
		"devices": c.registry.len(),
	}).Info("Scan stopped")
	return ScanStopped{Devices: c.registry.list()}
}

func (c *Client) handleScanResult(adv device.Advertisement) {
	if adv == nil {
		return
	}
	name := adv.LocalName()
	if name == "" {
		return
	}
	dev := device.Device{Address: device.NormalizeAddress(adv.Addr()), Name: name}
	if dev.Address == "" {
		return
	}

	c.mu.Lock()
	if !c.scanning {
		c.mu.Unlock()
		return
	}
	added := c.registry.add(dev)
	session := c.session
	c.mu.Unlock()

	if !added {
		return
	}
	c.logger.WithFields(logrus.Fields{
		"address": dev.Address,
		"name":    dev.Name,
		"rssi":    adv.RSSI(),
		"session": session,
	}).Debug("Device found")
	c.events.emit(DeviceFound{Address: dev.Address, Name: dev.Name})
}
