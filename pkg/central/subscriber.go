package central

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
)

// Subscribe resolves the characteristic, enables local delivery of its value
// changes and writes the client characteristic configuration descriptor.
// The descriptor write completes asynchronously and is reported as a
// DescriptorWritten event. Subscribing twice is a no-op.
func (c *Client) Subscribe(ctx context.Context, serviceID, characteristicID string) error {
	conn, err := c.connected()
	if err != nil {
		return fmt.Errorf("subscribe %s/%s: %w", serviceID, characteristicID, err)
	}
	if err := conn.acquire(ctx); err != nil {
		return fmt.Errorf("subscribe %s/%s: %w", serviceID, characteristicID, err)
	}
	defer conn.release()

	ch, err := c.lookup(ctx, conn, serviceID, characteristicID)
	if err != nil {
		return err
	}

	fields := conn.logFields()
	fields["service_uuid"] = ch.Service.UUID
	fields["char_uuid"] = ch.UUID

	if _, ok := conn.subs.Get(ch.UUID); ok {
		c.logger.WithFields(fields).Debug("Already subscribed")
		return nil
	}

	cccd := ch.descriptor(device.ClientCharacteristicConfigUUID)
	if cccd == nil {
		return fmt.Errorf("characteristic %s has no client characteristic configuration descriptor: %w", ch.UUID, device.ErrUnsupported)
	}

	conn.subs.Set(ch.UUID, ch)
	if err := conn.link.EnableNotification(ch.raw); err != nil {
		conn.subs.Del(ch.UUID)
		return fmt.Errorf("failed to enable notifications for %s: %w", ch.UUID, err)
	}
	if err := conn.link.WriteDescriptor(ch.raw, cccd, device.EnableNotificationValue); err != nil {
		conn.subs.Del(ch.UUID)
		return fmt.Errorf("failed to write descriptor %s of %s: %w", cccd.UUID(), ch.UUID, err)
	}

	c.logger.WithFields(fields).Info("Subscribed")
	return nil
}

func (c *Client) handleCharacteristicChanged(link device.Link, charUUID string, value []byte) {
	conn := c.current(link)
	if conn == nil || !conn.Connected() {
		return
	}

	uuid := device.NormalizeUUID(charUUID)
	ch, ok := conn.subs.Get(uuid)
	if !ok {
		c.logger.WithField("char_uuid", uuid).Debug("Ignoring value change of an unsubscribed characteristic")
		return
	}

	ch.setValue(bytes.Clone(value))
	c.events.emit(Notification{CharacteristicUUID: uuid, Value: bytes.Clone(value)})
}

func (c *Client) handleDescriptorWritten(link device.Link, charUUID, descUUID string, err error) {
	conn := c.current(link)
	if conn == nil {
		return
	}

	charUUID = device.NormalizeUUID(charUUID)
	descUUID = device.NormalizeUUID(descUUID)
	entry := c.logger.WithFields(conn.logFields()).WithFields(logrus.Fields{
		"char_uuid": charUUID,
		"desc_uuid": descUUID,
	})
	if err != nil {
		// A failed CCCD write leaves the peripheral silent; allow a retry.
		if descUUID == device.ClientCharacteristicConfigUUID {
			conn.subs.Del(charUUID)
		}
		entry.WithError(err).Warn("Descriptor write failed")
	} else {
		entry.Debug("Descriptor written")
	}
	c.events.emit(DescriptorWritten{CharacteristicUUID: charUUID, DescriptorUUID: descUUID, Err: err})
}
