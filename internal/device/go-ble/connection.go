package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/groutine"
)

// link is a go-ble client connection exposed as a device.Link
type link struct {
	address string
	cb      device.StackCallbacks
	cancel  context.CancelFunc
	logger  *logrus.Logger

	mu        sync.RWMutex
	client    ble.Client
	profile   *ble.Profile
	notifying map[*ble.Characteristic]bool
	closed    bool
}

func newLink(address string, cb device.StackCallbacks, cancel context.CancelFunc, logger *logrus.Logger) *link {
	return &link{
		address:   address,
		cb:        cb,
		cancel:    cancel,
		logger:    logger,
		notifying: make(map[*ble.Characteristic]bool),
	}
}

func (l *link) Address() string {
	return l.address
}

// dial connects, reports the outcome and then watches for disconnection
func (l *link) dial(ctx context.Context, dev ble.Device) {
	l.logger.WithField("address", l.address).Debug("Dialing BLE device...")

	client, err := dev.Dial(ctx, ble.NewAddr(l.address))
	if err != nil {
		err = NormalizeError(err)
		l.logger.WithFields(logrus.Fields{
			"address": l.address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		l.cb.OnConnectionStateChange(l, device.Disconnected, err)
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			l.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection closed during dial")
		}
		return
	}
	l.client = client
	l.mu.Unlock()

	l.logger.WithField("address", l.address).Info("BLE device connected")
	l.cb.OnConnectionStateChange(l, device.Connected, nil)

	// Darwin and Linux clients expose Disconnected(); others are only observed via Close
	disconnected, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		l.logger.Debug("Client does not support Disconnected() channel")
		<-ctx.Done()
		l.cb.OnConnectionStateChange(l, device.Disconnected, nil)
		return
	}

	select {
	case <-disconnected.Disconnected():
		l.logger.WithField("address", l.address).Warn("BLE stack reported disconnection")
		l.cb.OnConnectionStateChange(l, device.Disconnected, device.ErrNotConnected)
	case <-ctx.Done():
		l.cb.OnConnectionStateChange(l, device.Disconnected, nil)
	}
}

func (l *link) connectedClient() (ble.Client, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed || l.client == nil {
		return nil, device.ErrNotConnected
	}
	return l.client, nil
}

// DiscoverServices runs a full profile discovery in the background.
func (l *link) DiscoverServices() error {
	client, err := l.connectedClient()
	if err != nil {
		return err
	}

	groutine.Go(context.Background(), "ble-discover", func(context.Context) {
		profile, err := client.DiscoverProfile(true)
		if err == nil {
			l.mu.Lock()
			l.profile = profile
			l.mu.Unlock()

			l.logger.WithFields(logrus.Fields{
				"address":  l.address,
				"services": len(profile.Services),
			}).Debug("Profile discovered successfully")
		}
		l.cb.OnServicesDiscovered(l, NormalizeError(err))
	})

	return nil
}

// Service looks up uuid in the last discovered profile.
func (l *link) Service(uuid string) (device.GattService, bool) {
	want := device.NormalizeUUID(uuid)

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.profile == nil {
		return nil, false
	}
	for _, svc := range l.profile.Services {
		if device.NormalizeUUID(svc.UUID.String()) == want {
			return &gattService{svc: svc}, true
		}
	}
	return nil, false
}

func (l *link) EnableNotification(char device.GattCharacteristic) error {
	gc, ok := char.(*gattCharacteristic)
	if !ok {
		return fmt.Errorf("characteristic %s was not resolved by this stack: %w", char.UUID(), device.ErrUnsupported)
	}
	client, err := l.connectedClient()
	if err != nil {
		return err
	}

	// A retry after a failed CCCD write finds the handler still registered.
	if l.isNotifying(gc.char) {
		return nil
	}

	uuid := gc.UUID()
	err = client.Subscribe(gc.char, false, func(data []byte) {
		l.cb.OnCharacteristicChanged(l, uuid, data)
	})
	if err != nil {
		return NormalizeError(err)
	}

	l.mu.Lock()
	l.notifying[gc.char] = true
	l.mu.Unlock()
	return nil
}

// WriteDescriptor writes value in the background and reports the outcome.
func (l *link) WriteDescriptor(char device.GattCharacteristic, desc device.GattDescriptor, value []byte) error {
	gd, ok := desc.(*gattDescriptor)
	if !ok {
		return fmt.Errorf("descriptor %s was not resolved by this stack: %w", desc.UUID(), device.ErrUnsupported)
	}
	client, err := l.connectedClient()
	if err != nil {
		return err
	}

	charUUID := char.UUID()
	if cccdManagedBySubscribe && gd.UUID() == device.ClientCharacteristicConfigUUID {
		// The host stack owns the CCCD; EnableNotification already configured it.
		var status error
		if gc, ok := char.(*gattCharacteristic); !ok || !l.isNotifying(gc.char) {
			status = fmt.Errorf("notifications not enabled for %s: %w", charUUID, device.ErrUnsupported)
		}
		groutine.Go(context.Background(), "ble-descriptor-write", func(context.Context) {
			l.cb.OnDescriptorWrite(l, charUUID, gd.UUID(), status)
		})
		return nil
	}

	payload := append([]byte(nil), value...)
	groutine.Go(context.Background(), "ble-descriptor-write", func(context.Context) {
		err := client.WriteDescriptor(gd.desc, payload)
		l.cb.OnDescriptorWrite(l, charUUID, gd.UUID(), NormalizeError(err))
	})
	return nil
}

func (l *link) isNotifying(char *ble.Characteristic) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.notifying[char]
}

// Close cancels the connection (or the pending dial).
func (l *link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	client := l.client
	l.mu.Unlock()

	l.cancel()

	if client == nil {
		return nil
	}
	return NormalizeError(client.CancelConnection())
}
