package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blecentral/internal/device"
)

type gattService struct {
	svc *ble.Service
}

func (s *gattService) UUID() string {
	return device.NormalizeUUID(s.svc.UUID.String())
}

func (s *gattService) Characteristic(uuid string) (device.GattCharacteristic, bool) {
	want := device.NormalizeUUID(uuid)
	for _, c := range s.svc.Characteristics {
		if device.NormalizeUUID(c.UUID.String()) == want {
			return &gattCharacteristic{char: c}, true
		}
	}
	return nil, false
}

type gattCharacteristic struct {
	char *ble.Characteristic
}

func (c *gattCharacteristic) UUID() string {
	return device.NormalizeUUID(c.char.UUID.String())
}

// Descriptors lists the discovered descriptors, including the CCCD when go-ble
// only tracked it in the dedicated field.
func (c *gattCharacteristic) Descriptors() []device.GattDescriptor {
	result := make([]device.GattDescriptor, 0, len(c.char.Descriptors)+1)
	sawCCCD := false
	for _, d := range c.char.Descriptors {
		if d == c.char.CCCD {
			sawCCCD = true
		}
		result = append(result, &gattDescriptor{desc: d})
	}
	if c.char.CCCD != nil && !sawCCCD {
		result = append(result, &gattDescriptor{desc: c.char.CCCD})
	}
	return result
}

type gattDescriptor struct {
	desc *ble.Descriptor
}

func (d *gattDescriptor) UUID() string {
	return device.NormalizeUUID(d.desc.UUID.String())
}
