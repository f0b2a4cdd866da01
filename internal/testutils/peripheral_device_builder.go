package testutils

import (
	"encoding/json"
	"fmt"
)

// CharacteristicConfig describes a characteristic of a fake peripheral
type CharacteristicConfig struct {
	UUID string `json:"uuid"`
	// NoCCCD omits the client characteristic configuration descriptor
	NoCCCD bool `json:"noCCCD,omitempty"`
	// VisibleAfter is the number of lookups that miss before the characteristic appears
	VisibleAfter int `json:"visibleAfter,omitempty"`
}

// ServiceConfig describes a service of a fake peripheral
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	VisibleAfter    int                    `json:"visibleAfter,omitempty"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete GATT profile of a fake peripheral
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// PeripheralDeviceBuilder builds the GATT profile served by FakeStack links
type PeripheralDeviceBuilder struct {
	profile DeviceProfileConfig
}

// NewPeripheralDeviceBuilder creates a new peripheral device builder
func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		profile: DeviceProfileConfig{
			Services: []ServiceConfig{},
		},
	}
}

// WithService adds a service to the device profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic (with a CCCD) to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid string) *PeripheralDeviceBuilder {
	svc := b.lastService("WithCharacteristic")
	svc.Characteristics = append(svc.Characteristics, CharacteristicConfig{UUID: uuid})
	return b
}

// WithoutCCCD removes the CCCD from the last added characteristic
func (b *PeripheralDeviceBuilder) WithoutCCCD() *PeripheralDeviceBuilder {
	b.lastCharacteristic("WithoutCCCD").NoCCCD = true
	return b
}

// VisibleAfter delays the last added element (characteristic if the last service has any,
// otherwise the service) until n lookups have missed
func (b *PeripheralDeviceBuilder) VisibleAfter(n int) *PeripheralDeviceBuilder {
	svc := b.lastService("VisibleAfter")
	if len(svc.Characteristics) == 0 {
		svc.VisibleAfter = n
		return b
	}
	svc.Characteristics[len(svc.Characteristics)-1].VisibleAfter = n
	return b
}

// FromJSON fills the device profile from JSON
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// Build returns the configured profile
func (b *PeripheralDeviceBuilder) Build() DeviceProfileConfig {
	return b.profile
}

func (b *PeripheralDeviceBuilder) lastService(caller string) *ServiceConfig {
	if len(b.profile.Services) == 0 {
		panic(caller + ": no service added yet, call WithService first")
	}
	return &b.profile.Services[len(b.profile.Services)-1]
}

func (b *PeripheralDeviceBuilder) lastCharacteristic(caller string) *CharacteristicConfig {
	svc := b.lastService(caller)
	if len(svc.Characteristics) == 0 {
		panic(caller + ": no characteristic added yet, call WithCharacteristic first")
	}
	return &svc.Characteristics[len(svc.Characteristics)-1]
}
