package central

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blecentral/internal/device"
)

// registry accumulates the devices of one scan session in discovery order.
// It is not safe for concurrent use; the Client mutex guards it.
type registry struct {
	devices *orderedmap.OrderedMap[string, device.Device]
}

func newRegistry() *registry {
	return &registry{devices: orderedmap.New[string, device.Device]()}
}

// add records dev and reports whether its address is new in this session.
func (r *registry) add(dev device.Device) bool {
	dev.Address = device.NormalizeAddress(dev.Address)
	if _, ok := r.devices.Get(dev.Address); ok {
		return false
	}
	r.devices.Set(dev.Address, dev)
	return true
}

func (r *registry) get(address string) (device.Device, bool) {
	return r.devices.Get(device.NormalizeAddress(address))
}

func (r *registry) list() []device.Device {
	out := make([]device.Device, 0, r.devices.Len())
	for pair := r.devices.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (r *registry) len() int { return r.devices.Len() }

func (r *registry) reset() {
	r.devices = orderedmap.New[string, device.Device]()
}
