package vkdevice

// DeviceState is a step in the device lifecycle
type DeviceState int32

var deviceStateMapping = make(map[DeviceState]string)

func (s DeviceState) Register(str string) {
	deviceStateMapping[s] = str
}

func (s DeviceState) String() string {
	return deviceStateMapping[s]
}

const (
	DeviceStateUninitialized DeviceState = iota
	DeviceStateInitializing
	DeviceStateReady
	DeviceStateDraining
	DeviceStateDestroyed
)

func init() {
	DeviceStateUninitialized.Register("DeviceStateUninitialized")
	DeviceStateInitializing.Register("DeviceStateInitializing")
	DeviceStateReady.Register("DeviceStateReady")
	DeviceStateDraining.Register("DeviceStateDraining")
	DeviceStateDestroyed.Register("DeviceStateDestroyed")
}
