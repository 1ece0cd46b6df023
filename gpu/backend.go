package gpu

// Backend identifies the driver family that produced a resource. Devices only accept resources
// from their own backend.
type Backend int32

var backendMapping = make(map[Backend]string)

func (b Backend) Register(str string) {
	backendMapping[b] = str
}

func (b Backend) String() string {
	return backendMapping[b]
}

const (
	BackendUnknown Backend = iota
	BackendVulkan
)

func init() {
	BackendUnknown.Register("BackendUnknown")
	BackendVulkan.Register("BackendVulkan")
}

// Resource is implemented by every object a Device hands out. Resources are reference counted:
// the creator holds one reference and Release drops it. Objects the GPU is still using are kept
// alive by the device until their work completes.
type Resource interface {
	Backend() Backend
	Release()
}
