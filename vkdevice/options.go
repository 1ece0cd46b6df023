package vkdevice

import (
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
	"github.com/vkngwrapper/gpudevice/memutils/metadata"
)

// CreateFlags indicate specific device behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	createFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return createFlagsMapping.FlagsToString(f)
}

const (
	// CreateExternallySynchronized ensures that the device's memory pools will not be synchronized
	// internally. The consumer must guarantee that pooled resources are created, uploaded to, and
	// released from only one thread at a time.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	CreateExternallySynchronized.Register("CreateExternallySynchronized")
}

// ValidationMode controls whether the driver's validation layer is requested
type ValidationMode int32

var validationModeMapping = make(map[ValidationMode]string)

func (m ValidationMode) Register(str string) {
	validationModeMapping[m] = str
}

func (m ValidationMode) String() string {
	return validationModeMapping[m]
}

const (
	// ValidationDefault requests validation unless the binary was built with the release tag. A missing
	// validation layer is logged and otherwise ignored.
	ValidationDefault ValidationMode = iota
	// ValidationEnabled requests validation and fails initialization if no validation layer is installed
	ValidationEnabled
	ValidationDisabled
)

// PhysicalDeviceSelection chooses between several discrete GPUs
type PhysicalDeviceSelection int32

var physicalDeviceSelectionMapping = make(map[PhysicalDeviceSelection]string)

func (s PhysicalDeviceSelection) Register(str string) {
	physicalDeviceSelectionMapping[s] = str
}

func (s PhysicalDeviceSelection) String() string {
	return physicalDeviceSelectionMapping[s]
}

const (
	// PhysicalDeviceSelectLastDiscrete picks the last discrete GPU enumerated, falling back to the
	// first device of any type
	PhysicalDeviceSelectLastDiscrete PhysicalDeviceSelection = iota
	// PhysicalDeviceSelectFirstDiscrete picks the first discrete GPU enumerated, falling back to the
	// first device of any type
	PhysicalDeviceSelectFirstDiscrete
)

func init() {
	ValidationDefault.Register("ValidationDefault")
	ValidationEnabled.Register("ValidationEnabled")
	ValidationDisabled.Register("ValidationDisabled")

	PhysicalDeviceSelectLastDiscrete.Register("PhysicalDeviceSelectLastDiscrete")
	PhysicalDeviceSelectFirstDiscrete.Register("PhysicalDeviceSelectFirstDiscrete")
}

const (
	// DefaultDynamicBufferPoolBytes is the size of the buffer pool when none is provided via CreateOptions.
	// It is equal to 128MiB.
	DefaultDynamicBufferPoolBytes int = 128 * 1024 * 1024
	// DefaultHostImagePoolBytes is the size of the image pool when none is provided via CreateOptions.
	// It is equal to 128MiB.
	DefaultHostImagePoolBytes int = 128 * 1024 * 1024
	// DefaultAllocatorBlockBytes is the pools' suballocation granularity when none is provided via
	// CreateOptions
	DefaultAllocatorBlockBytes int = metadata.DefaultBitmapBlockSize
)

// CreateOptions contains optional settings when creating a device. It is valid to leave all
// fields blank.
type CreateOptions struct {
	// Flags indicates specific device behaviors to activate or deactivate
	Flags CreateFlags

	ApplicationName    string
	ApplicationVersion common.Version
	EngineName         string
	EngineVersion      common.Version
	// APIVersion is the Vulkan version requested from the instance. It defaults to Vulkan 1.0.
	APIVersion common.APIVersion

	// DynamicBufferPoolBytes is the size of the host-visible pool backing vertex, index, and
	// uniform buffers
	DynamicBufferPoolBytes int
	// HostImagePoolBytes is the size of the host-visible pool backing sampled images
	HostImagePoolBytes int
	// AllocatorBlockBytes is the granularity both pools suballocate at. It must be a power of two.
	AllocatorBlockBytes int

	Validation ValidationMode
	// MinSeverity is the quietest driver debug message that will be logged. It defaults to warnings.
	MinSeverity ext_debug_utils.DebugUtilsMessageSeverityFlags

	PhysicalDeviceSelection PhysicalDeviceSelection
}

func (o CreateOptions) withDefaults() CreateOptions {
	if o.APIVersion == 0 {
		o.APIVersion = common.Vulkan1_0
	}
	if o.DynamicBufferPoolBytes == 0 {
		o.DynamicBufferPoolBytes = DefaultDynamicBufferPoolBytes
	}
	if o.HostImagePoolBytes == 0 {
		o.HostImagePoolBytes = DefaultHostImagePoolBytes
	}
	if o.AllocatorBlockBytes == 0 {
		o.AllocatorBlockBytes = DefaultAllocatorBlockBytes
	}
	if o.MinSeverity == 0 {
		o.MinSeverity = ext_debug_utils.SeverityWarning
	}

	return o
}

func (o CreateOptions) validationRequested() bool {
	switch o.Validation {
	case ValidationEnabled:
		return true
	case ValidationDisabled:
		return false
	}

	return validationDefaultEnabled
}
