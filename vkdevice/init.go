package vkdevice

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v2/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v2/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
	"github.com/vkngwrapper/gpudevice/gpu"
	"github.com/vkngwrapper/gpudevice/internal/vulkan"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// validationLayerNames are the validation layers that will be requested, in order of preference
var validationLayerNames = []string{
	"VK_LAYER_KHRONOS_validation",
	"VK_LAYER_LUNARG_standard_validation",
}

const graphicsQueueFlags = core1_0.QueueGraphics | core1_0.QueueTransfer

func (d *Device) createInstance() error {
	availableExtensions, err := d.loader.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "could not enumerate instance extensions")
	}

	extensionNames := maps.Keys(availableExtensions)
	slices.Sort(extensionNames)
	d.logger.Info("available instance extensions", slog.Any("extensions", extensionNames))

	availableLayers, err := d.loader.AvailableLayers()
	if err != nil {
		return errors.Wrap(err, "could not enumerate instance layers")
	}

	layerNames := maps.Keys(availableLayers)
	slices.Sort(layerNames)
	d.logger.Info("available instance layers", slog.Any("layers", layerNames))

	required := []string{khr_surface.ExtensionName, ext_debug_utils.ExtensionName}
	for _, name := range d.surface.ExtensionNames() {
		if !slices.Contains(required, name) {
			required = append(required, name)
		}
	}

	for _, name := range required {
		_, ok := availableExtensions[name]
		if !ok {
			return errors.Newf("required instance extension %s is not available", name)
		}
	}

	createInfo := core1_0.InstanceCreateInfo{
		ApplicationName:       d.options.ApplicationName,
		ApplicationVersion:    d.options.ApplicationVersion,
		EngineName:            d.options.EngineName,
		EngineVersion:         d.options.EngineVersion,
		APIVersion:            d.options.APIVersion,
		EnabledExtensionNames: required,
	}

	_, portability := availableExtensions[khr_portability_enumeration.ExtensionName]
	if portability {
		createInfo.EnabledExtensionNames = append(createInfo.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		createInfo.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if d.options.validationRequested() {
		layer, found := selectValidationLayer(availableLayers)
		switch {
		case found:
			d.logger.Info("enabling validation", slog.String("layer", layer))
			createInfo.EnabledLayerNames = []string{layer}
		case d.options.Validation == ValidationEnabled:
			return errors.Newf("validation was requested, but none of %v are installed", validationLayerNames)
		default:
			d.logger.Warn("no validation layer is installed, continuing without validation")
		}
	}

	d.instance, err = d.loader.CreateInstance(createInfo)
	if err != nil {
		return errors.Wrap(err, "could not create instance")
	}

	instanceSurface, ok := d.surface.(InstanceSurfaceProvider)
	if ok {
		coreInstance, unwrapped := vulkan.CoreInstance(d.instance)
		if unwrapped {
			err = instanceSurface.AttachInstance(coreInstance)
			if err != nil {
				return err
			}
			d.surfaceAttached = true
		}
	}

	return nil
}

func selectValidationLayer(available map[string]*core1_0.LayerProperties) (string, bool) {
	for _, name := range validationLayerNames {
		_, ok := available[name]
		if ok {
			return name, true
		}
	}

	return "", false
}

func (d *Device) selectPhysicalDevice() error {
	physicalDevices, err := d.instance.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "could not enumerate physical devices")
	}

	properties := make([]*core1_0.PhysicalDeviceProperties, 0, len(physicalDevices))
	for index, physicalDevice := range physicalDevices {
		props, err := physicalDevice.Properties()
		if err != nil {
			return errors.Wrapf(err, "could not retrieve properties of physical device %d", index)
		}

		d.logger.Info("physical device",
			slog.Int("index", index),
			slog.String("name", props.DriverName),
			slog.Any("type", props.DriverType),
			slog.Any("id", props.DeviceID),
			slog.Any("apiVersion", props.APIVersion),
			slog.Any("driverVersion", props.DriverVersion),
			slog.Any("vendor", props.VendorID),
		)
		properties = append(properties, props)
	}

	types := make([]core1_0.PhysicalDeviceType, 0, len(properties))
	for _, props := range properties {
		types = append(types, props.DriverType)
	}

	index, err := choosePhysicalDevice(types, d.options.PhysicalDeviceSelection)
	if err != nil {
		return err
	}

	d.physicalDevice = physicalDevices[index]
	d.physicalDeviceInfo = PhysicalDeviceInfo{
		Index:      index,
		Properties: properties[index],
	}
	d.physicalDeviceInfo.Core, _ = vulkan.CorePhysicalDevice(d.physicalDevice)

	d.logger.Info("selected physical device",
		slog.Int("index", index),
		slog.String("name", properties[index].DriverName))
	return nil
}

// choosePhysicalDevice picks a discrete GPU according to the selection policy, falling back to the
// first device of any type
func choosePhysicalDevice(types []core1_0.PhysicalDeviceType, selection PhysicalDeviceSelection) (int, error) {
	if len(types) == 0 {
		return -1, errors.New("no physical devices are available")
	}

	chosen := -1
	for index, deviceType := range types {
		if deviceType != core1_0.PhysicalDeviceTypeDiscreteGPU {
			continue
		}

		chosen = index
		if selection == PhysicalDeviceSelectFirstDiscrete {
			break
		}
	}

	if chosen < 0 {
		chosen = 0
	}
	return chosen, nil
}

// selectQueueFamily picks the lowest family that supports graphics and transfer work and can
// present to the surface
func selectQueueFamily(families []*core1_0.QueueFamilyProperties, supportsPresent func(family int) (bool, error)) (int, error) {
	for index, family := range families {
		if family == nil || family.QueueCount < 1 || family.QueueFlags&graphicsQueueFlags != graphicsQueueFlags {
			continue
		}

		present, err := supportsPresent(index)
		if err != nil {
			return -1, errors.Wrapf(err, "could not query presentation support of queue family %d", index)
		}

		if present {
			return index, nil
		}
	}

	return -1, errors.New("no queue family supports graphics and transfer work with presentation")
}

func (d *Device) createDeviceAndQueues() error {
	families := d.physicalDevice.QueueFamilyProperties()
	for index, family := range families {
		d.logger.Info("queue family",
			slog.Int("index", index),
			slog.Any("flags", family.QueueFlags),
			slog.Int("count", family.QueueCount))
	}

	var err error
	d.graphicsQueueFamily, err = selectQueueFamily(families, func(family int) (bool, error) {
		return d.surface.QueueFamilySupportsPresent(d.physicalDeviceInfo, family)
	})
	if err != nil {
		return err
	}

	availableExtensions, err := d.physicalDevice.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "could not enumerate device extensions")
	}

	_, ok := availableExtensions[khr_swapchain.ExtensionName]
	if !ok {
		return errors.Newf("required device extension %s is not available", khr_swapchain.ExtensionName)
	}

	extensions := []string{khr_swapchain.ExtensionName}
	_, ok = availableExtensions[khr_portability_subset.ExtensionName]
	if ok {
		extensions = append(extensions, khr_portability_subset.ExtensionName)
	}

	d.device, err = d.physicalDevice.CreateDevice(core1_0.DeviceCreateInfo{
		QueueCreateInfos: []core1_0.DeviceQueueCreateInfo{
			{
				QueueFamilyIndex: d.graphicsQueueFamily,
				QueuePriorities:  []float32{1.0},
			},
		},
		EnabledExtensionNames: extensions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			FillModeNonSolid: true,
			LargePoints:      true,
			WideLines:        true,
		},
	})
	if err != nil {
		return errors.Wrap(err, "could not create logical device")
	}

	d.graphicsQueue = d.device.GetQueue(d.graphicsQueueFamily, 0)
	if d.graphicsQueue == nil {
		return errors.Newf("could not retrieve queue 0 of family %d", d.graphicsQueueFamily)
	}

	d.deviceMemory, err = vulkan.NewDeviceMemoryProperties(d.device, d.physicalDevice)
	return err
}

func (d *Device) createMemoryPools() error {
	synchronized := d.options.Flags&CreateExternallySynchronized == 0
	hostMemory := core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent

	var err error
	d.bufferPool, err = newBufferPool(d.logger, d.device, d.deviceMemory, bufferPoolCreateInfo{
		Size:         d.options.DynamicBufferPoolBytes,
		BlockSize:    d.options.AllocatorBlockBytes,
		Usage:        gpu.BufferUsageVertex | gpu.BufferUsageIndex | gpu.BufferUsageUniform,
		Properties:   hostMemory,
		Synchronized: synchronized,
	})
	if err != nil {
		return errors.Wrap(err, "could not create buffer pool")
	}

	d.imagePool, err = newImagePool(d.logger, d.device, d.deviceMemory, imagePoolCreateInfo{
		Size:         d.options.HostImagePoolBytes,
		BlockSize:    d.options.AllocatorBlockBytes,
		Usage:        gpu.ImageUsageSampled | gpu.ImageUsageTransferDst,
		Properties:   hostMemory,
		Synchronized: synchronized,
	})
	if err != nil {
		return errors.Wrap(err, "could not create image pool")
	}

	return nil
}
