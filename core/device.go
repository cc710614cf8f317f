package core

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/Eiton/vulkan"
	log "github.com/sirupsen/logrus"
)

// Device extensions every selected GPU must carry. Dynamic rendering,
// synchronization2 and timeline semaphores are core in the requested API
// version; push descriptors are still an extension.
var requiredDeviceExtensions = []string{
	"VK_KHR_swapchain",
	"VK_KHR_push_descriptor",
}

// DeviceLimits is the subset of physical-device limits the renderer
// depends on, lifted out of the C struct so the contract check stays
// testable without a device.
type DeviceLimits struct {
	MaxDescriptorSetSampledImages    uint32
	MaxPushConstantsSize             uint32
	MaxSamplerAllocationCount        uint32
	MinUniformBufferOffsetAlignment  vk.DeviceSize
	NonCoherentAtomSize              vk.DeviceSize
	OptimalBufferCopyOffsetAlignment vk.DeviceSize
}

// CheckDeviceLimits validates the limits a bindless renderer cannot
// run without. It is a hard error for any to be missing.
func CheckDeviceLimits(limits DeviceLimits) error {
	if limits.MaxDescriptorSetSampledImages < 1024 {
		return fmt.Errorf("maxDescriptorSetSampledImages %d, need at least 1024", limits.MaxDescriptorSetSampledImages)
	}
	if limits.MaxPushConstantsSize < 128 {
		return fmt.Errorf("maxPushConstantsSize %d, need at least 128", limits.MaxPushConstantsSize)
	}
	return nil
}

// Gpu bundles the selected physical device, the logical device created
// on it, and the single graphics queue the renderer submits to. All
// components borrow it; only the owner calls Destroy.
type Gpu struct {
	Physical       vk.PhysicalDevice
	Device         vk.Device
	Queue          vk.Queue
	GraphicsFamily uint32

	Limits      DeviceLimits
	MemoryProps vk.PhysicalDeviceMemoryProperties

	// SamplerYcbcr is set when the device supports tri-planar YCbCr
	// sampler conversion; the cutscene path checks it before creating
	// movie textures.
	SamplerYcbcr bool
}

// NewGpu selects a suitable physical device from the instance and creates
// the logical device with every feature the renderer requires enabled.
// Missing features or limits are a hard error.
func NewGpu(instance Instance, cfg RendererConfiguration) (*Gpu, error) {
	surface := instance.Surface()
	if surface == vk.NullSurface {
		return nil, errors.New("core.NewGpu(): instance has no surface set")
	}

	var (
		chosen       vk.PhysicalDevice
		chosenFamily uint32
		chosenName   string
	)
	for _, dev := range instance.AvailableDevices() {
		ok, reason := DeviceIsSuitable(dev, surface)
		if !ok {
			log.WithField("reason", reason).Info("skipping physical device")
			continue
		}
		family, err := findGraphicsFamily(dev, surface)
		if err != nil {
			log.WithError(err).Info("skipping physical device")
			continue
		}

		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(dev, &props)
		props.Deref()

		if chosen == nil || props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			chosen = dev
			chosenFamily = family
			chosenName = vk.ToString(props.DeviceName[:])
			if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
				break
			}
		}
	}
	if chosen == nil {
		return nil, errors.New("core.NewGpu(): no physical device satisfies the renderer's feature contract")
	}
	log.WithField("device", chosenName).Info("selected physical device")

	limits := readLimits(chosen)
	if err := CheckDeviceLimits(limits); err != nil {
		return nil, errors.New("core.CheckDeviceLimits(): " + err.Error())
	}

	ycbcr := supportsSamplerYcbcr(chosen)
	if !ycbcr {
		log.Info("no tri-planar YCbCr support, cutscenes will use the slow upload path")
	}

	device, err := createLogicalDevice(chosen, chosenFamily, cfg, ycbcr)
	if err != nil {
		return nil, err
	}

	var queue vk.Queue
	vk.GetDeviceQueue(device, chosenFamily, 0, &queue)

	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(chosen, &memProps)

	return &Gpu{
		Physical:       chosen,
		Device:         device,
		Queue:          queue,
		GraphicsFamily: chosenFamily,
		Limits:         limits,
		MemoryProps:    memProps,
		SamplerYcbcr:   ycbcr,
	}, nil
}

// supportsSamplerYcbcr reports whether the device can sample the
// tri-planar 4:2:0 format the movie path uploads into. Advertising the
// format's sampled-image feature implies the samplerYcbcrConversion
// device feature, so the feature chain below enables it only then.
func supportsSamplerYcbcr(dev vk.PhysicalDevice) bool {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(dev, vk.FormatG8B8R83plane420Unorm, &props)
	need := vk.FormatFeatureFlags(vk.FormatFeatureSampledImageBit | vk.FormatFeatureTransferDstBit)
	return props.OptimalTilingFeatures&need == need
}

// DeviceIsSuitable checks whether the device carries every required
// extension. If not suitable, the string contains the reason.
func DeviceIsSuitable(dev vk.PhysicalDevice, surface vk.Surface) (bool, string) {
	var numExtensions uint32
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(dev, "", &numExtensions, nil)); err != nil {
		return false, "vk.EnumerateDeviceExtensionProperties(): " + err.Error()
	}
	extensions := make([]vk.ExtensionProperties, numExtensions)
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(dev, "", &numExtensions, extensions)); err != nil {
		return false, "vk.EnumerateDeviceExtensionProperties(): " + err.Error()
	}

	available := make(map[string]bool, numExtensions)
	for _, ext := range extensions {
		ext.Deref()
		available[vk.ToString(ext.ExtensionName[:])] = true
	}
	for _, want := range requiredDeviceExtensions {
		if !available[want] {
			return false, "missing device extension " + want
		}
	}

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(dev, &props)
	props.Deref()
	if props.ApiVersion < uint32(vk.MakeVersion(1, 2, 0)) {
		return false, "device API version below 1.2"
	}
	return true, ""
}

func findGraphicsFamily(dev vk.PhysicalDevice, surface vk.Surface) (uint32, error) {
	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(dev, &familyCount, nil)
	if familyCount == 0 {
		return 0, errors.New("vk.GetPhysicalDeviceQueueFamilyProperties(): no queue families on GPU")
	}
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(dev, &familyCount, families)

	for i := uint32(0); i < familyCount; i++ {
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(dev, i, surface, &supportsPresent)
		if supportsPresent.B() {
			return i, nil
		}
	}
	return 0, errors.New("no queue family with both graphics and present support")
}

func readLimits(dev vk.PhysicalDevice) DeviceLimits {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(dev, &props)
	props.Deref()
	return DeviceLimits{
		MaxDescriptorSetSampledImages:    props.Limits.MaxDescriptorSetSampledImages,
		MaxPushConstantsSize:             props.Limits.MaxPushConstantsSize,
		MaxSamplerAllocationCount:        props.Limits.MaxSamplerAllocationCount,
		MinUniformBufferOffsetAlignment:  props.Limits.MinUniformBufferOffsetAlignment,
		NonCoherentAtomSize:              props.Limits.NonCoherentAtomSize,
		OptimalBufferCopyOffsetAlignment: props.Limits.OptimalBufferCopyOffsetAlignment,
	}
}

func createLogicalDevice(dev vk.PhysicalDevice, family uint32, cfg RendererConfiguration, ycbcr bool) (vk.Device, error) {
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: family,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	extensions := append([]string{}, requiredDeviceExtensions...)
	extensions = append(extensions, cfg.DeviceExtensions...)

	deviceInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}

	// The renderer's full feature contract rides the PNext chain. The
	// driver rejects device creation when any feature is unsupported,
	// which is exactly the hard failure the contract wants.
	vulkan12 := vk.PhysicalDeviceVulkan12Features{
		SType:                           vk.StructureTypePhysicalDeviceVulkan12Features,
		TimelineSemaphore:               vk.True,
		RuntimeDescriptorArray:          vk.True,
		DescriptorBindingPartiallyBound: vk.True,
		ShaderSampledImageArrayNonUniformIndexing: vk.True,
	}
	deviceInfo.PNext = unsafe.Pointer(&vulkan12)

	dynamicRendering := vk.PhysicalDeviceDynamicRenderingFeatures{
		SType:            vk.StructureTypePhysicalDeviceDynamicRenderingFeatures,
		DynamicRendering: vk.True,
	}
	vulkan12.PNext = unsafe.Pointer(&dynamicRendering)

	sync2 := vk.PhysicalDeviceSynchronization2Features{
		SType:            vk.StructureTypePhysicalDeviceSynchronization2Features,
		Synchronization2: vk.True,
	}
	dynamicRendering.PNext = unsafe.Pointer(&sync2)

	// Optional: movie playback. Only chained when the format check passed,
	// so device creation never fails on a GPU without it.
	vulkan11 := vk.PhysicalDeviceVulkan11Features{
		SType:                  vk.StructureTypePhysicalDeviceVulkan11Features,
		SamplerYcbcrConversion: vk.True,
	}
	if ycbcr {
		sync2.PNext = unsafe.Pointer(&vulkan11)
	}

	var device vk.Device
	if err := vk.Error(vk.CreateDevice(dev, &deviceInfo, nil, &device)); err != nil {
		return nil, errors.New("vk.CreateDevice(): " + err.Error() + " (a required renderer feature is likely unsupported)")
	}
	return device, nil
}

// Destroy drops the logical device. The physical device belongs to the
// instance and needs no teardown.
func (g *Gpu) Destroy() {
	if g.Device != nil {
		vk.DestroyDevice(g.Device, nil)
		g.Device = nil
	}
}
