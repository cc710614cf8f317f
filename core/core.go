package core

import (
	"unsafe"

	vk "github.com/Eiton/vulkan"
)

// Instance describes a Vulkan instance and supporting methods.
// Once created it is ready to use.
type Instance interface {
	// PhysicalDevicesInfo returns a struct for each Physical Device
	// along with info about those devices
	PhysicalDevicesInfo() []PhysicalDeviceInfo

	// AvailableDevices returns handles of Physical Devices
	// from the Vulkan API
	AvailableDevices() []vk.PhysicalDevice

	// Instance returns the raw Vulkan instance for surface creation
	Instance() vk.Instance

	// SetSurface sets the window surface for rendering
	SetSurface(unsafe.Pointer)

	// Surface returns the window surface, if it's not set
	// it should return a valid but empty surface
	Surface() vk.Surface

	// Extensions returns enabled instance extensions
	Extensions() []string

	// Destroy destroys internal members
	Destroy()
}

// PhysicalDeviceInfo describes one enumerated physical device
type PhysicalDeviceInfo struct {
	ID            int
	VendorID      int
	DriverVersion int
	Name          string
	Invalid       bool
	Extensions    []string
	Layers        []string
	Memory        uint
}

// Destroyable is an embeddable default for the Destroy method
type Destroyable struct{}

// Destroy does nothing by default
func (d Destroyable) Destroy() {}
