package vkr

import (
	"errors"

	vk "github.com/Eiton/vulkan"
)

// SamplerKey identifies one sampler configuration. The cross of filters
// and address modes is tiny, so samplers are cached forever and only
// destroyed at shutdown.
type SamplerKey struct {
	Filter      vk.Filter
	AddressMode vk.SamplerAddressMode
}

// samplerCache hands out shared immutable samplers by key.
type samplerCache struct {
	device   vk.Device
	samplers map[SamplerKey]vk.Sampler
}

func newSamplerCache(dev vk.Device) *samplerCache {
	return &samplerCache{
		device:   dev,
		samplers: make(map[SamplerKey]vk.Sampler),
	}
}

// get returns the sampler for key, creating it on first use.
func (c *samplerCache) get(key SamplerKey) (vk.Sampler, error) {
	if sampler, ok := c.samplers[key]; ok {
		return sampler, nil
	}
	createInfo := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    key.Filter,
		MinFilter:    key.Filter,
		MipmapMode:   vk.SamplerMipmapModeLinear,
		AddressModeU: key.AddressMode,
		AddressModeV: key.AddressMode,
		AddressModeW: key.AddressMode,
		MaxLod:       vk.LodClampNone,
	}
	var sampler vk.Sampler
	if err := vk.Error(vk.CreateSampler(c.device, &createInfo, nil, &sampler)); err != nil {
		return nil, errors.New("vk.CreateSampler(): " + err.Error())
	}
	c.samplers[key] = sampler
	return sampler, nil
}

// release destroys every cached sampler. Device must be idle.
func (c *samplerCache) release() {
	for key, sampler := range c.samplers {
		vk.DestroySampler(c.device, sampler, nil)
		delete(c.samplers, key)
	}
}
