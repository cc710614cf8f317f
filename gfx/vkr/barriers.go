package vkr

import (
	vk "github.com/Eiton/vulkan"
)

// layoutTransition records one full-subresource image barrier. Stage and
// access masks derive from the layouts involved; the handful of
// combinations the renderer uses are all covered here.
func layoutTransition(cmd vk.CommandBuffer, image vk.Image, aspect vk.ImageAspectFlagBits, layers, mips uint32, oldLayout, newLayout vk.ImageLayout) {
	srcStage, srcAccess := stageAccessForLayout(oldLayout, true)
	dstStage, dstAccess := stageAccessForLayout(newLayout, false)

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(aspect),
			LevelCount: mips,
			LayerCount: layers,
		},
	}
	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func stageAccessForLayout(layout vk.ImageLayout, isSource bool) (vk.PipelineStageFlags, vk.AccessFlags) {
	switch layout {
	case vk.ImageLayoutUndefined:
		return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), 0
	case vk.ImageLayoutTransferDstOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.AccessFlags(vk.AccessTransferWriteBit)
	case vk.ImageLayoutTransferSrcOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.AccessFlags(vk.AccessTransferReadBit)
	case vk.ImageLayoutShaderReadOnlyOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), vk.AccessFlags(vk.AccessShaderReadBit)
	case vk.ImageLayoutColorAttachmentOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessColorAttachmentReadBit)
	case vk.ImageLayoutDepthStencilAttachmentOptimal:
		return vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit),
			vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit | vk.AccessDepthStencilAttachmentReadBit)
	case vk.ImageLayoutPresentSrc:
		if isSource {
			return vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit), 0
		}
		return vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit), 0
	default:
		return vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit), vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit)
	}
}
