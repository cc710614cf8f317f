package core

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Instance InstanceConfiguration
	Renderer RendererConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out.
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the delay between OS event polls, in milliseconds
	EventPollDelay int
}

// InstanceConfiguration is used to configure the Vulkan instance
type InstanceConfiguration struct {
	DebugMode bool

	Extensions []string
	Layers     []string
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	ScreenWidth  uint32
	ScreenHeight uint32

	// SwapchainSize is the minimum number of swapchain images requested
	SwapchainSize uint32

	DeviceExtensions []string

	// ShaderDir is the directory precompiled SPIR-V pairs are loaded from.
	// When ShaderArchive is set, the archive takes precedence.
	ShaderDir     string
	ShaderArchive string

	// PipelineCachePath is where the driver pipeline cache blob is
	// persisted between runs. Empty disables persistence.
	PipelineCachePath string

	// StagingBudgetPerFrame caps texture upload bytes staged in one frame
	StagingBudgetPerFrame uint64

	DebugMode bool
}
