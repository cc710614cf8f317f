// Command fs2 opens a window, brings the Vulkan backend up, and runs a
// minimal render loop. It exists to exercise the backend outside the
// full game: scene texture on, a spinning clear color, post chain off.
package main

import (
	"errors"
	"runtime"
	"strconv"
	"unsafe"

	"github.com/gobuffalo/envy"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/danielchristiancazares/freespace2/core"
	"github.com/danielchristiancazares/freespace2/gfx"
	"github.com/danielchristiancazares/freespace2/gfx/vkr"
)

func init() {
	runtime.LockOSThread()
}

func envUint(key string, fallback uint32) uint32 {
	v, err := strconv.ParseUint(envy.Get(key, ""), 10, 32)
	if err != nil {
		return fallback
	}
	return uint32(v)
}

func loadConfiguration() core.Configuration {
	return core.Configuration{
		Time: core.TimeConfiguration{
			FramesPerSecond: int(envUint("FS2_FPS", 60)),
			EventPollDelay:  5,
		},
		Instance: core.InstanceConfiguration{
			DebugMode: envy.Get("FS2_DEBUG", "") != "",
		},
		Renderer: core.RendererConfiguration{
			ScreenWidth:       envUint("FS2_WIDTH", 1024),
			ScreenHeight:      envUint("FS2_HEIGHT", 768),
			SwapchainSize:     3,
			ShaderDir:         envy.Get("FS2_SHADER_DIR", "./shaders"),
			ShaderArchive:     envy.Get("FS2_SHADER_ARCHIVE", ""),
			PipelineCachePath: envy.Get("FS2_PIPELINE_CACHE", "./pipeline.cache"),
			DebugMode:         envy.Get("FS2_DEBUG", "") != "",
		},
	}
}

// checkerSource is a stand-in bitmap manager: every handle resolves to
// an 8x8 checkerboard. The real engine supplies decoded game bitmaps.
type checkerSource struct{}

func (checkerSource) Lock(handle gfx.TextureHandle, bpp int, flags gfx.BitmapFlags) (*gfx.BitmapData, error) {
	const size = 8
	pixels := make([]byte, size*size*4)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := byte(0x30)
			if (x+y)%2 == 0 {
				v = 0xd0
			}
			i := (y*size + x) * 4
			pixels[i], pixels[i+1], pixels[i+2], pixels[i+3] = v, v, v, 0xff
		}
	}
	return &gfx.BitmapData{Pixels: pixels, Width: size, Height: size, BPP: 32}, nil
}

func (checkerSource) Unlock(handle gfx.TextureHandle) {}

func (checkerSource) BaseFrame(handle gfx.TextureHandle) (gfx.TextureHandle, int) {
	return handle, 1
}

func (checkerSource) IsTextureArray(handle gfx.TextureHandle) bool { return true }

func main() {
	cfg := loadConfiguration()

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		log.WithError(err).Fatal("sdl init failed")
	}
	defer sdl.Quit()

	if err := sdl.VulkanLoadLibrary(""); err != nil {
		log.WithError(err).Fatal("vulkan library load failed")
	}
	defer sdl.VulkanUnloadLibrary()

	window, err := sdl.CreateWindow("FreeSpace 2",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Renderer.ScreenWidth),
		int32(cfg.Renderer.ScreenHeight),
		sdl.WINDOW_VULKAN)
	if err != nil {
		log.WithError(err).Fatal("window creation failed")
	}
	defer window.Destroy()

	cfg.Instance.Extensions = window.VulkanGetInstanceExtensions()
	instance, err := core.NewVulkanInstance(core.DefaultVulkanApplicationInfo, sdl.VulkanGetVkGetInstanceProcAddr(), cfg.Instance)
	if err != nil {
		log.WithError(err).Fatal("instance creation failed")
	}
	defer instance.Destroy()

	surface, err := window.VulkanCreateSurface(instance.Instance())
	if err != nil {
		log.WithError(err).Fatal("surface creation failed")
	}
	instance.SetSurface(unsafe.Pointer(surface))

	gpu, err := core.NewGpu(instance, cfg.Renderer)
	if err != nil {
		log.WithError(err).Fatal("device creation failed")
	}
	defer gpu.Destroy()

	renderer, err := vkr.NewRenderer(gpu, instance.Surface(), cfg.Renderer, checkerSource{})
	if err != nil {
		log.WithError(err).Fatal("renderer creation failed")
	}
	defer renderer.Destroy()

	clock := core.NewTime(cfg.Time)
	defer clock.Stop()
	var hue int

	// Input polls at the event cadence, rendering at the frame cap; both
	// stay on this thread for SDL and Vulkan.
	for {
		select {
		case <-clock.EventTicker().C:
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch e := event.(type) {
				case *sdl.KeyboardEvent:
					if e.Keysym.Sym == sdl.K_ESCAPE {
						return
					}
				case *sdl.QuitEvent:
					return
				}
			}
		case <-clock.FpsTicker().C:
			hue = (hue + 1) % 512
			shade := uint8(hue / 2)
			renderer.SetClearColor(shade/4, shade/8, shade)
			if err := renderer.Flip(); err != nil {
				if errors.Is(err, vkr.ErrFrameSkipped) {
					continue
				}
				log.WithError(err).Error("frame failed")
				return
			}
		}
	}
}
