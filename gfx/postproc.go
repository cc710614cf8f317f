package gfx

import (
	"github.com/go-gl/mathgl/mgl32"
)

// AntiAliasMode selects the post-process anti-aliasing technique.
type AntiAliasMode int

const (
	AANone AntiAliasMode = iota
	AAFXAA
	AASMAA
)

// PostEffectUniform names the uniform a configured post effect drives.
type PostEffectUniform int

const (
	PostEffectNoiseAmount PostEffectUniform = iota
	PostEffectSaturation
	PostEffectBrightness
	PostEffectContrast
	PostEffectFilmGrain
	PostEffectTvStripes
	PostEffectCutoff
	PostEffectDither
	PostEffectTint
	PostEffectCustomVec3A
	PostEffectCustomFloatA
	PostEffectCustomVec3B
	PostEffectCustomFloatB
)

// PostEffect is one table-configured post-processing effect. An effect
// contributes when AlwaysOn is set or its intensity was moved off the
// table default.
type PostEffect struct {
	Uniform          PostEffectUniform
	Intensity        float32
	DefaultIntensity float32
	AlwaysOn         bool
	RGB              mgl32.Vec3
}

// Enabled reports whether the effect should be applied this frame.
func (e *PostEffect) Enabled() bool {
	return e.AlwaysOn || e.Intensity != e.DefaultIntensity
}

// LightshaftParams come from the post-processing table; SunPos is
// computed per frame from the glare light's screen position.
type LightshaftParams struct {
	SunPos           mgl32.Vec2
	Density          float32
	Falloff          float32
	Weight           float32
	Intensity        float32
	CockpitIntensity float32
	SampleCount      int32
}
