package vkr

import (
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/danielchristiancazares/freespace2/gfx"
)

func TestPostUniformSizes(t *testing.T) {
	cases := []struct {
		name string
		size uintptr
		want uintptr
	}{
		{"post", unsafe.Sizeof(postUniforms{}), 80},
		{"tonemap", unsafe.Sizeof(tonemapUniforms{}), 48},
		{"blur", unsafe.Sizeof(blurUniforms{}), 16},
		{"bloom", unsafe.Sizeof(bloomUniforms{}), 16},
		{"lightshaft", unsafe.Sizeof(lightshaftUniforms{}), 32},
	}
	for _, tc := range cases {
		if tc.size != tc.want {
			t.Errorf("%s uniforms are %d bytes, shader expects %d", tc.name, tc.size, tc.want)
		}
	}
}

func TestPostUniformsIdentityDefaults(t *testing.T) {
	post, any := buildPostUniforms(nil, 0)
	if any {
		t.Error("no effects configured but chain reported active effects")
	}
	if post.Saturation != 1 || post.Brightness != 1 || post.Contrast != 1 {
		t.Error("identity defaults missing; pass-through tonemap would distort")
	}
	if post.NoiseAmount != 0 || post.FilmGrain != 0 || post.Dither != 0 {
		t.Error("additive effects must default to zero")
	}
}

func TestPostEffectEnableRule(t *testing.T) {
	effects := []gfx.PostEffect{
		// Disabled: at its default intensity and not always-on.
		{Uniform: gfx.PostEffectSaturation, Intensity: 0.5, DefaultIntensity: 0.5},
		// Enabled by moved intensity.
		{Uniform: gfx.PostEffectContrast, Intensity: 1.4, DefaultIntensity: 1.0},
		// Enabled by always_on even at default.
		{Uniform: gfx.PostEffectFilmGrain, Intensity: 0.2, DefaultIntensity: 0.2, AlwaysOn: true},
	}
	post, any := buildPostUniforms(effects, 0)
	if !any {
		t.Fatal("enabled effects not detected")
	}
	if post.Saturation != 1 {
		t.Error("default-intensity effect leaked into the uniforms")
	}
	if post.Contrast != 1.4 {
		t.Error("intensity-moved effect not applied")
	}
	if post.FilmGrain != 0.2 {
		t.Error("always-on effect not applied")
	}
}

func TestPostEffectTintVector(t *testing.T) {
	effects := []gfx.PostEffect{
		{Uniform: gfx.PostEffectTint, Intensity: 1, DefaultIntensity: 0, RGB: mgl32.Vec3{0.2, 0.3, 0.4}},
	}
	post, any := buildPostUniforms(effects, 0)
	if !any || post.Tint != (mgl32.Vec3{0.2, 0.3, 0.4}) {
		t.Errorf("tint = %v", post.Tint)
	}
}

func TestPostTimerWraps(t *testing.T) {
	post, _ := buildPostUniforms(nil, 123456)
	if post.Timer < 1 || post.Timer > 100 {
		t.Errorf("timer = %v, want within (0,100]", post.Timer)
	}
}

func TestClampLightshaftSamples(t *testing.T) {
	cases := []struct{ in, want int32 }{
		{-5, 1},
		{0, 1},
		{50, 50},
		{128, 128},
		{100000, 128},
	}
	for _, tc := range cases {
		if got := clampLightshaftSamples(tc.in); got != tc.want {
			t.Errorf("clamp(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
