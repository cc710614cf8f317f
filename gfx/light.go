package gfx

import (
	"github.com/go-gl/mathgl/mgl32"
)

// LightType classifies an engine light source.
type LightType int

const (
	// LightDirectional is an infinitely distant sun.
	LightDirectional LightType = iota
	// LightPoint radiates from a position within RadiusB.
	LightPoint
	// LightCone is a point light restricted to a cone around ConeDir.
	LightCone
	// LightTube radiates from the segment Position2..Position.
	LightTube
)

// Light is one engine light as the mission layer hands it over. The
// renderer owns turning these into lighting draws.
type Light struct {
	Type LightType

	// Position is the light origin; for tubes, the segment end.
	Position mgl32.Vec3
	// Position2 is the tube segment start; unused otherwise.
	Position2 mgl32.Vec3
	// Direction points from the light for directional and cone lights.
	Direction mgl32.Vec3

	R, G, B   float32
	Intensity float32

	RadiusA float32
	RadiusB float32

	ConeAngle      float32
	ConeInnerAngle float32
	DualCone       bool

	SourceRadius float32
}
