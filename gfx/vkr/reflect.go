package vkr

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danielchristiancazares/freespace2/gfx"
)

// Minimal SPIR-V reader: just enough of the module layout to check the
// descriptor interface of precompiled shaders against the pipeline
// layouts before a driver ever sees them. Shader compilation itself is
// out of scope; blobs arrive ready-made.

const spirvMagic = 0x07230203

// SPIR-V opcodes.
const (
	opTypeInt          = 21
	opTypeFloat        = 22
	opTypeVector       = 23
	opTypeMatrix       = 24
	opTypeImage        = 25
	opTypeSampledImage = 27
	opTypeArray        = 28
	opTypeRuntimeArray = 29
	opTypeStruct       = 30
	opTypePointer      = 32
	opConstant         = 43
	opVariable         = 59
	opDecorate         = 71
	opMemberDecorate   = 72
)

// SPIR-V storage classes.
const (
	storageUniformConstant = 0
	storageInput           = 1
	storageUniform         = 2
	storageOutput          = 3
	storagePushConstant    = 9
	storageStorageBuffer   = 12
)

// SPIR-V decorations.
const (
	decorationBlock         = 2
	decorationBufferBlock   = 3
	decorationBuiltIn       = 11
	decorationLocation      = 30
	decorationBinding       = 33
	decorationDescriptorSet = 34
	decorationOffset        = 35
	decorationNonUniform    = 5300
)

// descriptorKind classifies a shader interface variable.
type descriptorKind int

const (
	descriptorUniformBuffer descriptorKind = iota
	descriptorStorageBuffer
	descriptorSampledImage
)

// reflectedBinding is one descriptor the shader declares.
type reflectedBinding struct {
	set     uint32
	binding uint32
	kind    descriptorKind
	count   uint32 // array size; 1 for scalars, 0 for runtime arrays
}

// shaderReflection is everything validation needs from one SPIR-V blob.
type shaderReflection struct {
	bindings         []reflectedBinding
	inputLocations   []uint32
	outputLocations  []uint32
	pushConstantSize uint32
	hasPushConstants bool
	usesNonUniform   bool
}

type spirvType struct {
	opcode    uint16
	width     uint32 // int/float bit width
	component uint32 // vector/matrix/array element type id
	count     uint32 // vector components, matrix columns, array length id
}

type spirvPointer struct{ class, pointee uint32 }

type spirvVariable struct{ resultID, typeID, class uint32 }

// spirvModule is the decoded subset of one blob.
type spirvModule struct {
	types         map[uint32]spirvType
	pointers      map[uint32]spirvPointer
	structMembers map[uint32][]uint32
	memberOffsets map[uint32]map[uint32]uint32
	constants     map[uint32]uint32

	locations map[uint32]uint32
	sets      map[uint32]uint32
	bindings  map[uint32]uint32
	builtins  map[uint32]bool

	blockStructs       map[uint32]bool
	bufferBlockStructs map[uint32]bool

	variables      []spirvVariable
	usesNonUniform bool
}

func decodeSpirv(code []byte) (*spirvModule, error) {
	if len(code) < 20 || len(code)%4 != 0 {
		return nil, errors.New("SPIR-V blob truncated")
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, errors.New("not a SPIR-V module")
	}

	m := &spirvModule{
		types:              make(map[uint32]spirvType),
		pointers:           make(map[uint32]spirvPointer),
		structMembers:      make(map[uint32][]uint32),
		memberOffsets:      make(map[uint32]map[uint32]uint32),
		constants:          make(map[uint32]uint32),
		locations:          make(map[uint32]uint32),
		sets:               make(map[uint32]uint32),
		bindings:           make(map[uint32]uint32),
		builtins:           make(map[uint32]bool),
		blockStructs:       make(map[uint32]bool),
		bufferBlockStructs: make(map[uint32]bool),
	}

	for pos := 5; pos < len(words); {
		word := words[pos]
		count := int(word >> 16)
		opcode := uint16(word & 0xffff)
		if count == 0 || pos+count > len(words) {
			return nil, errors.New("malformed SPIR-V instruction stream")
		}
		args := words[pos+1 : pos+count]

		switch opcode {
		case opDecorate:
			if len(args) < 2 {
				break
			}
			target, dec := args[0], args[1]
			switch dec {
			case decorationBlock:
				m.blockStructs[target] = true
			case decorationBufferBlock:
				m.bufferBlockStructs[target] = true
			case decorationBuiltIn:
				m.builtins[target] = true
			case decorationNonUniform:
				m.usesNonUniform = true
			case decorationLocation:
				if len(args) >= 3 {
					m.locations[target] = args[2]
				}
			case decorationDescriptorSet:
				if len(args) >= 3 {
					m.sets[target] = args[2]
				}
			case decorationBinding:
				if len(args) >= 3 {
					m.bindings[target] = args[2]
				}
			}
		case opMemberDecorate:
			if len(args) >= 4 && args[2] == decorationOffset {
				if m.memberOffsets[args[0]] == nil {
					m.memberOffsets[args[0]] = make(map[uint32]uint32)
				}
				m.memberOffsets[args[0]][args[1]] = args[3]
			}
		case opTypeInt, opTypeFloat:
			m.types[args[0]] = spirvType{opcode: opcode, width: args[1]}
		case opTypeVector, opTypeMatrix, opTypeArray:
			m.types[args[0]] = spirvType{opcode: opcode, component: args[1], count: args[2]}
		case opTypeRuntimeArray:
			m.types[args[0]] = spirvType{opcode: opcode, component: args[1]}
		case opTypeImage:
			m.types[args[0]] = spirvType{opcode: opcode}
		case opTypeSampledImage:
			m.types[args[0]] = spirvType{opcode: opcode, component: args[1]}
		case opTypeStruct:
			m.types[args[0]] = spirvType{opcode: opcode}
			m.structMembers[args[0]] = append([]uint32(nil), args[1:]...)
		case opConstant:
			if len(args) >= 3 {
				m.constants[args[1]] = args[2]
			}
		case opTypePointer:
			m.pointers[args[0]] = spirvPointer{class: args[1], pointee: args[2]}
		case opVariable:
			if len(args) >= 3 {
				m.variables = append(m.variables, spirvVariable{typeID: args[0], resultID: args[1], class: args[2]})
			}
		}
		pos += count
	}
	return m, nil
}

// sizeOf computes a type's byte extent from explicit member offsets;
// exact for the explicitly-laid-out blocks validation cares about.
func (m *spirvModule) sizeOf(id uint32) uint32 {
	t, ok := m.types[id]
	if !ok {
		return 0
	}
	switch t.opcode {
	case opTypeInt, opTypeFloat:
		return t.width / 8
	case opTypeVector, opTypeMatrix:
		return t.count * m.sizeOf(t.component)
	case opTypeArray:
		return m.constants[t.count] * m.sizeOf(t.component)
	case opTypeStruct:
		var size uint32
		for member, memberType := range m.structMembers[id] {
			end := m.memberOffsets[id][uint32(member)] + m.sizeOf(memberType)
			if end > size {
				size = end
			}
		}
		return size
	}
	return 0
}

// reflectShader summarizes the blob's descriptor interface.
func reflectShader(code []byte) (*shaderReflection, error) {
	m, err := decodeSpirv(code)
	if err != nil {
		return nil, err
	}

	refl := &shaderReflection{usesNonUniform: m.usesNonUniform}
	for _, v := range m.variables {
		ptr, ok := m.pointers[v.typeID]
		if !ok {
			continue
		}
		switch v.class {
		case storageInput:
			if loc, ok := m.locations[v.resultID]; ok && !m.builtins[v.resultID] {
				refl.inputLocations = append(refl.inputLocations, loc)
			}
		case storageOutput:
			if loc, ok := m.locations[v.resultID]; ok && !m.builtins[v.resultID] {
				refl.outputLocations = append(refl.outputLocations, loc)
			}
		case storagePushConstant:
			refl.hasPushConstants = true
			refl.pushConstantSize = m.sizeOf(ptr.pointee)
		case storageUniform, storageUniformConstant, storageStorageBuffer:
			if b, ok := m.classifyDescriptor(v, ptr); ok {
				refl.bindings = append(refl.bindings, b)
			}
		}
	}
	return refl, nil
}

func (m *spirvModule) classifyDescriptor(v spirvVariable, ptr spirvPointer) (reflectedBinding, bool) {
	set, hasSet := m.sets[v.resultID]
	binding, hasBinding := m.bindings[v.resultID]
	if !hasSet && !hasBinding {
		return reflectedBinding{}, false
	}

	pointee := ptr.pointee
	count := uint32(1)
	if t, ok := m.types[pointee]; ok && (t.opcode == opTypeArray || t.opcode == opTypeRuntimeArray) {
		if t.opcode == opTypeArray {
			count = m.constants[t.count]
		} else {
			count = 0
		}
		pointee = t.component
	}

	b := reflectedBinding{set: set, binding: binding, count: count}
	t := m.types[pointee]
	switch {
	case t.opcode == opTypeSampledImage || t.opcode == opTypeImage:
		b.kind = descriptorSampledImage
	case v.class == storageStorageBuffer || m.bufferBlockStructs[pointee]:
		b.kind = descriptorStorageBuffer
	case m.blockStructs[pointee]:
		b.kind = descriptorUniformBuffer
	default:
		return reflectedBinding{}, false
	}
	return b, true
}

// findBinding locates a reflected binding by set and binding number.
func (r *shaderReflection) findBinding(set, binding uint32) (reflectedBinding, bool) {
	for _, b := range r.bindings {
		if b.set == set && b.binding == binding {
			return b, true
		}
	}
	return reflectedBinding{}, false
}

// gBufferOutputCount is how many MRT locations the model fragment shader
// must write: position, normal, albedo, spec, emissive.
const gBufferOutputCount = 5

// ValidateShaderPair checks a vertex/fragment blob pair against the
// layout contract for its shader type. Only the model shader carries a
// detailed interface contract; other types just need valid SPIR-V.
func ValidateShaderPair(t gfx.ShaderType, vertCode, fragCode []byte) error {
	vert, err := reflectShader(vertCode)
	if err != nil {
		return errors.New("vertex stage: " + err.Error())
	}
	frag, err := reflectShader(fragCode)
	if err != nil {
		return errors.New("fragment stage: " + err.Error())
	}
	if t != gfx.ShaderModel {
		return nil
	}

	// Vertex pulling: no fixed-function vertex inputs at all.
	if len(vert.inputLocations) != 0 {
		return fmt.Errorf("model vertex shader declares %d vertex inputs, vertex pulling requires none", len(vert.inputLocations))
	}
	heap, ok := vert.findBinding(0, bindingModelVertexHeap)
	if !ok || heap.kind != descriptorStorageBuffer {
		return errors.New("model vertex shader missing the vertex heap storage buffer at set 0 binding 0")
	}

	texArray, ok := frag.findBinding(0, bindingModelTextures)
	if !ok || texArray.kind != descriptorSampledImage {
		return errors.New("model fragment shader missing the bindless sampler array at set 0 binding 1")
	}
	if texArray.count != 0 && texArray.count != MaxBindlessTextures {
		return fmt.Errorf("bindless array declares %d slots, want %d", texArray.count, MaxBindlessTextures)
	}
	if !frag.usesNonUniform {
		return errors.New("model fragment shader indexes the bindless array without a NonUniform decoration")
	}
	if got := len(frag.outputLocations); got != gBufferOutputCount {
		return fmt.Errorf("model fragment shader writes %d outputs, deferred geometry needs %d", got, gBufferOutputCount)
	}

	if !vert.hasPushConstants && !frag.hasPushConstants {
		return errors.New("model shaders declare no push-constant block")
	}
	for _, r := range []*shaderReflection{vert, frag} {
		if !r.hasPushConstants {
			continue
		}
		if r.pushConstantSize == 0 || r.pushConstantSize%4 != 0 {
			return fmt.Errorf("push-constant block size %d is not a positive multiple of 4", r.pushConstantSize)
		}
		if r.pushConstantSize > 256 {
			return fmt.Errorf("push-constant block size %d exceeds the 256-byte floor", r.pushConstantSize)
		}
	}
	return nil
}
