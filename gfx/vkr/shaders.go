package vkr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	vk "github.com/Eiton/vulkan"
	log "github.com/sirupsen/logrus"

	"github.com/danielchristiancazares/freespace2/core"
	"github.com/danielchristiancazares/freespace2/gfx"
	"github.com/danielchristiancazares/freespace2/utility/spack"
)

// ShaderModules is the vertex/fragment pair one pipeline compiles from.
type ShaderModules struct {
	Vert vk.ShaderModule
	Frag vk.ShaderModule
}

// ShaderManager loads precompiled SPIR-V pairs by shader type and caches
// the resulting modules for the renderer's lifetime. Blobs come from the
// shader archive when one is configured, falling back to loose files
// under the shader root.
type ShaderManager struct {
	device  vk.Device
	root    string
	archive *spack.Archive

	modules map[gfx.ShaderType]ShaderModules

	// blobs keeps the raw SPIR-V around for reflection validation.
	blobs map[string][]byte
}

// NewShaderManager opens the configured archive, if any. A missing
// archive is not an error; loose files may still cover everything.
func NewShaderManager(dev vk.Device, cfg core.RendererConfiguration) (*ShaderManager, error) {
	sm := &ShaderManager{
		device:  dev,
		root:    cfg.ShaderDir,
		modules: make(map[gfx.ShaderType]ShaderModules),
		blobs:   make(map[string][]byte),
	}
	if cfg.ShaderArchive != "" {
		file, err := os.Open(cfg.ShaderArchive)
		if err != nil {
			log.WithError(err).WithField("archive", cfg.ShaderArchive).Warn("shader archive unavailable, using loose files")
			return sm, nil
		}
		archive, err := spack.Open(file)
		if err != nil {
			file.Close()
			return nil, errors.New("spack.Open(): " + err.Error())
		}
		sm.archive = archive
	}
	return sm, nil
}

// GetModules returns the cached module pair for a shader type, loading
// and validating it on first request.
func (sm *ShaderManager) GetModules(t gfx.ShaderType) (ShaderModules, error) {
	if t < 0 || t >= gfx.NumShaderTypes {
		return ShaderModules{}, fmt.Errorf("unknown shader type %d", int(t))
	}
	if pair, ok := sm.modules[t]; ok {
		return pair, nil
	}

	vertName := t.String() + ".vert.spv"
	fragName := t.String() + ".frag.spv"
	vertCode, err := sm.loadBlob(vertName)
	if err != nil {
		return ShaderModules{}, err
	}
	fragCode, err := sm.loadBlob(fragName)
	if err != nil {
		return ShaderModules{}, err
	}
	if err := ValidateShaderPair(t, vertCode, fragCode); err != nil {
		return ShaderModules{}, fmt.Errorf("shader %q rejected: %s", t.String(), err.Error())
	}

	pair := ShaderModules{}
	if pair.Vert, err = sm.createModule(vertName, vertCode); err != nil {
		return ShaderModules{}, err
	}
	if pair.Frag, err = sm.createModule(fragName, fragCode); err != nil {
		vk.DestroyShaderModule(sm.device, pair.Vert, nil)
		return ShaderModules{}, err
	}
	sm.modules[t] = pair
	log.WithField("shader", t.String()).Debug("shader modules loaded")
	return pair, nil
}

func (sm *ShaderManager) loadBlob(name string) ([]byte, error) {
	if blob, ok := sm.blobs[name]; ok {
		return blob, nil
	}
	var (
		blob []byte
		err  error
	)
	if sm.archive != nil && sm.archive.Contains(name) {
		blob, err = sm.archive.ReadAll(name)
	} else {
		blob, err = os.ReadFile(filepath.Join(sm.root, name))
	}
	if err != nil {
		return nil, fmt.Errorf("shader blob %q: %s", name, err.Error())
	}
	sm.blobs[name] = blob
	return blob, nil
}

func (sm *ShaderManager) createModule(name string, code []byte) (vk.ShaderModule, error) {
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(code)),
		PCode:    core.SliceUint32(code),
	}
	var module vk.ShaderModule
	if err := vk.Error(vk.CreateShaderModule(sm.device, &createInfo, nil, &module)); err != nil {
		return nil, fmt.Errorf("vk.CreateShaderModule(%s): %s", name, err.Error())
	}
	return module, nil
}

// Release destroys all cached modules. Device must be idle.
func (sm *ShaderManager) Release() {
	for t, pair := range sm.modules {
		vk.DestroyShaderModule(sm.device, pair.Vert, nil)
		vk.DestroyShaderModule(sm.device, pair.Frag, nil)
		delete(sm.modules, t)
	}
}
