// Copyright 2026 The Tremor Engine Authors
// SPDX-License-Identifier: Apache-2.0

package gpu

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tremor-engine/taffy/lib/taf"
)

// ErrNoShaders is returned by Build for assets without a shader chunk.
var ErrNoShaders = errors.New("gpu: asset has no shader chunk")

// MissingStageError reports a shader chunk that lacks a stage the
// selected pipeline kind requires.
type MissingStageError struct {
	Stage taf.ShaderStage
	Mesh  bool
}

func (e *MissingStageError) Error() string {
	kind := "vertex"
	if e.Mesh {
		kind = "mesh shading"
	}
	return fmt.Sprintf("gpu: %s pipeline requires a %s stage", kind, e.Stage)
}

// PipelineBuilder builds a graphics pipeline from an asset's shader
// chunk. A chunk containing a mesh stage produces a mesh shading
// pipeline (mesh + fragment, with an optional task stage); otherwise a
// traditional one (vertex + fragment).
type PipelineBuilder struct {
	Device Device

	// Render target configuration. Zero values select the swapchain
	// defaults (BGRA8 color, D32 depth, single-sampled).
	ColorFormat Format
	DepthFormat Format
	SampleCount uint32

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

func (b *PipelineBuilder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// Build validates the asset's SPIR-V, creates the shader modules and
// the pipeline. On failure every module created so far is destroyed.
func (b *PipelineBuilder) Build(asset *taf.Asset) (*PipelineRecord, error) {
	chunk, ok := asset.Chunk(taf.ChunkShader)
	if !ok {
		return nil, ErrNoShaders
	}
	shaders, err := taf.ParseShaders(chunk)
	if err != nil {
		return nil, fmt.Errorf("gpu: parsing shader chunk: %w", err)
	}

	byStage := make(map[taf.ShaderStage]*taf.Shader, len(shaders))
	for i := range shaders {
		shader := &shaders[i]
		// Later entries win, matching chunk duplicate semantics.
		byStage[shader.Stage] = shader
	}

	mesh := byStage[taf.StageMesh] != nil
	var stages []*taf.Shader
	if mesh {
		if task := byStage[taf.StageTask]; task != nil {
			stages = append(stages, task)
		}
		stages = append(stages, byStage[taf.StageMesh])
		if byStage[taf.StageFragment] == nil {
			return nil, &MissingStageError{Stage: taf.StageFragment, Mesh: true}
		}
		stages = append(stages, byStage[taf.StageFragment])
	} else {
		if byStage[taf.StageVertex] == nil {
			return nil, &MissingStageError{Stage: taf.StageVertex}
		}
		if byStage[taf.StageFragment] == nil {
			return nil, &MissingStageError{Stage: taf.StageFragment}
		}
		stages = append(stages, byStage[taf.StageVertex], byStage[taf.StageFragment])
	}

	record := &PipelineRecord{UsesMeshShading: mesh}
	spec := PipelineSpec{
		PushConstantSize: PushConstantsSize,
		UsesMeshShading:  mesh,
		ColorFormat:      b.ColorFormat,
		DepthFormat:      b.DepthFormat,
		SampleCount:      b.SampleCount,
	}
	if spec.ColorFormat == 0 {
		spec.ColorFormat = FormatBGRA8Unorm
	}
	if spec.DepthFormat == 0 {
		spec.DepthFormat = FormatD32Float
	}
	if spec.SampleCount == 0 {
		spec.SampleCount = 1
	}

	destroyModules := func() {
		for _, module := range record.Modules {
			b.Device.DestroyShaderModule(module)
		}
	}

	for _, shader := range stages {
		if err := taf.ValidateSPIRV(shader.Code); err != nil {
			destroyModules()
			return nil, fmt.Errorf("gpu: shader %s stage %s: %w",
				taf.LookupName(shader.NameHash), shader.Stage, err)
		}
		module, err := b.Device.CreateShaderModule(shader.Code)
		if err != nil {
			destroyModules()
			return nil, fmt.Errorf("gpu: creating %s shader module: %w", shader.Stage, err)
		}
		record.Modules = append(record.Modules, module)
		spec.Stages = append(spec.Stages, StageSpec{
			Stage:      shader.Stage,
			Module:     module,
			EntryPoint: taf.LookupName(shader.EntryPointHash),
		})
	}

	pipeline, layout, err := b.Device.CreatePipeline(spec)
	if err != nil {
		destroyModules()
		return nil, fmt.Errorf("gpu: creating pipeline: %w", err)
	}
	record.Pipeline = pipeline
	record.Layout = layout

	b.logger().Debug("built pipeline",
		"stages", len(spec.Stages),
		"mesh_shading", mesh)
	return record, nil
}

// Destroy frees a pipeline record's pipeline, layout and modules.
func (b *PipelineBuilder) Destroy(record *PipelineRecord) {
	if record == nil {
		return
	}
	b.Device.DestroyPipeline(record.Pipeline, record.Layout)
	for _, module := range record.Modules {
		b.Device.DestroyShaderModule(module)
	}
	record.Modules = nil
}
