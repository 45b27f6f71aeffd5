// Package effect holds the fixed shader interface shared by the passes and
// the driver: shader and vertex format ids, samplers, constant buffer
// layouts and binding slots.
package effect

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ecsrender/engine/internal/render/gpu"
)

const (
	ShaderBase gpu.ShaderID = iota
	ShaderFullscreen
	ShaderShadow
	ShaderTerrain
	ShaderUI
	ShaderFillGBuffer
	ShaderShadeGBuffer
	ShaderSSAO
	ShaderSSAOBlend
	ShaderCount
)

var shaderNames = [ShaderCount]string{
	"base", "fullscreen", "shadow", "terrain", "ui",
	"fill_gbuffer", "shade_gbuffer", "ssao", "ssao_blend",
}

// ShaderName is the file stem of a shader program.
func ShaderName(id gpu.ShaderID) string {
	if id < ShaderCount {
		return shaderNames[id]
	}
	return fmt.Sprintf("shader(%d)", id)
}

// ShaderByName resolves a file stem back to its id.
func ShaderByName(name string) (gpu.ShaderID, bool) {
	for i, n := range shaderNames {
		if n == name {
			return gpu.ShaderID(i), true
		}
	}
	return 0, false
}

const (
	VertexEmpty  gpu.VertexFormatID = iota // fullscreen passes generate positions
	VertexSimple                           // position, uv, normal
	VertexUI                               // position, uv, packed colour
	VertexFormatCount
)

// VertexStride is the byte size of one vertex per format.
var VertexStride = [VertexFormatCount]uint32{
	VertexEmpty:  0,
	VertexSimple: 32,
	VertexUI:     20,
}

type Sampler uint8

const (
	SamplerRepeatLinearAniso Sampler = iota
	SamplerRepeatLinear
	SamplerClampLinear
	SamplerClampPoint
	SamplerClampPointCompare
	SamplerCount
)

// SamplerSlotBase is the binding of the first sampler; samplers occupy
// consecutive slots after it.
const SamplerSlotBase = 40

// Texture binding slots.
const (
	SlotResolveSource    = 16
	SlotAlbedo           = 20
	SlotNormal           = 21
	SlotMetalRoughness   = 22
	SlotWorldPos         = 23
	SlotShadowMap        = 24
	SlotDepth            = 25
	SlotSSAOKernel       = 30
	SlotSSAOMask         = 30
	SlotSSAONoise        = 31
	MaxTextureSlots      = 32
	MaxPushConstantBytes = 128
)

type ConstBuffer uint8

const (
	CBCommonData ConstBuffer = iota // per frame
	CBLights                        // per frame
	CBTerrain                       // per frame
	CBMaterial                      // per draw
	CBDebug                         // per frame
	CBCustom                        // per pass
	CBCount
)

var cbNames = [CBCount]string{"common_data", "lights", "terrain", "material", "debug", "custom"}

func (c ConstBuffer) String() string {
	if c < CBCount {
		return cbNames[c]
	}
	return fmt.Sprintf("cb(%d)", uint8(c))
}

// Slot is the binding of the buffer in every shader that reads it.
func (c ConstBuffer) Slot() uint32 { return uint32(c) }

// Size is the exact byte size FillConstBuffer expects for c.
func (c ConstBuffer) Size() uint32 { return cbSizes[c] }

var cbSizes = [CBCount]uint32{
	CBCommonData: uint32(binary.Size(CommonData{})),
	CBLights:     uint32(binary.Size(Lights{})),
	CBTerrain:    uint32(binary.Size(Terrain{})),
	CBMaterial:   uint32(binary.Size(Material{})),
	CBDebug:      uint32(binary.Size(Debug{})),
	CBCustom:     uint32(binary.Size(Custom{})),
}

// Constant buffer layouts. Fields are laid out in 16-byte rows.

type CommonData struct {
	ViewPos  [3]float32
	Time     float32
	ViewProj [16]float32
}

type Lights struct {
	DirLightDirection  [4]float32
	DirLightColor      [4]float32
	PointLightPosition [4]float32
	PointLightColor    [4]float32 // w is the radius
	DirLightViewProj   [16]float32
	PointLightViewProj [16]float32
	Ambient            [4]float32
}

type Terrain struct {
	StartPos [2]float32
	_        [2]float32
}

type Material struct {
	Metalness [3]float32
	Roughness float32
}

type Debug struct {
	DrawMode uint32
	SSAOOff  uint32
	_        [2]uint32
}

type Custom struct {
	CB0 [4]float32
}

// Bytes encodes a constant buffer or push constant value.
func Bytes(v any) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		panic(fmt.Sprintf("effect: encode %T: %v", v, err))
	}
	return buf.Bytes()
}
