package gpu

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/fnv"
	"math"
	"reflect"

	"github.com/gogpu/gputypes"
)

// MaxColorAttachments is the number of colour slots a render pass may use.
const MaxColorAttachments = 4

// The key structs below hold only fields that decide the identity of the
// device object they describe. Anything transient (labels, target ids,
// texture pointers) stays outside so it can never leak into the hash.

type PipelineLayoutKey struct {
	Shader ShaderID
}

func (k PipelineLayoutKey) Hash() uint64 { return StructHash(k) }

type AttachmentKey struct {
	Format        gputypes.TextureFormat
	Load          gputypes.LoadOp
	Store         gputypes.StoreOp
	InitialLayout ImageLayout
	FinalLayout   ImageLayout
}

type RenderPassKey struct {
	ColorCount uint8
	HasDepth   bool
	Color      [MaxColorAttachments]AttachmentKey
	Depth      AttachmentKey
}

func (k RenderPassKey) Hash() uint64 { return StructHash(k) }

type FramebufferKey struct {
	Color        [MaxColorAttachments]Handle // image views
	Depth        Handle
	RenderPassID uint64
	Width        uint32
	Height       uint32
}

func (k FramebufferKey) Hash() uint64 { return StructHash(k) }

type DepthState struct {
	TestEnable        bool
	WriteEnable       bool
	Compare           gputypes.CompareFunction
	StencilTestEnable bool
}

// DynamicState is a bit index in DynamicStateMask.
type DynamicState uint8

const (
	DynamicViewport DynamicState = iota
	DynamicScissor
	DynamicDepthBias
	maxDynamicStates = 8
)

type DynamicStateMask uint8

func (m DynamicStateMask) Has(s DynamicState) bool { return m&(1<<s) != 0 }

// With returns m with s switched on or off.
func (m DynamicStateMask) With(s DynamicState, on bool) DynamicStateMask {
	if s >= maxDynamicStates {
		panic(fmt.Sprintf("gpu: dynamic state %d out of range", s))
	}
	if on {
		return m | 1<<s
	}
	return m &^ (1 << s)
}

type PipelineKey struct {
	VertexFormat   VertexFormatID
	Shader         ShaderID
	Dynamic        DynamicStateMask
	Depth          DepthState
	LayoutID       uint64
	RenderPassID   uint64
	ViewportWidth  uint32
	ViewportHeight uint32
}

func (k PipelineKey) Hash() uint64 { return StructHash(k) }

// StructHash is an FNV-1a hash over every field of v, walked by reflection,
// so a field added to a key struct takes part without further code.
// Only bool, integer, float, array and struct kinds are accepted.
func StructHash(v any) uint64 {
	h := fnv.New64a()
	hashValue(h, reflect.ValueOf(v))
	return h.Sum64()
}

func hashValue(h hash.Hash64, v reflect.Value) {
	var buf [8]byte
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			hashValue(h, v.Field(i))
		}
		return
	case reflect.Array:
		for i := 0; i < v.Len(); i++ {
			hashValue(h, v.Index(i))
		}
		return
	case reflect.Bool:
		if v.Bool() {
			buf[0] = 1
		}
		h.Write(buf[:1])
		return
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		binary.LittleEndian.PutUint64(buf[:], uint64(v.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		binary.LittleEndian.PutUint64(buf[:], v.Uint())
	case reflect.Float32, reflect.Float64:
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.Float()))
	default:
		panic(fmt.Sprintf("gpu: cannot hash key field of kind %s", v.Kind()))
	}
	h.Write(buf[:])
}
