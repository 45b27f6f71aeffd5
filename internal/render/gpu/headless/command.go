package headless

import (
	"github.com/ecsrender/engine/internal/render/gpu"
)

type Op uint8

const (
	OpTransition Op = iota + 1
	OpBeginRenderPass
	OpEndRenderPass
	OpBindPipeline
	OpBindDescriptorSet
	OpPushConstants
	OpSetViewport
	OpSetScissor
	OpSetDepthBias
	OpBindVertexBuffer
	OpBindIndexBuffer
	OpDraw
	OpDrawIndexed
)

var opNames = [...]string{
	OpTransition:        "transition",
	OpBeginRenderPass:   "begin-render-pass",
	OpEndRenderPass:     "end-render-pass",
	OpBindPipeline:      "bind-pipeline",
	OpBindDescriptorSet: "bind-descriptor-set",
	OpPushConstants:     "push-constants",
	OpSetViewport:       "set-viewport",
	OpSetScissor:        "set-scissor",
	OpSetDepthBias:      "set-depth-bias",
	OpBindVertexBuffer:  "bind-vertex-buffer",
	OpBindIndexBuffer:   "bind-index-buffer",
	OpDraw:              "draw",
	OpDrawIndexed:       "draw-indexed",
}

func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return "unknown"
}

// Command is one recorded call. Only the fields relevant to Op are set.
type Command struct {
	Op      Op
	Handles [2]gpu.Handle
	Texture gpu.Texture
	From    gpu.ImageLayout
	To      gpu.ImageLayout
	Width   uint32
	Height  uint32
	Count   uint32
	First   uint32
	Offset  int32
	Clears  []gpu.ClearValues
	Data    []byte
	Rect    gpu.Rect
	Bias    [2]float32
}

// CommandBuffer implements gpu.CommandBuffer by appending to a slice.
type CommandBuffer struct {
	cmds      []Command
	recording bool
	inPass    bool
}

var _ gpu.CommandBuffer = (*CommandBuffer)(nil)

func (c *CommandBuffer) Begin() error {
	if c.recording {
		return errRecording
	}
	c.cmds = c.cmds[:0]
	c.recording = true
	return nil
}

func (c *CommandBuffer) End() error {
	if !c.recording {
		return errNotRecording
	}
	if c.inPass {
		return errInsidePass
	}
	c.recording = false
	return nil
}

func (c *CommandBuffer) record(cmd Command) {
	if !c.recording {
		panic("headless: command " + cmd.Op.String() + " recorded outside Begin/End")
	}
	c.cmds = append(c.cmds, cmd)
}

func (c *CommandBuffer) TransitionLayout(t gpu.Texture, from, to gpu.ImageLayout, _, _ gpu.Access) {
	if c.inPass {
		panic("headless: layout transition inside a render pass")
	}
	c.record(Command{Op: OpTransition, Texture: t, From: from, To: to})
}

func (c *CommandBuffer) BeginRenderPass(renderPass, framebuffer gpu.Handle, width, height uint32, clears []gpu.ClearValues) {
	if c.inPass {
		panic("headless: nested render pass")
	}
	c.inPass = true
	c.record(Command{
		Op:      OpBeginRenderPass,
		Handles: [2]gpu.Handle{renderPass, framebuffer},
		Width:   width,
		Height:  height,
		Clears:  append([]gpu.ClearValues(nil), clears...),
	})
}

func (c *CommandBuffer) EndRenderPass() {
	if !c.inPass {
		panic("headless: end of render pass that was not begun")
	}
	c.record(Command{Op: OpEndRenderPass})
	c.inPass = false
}

func (c *CommandBuffer) BindPipeline(p gpu.Handle) {
	c.record(Command{Op: OpBindPipeline, Handles: [2]gpu.Handle{p}})
}

func (c *CommandBuffer) BindDescriptorSet(layout, set gpu.Handle) {
	c.record(Command{Op: OpBindDescriptorSet, Handles: [2]gpu.Handle{layout, set}})
}

func (c *CommandBuffer) PushConstants(layout gpu.Handle, data []byte) {
	c.record(Command{Op: OpPushConstants, Handles: [2]gpu.Handle{layout}, Data: append([]byte(nil), data...)})
}

func (c *CommandBuffer) SetViewport(width, height uint32) {
	c.record(Command{Op: OpSetViewport, Width: width, Height: height})
}

func (c *CommandBuffer) SetScissor(r gpu.Rect) {
	c.record(Command{Op: OpSetScissor, Rect: r})
}

func (c *CommandBuffer) SetDepthBias(constant, slope float32) {
	c.record(Command{Op: OpSetDepthBias, Bias: [2]float32{constant, slope}})
}

func (c *CommandBuffer) BindVertexBuffer(b gpu.Buffer, offset uint64) {
	c.record(Command{Op: OpBindVertexBuffer, Handles: [2]gpu.Handle{b.Handle}, First: uint32(offset)})
}

func (c *CommandBuffer) BindIndexBuffer(b gpu.Buffer, offset uint64) {
	c.record(Command{Op: OpBindIndexBuffer, Handles: [2]gpu.Handle{b.Handle}, First: uint32(offset)})
}

func (c *CommandBuffer) Draw(vertexCount, firstVertex uint32) {
	c.mustBeInPass("draw")
	c.record(Command{Op: OpDraw, Count: vertexCount, First: firstVertex})
}

func (c *CommandBuffer) DrawIndexed(indexCount, firstIndex uint32, vertexOffset int32) {
	c.mustBeInPass("draw-indexed")
	c.record(Command{Op: OpDrawIndexed, Count: indexCount, First: firstIndex, Offset: vertexOffset})
}

func (c *CommandBuffer) mustBeInPass(what string) {
	if !c.inPass {
		panic("headless: " + what + " outside a render pass")
	}
}

// Ops returns the recorded op sequence.
func Ops(cmds []Command) []Op {
	out := make([]Op, len(cmds))
	for i, c := range cmds {
		out[i] = c.Op
	}
	return out
}

// Filter returns the recorded commands with the given op.
func Filter(cmds []Command, op Op) []Command {
	var out []Command
	for _, c := range cmds {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}
