package graph

import (
	"slices"

	"github.com/vsariola/kaiku"
)

type (
	// Node is anything that can be connected in the graph.
	Node interface {
		base() *node
	}

	// kernel is the per-node processing. For processing nodes, buf holds the
	// sum of all inputs when process is called, and the kernel transforms it
	// in place. For sources, buf is zeroed and the kernel fills it.
	kernel interface {
		process(frame int64, buf kaiku.AudioBuffer)
	}

	node struct {
		ctx     *Context
		kernel  kernel
		source  bool
		inputs  []Node
		outputs []Node
		buf     kaiku.AudioBuffer
		at      int64
		valid   bool
	}
)

func (n *node) base() *node {
	return n
}

func (n *node) setup(ctx *Context, k kernel, source bool) {
	n.ctx = ctx
	n.kernel = k
	n.source = source
}

// pull returns the output of the node for the block starting at frame. The
// output is cached, so a node feeding several others is only rendered once
// per block.
func (n *node) pull(frame int64, frames int) kaiku.AudioBuffer {
	if n.valid && n.at == frame && len(n.buf) == frames {
		return n.buf
	}
	n.buf = n.buf.Resize(frames)
	clear(n.buf)
	if !n.source {
		for _, in := range n.inputs {
			n.buf.Add(in.base().pull(frame, frames))
		}
	}
	n.kernel.process(frame, n.buf)
	n.at, n.valid = frame, true
	return n.buf
}

// Connect routes the output of src into dst. Connecting the same pair twice
// has no effect.
func Connect(src, dst Node) {
	s, d := src.base(), dst.base()
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	if slices.Contains(d.inputs, src) {
		return
	}
	d.inputs = append(d.inputs, src)
	s.outputs = append(s.outputs, dst)
}

// Disconnect removes all outgoing connections of n.
func Disconnect(n Node) {
	s := n.base()
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	for _, out := range s.outputs {
		d := out.base()
		d.inputs = slices.DeleteFunc(d.inputs, func(in Node) bool { return in == n })
	}
	s.outputs = nil
}

// DisconnectFrom removes the connection from src to dst, if any.
func DisconnectFrom(src, dst Node) {
	s, d := src.base(), dst.base()
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	d.inputs = slices.DeleteFunc(d.inputs, func(in Node) bool { return in == src })
	s.outputs = slices.DeleteFunc(s.outputs, func(out Node) bool { return out == dst })
}

// Outputs returns the number of nodes n is connected to.
func Outputs(n Node) int {
	s := n.base()
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return len(s.outputs)
}

// Inputs returns the number of nodes connected to n.
func Inputs(n Node) int {
	s := n.base()
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()
	return len(s.inputs)
}
