package scene

import "sync"

// Renderer consumes one insert subtree per call during a frame pass. The
// engine is headless; hosts plug in whatever draw backend they have.
type Renderer interface {
	Render(root *Node) error
}

// RendererFunc adapts functions into the Renderer interface.
type RendererFunc func(root *Node) error

func (f RendererFunc) Render(root *Node) error {
	if f == nil {
		return nil
	}
	return f(root)
}

// DrawOp is a flattened record of a visible node, captured by MemoryRenderer.
type DrawOp struct {
	Name    string
	Texture string
	Text    string
	X, Y    float64
	Alpha   float64
}

// MemoryRenderer records every visible node it is asked to draw. Used by
// tests and the headless demo client.
type MemoryRenderer struct {
	mu     sync.Mutex
	frames int
	ops    []DrawOp
}

func NewMemoryRenderer() *MemoryRenderer {
	return &MemoryRenderer{}
}

func (r *MemoryRenderer) Render(root *Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
	root.Walk(func(n *Node) bool {
		if !n.Visible || n.Alpha <= 0 {
			return false
		}
		r.ops = append(r.ops, DrawOp{
			Name:    n.Name,
			Texture: n.Texture,
			Text:    n.Text,
			X:       n.X,
			Y:       n.Y,
			Alpha:   n.Alpha,
		})
		return true
	})
	return nil
}

// Ops returns a copy of everything recorded so far.
func (r *MemoryRenderer) Ops() []DrawOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make([]DrawOp, len(r.ops))
	copy(copied, r.ops)
	return copied
}

// Frames reports how many subtree passes have run.
func (r *MemoryRenderer) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Reset clears recorded ops between test phases.
func (r *MemoryRenderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = r.ops[:0]
}
