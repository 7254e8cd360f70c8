package scene

// Node is a minimal scene-graph element. Every insert owns a subtree rooted
// at a single node; the render loop walks these trees once per frame.
type Node struct {
	Name     string
	X, Y     float64
	ScaleX   float64
	ScaleY   float64
	Rotation float64
	Alpha    float64
	Visible  bool

	// Texture names the image drawn for this node, empty for pure
	// containers and text nodes.
	Texture string

	// Text holds rendered glyph content for label and narration nodes.
	Text     string
	FontSize float64
	Font     string
	Color    string

	parent   *Node
	children []*Node
}

func NewNode(name string) *Node {
	return &Node{
		Name:    name,
		ScaleX:  1,
		ScaleY:  1,
		Alpha:   1,
		Visible: true,
	}
}

// AddChild appends child to n, detaching it from any previous parent.
func (n *Node) AddChild(child *Node) {
	if n == nil || child == nil || child == n {
		return
	}
	child.Detach()
	child.parent = n
	n.children = append(n.children, child)
}

// Detach removes n from its parent, leaving its own subtree intact.
func (n *Node) Detach() {
	if n == nil || n.parent == nil {
		return
	}
	siblings := n.parent.children
	for i, sibling := range siblings {
		if sibling == n {
			n.parent.children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	n.parent = nil
}

// Child returns the first direct child with the given name.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, child := range n.children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// Children returns a copy of the direct child list.
func (n *Node) Children() []*Node {
	if n == nil || len(n.children) == 0 {
		return nil
	}
	copied := make([]*Node, len(n.children))
	copy(copied, n.children)
	return copied
}

// Parent returns the node's current parent, nil for roots.
func (n *Node) Parent() *Node {
	if n == nil {
		return nil
	}
	return n.parent
}

// Walk visits n and every descendant depth-first. The visit function may
// return false to skip a subtree.
func (n *Node) Walk(visit func(*Node) bool) {
	if n == nil || visit == nil {
		return
	}
	if !visit(n) {
		return
	}
	for _, child := range n.children {
		child.Walk(visit)
	}
}

// Destroy detaches n and severs its subtree so stray animation callbacks
// holding a reference cannot re-render stale content.
func (n *Node) Destroy() {
	if n == nil {
		return
	}
	n.Detach()
	for _, child := range n.children {
		child.parent = nil
		child.Destroy()
	}
	n.children = nil
	n.Visible = false
}
