package ir

import "fmt"

// BasicBlock is a linear sequence of value nodes terminated by exactly
// one control node.
type BasicBlock struct {
	id           uint32
	phis         []*Node
	nodes        []*Node
	control      *Node
	predecessors []*BasicBlock
	isLoop       bool
}

// ID returns the block's graph-unique id.
func (b *BasicBlock) ID() uint32 { return b.id }

// Phis returns the block's phi nodes.
func (b *BasicBlock) Phis() []*Node { return b.phis }

// Nodes returns the block's non-phi value nodes in order.
func (b *BasicBlock) Nodes() []*Node { return b.nodes }

// Control returns the block's terminating control node, or nil while the
// block is still open.
func (b *BasicBlock) Control() *Node { return b.control }

// Predecessors returns the blocks that jump to this one.
func (b *BasicBlock) Predecessors() []*BasicBlock { return b.predecessors }

// IsLoop reports whether the block is a loop header.
func (b *BasicBlock) IsLoop() bool { return b.isLoop }

// AddNode appends a value node. The block must still be open.
func (b *BasicBlock) AddNode(n *Node) {
	if b.control != nil {
		panic(fmt.Sprintf("ir: adding %s to closed block b%d", n, b.id))
	}
	if n.Op() == OpPhi {
		b.phis = append(b.phis, n)
		return
	}
	b.nodes = append(b.nodes, n)
}

// SetControl closes the block with its control node.
func (b *BasicBlock) SetControl(n *Node) {
	if b.control != nil {
		panic(fmt.Sprintf("ir: block b%d terminated twice", b.id))
	}
	if !n.Op().IsControl() {
		panic(fmt.Sprintf("ir: %s is not a control node", n))
	}
	b.control = n
}

// AddPredecessor links an incoming edge.
func (b *BasicBlock) AddPredecessor(pred *BasicBlock) {
	b.predecessors = append(b.predecessors, pred)
}

func (b *BasicBlock) String() string { return fmt.Sprintf("b%d", b.id) }

// BasicBlockRef is a forward-declaration cell for a block that may not
// exist yet. Jumps to not-yet-built bytecode hold a ref; once the target
// block materializes the ref is bound exactly once.
type BasicBlockRef struct {
	block *BasicBlock
}

// NewBasicBlockRef returns an unbound ref.
func NewBasicBlockRef() *BasicBlockRef { return &BasicBlockRef{} }

// Bind resolves the ref. Binding twice is a builder bug.
func (r *BasicBlockRef) Bind(b *BasicBlock) {
	if r.block != nil {
		panic("ir: block ref bound twice")
	}
	r.block = b
}

// IsBound reports whether the ref has been resolved.
func (r *BasicBlockRef) IsBound() bool { return r.block != nil }

// Block returns the resolved block; panics if still unbound.
func (r *BasicBlockRef) Block() *BasicBlock {
	if r.block == nil {
		panic("ir: reading unbound block ref")
	}
	return r.block
}
