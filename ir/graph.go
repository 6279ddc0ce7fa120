package ir

import "math"

// Graph is the ordered collection of basic blocks produced by one
// compilation, plus the constant caches that deduplicate constant nodes.
// The zone owning all nodes is shared with nested (inlined) builders.
type Graph struct {
	zone   *Zone
	blocks []*BasicBlock

	nextNodeID  uint32
	nextBlockID uint32

	smiConstants     map[int32]*Node
	int32Constants   map[int32]*Node
	float64Constants map[uint64]*Node
	rootConstants    map[RootIndex]*Node
	heapConstants    map[any]*Node
}

// NewGraph creates an empty graph with a fresh zone.
func NewGraph() *Graph {
	return &Graph{
		zone:             NewZone(),
		smiConstants:     make(map[int32]*Node),
		int32Constants:   make(map[int32]*Node),
		float64Constants: make(map[uint64]*Node),
		rootConstants:    make(map[RootIndex]*Node),
		heapConstants:    make(map[any]*Node),
	}
}

// Zone returns the graph's arena.
func (g *Graph) Zone() *Zone { return g.zone }

// Blocks returns the block list in creation order.
func (g *Graph) Blocks() []*BasicBlock { return g.blocks }

// NewBlock creates and registers an open basic block.
func (g *Graph) NewBlock() *BasicBlock {
	b := &BasicBlock{id: g.nextBlockID}
	g.nextBlockID++
	g.blocks = append(g.blocks, b)
	return b
}

// NewLoopBlock creates a loop-header block.
func (g *Graph) NewLoopBlock() *BasicBlock {
	b := g.NewBlock()
	b.isLoop = true
	return b
}

// NewNode allocates a node in the zone.
func (g *Graph) NewNode(op Opcode, repr ValueRepresentation, payload Payload, inputs ...*Node) *Node {
	n := g.zone.allocate()
	n.id = g.nextNodeID
	g.nextNodeID++
	n.opcode = op
	n.repr = repr
	n.payload = payload
	n.inputs = inputs
	return n
}

// SmiConstant returns the canonical SmiConstant node for value.
func (g *Graph) SmiConstant(value int32) *Node {
	if n, ok := g.smiConstants[value]; ok {
		return n
	}
	n := g.NewNode(OpSmiConstant, ReprTagged, SmiData{Value: value})
	g.smiConstants[value] = n
	return n
}

// Int32Constant returns the canonical Int32Constant node for value.
func (g *Graph) Int32Constant(value int32) *Node {
	if n, ok := g.int32Constants[value]; ok {
		return n
	}
	n := g.NewNode(OpInt32Constant, ReprInt32, Int32Data{Value: value})
	g.int32Constants[value] = n
	return n
}

// Float64Constant returns the canonical Float64Constant node for value.
// NaNs collapse onto a single cached node.
func (g *Graph) Float64Constant(value float64) *Node {
	key := math.Float64bits(value)
	if math.IsNaN(value) {
		key = math.Float64bits(math.NaN())
	}
	if n, ok := g.float64Constants[key]; ok {
		return n
	}
	n := g.NewNode(OpFloat64Constant, ReprFloat64, Float64Data{Value: value})
	g.float64Constants[key] = n
	return n
}

// RootConstant returns the canonical node for a root singleton.
func (g *Graph) RootConstant(index RootIndex) *Node {
	if n, ok := g.rootConstants[index]; ok {
		return n
	}
	n := g.NewNode(OpRootConstant, ReprTagged, RootData{Index: index})
	g.rootConstants[index] = n
	return n
}

// HeapConstant returns the canonical node for a heap constant. Values
// must be comparable (strings, interned numbers, pointers compared by
// identity); that holds for everything the builder feeds through here.
func (g *Graph) HeapConstant(value any) *Node {
	if n, ok := g.heapConstants[value]; ok {
		return n
	}
	n := g.NewNode(OpConstant, ReprTagged, HeapData{Value: value})
	g.heapConstants[value] = n
	return n
}
