package ir

// zoneChunkSize is the number of nodes per arena chunk.
const zoneChunkSize = 256

// Zone is the bump arena owning every node of one compilation. Nodes are
// never freed individually; the whole zone is dropped after code
// generation. Blocks hold only non-owning references.
type Zone struct {
	chunks [][]Node
	used   int // nodes used in the last chunk
	count  int
}

// NewZone returns an empty arena.
func NewZone() *Zone { return &Zone{} }

// allocate hands out the next node slot.
func (z *Zone) allocate() *Node {
	if len(z.chunks) == 0 || z.used == zoneChunkSize {
		z.chunks = append(z.chunks, make([]Node, zoneChunkSize))
		z.used = 0
	}
	n := &z.chunks[len(z.chunks)-1][z.used]
	z.used++
	z.count++
	return n
}

// NodeCount returns the number of nodes allocated so far.
func (z *Zone) NodeCount() int { return z.count }
