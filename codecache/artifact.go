// Package codecache stores the results of background compilations,
// content-addressed by bytecode hash. Artifacts carry a compact summary
// of the built graph and a digest of the assumptions the compilation
// depends on; breaking an assumption invalidates every artifact sharing
// its digest.
package codecache

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/ketrewq/v8/bytecode"
	"github.com/ketrewq/v8/ir"
)

// cborEncMode uses canonical mode for deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codecache: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// GraphSummary is the compact shape of a built graph. The graph itself
// stays in memory; only the summary is persisted.
type GraphSummary struct {
	BlockCount int
	NodeCount  int
	PhiCount   int
	DeoptCount int
}

// Summarize walks a graph and counts its blocks, nodes, phis, and deopt
// points (nodes carrying an eager or lazy deopt frame).
func Summarize(g *ir.Graph) GraphSummary {
	var s GraphSummary
	for _, block := range g.Blocks() {
		s.BlockCount++
		s.PhiCount += len(block.Phis())
		nodes := block.Nodes()
		s.NodeCount += len(nodes)
		for _, n := range nodes {
			if n.EagerDeoptInfo() != nil || n.LazyDeoptInfo() != nil {
				s.DeoptCount++
			}
		}
		if ctrl := block.Control(); ctrl != nil {
			s.NodeCount++
			if ctrl.EagerDeoptInfo() != nil || ctrl.LazyDeoptInfo() != nil {
				s.DeoptCount++
			}
		}
	}
	return s
}

// Artifact records one successful compilation.
type Artifact struct {
	FunctionID       string
	BytecodeHash     [32]byte
	Summary          GraphSummary
	DependencyDigest [32]byte
	CreatedAt        time.Time
}

// HashBytecode returns the content hash of a bytecode array's
// instruction stream.
func HashBytecode(a *bytecode.Array) [32]byte {
	return sha256.Sum256(a.Bytes())
}

// MarshalArtifact serializes an Artifact to CBOR bytes.
func MarshalArtifact(a *Artifact) ([]byte, error) {
	return cborEncMode.Marshal(a)
}

// UnmarshalArtifact deserializes an Artifact from CBOR bytes.
func UnmarshalArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("codecache: unmarshal artifact: %w", err)
	}
	return &a, nil
}
