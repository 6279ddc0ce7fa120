package codecache

import "sync"

// Store is the in-memory artifact index, keyed by bytecode hash.
type Store struct {
	mu        sync.RWMutex
	artifacts map[[32]byte]*Artifact
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{artifacts: make(map[[32]byte]*Artifact)}
}

// Put indexes an artifact by its bytecode hash. Artifacts with a zero
// hash are silently ignored.
func (s *Store) Put(a *Artifact) {
	if a.BytecodeHash == [32]byte{} {
		return
	}
	s.mu.Lock()
	s.artifacts[a.BytecodeHash] = a
	s.mu.Unlock()
}

// Get returns the artifact for the given bytecode hash, or nil.
func (s *Store) Get(h [32]byte) *Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.artifacts[h]
}

// Has reports whether the store contains an artifact for the hash.
func (s *Store) Has(h [32]byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.artifacts[h]
	return ok
}

// Invalidate removes every artifact whose compilation depends on the
// given assumption digest and returns how many were removed.
func (s *Store) Invalidate(digest [32]byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for h, a := range s.artifacts {
		if a.DependencyDigest == digest {
			delete(s.artifacts, h)
			removed++
		}
	}
	return removed
}

// Len returns the number of indexed artifacts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artifacts)
}

// Hashes returns all indexed bytecode hashes.
func (s *Store) Hashes() [][32]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hashes := make([][32]byte, 0, len(s.artifacts))
	for h := range s.artifacts {
		hashes = append(hashes, h)
	}
	return hashes
}
