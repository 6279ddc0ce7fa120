package broker

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// ErrDependencyInvalidated is returned by Commit when an assumption the
// compilation relied on no longer holds.
var ErrDependencyInvalidated = errors.New("broker: dependency invalidated")

// Protector is a runtime-wide assumption cell (e.g. "no one patched
// Array.prototype"). Once invalidated it never becomes intact again.
type Protector struct {
	Name   string
	intact bool
}

// NewProtector returns an intact protector cell.
func NewProtector(name string) *Protector {
	return &Protector{Name: name, intact: true}
}

// IsIntact reports whether the assumption still holds.
func (p *Protector) IsIntact() bool { return p.intact }

// Invalidate permanently breaks the assumption.
func (p *Protector) Invalidate() { p.intact = false }

// Dependencies accumulates the assumptions one compilation registers.
// Commit re-validates all of them; a compilation whose dependencies fail
// to commit is discarded.
type Dependencies struct {
	stableMaps []*Map
	protectors []*Protector
}

// NewDependencies returns an empty dependency set.
func NewDependencies() *Dependencies {
	return &Dependencies{}
}

// DependOnStableMap registers a stability dependency. The map must be
// stable at registration time; registering an unstable map is a builder
// bug.
func (d *Dependencies) DependOnStableMap(m *Map) {
	if !m.IsStable() {
		panic("broker: stable-map dependency on unstable map")
	}
	d.stableMaps = append(d.stableMaps, m)
}

// DependOnProtector registers a protector dependency. Returns false if
// the protector is already invalidated, in which case no dependency is
// recorded and the caller must not use the protected fast path.
func (d *Dependencies) DependOnProtector(p *Protector) bool {
	if !p.IsIntact() {
		return false
	}
	d.protectors = append(d.protectors, p)
	return true
}

// StableMapCount returns the number of registered stable-map
// dependencies.
func (d *Dependencies) StableMapCount() int { return len(d.stableMaps) }

// DependsOnStability reports whether a stability dependency on m was
// registered.
func (d *Dependencies) DependsOnStability(m *Map) bool {
	for _, dep := range d.stableMaps {
		if dep == m {
			return true
		}
	}
	return false
}

// Digest returns a content hash of the dependency set: the structural
// layout of every stable map in registration order plus the sorted
// protector names. Two compilations relying on the same assumptions
// digest equal, so a cached artifact can be invalidated by digest when
// an assumption breaks.
func (d *Dependencies) Digest() [32]byte {
	h := sha256.New()
	var buf [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	for _, m := range d.stableMaps {
		writeInt(int(m.InstanceType()))
		writeInt(int(m.ElementsKind()))
		fields := m.Fields()
		writeInt(len(fields))
		for _, f := range fields {
			h.Write([]byte(f.Name))
			writeInt(f.Offset)
			writeInt(int(f.Representation))
		}
	}
	names := make([]string, len(d.protectors))
	for i, p := range d.protectors {
		names[i] = p.Name
	}
	sort.Strings(names)
	for _, n := range names {
		h.Write([]byte(n))
	}
	var digest [32]byte
	h.Sum(digest[:0])
	return digest
}

// Commit re-checks every registered dependency. It returns
// ErrDependencyInvalidated (wrapped with the offending assumption) if any
// no longer holds.
func (d *Dependencies) Commit() error {
	for _, m := range d.stableMaps {
		if !m.IsStable() {
			return fmt.Errorf("stable map became unstable: %w", ErrDependencyInvalidated)
		}
	}
	for _, p := range d.protectors {
		if !p.IsIntact() {
			return fmt.Errorf("protector %s: %w", p.Name, ErrDependencyInvalidated)
		}
	}
	return nil
}
