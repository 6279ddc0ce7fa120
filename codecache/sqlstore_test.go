package codecache

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	a := sampleArtifact()
	if err := s.Put(a); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(a.BytecodeHash)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FunctionID != a.FunctionID || got.Summary != a.Summary {
		t.Errorf("got %+v, want %+v", got, a)
	}
	if got.DependencyDigest != a.DependencyDigest {
		t.Errorf("DependencyDigest = %x, want %x", got.DependencyDigest, a.DependencyDigest)
	}
}

func TestSQLStoreGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get([32]byte{42})
	if !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("err = %v, want ErrArtifactNotFound", err)
	}
}

func TestSQLStoreReplace(t *testing.T) {
	s := openTestStore(t)
	a := sampleArtifact()
	if err := s.Put(a); err != nil {
		t.Fatalf("put: %v", err)
	}
	a.Summary.NodeCount = 99
	if err := s.Put(a); err != nil {
		t.Fatalf("second put: %v", err)
	}
	got, err := s.Get(a.BytecodeHash)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Summary.NodeCount != 99 {
		t.Errorf("NodeCount = %d, want 99", got.Summary.NodeCount)
	}
}

func TestSQLStoreInvalidate(t *testing.T) {
	s := openTestStore(t)
	for i, digest := range []byte{10, 10, 20} {
		a := artifactWith(byte(i+1), digest)
		if err := s.Put(a); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	removed, err := s.Invalidate([32]byte{10})
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, err := s.Get([32]byte{1}); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("invalidated artifact still present")
	}
	if _, err := s.Get([32]byte{3}); err != nil {
		t.Errorf("unrelated artifact removed: %v", err)
	}
}
