package compilerstore

import (
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open compile cache: %v", err)
	}
	defer s.Close()

	hash := "deadbeef"
	module := []byte{0x00, 0x61, 0x73, 0x6d}

	runID, err := s.Put(hash, module, []string{}, false)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if runID == "" {
		t.Fatal("expected a non-empty run ID")
	}

	entry, ok, err := s.Get(hash)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if entry.RunID != runID {
		t.Errorf("expected run ID %s, got %s", runID, entry.RunID)
	}
	if string(entry.Module) != string(module) {
		t.Errorf("module bytes did not round-trip")
	}
	if entry.HasErrors {
		t.Error("expected HasErrors false")
	}
}

func TestGetMiss(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open compile cache: %v", err)
	}
	defer s.Close()

	_, ok, err := s.Get("nonexistent")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Fatal("expected a cache miss")
	}
}

func TestPutOverwritesSameHash(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open compile cache: %v", err)
	}
	defer s.Close()

	hash := "abc123"
	if _, err := s.Put(hash, []byte("first"), nil, false); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}
	if _, err := s.Put(hash, []byte("second"), nil, true); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	entry, ok, err := s.Get(hash)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if string(entry.Module) != "second" {
		t.Errorf("expected overwritten module bytes, got %q", entry.Module)
	}
	if !entry.HasErrors {
		t.Error("expected HasErrors true after overwrite")
	}
}

func TestEvict(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open compile cache: %v", err)
	}
	defer s.Close()

	hash := "to-evict"
	if _, err := s.Put(hash, []byte("x"), nil, false); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Evict(hash); err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	if _, ok, _ := s.Get(hash); ok {
		t.Fatal("expected cache miss after evict")
	}
}
