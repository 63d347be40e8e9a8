package core

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grains.db")
	s, err := OpenStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testGrain(t *testing.T, author NodeID) *Grain {
	t.Helper()
	kp, err := GenerateKeyPair(Classical)
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGrain(testVector(256, 1.0), GrainMeta{Author: author}, kp)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestStoreMigratesToCurrentSchema(t *testing.T) {
	s := openTestStore(t)
	v, err := s.SchemaVersion()
	if err != nil {
		t.Fatal(err)
	}
	if v != currentSchemaVersion {
		t.Fatalf("expected schema version %d, got %d", currentSchemaVersion, v)
	}
}

func TestInsertAndGetGrain(t *testing.T) {
	s := openTestStore(t)
	g := testGrain(t, "author-1")
	if err := s.InsertGrain(g); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.GetGrain(g.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != g.ID {
		t.Fatal("expected fetched grain id to match")
	}
}

func TestInsertGrainDuplicateReturnsAlreadyPresent(t *testing.T) {
	s := openTestStore(t)
	g := testGrain(t, "author-1")
	if err := s.InsertGrain(g); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertGrain(g); err != ErrAlreadyPresent {
		t.Fatalf("expected ErrAlreadyPresent, got %v", err)
	}
}

func TestGetGrainNotFound(t *testing.T) {
	s := openTestStore(t)
	var id [32]byte
	if _, err := s.GetGrain(id); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCountAndAllGrains(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 3; i++ {
		g := testGrain(t, NodeID(string(rune('a'+i))))
		if err := s.InsertGrain(g); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.CountGrains()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 grains, got %d", n)
	}
	seen := 0
	err = s.AllGrains(func(g *Grain) bool {
		seen++
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	if seen != 3 {
		t.Fatalf("expected to iterate 3 grains, got %d", seen)
	}
}

func TestInsertAndQueryLink(t *testing.T) {
	s := openTestStore(t)
	kp, _ := GenerateKeyPair(Classical)
	var from, to [32]byte
	from[0] = 9
	to[0] = 10
	l, err := NewLink(from, to, LinkRelatesTo, kp)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.InsertLink(l); err != nil {
		t.Fatalf("insert link: %v", err)
	}
	out, err := s.OutgoingLinks(from)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].To != to {
		t.Fatalf("expected one outgoing link to %x, got %v", to, out)
	}
}
