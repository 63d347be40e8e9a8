package core

import "testing"

func TestAnnIndexAddAndSearch(t *testing.T) {
	idx := NewAnnIndex()
	var a, b, c [32]byte
	a[0], b[0], c[0] = 1, 2, 3
	idx.Add(a, testVector(256, 1.0))
	idx.Add(b, testVector(256, 1.0))
	idx.Add(c, testVector(256, -1.0))

	if idx.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", idx.Len())
	}

	results, err := idx.Search(testVector(256, 1.0), 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestAnnIndexSearchRejectsNonPositiveK(t *testing.T) {
	idx := NewAnnIndex()
	if _, err := idx.Search(testVector(256, 1.0), 0); err == nil {
		t.Fatal("expected error for k=0")
	}
}

func TestAnnIndexRebuildFromStore(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 4; i++ {
		g := testGrain(t, NodeID(string(rune('a'+i))))
		if err := s.InsertGrain(g); err != nil {
			t.Fatal(err)
		}
	}
	idx := NewAnnIndex()
	if idx.Len() != 0 {
		t.Fatal("expected fresh index to be empty")
	}
	if err := idx.Rebuild(s); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if idx.Len() != 4 {
		t.Fatalf("expected 4 entries after rebuild, got %d", idx.Len())
	}
}

func TestAnnIndexIsEmpty(t *testing.T) {
	idx := NewAnnIndex()
	if !idx.IsEmpty() {
		t.Fatal("expected fresh index to report empty")
	}
	var id [32]byte
	idx.Add(id, testVector(256, 1.0))
	if idx.IsEmpty() {
		t.Fatal("expected non-empty index after Add")
	}
}
