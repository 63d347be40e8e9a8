package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPendingWALAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.wal")
	w, items, err := OpenPendingWAL(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()
	if len(items) != 0 {
		t.Fatalf("expected empty log on first open, got %d items", len(items))
	}

	it := PoeItem{GrainID: [32]byte{1}, Author: "a", Reward: 1.5}
	if err := w.Append(it); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := w.Items()
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(got) != 1 || got[0].Author != "a" {
		t.Fatalf("unexpected items: %v", got)
	}
}

func TestPendingWALReopenReplaysPriorEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.wal")
	w, _, err := OpenPendingWAL(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append(PoeItem{GrainID: [32]byte{2}, Author: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	w2, items, err := OpenPendingWAL(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w2.Close()
	if len(items) != 1 || items[0].Author != "b" {
		t.Fatalf("expected replayed entry to survive reopen, got %v", items)
	}
}

func TestPendingWALTruncate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.wal")
	w, _, err := OpenPendingWAL(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Append(PoeItem{GrainID: [32]byte{3}}); err != nil {
		t.Fatal(err)
	}
	if err := w.Truncate(); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	items, err := w.Items()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty log after truncate, got %d", len(items))
	}
}

func TestPendingWALSkipsTornFinalRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.wal")
	if err := os.WriteFile(path, []byte(`{"grain_id":[1],"author":"a"}`+"\n"+`{"grain_id":[2`), 0o600); err != nil {
		t.Fatal(err)
	}
	w, items, err := OpenPendingWAL(path)
	if err != nil {
		t.Fatalf("open with torn record: %v", err)
	}
	defer w.Close()
	if len(items) != 1 {
		t.Fatalf("expected torn final record to be skipped, got %d items", len(items))
	}
}
