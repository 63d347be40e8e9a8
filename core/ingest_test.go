package core

import (
	"path/filepath"
	"testing"
)

func newTestIngester(t *testing.T) (*Ingester, *Store) {
	t.Helper()
	store := openTestStore(t)
	index := NewAnnIndex()
	reuse := NewReuseCounter(store)
	wal, _, err := OpenPendingWAL(filepath.Join(t.TempDir(), "pending.wal"))
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	t.Cleanup(func() { wal.Close() })
	return NewIngester(store, index, reuse, wal, DefaultPoEWeights()), store
}

func mintGrain(t *testing.T, author NodeID, seed float32) (*Grain, *KeyPair) {
	t.Helper()
	kp, err := GenerateKeyPair(Classical)
	if err != nil {
		t.Fatal(err)
	}
	g, err := NewGrain(testVector(256, seed), GrainMeta{Author: author, Mime: "text/plain", Lang: "en"}, kp)
	if err != nil {
		t.Fatal(err)
	}
	return g, kp
}

func TestIngestLocalStoresIndexesAndLogsPending(t *testing.T) {
	ig, store := newTestIngester(t)
	g, _ := mintGrain(t, "author-1", 1.0)

	item, err := ig.IngestLocal(g, nil)
	if err != nil {
		t.Fatalf("ingest local: %v", err)
	}
	if item.Novelty != 1 {
		t.Fatalf("expected maximal novelty for the first grain, got %f", item.Novelty)
	}

	if _, err := store.GetGrain(g.ID); err != nil {
		t.Fatalf("expected grain persisted: %v", err)
	}
	if ig.index.Len() != 1 {
		t.Fatalf("expected indexed vector count 1, got %d", ig.index.Len())
	}
	pending, err := ig.wal.Items()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].GrainID != g.ID {
		t.Fatalf("expected one pending PoE item for the ingested grain, got %v", pending)
	}
}

func TestIngestRemoteNovelGrainCreditsReputation(t *testing.T) {
	ig, _ := newTestIngester(t)
	g, _ := mintGrain(t, "author-1", 1.0)

	n := &Node{peers: map[NodeID]*Peer{"peer-a": newPeer("peer-a", "addr")}}
	if err := ig.IngestRemote(n, "peer-a", g); err != nil {
		t.Fatalf("ingest remote: %v", err)
	}
	if got := n.peers["peer-a"].Reputation; got != 1 {
		t.Fatalf("expected +1 reputation for a novel verified grain, got %d", got)
	}
}

func TestIngestRemoteDuplicateDropsSilently(t *testing.T) {
	ig, _ := newTestIngester(t)
	g, _ := mintGrain(t, "author-1", 1.0)

	n := &Node{peers: map[NodeID]*Peer{"peer-a": newPeer("peer-a", "addr")}}
	if err := ig.IngestRemote(n, "peer-a", g); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if err := ig.IngestRemote(n, "peer-a", g); err != nil {
		t.Fatalf("expected duplicate to be dropped without error, got %v", err)
	}
	if got := n.peers["peer-a"].Reputation; got != 1 {
		t.Fatalf("expected reputation unchanged by a duplicate, got %d", got)
	}
}

func TestIngestRemoteInvalidGrainBansSender(t *testing.T) {
	ig, _ := newTestIngester(t)
	g, _ := mintGrain(t, "author-1", 1.0)
	g.Vector[0] += 1.0 // invalidate the id/signature binding

	n := &Node{peers: map[NodeID]*Peer{"peer-a": newPeer("peer-a", "addr")}}
	if err := ig.IngestRemote(n, "peer-a", g); err == nil {
		t.Fatal("expected verification failure for a tampered grain")
	}
	p := n.peers["peer-a"]
	if p.Reputation != -5 || p.State != Banned {
		t.Fatalf("expected a single signature failure to ban (-5), got reputation=%d state=%s", p.Reputation, p.State)
	}
}
