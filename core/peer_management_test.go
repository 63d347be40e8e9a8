package core

import "testing"

func TestPeerManagementDiscoverPeers(t *testing.T) {
	node := &Node{peers: map[NodeID]*Peer{
		"p1": newPeer("p1", "addr1"),
		"p2": newPeer("p2", "addr2"),
	}}
	pm := NewPeerManagement(node)
	infos := pm.DiscoverPeers()
	if len(infos) != 2 {
		t.Fatalf("expected 2 peers, got %d", len(infos))
	}
}

func TestPeerManagementSampleExcludesBanned(t *testing.T) {
	banned := newPeer("p1", "addr1")
	banned.State = Banned
	healthy := newPeer("p2", "addr2")
	healthy.State = Healthy
	node := &Node{peers: map[NodeID]*Peer{"p1": banned, "p2": healthy}}
	pm := NewPeerManagement(node)

	sample := pm.Sample(10)
	if len(sample) != 1 || sample[0] != "p2" {
		t.Fatalf("expected only the healthy peer to be sampled, got %v", sample)
	}
}

func TestPeerManagementSampleCapsAtRequestedCount(t *testing.T) {
	node := &Node{peers: map[NodeID]*Peer{
		"p1": newPeer("p1", "addr1"),
		"p2": newPeer("p2", "addr2"),
		"p3": newPeer("p3", "addr3"),
	}}
	pm := NewPeerManagement(node)
	sample := pm.Sample(2)
	if len(sample) != 2 {
		t.Fatalf("expected sample capped at 2, got %d", len(sample))
	}
}
