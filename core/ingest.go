package core

// The grain ingest path: the single route by which a grain, whether minted
// locally or received over grains.put, enters the durable store, enters the
// ANN index, accrues a PoE score to the pending epoch log, and (for remote
// grains) moves the submitting peer's reputation. cmd/cli/grain.go and the
// grains.put gossip loop below are its only callers.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ingestNeighborK bounds how many existing grains are consulted for
// novelty/coherence scoring, matching the ANN index's connectivity (M=16).
const ingestNeighborK = 16

// Ingester wires the store, ANN index, reuse accounting and pending WAL
// into one scoring path.
type Ingester struct {
	store   *Store
	index   *AnnIndex
	reuse   *ReuseCounter
	wal     *PendingWAL
	weights PoEWeights
}

// NewIngester wires the ingest path's collaborators. A zero-valued weights
// falls back to DefaultPoEWeights.
func NewIngester(store *Store, index *AnnIndex, reuse *ReuseCounter, wal *PendingWAL, weights PoEWeights) *Ingester {
	if weights == (PoEWeights{}) {
		weights = DefaultPoEWeights()
	}
	return &Ingester{store: store, index: index, reuse: reuse, wal: wal, weights: weights}
}

// neighborVectors returns the vectors of up to ingestNeighborK grains
// currently nearest vec, the local comparison set novelty and coherence are
// scored against. An empty index yields no neighbors rather than an error.
func (ig *Ingester) neighborVectors(vec []float32) [][]float32 {
	if ig.index.IsEmpty() {
		return nil
	}
	ids, err := ig.index.Search(vec, ingestNeighborK)
	if err != nil {
		return nil
	}
	out := make([][]float32, 0, len(ids))
	for _, id := range ids {
		g, err := ig.store.GetGrain(id)
		if err != nil {
			continue
		}
		out = append(out, g.Vector)
	}
	return out
}

// score computes g's PoE contribution against neighbors and appends it to
// the pending WAL. Called only after g is durably inserted and indexed.
func (ig *Ingester) score(g *Grain, neighbors [][]float32) (PoeItem, error) {
	reuseCount, err := ig.reuse.Count(g.ID)
	if err != nil {
		return PoeItem{}, fmt.Errorf("ingest: reuse count: %w", err)
	}
	novelty := Novelty(g.Vector, neighbors)
	coherence := Coherence(g.Vector, neighbors)
	ps := PoEScore{GrainID: g.ID, Novelty: novelty, Coherence: coherence, Reuse: reuseCount}
	item := PoeItem{
		GrainID:   g.ID,
		Author:    g.Meta.Author,
		Novelty:   novelty,
		Coherence: coherence,
		Reuse:     reuseCount,
		Reward:    ps.Reward(ig.weights),
	}
	if err := ig.wal.Append(item); err != nil {
		return PoeItem{}, fmt.Errorf("ingest: wal append: %w", err)
	}
	return item, nil
}

// IngestLocal stores, indexes and scores a grain this node's own identity
// just minted. Links are inserted after the grain so they can never
// reference an id the store doesn't have yet; a link insertion failure is
// logged and skipped rather than rolling back the grain.
func (ig *Ingester) IngestLocal(g *Grain, links []*Link) (*PoeItem, error) {
	neighbors := ig.neighborVectors(g.Vector)
	if err := ig.store.InsertGrain(g); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	ig.index.Add(g.ID, g.Vector)
	item, err := ig.score(g, neighbors)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		if err := ig.store.InsertLink(l); err != nil {
			logrus.Warnf("ingest: link %x -> %x: %v", l.From, l.To, err)
		}
	}
	return &item, nil
}

// IngestRemote applies a grain received over grains.put from peer: verify
// (via InsertGrain), insert, index, score, and move the sender's
// reputation. A duplicate id is dropped silently with no reputation change.
// A grain that fails id/signature verification costs the sender -5 and is
// never stored or scored. A successfully ingested, previously-unseen grain
// earns the sender +1.
func (ig *Ingester) IngestRemote(node *Node, peer NodeID, g *Grain) error {
	neighbors := ig.neighborVectors(g.Vector)
	if err := ig.store.InsertGrain(g); err != nil {
		if errors.Is(err, ErrAlreadyPresent) {
			return nil
		}
		node.AdjustReputation(peer, -5)
		return fmt.Errorf("ingest: %w", err)
	}
	ig.index.Add(g.ID, g.Vector)
	if _, err := ig.score(g, neighbors); err != nil {
		return err
	}
	node.AdjustReputation(peer, 1)
	return nil
}

// IngestRemoteLink applies a link received over grains.put: verify and
// store it. A link carries no PoE score of its own; a verification failure
// costs the sender the same -5 a bad grain does.
func (ig *Ingester) IngestRemoteLink(node *Node, peer NodeID, l *Link) error {
	if err := ig.store.InsertLink(l); err != nil {
		node.AdjustReputation(peer, -5)
		return fmt.Errorf("ingest: link: %w", err)
	}
	return nil
}

// ServeGossipIngest subscribes to grains.put and applies every arriving
// grain or link through the ingest path until ctx is cancelled. Run as a
// background goroutine once per node, alongside QueryCoordinator's loops.
func (ig *Ingester) ServeGossipIngest(ctx context.Context, node *Node) error {
	ch, err := node.SubscribeEnvelopes(TopicGrainsPut)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case em, ok := <-ch:
				if !ok {
					return
				}
				ig.handleEnvelope(node, em)
			}
		}
	}()
	return nil
}

func (ig *Ingester) handleEnvelope(node *Node, em EnvelopeMessage) {
	switch em.Envelope.Kind {
	case "grain":
		var g Grain
		if err := json.Unmarshal(em.Envelope.Body, &g); err != nil {
			logrus.Debugf("ingest: malformed grain envelope from %s: %v", em.From, err)
			node.AdjustReputation(em.From, -5)
			return
		}
		if err := ig.IngestRemote(node, em.From, &g); err != nil {
			logrus.Debugf("ingest: grain from %s rejected: %v", em.From, err)
		}
	case "link":
		var l Link
		if err := json.Unmarshal(em.Envelope.Body, &l); err != nil {
			logrus.Debugf("ingest: malformed link envelope from %s: %v", em.From, err)
			node.AdjustReputation(em.From, -5)
			return
		}
		if err := ig.IngestRemoteLink(node, em.From, &l); err != nil {
			logrus.Debugf("ingest: link from %s rejected: %v", em.From, err)
		}
	default:
		logrus.Debugf("ingest: unexpected envelope kind %q on grains.put from %s", em.Envelope.Kind, em.From)
	}
}

// BroadcastGrain publishes a locally ingested grain (and any of its links)
// on grains.put so peers can run the same ingest path.
func BroadcastGrain(node *Node, g *Grain, links []*Link) error {
	genv, err := NewGrainEnvelope(g)
	if err != nil {
		return fmt.Errorf("ingest: encode grain envelope: %w", err)
	}
	if err := node.PublishEnvelope(TopicGrainsPut, *genv); err != nil {
		return fmt.Errorf("ingest: broadcast grain: %w", err)
	}
	for _, l := range links {
		lenv, err := NewLinkEnvelope(l)
		if err != nil {
			return fmt.Errorf("ingest: encode link envelope: %w", err)
		}
		if err := node.PublishEnvelope(TopicGrainsPut, *lenv); err != nil {
			return fmt.Errorf("ingest: broadcast link %x -> %x: %w", l.From, l.To, err)
		}
	}
	return nil
}
