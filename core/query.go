package core

// Distributed KNN query: a node publishes a query vector to its peers over
// gossip, merges their local top-k results with its own, and
// returns whatever has arrived by the deadline, tolerating peers that never
// answer.

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// KNNResult is one scored match returned by a local or remote search.
type KNNResult struct {
	GrainID [32]byte `json:"grain_id"`
	Score   float64  `json:"score"` // cosine similarity, higher is closer
	Origin  NodeID   `json:"origin"`
}

// QueryKNNRequest is gossiped on TopicQueryKNN to ask peers for their local
// top-k matches to Vector.
type QueryKNNRequest struct {
	QueryID string    `json:"query_id"`
	Origin  NodeID    `json:"origin"`
	Vector  []float32 `json:"vector"`
	K       int       `json:"k"`
}

// QueryKNNResponse is gossiped on TopicQueryResp in reply to a QueryKNNRequest.
type QueryKNNResponse struct {
	QueryID string      `json:"query_id"`
	Replier NodeID      `json:"replier"`
	Results []KNNResult `json:"results"`
}

// QueryCoordinator drives distributed KNN search across the local ANN index
// and the node's gossip peers.
type QueryCoordinator struct {
	node  *Node
	index *AnnIndex
	store *Store
	reuse *ReuseCounter
	self  NodeID

	mu      sync.Mutex
	waiters map[string]chan QueryKNNResponse
}

// NewQueryCoordinator wires a coordinator to the node's transport, local
// index, durable store and reuse accounting.
func NewQueryCoordinator(n *Node, idx *AnnIndex, store *Store, reuse *ReuseCounter, self NodeID) *QueryCoordinator {
	qc := &QueryCoordinator{
		node: n, index: idx, store: store, reuse: reuse, self: self,
		waiters: make(map[string]chan QueryKNNResponse),
	}
	return qc
}

// ServeRequests subscribes to TopicQueryKNN and answers incoming requests
// from the local index until ctx is cancelled. Run as a background goroutine
// once per node.
func (qc *QueryCoordinator) ServeRequests(ctx context.Context) error {
	ch, err := qc.node.SubscribeEnvelopes(TopicQueryKNN)
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
				qc.handleRequest(em.Envelope)
			}
		}
	}()
	return nil
}

func (qc *QueryCoordinator) handleRequest(env GossipEnvelope) {
	if env.Kind != "query" {
		return
	}
	var req QueryKNNRequest
	if err := json.Unmarshal(env.Body, &req); err != nil {
		logrus.Debugf("query: malformed request: %v", err)
		return
	}
	if req.Origin == qc.self {
		return // don't answer our own fan-out
	}
	ids, err := qc.index.Search(req.Vector, req.K)
	if err != nil {
		logrus.Debugf("query: local search failed: %v", err)
		return
	}
	results := make([]KNNResult, 0, len(ids))
	for _, id := range ids {
		g, err := qc.store.GetGrain(id)
		if err != nil {
			continue
		}
		results = append(results, KNNResult{GrainID: id, Score: CosineSimilarity(req.Vector, g.Vector), Origin: qc.self})
		if qc.reuse != nil {
			_, _ = qc.reuse.Increment(id)
		}
	}
	resp := QueryKNNResponse{QueryID: req.QueryID, Replier: qc.self, Results: results}
	body, err := json.Marshal(resp)
	if err != nil {
		return
	}
	respEnv := GossipEnvelope{MsgID: uuid.NewString(), Kind: "query_resp", Body: body}
	if err := qc.node.PublishEnvelope(TopicQueryResp, respEnv); err != nil {
		logrus.Debugf("query: publish response failed: %v", err)
	}
}

// ListenResponses subscribes to TopicQueryResp and routes incoming responses
// to any in-flight Query call awaiting that query id. Run once per node
// alongside ServeRequests.
func (qc *QueryCoordinator) ListenResponses(ctx context.Context) error {
	ch, err := qc.node.SubscribeEnvelopes(TopicQueryResp)
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
				if em.Envelope.Kind != "query_resp" {
					continue
				}
				var resp QueryKNNResponse
				if err := json.Unmarshal(em.Envelope.Body, &resp); err != nil {
					continue
				}
				resp.Results = filterValidSimilarity(resp.Results)
				qc.mu.Lock()
				w, ok := qc.waiters[resp.QueryID]
				qc.mu.Unlock()
				if !ok {
					continue
				}
				select {
				case w <- resp:
				default:
				}
			}
		}
	}()
	return nil
}

// filterValidSimilarity drops any result whose reported cosine similarity
// falls outside [-1, 1], the only range a legitimate cosine score can take;
// anything else is a malformed or adversarial remote response.
func filterValidSimilarity(results []KNNResult) []KNNResult {
	out := make([]KNNResult, 0, len(results))
	for _, r := range results {
		if r.Score < -1 || r.Score > 1 {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Query searches the local index, publishes the query on TopicQueryKNN to
// every subscribed peer, and merges responses that arrive before timeout
// into a single top-k list. It stops waiting once it has as many responses
// as pm.Sample(fanout) returned peers; fanout <= 0 skips the network and
// returns local results only. A deadline that expires before any peer answers still
// returns the local results: partial results are a valid outcome, not an
// error.
func (qc *QueryCoordinator) Query(ctx context.Context, pm PeerManager, vec []float32, k, fanout int, timeout time.Duration) ([]KNNResult, error) {
	merged := make([]KNNResult, 0, k*2)

	localIDs, err := qc.index.Search(vec, k)
	if err == nil {
		for _, id := range localIDs {
			g, err := qc.store.GetGrain(id)
			if err != nil {
				continue
			}
			merged = append(merged, KNNResult{GrainID: id, Score: CosineSimilarity(vec, g.Vector), Origin: qc.self})
		}
	}

	if fanout <= 0 {
		return topK(merged, k), nil
	}

	queryID := uuid.NewString()
	waitCh := make(chan QueryKNNResponse, fanout)
	qc.mu.Lock()
	qc.waiters[queryID] = waitCh
	qc.mu.Unlock()
	defer func() {
		qc.mu.Lock()
		delete(qc.waiters, queryID)
		qc.mu.Unlock()
	}()

	req := QueryKNNRequest{QueryID: queryID, Origin: qc.self, Vector: vec, K: k}
	body, err := json.Marshal(req)
	if err != nil {
		return topK(merged, k), err
	}
	env := GossipEnvelope{MsgID: uuid.NewString(), Kind: "query", Body: body}
	if err := qc.node.PublishEnvelope(TopicQueryKNN, env); err != nil {
		return topK(merged, k), err
	}

	targets := pm.Sample(fanout)
	deadline := time.Now().Add(timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	received := 0
	for received < len(targets) {
		select {
		case <-ctx.Done():
			return topK(merged, k), nil // partial result on timeout is not an error
		case resp := <-waitCh:
			merged = append(merged, resp.Results...)
			received++
		}
	}
	return topK(merged, k), nil
}

// topK de-duplicates results by grain id, keeping the maximum similarity
// seen for each (a grain reported by multiple peers should not lose its
// best score to whichever reply happened to arrive first), then sorts by
// descending score and truncates to k.
func topK(results []KNNResult, k int) []KNNResult {
	best := make(map[[32]byte]KNNResult, len(results))
	for _, r := range results {
		if cur, ok := best[r.GrainID]; !ok || r.Score > cur.Score {
			best[r.GrainID] = r
		}
	}
	dedup := make([]KNNResult, 0, len(best))
	for _, r := range best {
		dedup = append(dedup, r)
	}
	sort.Slice(dedup, func(i, j int) bool { return dedup[i].Score > dedup[j].Score })
	if len(dedup) > k {
		dedup = dedup[:k]
	}
	return dedup
}
