package core

// Proof-of-Emergence scoring: a grain's reward reflects how novel, how
// locally coherent, and how often-reused it is, gated against low-signal
// spam submissions.

import (
	"encoding/binary"
	"math"
	"sort"

	bolt "go.etcd.io/bbolt"
)

// PoEWeights holds the reward formula's coefficients. Defaults match the
// reference implementation: alpha=0.5, beta=0.3, gamma=0.2.
type PoEWeights struct {
	Alpha float64
	Beta  float64
	Gamma float64
}

// DefaultPoEWeights returns the reference coefficient set.
func DefaultPoEWeights() PoEWeights {
	return PoEWeights{Alpha: 0.5, Beta: 0.3, Gamma: 0.2}
}

// anti-spam gate thresholds: a grain whose novelty and coherence both fall
// below these floors earns no reward, regardless of reuse.
const (
	noveltyFloor   = 0.1
	coherenceFloor = 0.1
)

// Novelty returns 1 minus the highest cosine similarity between vec and any
// of neighbors (the local top-k by similarity). A grain with no known
// neighbors is maximally novel.
func Novelty(vec []float32, neighbors [][]float32) float64 {
	if len(neighbors) == 0 {
		return 1
	}
	maxSim := -1.0
	for _, n := range neighbors {
		if sim := CosineSimilarity(vec, n); sim > maxSim {
			maxSim = sim
		}
	}
	return 1 - maxSim
}

// Coherence returns the mean cosine similarity between vec and its local
// top-k neighbors. A grain with no known neighbors has zero coherence.
func Coherence(vec []float32, neighbors [][]float32) float64 {
	if len(neighbors) == 0 {
		return 0
	}
	var sum float64
	for _, n := range neighbors {
		sum += CosineSimilarity(vec, n)
	}
	return sum / float64(len(neighbors))
}

// PoEScore is the per-grain scoring input for one epoch's reward
// computation.
type PoEScore struct {
	GrainID   [32]byte
	Novelty   float64
	Coherence float64
	Reuse     uint64
}

// Reward computes NGT = alpha*N + beta*C + gamma*ln(1+R), returning zero if
// the anti-spam gate rejects the grain (both novelty and coherence below
// their floors).
func (s PoEScore) Reward(w PoEWeights) float64 {
	if s.Novelty < noveltyFloor && s.Coherence < coherenceFloor {
		return 0
	}
	return w.Alpha*s.Novelty + w.Beta*s.Coherence + w.Gamma*math.Log1p(float64(s.Reuse))
}

// ReuseCounter persists a per-grain reuse count across epochs. Reuse is
// tracked as a durable, monotonically increasing integer with no decay: the
// reference implementation leaves decay policy unspecified, and an
// undecayed counter is the conservative choice since it never understates a
// grain's demonstrated reuse.
type ReuseCounter struct {
	store *Store
}

func NewReuseCounter(store *Store) *ReuseCounter { return &ReuseCounter{store: store} }

func reuseKey(id [32]byte) []byte {
	return append([]byte("reuse:"), id[:]...)
}

var bucketReuse = []byte("reuse_counters")

// Increment records one more reuse of id (e.g. a successful KNN match served
// to a querying peer) and returns the updated count.
func (rc *ReuseCounter) Increment(id [32]byte) (uint64, error) {
	var count uint64
	err := rc.store.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketReuse)
		if err != nil {
			return err
		}
		if raw := b.Get(id[:]); raw != nil {
			count = binary.BigEndian.Uint64(raw)
		}
		count++
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, count)
		return b.Put(id[:], buf)
	})
	return count, err
}

// Count returns id's current reuse count without mutating it.
func (rc *ReuseCounter) Count(id [32]byte) (uint64, error) {
	var count uint64
	err := rc.store.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReuse)
		if b == nil {
			return nil
		}
		if raw := b.Get(id[:]); raw != nil {
			count = binary.BigEndian.Uint64(raw)
		}
		return nil
	})
	return count, err
}

var bucketLedger = []byte("ngt_ledger")

// Ledger tracks each author's running NGT balance as epoch batches settle,
// giving node operators a local view of accrual without round-tripping to
// the chain gateway for every query.
type Ledger struct {
	store *Store
}

func NewLedger(store *Store) *Ledger { return &Ledger{store: store} }

func ledgerFloatBits(f float64) uint64 {
	return math.Float64bits(f)
}

// Credit adds amount to author's running balance, returning the new total.
func (l *Ledger) Credit(author NodeID, amount float64) (float64, error) {
	var total float64
	err := l.store.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketLedger)
		if err != nil {
			return err
		}
		if raw := b.Get([]byte(author)); raw != nil {
			total = math.Float64frombits(binary.BigEndian.Uint64(raw))
		}
		total += amount
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, ledgerFloatBits(total))
		return b.Put([]byte(author), buf)
	})
	return total, err
}

// Balance returns author's current running NGT balance.
func (l *Ledger) Balance(author NodeID) (float64, error) {
	var total float64
	err := l.store.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLedger)
		if b == nil {
			return nil
		}
		if raw := b.Get([]byte(author)); raw != nil {
			total = math.Float64frombits(binary.BigEndian.Uint64(raw))
		}
		return nil
	})
	return total, err
}

// Holder is one entry in a TopHolders ranking.
type Holder struct {
	Author  NodeID  `json:"author"`
	Balance float64 `json:"balance"`
}

// TopHolders returns the n authors with the highest NGT balance, descending.
func (l *Ledger) TopHolders(n int) ([]Holder, error) {
	var holders []Holder
	err := l.store.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLedger)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			holders = append(holders, Holder{
				Author:  NodeID(k),
				Balance: math.Float64frombits(binary.BigEndian.Uint64(v)),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].Balance > holders[j].Balance })
	if n > 0 && len(holders) > n {
		holders = holders[:n]
	}
	return holders, nil
}
