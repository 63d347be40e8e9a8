package core

// Epoch roll-up: pending PoE items are deterministically ordered, folded
// into a Merkle batch, and attested by a co-signer quorum before
// submission to the chain gateway.

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	bls "github.com/herumi/bls-eth-go-binary/bls"
)

// PoeItem is one grain's scored contribution to an epoch, carrying enough
// context to recompute its leaf hash independently for verification.
type PoeItem struct {
	GrainID   [32]byte `json:"grain_id"`
	Author    NodeID   `json:"author"`
	Novelty   float64  `json:"novelty"`
	Coherence float64  `json:"coherence"`
	Reuse     uint64   `json:"reuse"`
	Reward    float64  `json:"reward"`
}

// leafHash derives the deterministic leaf used for sort ordering and the
// batch Merkle tree: node || id || novelty_le || coherence_le || reuse_le ||
// weight_le, floats and the reuse counter each written as little-endian
// IEEE-754/uint64 bit patterns so the hash is reproducible across nodes.
func (it PoeItem) leafHash() []byte {
	h := sha256.New()
	h.Write([]byte(it.Author))
	h.Write(it.GrainID[:])
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(it.Novelty))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(it.Coherence))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], it.Reuse)
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(it.Reward))
	h.Write(buf[:])
	return h.Sum(nil)
}

// Batch is one epoch's Merkle-rooted accrual batch, pending co-signer
// attestation.
type Batch struct {
	Epoch     uint64    `json:"epoch"`
	Root      []byte    `json:"root"`
	Items     []PoeItem `json:"items"`
	LeafOrder [][]byte  `json:"leaf_order"`

	AggregateSig []byte `json:"aggregate_sig,omitempty"`
	Signers      []NodeID `json:"signers,omitempty"`
}

// BuildBatch sorts items by leaf hash ascending (so the root is independent
// of collection order across nodes) and computes the batch Merkle root.
func BuildBatch(epoch uint64, items []PoeItem) (*Batch, error) {
	if len(items) == 0 {
		return nil, errors.New("batch: no items")
	}
	sorted := make([]PoeItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].leafHash(), sorted[j].leafHash()) < 0
	})
	// compute leaves post-sort to keep LeafOrder aligned with Items
	leaves := make([][]byte, len(sorted))
	for i, it := range sorted {
		leaves[i] = it.leafHash()
	}
	root, err := ComputeMerkleRoot(leaves)
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	return &Batch{Epoch: epoch, Root: root, Items: sorted, LeafOrder: leaves}, nil
}

// attestMessage is the payload co-signers sign: epoch||root.
func (b *Batch) attestMessage() []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], b.Epoch)
	return append(buf[:], b.Root...)
}

// CoSignerSet attests a batch once at least minSigners of its members have
// signed, aggregating their BLS signatures into one compact attestation.
type CoSignerSet struct {
	MinSigners int
	Signers    map[NodeID]*bls.PublicKey
}

// Attest collects signatures from sigs (keyed by signer NodeID), verifies
// each individually, and aggregates the accepted subset into the batch if
// the quorum is met.
func (cs *CoSignerSet) Attest(b *Batch, sigs map[NodeID][]byte) error {
	if len(sigs) < cs.MinSigners {
		return fmt.Errorf("batch: need %d signers, got %d", cs.MinSigners, len(sigs))
	}
	msg := b.attestMessage()

	var order []NodeID
	var rawSigs [][]byte
	for id, sig := range sigs {
		pub, ok := cs.Signers[id]
		if !ok {
			continue
		}
		ok2, err := VerifyAggregatedBLS(sig, pub, msg)
		if err != nil || !ok2 {
			continue
		}
		order = append(order, id)
		rawSigs = append(rawSigs, sig)
	}
	if len(order) < cs.MinSigners {
		return fmt.Errorf("batch: only %d valid signatures of %d required", len(order), cs.MinSigners)
	}

	agg, err := AggregateBLSSigs(rawSigs)
	if err != nil {
		return fmt.Errorf("batch: aggregate: %w", err)
	}
	b.AggregateSig = agg
	b.Signers = order
	return nil
}

// SelfAttest signs b with a single co-signer's secret key and attests it,
// the path a solo node takes when no other co-signers are reachable and its
// own key satisfies the configured quorum (MinSigners == 1).
func (cs *CoSignerSet) SelfAttest(b *Batch, id NodeID, sk *bls.SecretKey) error {
	sig := SignBLS(sk, b.attestMessage())
	return cs.Attest(b, map[NodeID][]byte{id: sig})
}

// VerifyAttestation checks a batch's aggregated signature against the
// aggregated public key of its recorded signer set.
func (cs *CoSignerSet) VerifyAttestation(b *Batch) (bool, error) {
	if len(b.Signers) < cs.MinSigners {
		return false, fmt.Errorf("batch: attestation below quorum (%d < %d)", len(b.Signers), cs.MinSigners)
	}
	pubs := make([]*bls.PublicKey, 0, len(b.Signers))
	for _, id := range b.Signers {
		pk, ok := cs.Signers[id]
		if !ok {
			return false, fmt.Errorf("batch: unknown signer %s", id)
		}
		pubs = append(pubs, pk)
	}
	aggPub, err := AggregateBLSPublicKeys(pubs)
	if err != nil {
		return false, err
	}
	return VerifyAggregatedBLS(b.AggregateSig, aggPub, b.attestMessage())
}
