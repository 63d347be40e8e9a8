// SPDX-License-Identifier: Apache-2.0
// Package core – signing primitives backing grains, links and batch
// attestation.
//
// Exposes:
//   - Sign / Verify       – Ed25519 (Classical) and Dilithium3 (PostQuantum).
//   - BLS aggregation     – multi-signer epoch batch attestation.
//   - ComputeMerkleRoot   – sorted, SHA-256 Merkle root for batches.
package core

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"

	mode3 "github.com/cloudflare/circl/sign/dilithium/mode3"
	bls "github.com/herumi/bls-eth-go-binary/bls"
)

func init() {
	if err := bls.Init(bls.BLS12_381); err != nil {
		panic(fmt.Errorf("bls init: %w", err))
	}
}

var cryptoLogger = log.New(io.Discard, "[crypto] ", log.LstdFlags)

func SetCryptoLogger(l *log.Logger) { cryptoLogger = l }

// CryptoBackend identifies which signature scheme produced a grain or link
// signature. It travels in grain metadata so verifiers pick the matching
// routine without needing out-of-band configuration.
type CryptoBackend uint8

const (
	Classical CryptoBackend = iota
	PostQuantum
)

func (b CryptoBackend) String() string {
	switch b {
	case Classical:
		return "classical"
	case PostQuantum:
		return "post_quantum"
	default:
		return "unknown"
	}
}

// ParseCryptoBackend parses the wire string form of a backend tag.
func ParseCryptoBackend(s string) (CryptoBackend, error) {
	switch s {
	case "classical":
		return Classical, nil
	case "post_quantum":
		return PostQuantum, nil
	default:
		return 0, fmt.Errorf("crypto: unknown backend %q", s)
	}
}

// KeyPair holds a backend-tagged public/private key pair. Private may be nil
// for a verifier-only KeyPair.
type KeyPair struct {
	Backend CryptoBackend
	Public  []byte
	Private []byte
}

// GenerateKeyPair creates a fresh signing key for the requested backend.
func GenerateKeyPair(backend CryptoBackend) (*KeyPair, error) {
	switch backend {
	case Classical:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return &KeyPair{Backend: backend, Public: []byte(pub), Private: []byte(priv)}, nil
	case PostQuantum:
		pk, sk, err := mode3.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return &KeyPair{Backend: backend, Public: pk.Bytes(), Private: sk.Bytes()}, nil
	default:
		return nil, errors.New("crypto: unknown backend")
	}
}

// Sign produces a detached signature over msg using kp's private key.
func Sign(kp *KeyPair, msg []byte) ([]byte, error) {
	if kp == nil || kp.Private == nil {
		return nil, errors.New("crypto: missing private key")
	}
	switch kp.Backend {
	case Classical:
		return ed25519.Sign(ed25519.PrivateKey(kp.Private), msg), nil
	case PostQuantum:
		var sk mode3.PrivateKey
		if err := sk.UnmarshalBinary(kp.Private); err != nil {
			return nil, err
		}
		return sk.Sign(rand.Reader, msg, crypto.Hash(0)), nil
	default:
		return nil, errors.New("crypto: unknown backend")
	}
}

// Verify checks sig over msg against the given backend-tagged public key.
func Verify(backend CryptoBackend, pub, msg, sig []byte) (bool, error) {
	switch backend {
	case Classical:
		if len(pub) != ed25519.PublicKeySize {
			return false, errors.New("crypto: bad ed25519 public key length")
		}
		return ed25519.Verify(ed25519.PublicKey(pub), msg, sig), nil
	case PostQuantum:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return false, err
		}
		return mode3.Verify(&pk, msg, sig), nil
	default:
		return false, errors.New("crypto: unknown backend")
	}
}

//---------------------------------------------------------------------
// BLS12-381 multi-signer batch attestation
//---------------------------------------------------------------------

// BLSKeyPair is a co-signer's secret/public key for epoch batch attestation.
type BLSKeyPair struct {
	Secret *bls.SecretKey
	Public *bls.PublicKey
}

// GenerateBLSKeyPair creates a fresh BLS12-381 key pair.
func GenerateBLSKeyPair() *BLSKeyPair {
	var sk bls.SecretKey
	sk.SetByCSPRNG()
	pk := sk.GetPublicKey()
	return &BLSKeyPair{Secret: &sk, Public: pk}
}

// SignBLS signs msg (typically epoch||root) with a co-signer's secret key.
func SignBLS(sk *bls.SecretKey, msg []byte) []byte {
	return sk.SignByte(msg).Serialize()
}

// AggregateBLSSigs merges multiple compressed BLS signatures produced by
// distinct co-signers over the same message.
func AggregateBLSSigs(sigs [][]byte) ([]byte, error) {
	if len(sigs) == 0 {
		return nil, errors.New("crypto: no signatures to aggregate")
	}
	var agg bls.Sign
	for i, raw := range sigs {
		var s bls.Sign
		if err := s.Deserialize(raw); err != nil {
			return nil, fmt.Errorf("crypto: signature %d: %w", i, err)
		}
		if i == 0 {
			agg = s
		} else {
			agg.Add(&s)
		}
	}
	return agg.Serialize(), nil
}

// AggregateBLSPublicKeys merges the public keys of the co-signer set, in the
// same order the corresponding secrets were used by AggregateBLSSigs.
func AggregateBLSPublicKeys(pubs []*bls.PublicKey) (*bls.PublicKey, error) {
	if len(pubs) == 0 {
		return nil, errors.New("crypto: no public keys to aggregate")
	}
	agg := *pubs[0]
	for _, pk := range pubs[1:] {
		agg.Add(pk)
	}
	return &agg, nil
}

// VerifyAggregatedBLS verifies an aggregated signature against an aggregated
// public key for a shared message (epoch||root).
func VerifyAggregatedBLS(aggSig []byte, aggPub *bls.PublicKey, msg []byte) (bool, error) {
	var sig bls.Sign
	if err := sig.Deserialize(aggSig); err != nil {
		return false, err
	}
	return sig.VerifyByte(aggPub, msg), nil
}

//---------------------------------------------------------------------
// Merkle root (sorted leaves, single SHA-256 per level)
//---------------------------------------------------------------------

// ComputeMerkleRoot builds the batch Merkle root over leaf hashes, sorted
// ascending so the root is independent of aggregation order, duplicating the
// final leaf at each level with an odd node count.
func ComputeMerkleRoot(leaves [][]byte) ([]byte, error) {
	if len(leaves) == 0 {
		return nil, errors.New("crypto: no leaves")
	}
	sorted := make([][]byte, len(leaves))
	copy(sorted, leaves)
	sort.SliceStable(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })

	level := sorted
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			pair := append(append([]byte{}, level[i]...), level[i+1]...)
			h := sha256.Sum256(pair)
			next = append(next, h[:])
		}
		level = next
	}
	root := make([]byte, 32)
	copy(root, level[0])
	return root, nil
}

// MerkleProof returns the sibling-hash path from sorted leaf index to the
// root, alongside a left/right flag per level (true = sibling is on the
// right).
func MerkleProof(leaves [][]byte, index int) ([][]byte, []bool, error) {
	if index < 0 || index >= len(leaves) {
		return nil, nil, errors.New("crypto: index out of range")
	}
	sorted := make([][]byte, len(leaves))
	copy(sorted, leaves)
	sort.SliceStable(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })

	var proof [][]byte
	var isRight []bool
	level := sorted
	idx := index
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		if idx%2 == 0 {
			proof = append(proof, level[idx+1])
			isRight = append(isRight, true)
		} else {
			proof = append(proof, level[idx-1])
			isRight = append(isRight, false)
		}
		next := make([][]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			pair := append(append([]byte{}, level[i]...), level[i+1]...)
			h := sha256.Sum256(pair)
			next = append(next, h[:])
		}
		level = next
		idx /= 2
	}
	return proof, isRight, nil
}

// VerifyMerklePath recomputes the root from leaf and proof and compares it
// to root.
func VerifyMerklePath(root, leaf []byte, proof [][]byte, isRight []bool) bool {
	cur := leaf
	for i, sib := range proof {
		var pair []byte
		if isRight[i] {
			pair = append(append([]byte{}, cur...), sib...)
		} else {
			pair = append(append([]byte{}, sib...), cur...)
		}
		h := sha256.Sum256(pair)
		cur = h[:]
	}
	return bytes.Equal(cur, root)
}
