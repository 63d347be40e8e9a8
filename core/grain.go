package core

// Grain is the atomic, content-addressed, vector-bearing knowledge unit
// gossiped across the network. Its id is derived deterministically from its
// embedding vector and canonical metadata, so any two honest nodes that
// construct the same content arrive at the same id independent of the
// author's encoding order.

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"lukechampine.com/blake3"
)

// grainIDDomain / linkDomain separate the hash domains for a grain's content
// id from a link's signed payload, so a signature produced for one can never
// be replayed as valid for the other even if the underlying bytes collide.
var (
	grainIDDomain = []byte("synapsenet.grain.id.v1\x00")
	linkDomain    = []byte("synapsenet.link.sig.v1\x00")
)

// GrainMeta carries the descriptive, non-vector fields of a grain. Encoding
// is canonical: tags are sorted, fields appear in a fixed order, and
// floating point values never enter the hashed representation. Title,
// Summary, EmbeddingModel and EmbeddingDim are optional; their zero values
// (empty string, 0) mean "absent".
type GrainMeta struct {
	Author    NodeID        `json:"author"`
	CreatedAt int64         `json:"created_at"`
	Tags      []string      `json:"tags"`
	Mime      string        `json:"mime"`
	Lang      string        `json:"lang"` // ISO 639-1
	Title     string        `json:"title,omitempty"`
	Summary   string        `json:"summary,omitempty"`
	Backend   CryptoBackend `json:"backend"`
	PublicKey []byte        `json:"public_key"`

	EmbeddingModel string `json:"embedding_model,omitempty"`
	EmbeddingDim   int    `json:"embedding_dim,omitempty"`
}

// canonicalBytes produces the fixed-order, sorted-tag encoding used both for
// id derivation and for the bytes that get signed.
func (m GrainMeta) canonicalBytes() []byte {
	tags := append([]string{}, m.Tags...)
	sort.Strings(tags)

	var buf bytes.Buffer
	buf.WriteString(string(m.Author))
	buf.WriteByte(0)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(m.CreatedAt))
	buf.Write(tsBuf[:])
	for _, t := range tags {
		buf.WriteString(t)
		buf.WriteByte(0)
	}
	buf.WriteString(m.Mime)
	buf.WriteByte(0)
	buf.WriteString(m.Lang)
	buf.WriteByte(0)
	buf.WriteString(m.Title)
	buf.WriteByte(0)
	buf.WriteString(m.Summary)
	buf.WriteByte(0)
	buf.WriteByte(byte(m.Backend))
	buf.Write(m.PublicKey)
	buf.WriteString(m.EmbeddingModel)
	buf.WriteByte(0)
	var dimBuf [4]byte
	binary.BigEndian.PutUint32(dimBuf[:], uint32(m.EmbeddingDim))
	buf.Write(dimBuf[:])
	return buf.Bytes()
}

// Grain is a signed, content-addressed knowledge unit.
type Grain struct {
	ID        [32]byte  `json:"id"`
	Vector    []float32 `json:"vector"`
	Meta      GrainMeta `json:"meta"`
	Signature []byte    `json:"signature"`
}

// NewGrain L2-normalises vec, computes the content id over vector||meta, and
// signs the id with kp. The resulting Grain is ready to gossip.
func NewGrain(vec []float32, meta GrainMeta, kp *KeyPair) (*Grain, error) {
	if len(vec) == 0 {
		return nil, errors.New("grain: empty vector")
	}
	if len(vec) < 256 || len(vec) > 1024 {
		return nil, fmt.Errorf("grain: vector dimension %d out of range [256,1024]", len(vec))
	}
	if meta.EmbeddingDim != 0 && meta.EmbeddingDim != len(vec) {
		return nil, fmt.Errorf("grain: vector length %d does not match meta.embedding_dim %d", len(vec), meta.EmbeddingDim)
	}
	normalized := normalizeL2(vec)

	meta.Backend = kp.Backend
	meta.PublicKey = kp.Public

	id := grainID(normalized, meta)
	sig, err := Sign(kp, id[:])
	if err != nil {
		return nil, fmt.Errorf("grain: sign: %w", err)
	}
	return &Grain{ID: id, Vector: normalized, Meta: meta, Signature: sig}, nil
}

func grainID(vec []float32, meta GrainMeta) [32]byte {
	h := blake3.New(32, nil)
	h.Write(grainIDDomain)
	vecBytes := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.BigEndian.PutUint32(vecBytes[i*4:], math.Float32bits(f))
	}
	h.Write(vecBytes)
	h.Write(meta.canonicalBytes())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Verify checks a grain's id derivation and signature.
func (g *Grain) Verify() error {
	want := grainID(g.Vector, g.Meta)
	if want != g.ID {
		return errors.New("grain: id does not match content")
	}
	ok, err := Verify(g.Meta.Backend, g.Meta.PublicKey, g.ID[:], g.Signature)
	if err != nil {
		return fmt.Errorf("grain: verify: %w", err)
	}
	if !ok {
		return errors.New("grain: invalid signature")
	}
	return nil
}

func normalizeL2(vec []float32) []float32 {
	var sumSq float64
	for _, f := range vec {
		sumSq += float64(f) * float64(f)
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(vec))
	if norm == 0 {
		copy(out, vec)
		return out
	}
	for i, f := range vec {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

// CosineSimilarity returns the cosine similarity of two equal-length
// normalised vectors. Zero-length or zero-norm inputs yield 0 rather than
// NaN, matching the reference implementation's defensive behaviour.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

//---------------------------------------------------------------------
// Link: a signed, typed relationship between two grains
//---------------------------------------------------------------------

type LinkKind string

const (
	LinkSupports  LinkKind = "supports"
	LinkRefutes   LinkKind = "refutes"
	LinkRelatesTo LinkKind = "relates_to"
	LinkDerivedBy LinkKind = "derived_by"
)

type Link struct {
	From      [32]byte  `json:"from"`
	To        [32]byte  `json:"to"`
	Kind      LinkKind  `json:"kind"`
	CreatedAt int64     `json:"created_at"`
	Backend   CryptoBackend `json:"backend"`
	PublicKey []byte    `json:"public_key"`
	Signature []byte    `json:"signature"`
}

// linkSignBytes builds the domain-separated payload a link's signature
// covers: from||to||kind||created_at, prefixed with linkDomain so a grain id
// signature can never be replayed as a valid link signature.
func linkSignBytes(from, to [32]byte, kind LinkKind, createdAt int64) []byte {
	var buf bytes.Buffer
	buf.Write(linkDomain)
	buf.Write(from[:])
	buf.Write(to[:])
	buf.WriteString(string(kind))
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(createdAt))
	buf.Write(tsBuf[:])
	return buf.Bytes()
}

// NewLink signs a typed relationship between two grain ids with kp.
func NewLink(from, to [32]byte, kind LinkKind, kp *KeyPair) (*Link, error) {
	createdAt := grainSignTimestamp().UnixMilli()
	payload := linkSignBytes(from, to, kind, createdAt)
	sig, err := Sign(kp, payload)
	if err != nil {
		return nil, fmt.Errorf("link: sign: %w", err)
	}
	return &Link{
		From: from, To: to, Kind: kind, CreatedAt: createdAt,
		Backend: kp.Backend, PublicKey: kp.Public, Signature: sig,
	}, nil
}

// Verify checks a link's signature over its domain-separated payload.
func (l *Link) Verify() error {
	payload := linkSignBytes(l.From, l.To, l.Kind, l.CreatedAt)
	ok, err := Verify(l.Backend, l.PublicKey, payload, l.Signature)
	if err != nil {
		return fmt.Errorf("link: verify: %w", err)
	}
	if !ok {
		return errors.New("link: invalid signature")
	}
	return nil
}

//---------------------------------------------------------------------
// Wire envelope for gossip
//---------------------------------------------------------------------

// GossipEnvelope wraps a grain or link for transmission over a GossipSub
// topic, tagged with a random message id for ack/dedup tracking.
type GossipEnvelope struct {
	MsgID string          `json:"msg_id"`
	Kind  string          `json:"kind"` // "grain" | "link"
	Body  json.RawMessage `json:"body"`
}

func NewGrainEnvelope(g *Grain) (*GossipEnvelope, error) {
	body, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	return &GossipEnvelope{MsgID: uuid.NewString(), Kind: "grain", Body: body}, nil
}

func NewLinkEnvelope(l *Link) (*GossipEnvelope, error) {
	body, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return &GossipEnvelope{MsgID: uuid.NewString(), Kind: "link", Body: body}, nil
}
