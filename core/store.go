package core

// Durable, single-writer grain store backed by bbolt. Schema is versioned
// and migrated forward-only on open; the current version is 4.

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketMeta            = []byte("meta")
	bucketGrains          = []byte("grains")
	bucketLinks           = []byte("links")
	bucketGrainAccess     = []byte("grain_access")
	bucketEmbeddingModels = []byte("embedding_models")
	bucketPeerClusters    = []byte("peer_clusters")

	keySchemaVersion = []byte("schema_version")
)

const currentSchemaVersion = 4

// Store is the embedded, single-writer durable record store for grains,
// links and their access/provenance metadata.
type Store struct {
	db *bolt.DB
	mu sync.Mutex // serialises writers; bbolt already serialises at the DB level
}

// OpenStore opens (or creates) a bbolt-backed store at path and runs any
// pending forward-only migrations.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

//---------------------------------------------------------------------
// Schema migrations (v1 -> v4, idempotent, forward-only)
//---------------------------------------------------------------------

func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketMeta, bucketGrains, bucketLinks} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		version := uint32(0)
		if raw := meta.Get(keySchemaVersion); raw != nil {
			version = binary.BigEndian.Uint32(raw)
		}

		if version < 1 {
			// v1: grains + links buckets already created above.
			version = 1
		}
		if version < 2 {
			if _, err := tx.CreateBucketIfNotExists(bucketGrainAccess); err != nil {
				return err
			}
			version = 2
		}
		if version < 3 {
			// v2->v3 in the reference schema added an index over grain_access
			// by grain id; bbolt buckets are already keyed by grain id prefix
			// (see RecordAccess), so no structural change is required here.
			version = 3
		}
		if version < 4 {
			if _, err := tx.CreateBucketIfNotExists(bucketEmbeddingModels); err != nil {
				return err
			}
			if _, err := tx.CreateBucketIfNotExists(bucketPeerClusters); err != nil {
				return err
			}
			version = 4
		}

		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, version)
		return meta.Put(keySchemaVersion, buf)
	})
}

// SchemaVersion returns the currently applied schema version.
func (s *Store) SchemaVersion() (uint32, error) {
	var v uint32
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMeta).Get(keySchemaVersion)
		if raw == nil {
			return errors.New("store: schema_version missing")
		}
		v = binary.BigEndian.Uint32(raw)
		return nil
	})
	return v, err
}

//---------------------------------------------------------------------
// Grains
//---------------------------------------------------------------------

var ErrAlreadyPresent = errors.New("store: already present")
var ErrNotFound = errors.New("store: not found")

// InsertGrain persists g, verifying its signature first. Re-inserting an
// identical id is a no-op that returns ErrAlreadyPresent so callers (gossip
// handlers in particular) can distinguish a true duplicate from a write
// failure.
func (s *Store) InsertGrain(g *Grain) error {
	if err := g.Verify(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGrains)
		if b.Get(g.ID[:]) != nil {
			return ErrAlreadyPresent
		}
		raw, err := json.Marshal(g)
		if err != nil {
			return err
		}
		return b.Put(g.ID[:], raw)
	})
}

// GetGrain fetches a grain by id.
func (s *Store) GetGrain(id [32]byte) (*Grain, error) {
	var g Grain
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketGrains).Get(id[:])
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &g)
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// CountGrains returns the total number of stored grains.
func (s *Store) CountGrains() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketGrains).Stats().KeyN
		return nil
	})
	return n, err
}

// AllGrains streams every stored grain to fn in key order, stopping early if
// fn returns false.
func (s *Store) AllGrains(fn func(*Grain) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketGrains).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var g Grain
			if err := json.Unmarshal(v, &g); err != nil {
				return err
			}
			if !fn(&g) {
				break
			}
		}
		return nil
	})
}

//---------------------------------------------------------------------
// Links
//---------------------------------------------------------------------

func linkKey(l *Link) []byte {
	var buf bytes.Buffer
	buf.Write(l.From[:])
	buf.Write(l.To[:])
	buf.WriteString(string(l.Kind))
	return buf.Bytes()
}

// InsertLink persists a verified link, keyed by (from, to, kind).
func (s *Store) InsertLink(l *Link) error {
	if err := l.Verify(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		raw, err := json.Marshal(l)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketLinks).Put(linkKey(l), raw)
	})
}

// OutgoingLinks returns every link whose From id matches id.
func (s *Store) OutgoingLinks(id [32]byte) ([]*Link, error) {
	var out []*Link
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketLinks).Cursor()
		prefix := id[:]
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var l Link
			if err := json.Unmarshal(v, &l); err != nil {
				return err
			}
			out = append(out, &l)
		}
		return nil
	})
	return out, err
}

//---------------------------------------------------------------------
// Access tracking (supplemental, from the reference migrations)
//---------------------------------------------------------------------

type AccessType string

const (
	AccessRead  AccessType = "read"
	AccessWrite AccessType = "write"
)

type AccessRecord struct {
	GrainID    [32]byte   `json:"grain_id"`
	PeerID     NodeID     `json:"peer_id"`
	AccessType AccessType `json:"access_type"`
	Timestamp  int64      `json:"ts"`
}

// RecordAccess appends an access event, keyed by grain id so per-grain scans
// are a cheap prefix seek.
func (s *Store) RecordAccess(rec AccessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGrainAccess)
		var keyBuf bytes.Buffer
		keyBuf.Write(rec.GrainID[:])
		var tsBuf [8]byte
		binary.BigEndian.PutUint64(tsBuf[:], uint64(rec.Timestamp))
		keyBuf.Write(tsBuf[:])
		keyBuf.WriteString(string(rec.PeerID))
		raw, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(keyBuf.Bytes(), raw)
	})
}

//---------------------------------------------------------------------
// Embedding models & peer clusters (schema v3->v4 supplemental tables)
//---------------------------------------------------------------------

type EmbeddingModel struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Version   string `json:"version"`
}

// RecordEmbeddingModel registers an embedding model's fingerprint so grains
// produced with it can later be cross-checked for dimension compatibility.
func (s *Store) RecordEmbeddingModel(m EmbeddingModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		raw, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketEmbeddingModels).Put([]byte(m.Name), raw)
	})
}

type PeerCluster struct {
	ClusterID string   `json:"cluster_id"`
	PeerIDs   []NodeID `json:"peer_ids"`
}

// RecordPeerCluster persists a locally-observed topology grouping of peers,
// keyed by cluster id. Nothing in the query path reads these records.
func (s *Store) RecordPeerCluster(c PeerCluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		raw, err := json.Marshal(c)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPeerClusters).Put([]byte(c.ClusterID), raw)
	})
}
