package core

// Node identity: HD key derivation for grain-signing keys, BIP-39 mnemonic
// recovery, and libp2p-facing node addressing.
//
// Import hygiene: identity depends only on crypto + common types. It does
// not import store, p2p or poe, to stay at the lowest tier.

import (
	"crypto/ed25519"
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	bip39 "github.com/tyler-smith/go-bip39"
)

const (
	hardenedOffset uint32 = 0x80000000
	masterHMACKey         = "ed25519 seed" // SLIP-0010 master-key string
)

func SetIdentityLogger(l *log.Logger) { identityLogger = l }

var identityLogger = log.New()

// Identity keeps master key material in-memory only. Never persist the
// private fields directly; use an encrypted keystore instead.
//
// Derivation model: SLIP-0010 hardened children only, path m / purpose' /
// index'. ed25519 does not support unhardened children, so every level is
// hardened.
type Identity struct {
	seed        []byte
	masterKey   []byte
	masterChain []byte
	logger      *log.Logger
}

// Seed returns a copy of the identity's master seed. Callers should wipe the
// returned slice after use.
func (id *Identity) Seed() []byte {
	out := make([]byte, len(id.seed))
	copy(out, id.seed)
	return out
}

// NewRandomIdentity generates entropyBits (128/256) of RNG entropy and
// returns a fresh identity plus its recovery mnemonic. The caller must wipe
// or securely store the mnemonic.
func NewRandomIdentity(entropyBits int) (*Identity, string, error) {
	if entropyBits != 128 && entropyBits != 256 {
		return nil, "", fmt.Errorf("identity: unsupported entropy size %d", entropyBits)
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return nil, "", fmt.Errorf("identity: entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("identity: mnemonic: %w", err)
	}
	seed := bip39.NewSeed(mnemonic, "")
	id, err := NewIdentityFromSeed(seed, identityLogger)
	if err != nil {
		return nil, "", err
	}
	return id, mnemonic, nil
}

// IdentityFromMnemonic restores an identity from an existing BIP-39 phrase.
func IdentityFromMnemonic(mnemonic, passphrase string) (*Identity, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("identity: invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return NewIdentityFromSeed(seed, identityLogger)
}

func NewIdentityFromSeed(seed []byte, lg *log.Logger) (*Identity, error) {
	if len(seed) < 16 {
		return nil, errors.New("identity: seed too short")
	}
	I := hmacSHA512([]byte(masterHMACKey), seed)
	id := &Identity{
		seed:        seed,
		masterKey:   I[:32],
		masterChain: I[32:],
		logger:      lg,
	}
	lg.Infof("identity: master key initialised (%d bytes seed)", len(seed))
	return id, nil
}

// derivePrivate returns the key material & new chain code for a hardened
// index. index must already carry the hardened offset.
func derivePrivate(parentKey, parentChain []byte, index uint32) (key, ccode []byte, err error) {
	if index < hardenedOffset {
		return nil, nil, errors.New("identity: non-hardened derivation not supported for ed25519")
	}
	data := make([]byte, 1+32+4)
	copy(data[1:], parentKey)
	binary.BigEndian.PutUint32(data[33:], index)
	I := hmacSHA512(parentChain, data)
	return I[:32], I[32:], nil
}

func hmacSHA512(key, data []byte) []byte {
	h := hmac.New(sha512.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// SigningKey returns the Classical-backend KeyPair for derivation path
// m / purpose' / index'.
func (id *Identity) SigningKey(purpose, index uint32) (*KeyPair, error) {
	purpose |= hardenedOffset
	index |= hardenedOffset

	k1, c1, err := derivePrivate(id.masterKey, id.masterChain, purpose)
	if err != nil {
		return nil, err
	}
	k2, _, err := derivePrivate(k1, c1, index)
	if err != nil {
		return nil, err
	}
	priv := ed25519.NewKeyFromSeed(k2)
	pub := priv.Public().(ed25519.PublicKey)
	return &KeyPair{Backend: Classical, Public: []byte(pub), Private: []byte(priv)}, nil
}

// NodeID derives the libp2p-facing node identifier from a signing key: the
// hex-encoded first 20 bytes of the public key.
func (kp *KeyPair) NodeID() NodeID {
	n := 20
	if len(kp.Public) < n {
		n = len(kp.Public)
	}
	return NodeID(hex.EncodeToString(kp.Public[:n]))
}

// RandomEntropy produces cryptographically secure random entropy of the
// given number of bits (must be a multiple of 32).
func RandomEntropy(bits int) ([]byte, error) {
	if bits%32 != 0 {
		return nil, errors.New("identity: entropy bits must be multiple of 32")
	}
	b := make([]byte, bits/8)
	if _, err := crand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Wipe zeroes a byte slice in place (best effort; the GC may still have
// copied it).
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// grainSignTimestamp centralises the clock source used when stamping newly
// signed records so tests can substitute it.
var grainSignTimestamp = time.Now
