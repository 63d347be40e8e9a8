package core

// Encrypted seed keystore: identity seed material is sensitive enough that
// it should never land on disk in the clear. SealSeed/OpenSeed give node.go
// a place to persist and recover an Identity's seed across restarts without
// re-issuing a fresh mnemonic every time the process starts.

import (
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // KiB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// sealedSeed is the on-disk JSON envelope for an argon2id-derived,
// secretbox-sealed identity seed.
type sealedSeed struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func deriveKeystoreKey(passphrase string, salt []byte) [32]byte {
	var key [32]byte
	copy(key[:], argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen))
	return key
}

// SealSeed encrypts seed with a key derived from passphrase and writes it to
// path. The file is safe to commit to a backup volume; the passphrase is
// the only secret that must stay out of band.
func SealSeed(path, passphrase string, seed []byte) error {
	salt := make([]byte, saltLen)
	if _, err := crand.Read(salt); err != nil {
		return fmt.Errorf("keystore: salt: %w", err)
	}
	key := deriveKeystoreKey(passphrase, salt)

	var nonce [24]byte
	if _, err := crand.Read(nonce[:]); err != nil {
		return fmt.Errorf("keystore: nonce: %w", err)
	}

	sealed := secretbox.Seal(nil, seed, &nonce, &key)
	out := sealedSeed{Salt: salt, Nonce: nonce[:], Ciphertext: sealed}
	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("keystore: encode: %w", err)
	}
	return os.WriteFile(path, raw, 0o600)
}

// OpenSeed decrypts the seed stored at path using passphrase.
func OpenSeed(path, passphrase string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var in sealedSeed
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("keystore: decode: %w", err)
	}
	if len(in.Nonce) != 24 {
		return nil, errors.New("keystore: corrupt nonce")
	}
	key := deriveKeystoreKey(passphrase, in.Salt)
	var nonce [24]byte
	copy(nonce[:], in.Nonce)

	seed, ok := secretbox.Open(nil, in.Ciphertext, &nonce, &key)
	if !ok {
		return nil, errors.New("keystore: wrong passphrase or corrupt file")
	}
	return seed, nil
}

// LoadOrCreateIdentity opens the keystore at path if it exists, or mints a
// fresh random identity and seals it there otherwise. Returns the identity
// and, for a freshly minted one, its recovery mnemonic (empty when restored
// from an existing keystore).
func LoadOrCreateIdentity(path, passphrase string) (id *Identity, mnemonic string, err error) {
	if _, statErr := os.Stat(path); statErr == nil {
		seed, openErr := OpenSeed(path, passphrase)
		if openErr != nil {
			return nil, "", fmt.Errorf("keystore: open: %w", openErr)
		}
		id, err = NewIdentityFromSeed(seed, identityLogger)
		return id, "", err
	}
	id, mnemonic, err = NewRandomIdentity(128)
	if err != nil {
		return nil, "", err
	}
	if err := SealSeed(path, passphrase, id.Seed()); err != nil {
		return nil, "", fmt.Errorf("keystore: seal: %w", err)
	}
	return id, mnemonic, nil
}
