package core

import (
	"path/filepath"
	"testing"
)

func TestSealOpenSeedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.keystore")
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	if err := SealSeed(path, "correct horse", seed); err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := OpenSeed(path, "correct horse")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(got) != string(seed) {
		t.Fatal("expected decrypted seed to match original")
	}
}

func TestOpenSeedRejectsWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.keystore")
	if err := SealSeed(path, "right", make([]byte, 32)); err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := OpenSeed(path, "wrong"); err == nil {
		t.Fatal("expected wrong passphrase to fail")
	}
}

func TestLoadOrCreateIdentityPersistsAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "identity.keystore")

	id1, mnemonic, err := LoadOrCreateIdentity(path, "pw")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if mnemonic == "" {
		t.Fatal("expected a mnemonic for a freshly minted identity")
	}

	id2, mnemonic2, err := LoadOrCreateIdentity(path, "pw")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if mnemonic2 != "" {
		t.Fatal("expected no mnemonic when restoring from an existing keystore")
	}

	kp1, _ := id1.SigningKey(0, 0)
	kp2, _ := id2.SigningKey(0, 0)
	if kp1.NodeID() != kp2.NodeID() {
		t.Fatal("expected the same identity to be recovered across calls")
	}
}
