package core

import "testing"

func TestNewRandomIdentityAndMnemonicRecovery(t *testing.T) {
	id, mnemonic, err := NewRandomIdentity(128)
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	if mnemonic == "" {
		t.Fatal("expected a non-empty recovery mnemonic")
	}
	restored, err := IdentityFromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("restore from mnemonic: %v", err)
	}
	kp1, err := id.SigningKey(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	kp2, err := restored.SigningKey(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(kp1.Public) != string(kp2.Public) {
		t.Fatal("expected restored identity to derive the same signing key")
	}
}

func TestSigningKeyDerivationIsDeterministicAndDistinctPerPath(t *testing.T) {
	id, err := NewIdentityFromSeed(make([]byte, 32), identityLogger)
	if err != nil {
		t.Fatal(err)
	}
	a1, _ := id.SigningKey(0, 0)
	a2, _ := id.SigningKey(0, 0)
	if string(a1.Public) != string(a2.Public) {
		t.Fatal("expected same path to derive the same key twice")
	}
	b, _ := id.SigningKey(0, 1)
	if string(a1.Public) == string(b.Public) {
		t.Fatal("expected different index to derive a different key")
	}
}

func TestNodeIDStableForSameKey(t *testing.T) {
	id, _ := NewIdentityFromSeed(make([]byte, 32), identityLogger)
	kp, _ := id.SigningKey(0, 0)
	if kp.NodeID() != kp.NodeID() {
		t.Fatal("expected NodeID to be stable")
	}
}

func TestIdentityFromMnemonicRejectsInvalidChecksum(t *testing.T) {
	_, err := IdentityFromMnemonic("not a real mnemonic phrase at all", "")
	if err == nil {
		t.Fatal("expected invalid mnemonic to be rejected")
	}
}
