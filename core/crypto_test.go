package core

import (
	"testing"

	bls "github.com/herumi/bls-eth-go-binary/bls"
)

func TestSignVerifyClassical(t *testing.T) {
	kp, err := GenerateKeyPair(Classical)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg := []byte("grain-payload")
	sig, err := Sign(kp, msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := Verify(Classical, kp.Public, msg, sig)
	if err != nil || !ok {
		t.Fatalf("expected valid signature, ok=%v err=%v", ok, err)
	}
	if ok, _ := Verify(Classical, kp.Public, []byte("tampered"), sig); ok {
		t.Fatal("expected verification to fail against tampered message")
	}
}

func TestSignVerifyPostQuantum(t *testing.T) {
	kp, err := GenerateKeyPair(PostQuantum)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	msg := []byte("grain-payload")
	sig, err := Sign(kp, msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := Verify(PostQuantum, kp.Public, msg, sig)
	if err != nil || !ok {
		t.Fatalf("expected valid signature, ok=%v err=%v", ok, err)
	}
}

func TestParseCryptoBackendRoundTrip(t *testing.T) {
	for _, b := range []CryptoBackend{Classical, PostQuantum} {
		parsed, err := ParseCryptoBackend(b.String())
		if err != nil || parsed != b {
			t.Fatalf("round trip failed for %v: parsed=%v err=%v", b, parsed, err)
		}
	}
	if _, err := ParseCryptoBackend("bogus"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestBLSAggregateAndVerify(t *testing.T) {
	kp1 := GenerateBLSKeyPair()
	kp2 := GenerateBLSKeyPair()
	msg := []byte("epoch-root")

	sig1 := SignBLS(kp1.Secret, msg)
	sig2 := SignBLS(kp2.Secret, msg)

	agg, err := AggregateBLSSigs([][]byte{sig1, sig2})
	if err != nil {
		t.Fatalf("aggregate sigs: %v", err)
	}
	aggPub, err := AggregateBLSPublicKeys([]*bls.PublicKey{kp1.Public, kp2.Public})
	if err != nil {
		t.Fatalf("aggregate pubs: %v", err)
	}
	ok, err := VerifyAggregatedBLS(agg, aggPub, msg)
	if err != nil || !ok {
		t.Fatalf("expected aggregated signature to verify, ok=%v err=%v", ok, err)
	}
}

func TestMerkleRootAndProof(t *testing.T) {
	leaves := make([][]byte, 0, 5)
	for i := 0; i < 5; i++ {
		leaves = append(leaves, []byte{byte(i), byte(i * 2), byte(i * 3)})
	}
	root, err := ComputeMerkleRoot(leaves)
	if err != nil {
		t.Fatalf("compute root: %v", err)
	}
	for i := range leaves {
		proof, isRight, err := MerkleProof(leaves, i)
		if err != nil {
			t.Fatalf("proof %d: %v", i, err)
		}
		if !VerifyMerklePath(root, leaves[i], proof, isRight) {
			t.Fatalf("expected merkle path to verify for leaf %d", i)
		}
	}
}

func TestMerkleRootOrderIndependent(t *testing.T) {
	leaves := [][]byte{{1}, {2}, {3}}
	reordered := [][]byte{{3}, {1}, {2}}
	r1, err := ComputeMerkleRoot(leaves)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := ComputeMerkleRoot(reordered)
	if err != nil {
		t.Fatal(err)
	}
	if string(r1) != string(r2) {
		t.Fatal("expected merkle root to be independent of leaf collection order")
	}
}
