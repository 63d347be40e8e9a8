package core

import "testing"

func testVector(n int, seed float32) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = seed + float32(i)*0.01
	}
	return v
}

func TestNewGrainVerifies(t *testing.T) {
	kp, err := GenerateKeyPair(Classical)
	if err != nil {
		t.Fatal(err)
	}
	meta := GrainMeta{Author: "node-a", CreatedAt: 1000, Tags: []string{"b", "a"}}
	g, err := NewGrain(testVector(256, 1.0), meta, kp)
	if err != nil {
		t.Fatalf("new grain: %v", err)
	}
	if err := g.Verify(); err != nil {
		t.Fatalf("expected valid grain, got %v", err)
	}
}

func TestNewGrainRejectsOutOfRangeVector(t *testing.T) {
	kp, _ := GenerateKeyPair(Classical)
	if _, err := NewGrain(testVector(10, 1.0), GrainMeta{}, kp); err == nil {
		t.Fatal("expected error for undersized vector")
	}
	if _, err := NewGrain(testVector(2000, 1.0), GrainMeta{}, kp); err == nil {
		t.Fatal("expected error for oversized vector")
	}
}

func TestNewGrainCarriesDescriptiveMetaFields(t *testing.T) {
	kp, _ := GenerateKeyPair(Classical)
	meta := GrainMeta{
		Author: "node-a", Tags: []string{"x"},
		Mime: "text/markdown", Lang: "en",
		Title: "a title", Summary: "a summary",
		EmbeddingModel: "test-embed-v1", EmbeddingDim: 256,
	}
	g, err := NewGrain(testVector(256, 1.0), meta, kp)
	if err != nil {
		t.Fatalf("new grain: %v", err)
	}
	if err := g.Verify(); err != nil {
		t.Fatalf("expected valid grain, got %v", err)
	}
	if g.Meta.Mime != "text/markdown" || g.Meta.Lang != "en" {
		t.Fatalf("expected mime/lang to round-trip, got %+v", g.Meta)
	}
	if g.Meta.Title != "a title" || g.Meta.Summary != "a summary" {
		t.Fatalf("expected title/summary to round-trip, got %+v", g.Meta)
	}
}

func TestNewGrainRejectsVectorLengthMismatchWithEmbeddingDim(t *testing.T) {
	kp, _ := GenerateKeyPair(Classical)
	meta := GrainMeta{Author: "node-a", EmbeddingDim: 512}
	if _, err := NewGrain(testVector(256, 1.0), meta, kp); err == nil {
		t.Fatal("expected a vector/embedding_dim mismatch to be rejected")
	}
}

func TestGrainIDIndependentOfTagOrder(t *testing.T) {
	kp, _ := GenerateKeyPair(Classical)
	vec := testVector(256, 2.0)
	g1, err := NewGrain(vec, GrainMeta{Author: "a", Tags: []string{"x", "y"}}, kp)
	if err != nil {
		t.Fatal(err)
	}
	g2, err := NewGrain(vec, GrainMeta{Author: "a", Tags: []string{"y", "x"}}, kp)
	if err != nil {
		t.Fatal(err)
	}
	if g1.ID != g2.ID {
		t.Fatal("expected id to be independent of tag input order")
	}
}

func TestGrainVerifyRejectsTamperedVector(t *testing.T) {
	kp, _ := GenerateKeyPair(Classical)
	g, err := NewGrain(testVector(256, 1.0), GrainMeta{Author: "a"}, kp)
	if err != nil {
		t.Fatal(err)
	}
	g.Vector[0] += 1.0
	if err := g.Verify(); err == nil {
		t.Fatal("expected tampered vector to fail verification")
	}
}

func TestLinkSignVerify(t *testing.T) {
	kp, _ := GenerateKeyPair(Classical)
	var from, to [32]byte
	from[0] = 1
	to[0] = 2
	l, err := NewLink(from, to, LinkSupports, kp)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Verify(); err != nil {
		t.Fatalf("expected valid link, got %v", err)
	}
}

func TestLinkDomainSeparationFromGrainID(t *testing.T) {
	kp, _ := GenerateKeyPair(Classical)
	vec := testVector(256, 1.0)
	g, err := NewGrain(vec, GrainMeta{Author: "a"}, kp)
	if err != nil {
		t.Fatal(err)
	}
	// A grain-id signature must not validate as a link signature over bytes
	// that happen to start with the same id.
	ok, err := Verify(Classical, kp.Public, g.ID[:], g.Signature)
	if err != nil || !ok {
		t.Fatalf("expected grain signature to verify its own id: ok=%v err=%v", ok, err)
	}
	var to [32]byte
	copy(to[:], g.ID[:])
	forged := linkSignBytes(g.ID, to, LinkSupports, 0)
	if ok, _ := Verify(Classical, kp.Public, forged, g.Signature); ok {
		t.Fatal("expected grain-id signature to be rejected as a link signature")
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	if sim := CosineSimilarity(a, b); sim < 0.999 {
		t.Fatalf("expected identical vectors to have similarity ~1, got %f", sim)
	}
	c := []float32{0, 1, 0}
	if sim := CosineSimilarity(a, c); sim > 0.001 || sim < -0.001 {
		t.Fatalf("expected orthogonal vectors to have similarity ~0, got %f", sim)
	}
	if sim := CosineSimilarity(nil, a); sim != 0 {
		t.Fatalf("expected empty vector to yield 0, got %f", sim)
	}
}
