package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChainGatewaySubmitBatchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/submit_batch" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req submitBatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(submitBatchResponse{Accepted: true, TxRef: "tx-1"})
	}))
	defer srv.Close()

	g := NewChainGateway(srv.URL, 0)
	batch := &Batch{Epoch: 1, Root: []byte("root"), Signers: []NodeID{"a"}}
	resp, err := g.SubmitBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !resp.Accepted || resp.TxRef != "tx-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestChainGatewayClaimRewardSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(claimRewardResponse{Claimed: true, Amount: 2.5})
	}))
	defer srv.Close()

	g := NewChainGateway(srv.URL, 0)
	var grainID [32]byte
	resp, err := g.ClaimReward(context.Background(), 1, grainID, "alice")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !resp.Claimed || resp.Amount != 2.5 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestChainGatewayQueryAccrual(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("author") != "alice" {
			t.Fatalf("expected author query param")
		}
		json.NewEncoder(w).Encode(queryAccrualResponse{Author: "alice", AccruedUnclaim: 1, AccruedClaimed: 2})
	}))
	defer srv.Close()

	g := NewChainGateway(srv.URL, 0)
	resp, err := g.QueryAccrual(context.Background(), "alice")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.AccruedUnclaim != 1 || resp.AccruedClaimed != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestChainGatewayRetriesOnServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(submitBatchResponse{Accepted: true})
	}))
	defer srv.Close()

	g := NewChainGateway(srv.URL, 0)
	batch := &Batch{Epoch: 1, Root: []byte("root")}
	resp, err := g.SubmitBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !resp.Accepted {
		t.Fatal("expected eventual acceptance after transient server error")
	}
	if attempts < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestChainGatewayAbortsOnContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewChainGateway(srv.URL, 0)
	batch := &Batch{Epoch: 1, Root: []byte("root")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.SubmitBatch(ctx, batch)
	if err == nil {
		t.Fatal("expected an error once the context is cancelled before the retry wait elapses")
	}
}
