package core

// Chain gateway: submits attested epoch batches and reconciles reward
// accrual/claims against an external chain, over a small JSON/HTTP
// protocol, with idempotent retry on transient failures.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	backoffBase = time.Second
	backoffMax  = 60 * time.Second
	maxAttempts = 8
)

// errChainRejected marks a 4xx response: a permanent rejection that
// withRetry returns at once instead of retrying.
var errChainRejected = errors.New("chain: request rejected")

// ChainGateway is a thin JSON/HTTP client for the submit/claim/query
// message shapes the chain side exposes.
type ChainGateway struct {
	client  *http.Client
	baseURL string
	logger  *zap.SugaredLogger
}

func NewChainGateway(baseURL string, timeout time.Duration) *ChainGateway {
	return &ChainGateway{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		logger:  zap.L().Sugar(),
	}
}

type submitBatchRequest struct {
	Epoch        uint64   `json:"epoch"`
	Root         []byte   `json:"root"`
	AggregateSig []byte   `json:"aggregate_sig"`
	Signers      []NodeID `json:"signers"`
	ItemCount    int      `json:"item_count"`
}

type submitBatchResponse struct {
	Accepted bool   `json:"accepted"`
	TxRef    string `json:"tx_ref,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// SubmitBatch posts an attested batch for on-chain recording. The request
// is keyed by (epoch, root) on the server side, so retrying an
// already-accepted submission is safe.
func (g *ChainGateway) SubmitBatch(ctx context.Context, b *Batch) (*submitBatchResponse, error) {
	req := submitBatchRequest{
		Epoch: b.Epoch, Root: b.Root, AggregateSig: b.AggregateSig,
		Signers: b.Signers, ItemCount: len(b.Items),
	}
	var resp submitBatchResponse
	err := g.postWithRetry(ctx, "/submit_batch", req, &resp)
	return &resp, err
}

type claimRewardRequest struct {
	Epoch   uint64 `json:"epoch"`
	GrainID []byte `json:"grain_id"`
	Author  NodeID `json:"author"`
}

type claimRewardResponse struct {
	Claimed bool    `json:"claimed"`
	Amount  float64 `json:"amount"`
}

// ClaimReward requests settlement of a previously-submitted grain's reward.
func (g *ChainGateway) ClaimReward(ctx context.Context, epoch uint64, grainID [32]byte, author NodeID) (*claimRewardResponse, error) {
	req := claimRewardRequest{Epoch: epoch, GrainID: grainID[:], Author: author}
	var resp claimRewardResponse
	err := g.postWithRetry(ctx, "/claim_reward", req, &resp)
	return &resp, err
}

type queryAccrualResponse struct {
	Author         NodeID  `json:"author"`
	AccruedUnclaim float64 `json:"accrued_unclaimed"`
	AccruedClaimed float64 `json:"accrued_claimed"`
}

// QueryAccrual reads an author's reconciled accrual state.
func (g *ChainGateway) QueryAccrual(ctx context.Context, author NodeID) (*queryAccrualResponse, error) {
	var resp queryAccrualResponse
	err := g.getWithRetry(ctx, "/query_accrual?author="+string(author), &resp)
	return &resp, err
}

func (g *ChainGateway) postWithRetry(ctx context.Context, path string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return g.withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(raw))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		return g.do(req, out)
	})
}

func (g *ChainGateway) getWithRetry(ctx context.Context, path string, out interface{}) error {
	return g.withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
		if err != nil {
			return err
		}
		return g.do(req, out)
	})
}

func (g *ChainGateway) do(req *http.Request, out interface{}) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("chain: server error %d: %s", resp.StatusCode, string(data))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("chain: client error %d: %s: %w", resp.StatusCode, string(data), errChainRejected)
	}
	return json.Unmarshal(data, out)
}

// withRetry runs fn with exponential backoff (base 1s, cap 60s) for up to
// maxAttempts tries. Transport errors and 5xx responses are retried; a 4xx
// rejection is returned immediately without further attempts.
func (g *ChainGateway) withRetry(ctx context.Context, fn func(context.Context) error) error {
	wait := backoffBase
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, errChainRejected) {
			return lastErr
		}
		g.logger.Warnf("chain: attempt %d/%d failed: %v", attempt, maxAttempts, lastErr)
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > backoffMax {
			wait = backoffMax
		}
	}
	return fmt.Errorf("chain: giving up after %d attempts: %w", maxAttempts, lastErr)
}
