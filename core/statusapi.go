package core

// Read-only node status HTTP surface: peer table, grain counts and NGT
// ledger standings for operators and dashboards that would rather poll an
// endpoint than parse CLI output.

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	synerrors "synapsenet/pkg/errors"
)

// StatusServer exposes a small JSON API over the node's local state.
type StatusServer struct {
	node   *Node
	store  *Store
	index  *AnnIndex
	ledger *Ledger
	router chi.Router
}

// NewStatusServer wires a chi router over the given components.
func NewStatusServer(n *Node, store *Store, index *AnnIndex, ledger *Ledger) *StatusServer {
	s := &StatusServer{node: n, store: store, index: index, ledger: ledger}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/status", s.handleStatus)
	r.Get("/peers", s.handlePeers)
	r.Get("/ledger/top", s.handleLedgerTop)
	s.router = r
	return s
}

func (s *StatusServer) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

type statusResponse struct {
	Grains        int    `json:"grains"`
	Peers         int    `json:"peers"`
	IndexSize     int    `json:"index_size"`
	SchemaVersion uint32 `json:"schema_version"`
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountGrains()
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := s.store.SchemaVersion()
	if err != nil {
		writeError(w, err)
		return
	}
	resp := statusResponse{
		Grains:        n,
		Peers:         len(s.node.Peers()),
		IndexSize:     s.index.Len(),
		SchemaVersion: v,
	}
	writeJSON(w, resp)
}

func (s *StatusServer) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers := s.node.Peers()
	out := make([]PeerInfo, 0, len(peers))
	for _, p := range peers {
		out = append(out, PeerInfo{ID: p.ID, Reputation: p.Reputation, State: p.State, Updated: p.LastSeen.Unix()})
	}
	writeJSON(w, out)
}

func (s *StatusServer) handleLedgerTop(w http.ResponseWriter, r *http.Request) {
	n := 10
	if q := r.URL.Query().Get("n"); q != "" {
		if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
			n = parsed
		}
	}
	holders, err := s.ledger.TopHolders(n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, holders)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeError classifies err against the sentinel error taxonomy and maps it
// to an HTTP status code, falling back to 500 for anything unrecognized.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch synerrors.Classify(err) {
	case synerrors.ErrInvalidInput, synerrors.ErrInvalidSignature:
		code = http.StatusBadRequest
	case synerrors.ErrNotFound:
		code = http.StatusNotFound
	case synerrors.ErrAlreadyPresent:
		code = http.StatusConflict
	case synerrors.ErrTimeout:
		code = http.StatusGatewayTimeout
	case synerrors.ErrRateLimited:
		code = http.StatusTooManyRequests
	}
	http.Error(w, err.Error(), code)
}
