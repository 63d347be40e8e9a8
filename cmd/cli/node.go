package cli

// -----------------------------------------------------------------------------
// node.go - node lifecycle CLI
// -----------------------------------------------------------------------------
// Commands after RegisterNode(root):
//   node start    - boot the store, ANN index, identity, and p2p host
//   node stop     - shutdown
//   node peers    - list known peers
//   node status   - grain/peer counts and schema version
// -----------------------------------------------------------------------------

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	bls "github.com/herumi/bls-eth-go-binary/bls"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"synapsenet/core"
	"synapsenet/pkg/config"
)

// State is the set of long-lived services a running node holds, shared
// across the node/peer/query/poe command groups.
type State struct {
	Node     *core.Node
	Store    *core.Store
	Index    *core.AnnIndex
	Identity *core.Identity
	Reuse    *core.ReuseCounter
	Query    *core.QueryCoordinator
	Ingest   *core.Ingester
	WAL      *core.PendingWAL
	Chain    *core.ChainGateway
	Signers  *core.CoSignerSet
	BLSKey   *core.BLSKeyPair
	Ledger   *core.Ledger
	Cfg      *config.Config
}

var (
	state   *State
	stateMu sync.RWMutex
)

func nodeInit(cmd *cobra.Command, _ []string) error {
	stateMu.RLock()
	running := state != nil
	stateMu.RUnlock()
	if running {
		return nil
	}
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("node: load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("node: invalid config: %w", err)
	}

	if lv, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logrus.SetLevel(lv)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("node: data dir: %w", err)
	}

	store, err := core.OpenStore(cfg.DataDir + "/grains.db")
	if err != nil {
		return fmt.Errorf("node: open store: %w", err)
	}

	index := core.NewAnnIndex()
	if err := index.Rebuild(store); err != nil {
		return fmt.Errorf("node: rebuild index: %w", err)
	}

	id, mnemonic, err := core.LoadOrCreateIdentity(cfg.DataDir+"/identity.keystore", cfg.Identity.Passphrase)
	if err != nil {
		return fmt.Errorf("node: identity: %w", err)
	}
	if mnemonic != "" {
		logrus.Warn("node: new identity minted; back up the recovery mnemonic printed to stderr")
		fmt.Fprintf(os.Stderr, "recovery mnemonic: %s\n", mnemonic)
	}
	kp, err := id.SigningKey(0, 0)
	if err != nil {
		return fmt.Errorf("node: signing key: %w", err)
	}

	wal, pending, err := core.OpenPendingWAL(cfg.DataDir + "/pending.wal")
	if err != nil {
		return fmt.Errorf("node: open wal: %w", err)
	}
	if len(pending) > 0 {
		logrus.Infof("node: replayed %d pending PoE items from WAL", len(pending))
	}

	n, err := core.NewNode(core.Config{
		ListenAddr:     cfg.P2P.ListenAddr,
		BootstrapPeers: cfg.P2P.BootstrapPeers,
		DiscoveryTag:   cfg.P2P.DiscoveryTag,
		EnableMDNS:     cfg.P2P.EnableMDNS,
	})
	if err != nil {
		return fmt.Errorf("node: create p2p node: %w", err)
	}

	reuse := core.NewReuseCounter(store)
	qc := core.NewQueryCoordinator(n, index, store, reuse, kp.NodeID())
	ingest := core.NewIngester(store, index, reuse, wal, core.DefaultPoEWeights())

	chain := core.NewChainGateway(cfg.Chain.GatewayURL, time.Duration(cfg.Chain.TimeoutMS)*time.Millisecond)

	blsKP := core.GenerateBLSKeyPair()
	signers := &core.CoSignerSet{
		MinSigners: cfg.MinSigners,
		Signers:    map[core.NodeID]*bls.PublicKey{kp.NodeID(): blsKP.Public},
	}

	s := &State{
		Node: n, Store: store, Index: index, Identity: id, Reuse: reuse,
		Query: qc, Ingest: ingest, WAL: wal, Chain: chain, Signers: signers, BLSKey: blsKP,
		Ledger: core.NewLedger(store), Cfg: cfg,
	}
	stateMu.Lock()
	state = s
	stateMu.Unlock()
	return nil
}

func nodeStart(cmd *cobra.Command, _ []string) error {
	stateMu.RLock()
	s := state
	stateMu.RUnlock()
	if s == nil {
		return fmt.Errorf("node: not initialised")
	}
	if err := s.Query.ServeRequests(s.Node.Context()); err != nil {
		return err
	}
	if err := s.Query.ListenResponses(s.Node.Context()); err != nil {
		return err
	}
	if err := s.Ingest.ServeGossipIngest(s.Node.Context(), s.Node); err != nil {
		return err
	}
	go s.Node.ListenAndServe()

	statusSrv := core.NewStatusServer(s.Node, s.Store, s.Index, s.Ledger)
	httpSrv := &http.Server{Addr: s.Cfg.StatusAddr, Handler: statusSrv}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Warnf("node: status server: %v", err)
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "node started (%d peers), status api on %s\n", len(s.Node.Peers()), s.Cfg.StatusAddr)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		_ = httpSrv.Close()
		_ = s.WAL.Close()
		_ = s.Store.Close()
		_ = s.Node.Close()
		os.Exit(0)
	}()
	return nil
}

func nodeStop(cmd *cobra.Command, _ []string) error {
	stateMu.Lock()
	defer stateMu.Unlock()
	if state == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "not running")
		return nil
	}
	_ = state.WAL.Close()
	_ = state.Store.Close()
	_ = state.Node.Close()
	state = nil
	fmt.Fprintln(cmd.OutOrStdout(), "stopped")
	return nil
}

func nodePeers(cmd *cobra.Command, _ []string) error {
	stateMu.RLock()
	s := state
	stateMu.RUnlock()
	if s == nil {
		return fmt.Errorf("node: not running")
	}
	for _, p := range s.Node.Peers() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\trep=%d\n", p.ID, p.Addr, p.State, p.Reputation)
	}
	return nil
}

func nodeStatus(cmd *cobra.Command, _ []string) error {
	stateMu.RLock()
	s := state
	stateMu.RUnlock()
	if s == nil {
		return fmt.Errorf("node: not running")
	}
	n, err := s.Store.CountGrains()
	if err != nil {
		return err
	}
	v, err := s.Store.SchemaVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "grains=%d peers=%d index_len=%d schema_version=%d\n",
		n, len(s.Node.Peers()), s.Index.Len(), v)
	return nil
}

var nodeRootCmd = &cobra.Command{Use: "node", Short: "Node lifecycle", PersistentPreRunE: nodeInit}
var nodeStartCmd = &cobra.Command{Use: "start", Short: "Start the node", Args: cobra.NoArgs, RunE: nodeStart}
var nodeStopCmd = &cobra.Command{Use: "stop", Short: "Stop the node", Args: cobra.NoArgs, RunE: nodeStop}
var nodePeersCmd = &cobra.Command{Use: "peers", Short: "List peers", Args: cobra.NoArgs, RunE: nodePeers}
var nodeStatusCmd = &cobra.Command{Use: "status", Short: "Report node status", Args: cobra.NoArgs, RunE: nodeStatus}

func init() {
	nodeRootCmd.AddCommand(nodeStartCmd, nodeStopCmd, nodePeersCmd, nodeStatusCmd)
}

// NodeCmd exposes node lifecycle commands.
var NodeCmd = nodeRootCmd

// RegisterNode adds the node commands to the root CLI.
func RegisterNode(root *cobra.Command) { root.AddCommand(NodeCmd) }
