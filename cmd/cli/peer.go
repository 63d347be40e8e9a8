package cli

// -----------------------------------------------------------------------------
// peer.go - peer management CLI
// -----------------------------------------------------------------------------

import (
	"fmt"

	"github.com/spf13/cobra"

	"synapsenet/core"
)

var peerMgr *core.PeerManagement

func peerInit(cmd *cobra.Command, args []string) error {
	if err := nodeInit(cmd, args); err != nil {
		return err
	}
	stateMu.RLock()
	s := state
	stateMu.RUnlock()
	if s == nil {
		return fmt.Errorf("peer: node not initialised")
	}
	if peerMgr == nil {
		peerMgr = core.NewPeerManagement(s.Node)
	}
	return nil
}

func peerDiscover(cmd *cobra.Command, _ []string) error {
	for _, p := range peerMgr.DiscoverPeers() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\trep=%d\tstate=%s\trtt=%.1fms\n", p.ID, p.Reputation, p.State, p.RTT)
	}
	return nil
}

func peerConnect(cmd *cobra.Command, args []string) error {
	if err := peerMgr.Connect(args[0]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "connected")
	return nil
}

func peerDisconnect(cmd *cobra.Command, args []string) error {
	if err := peerMgr.Disconnect(core.NodeID(args[0])); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "disconnected")
	return nil
}

func peerAdvertise(cmd *cobra.Command, args []string) error {
	topic := "synapsenet-peer"
	if len(args) > 0 {
		topic = args[0]
	}
	return peerMgr.AdvertiseSelf(topic)
}

var peerRootCmd = &cobra.Command{Use: "peer", Short: "Peer management", PersistentPreRunE: peerInit}
var peerDiscoverCmd = &cobra.Command{Use: "discover", Short: "List known peers", Args: cobra.NoArgs, RunE: peerDiscover}
var peerConnectCmd = &cobra.Command{Use: "connect <multiaddr>", Short: "Connect to a peer", Args: cobra.ExactArgs(1), RunE: peerConnect}
var peerDisconnectCmd = &cobra.Command{Use: "disconnect <peer-id>", Short: "Disconnect from a peer", Args: cobra.ExactArgs(1), RunE: peerDisconnect}
var peerAdvertiseCmd = &cobra.Command{Use: "advertise [topic]", Short: "Advertise this node", Args: cobra.RangeArgs(0, 1), RunE: peerAdvertise}

func init() {
	peerRootCmd.AddCommand(peerDiscoverCmd, peerConnectCmd, peerDisconnectCmd, peerAdvertiseCmd)
}

// PeerCmd exposes peer management commands.
var PeerCmd = peerRootCmd

// RegisterPeer adds the peer commands to the root CLI.
func RegisterPeer(root *cobra.Command) { root.AddCommand(PeerCmd) }
