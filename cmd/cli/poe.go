package cli

// -----------------------------------------------------------------------------
// poe.go - epoch roll-up and chain submission CLI
// -----------------------------------------------------------------------------

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"synapsenet/core"
)

// epochStatus reports the number of PoE items currently pending in the WAL.
func epochStatus(cmd *cobra.Command, _ []string) error {
	if err := nodeInit(cmd, nil); err != nil {
		return err
	}
	stateMu.RLock()
	s := state
	stateMu.RUnlock()
	if s == nil {
		return fmt.Errorf("poe: node not initialised")
	}
	pending, err := s.WAL.Items()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pending_items=%d min_signers=%d\n", len(pending), s.Cfg.MinSigners)
	return nil
}

// epochSubmit rolls up every pending PoE item into a batch, self-attests it
// (useful for a single-node test network; a production deployment collects
// co-signer signatures over p2p before calling Attest), and submits it to the
// chain gateway.
func epochSubmit(cmd *cobra.Command, args []string) error {
	if err := nodeInit(cmd, nil); err != nil {
		return err
	}
	stateMu.RLock()
	s := state
	stateMu.RUnlock()
	if s == nil {
		return fmt.Errorf("poe: node not initialised")
	}

	var epoch uint64
	if _, err := fmt.Sscanf(args[0], "%d", &epoch); err != nil {
		return fmt.Errorf("poe: invalid epoch %q: %w", args[0], err)
	}

	pending, err := s.WAL.Items()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no pending items")
		return nil
	}

	batch, err := core.BuildBatch(epoch, pending)
	if err != nil {
		return fmt.Errorf("poe: build batch: %w", err)
	}

	kp, err := s.Identity.SigningKey(0, 0)
	if err != nil {
		return err
	}
	if err := s.Signers.SelfAttest(batch, kp.NodeID(), s.BLSKey.Secret); err != nil {
		return fmt.Errorf("poe: self-attest: %w", err)
	}

	resp, err := s.Chain.SubmitBatch(context.Background(), batch)
	if err != nil {
		return fmt.Errorf("poe: submit batch: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "accepted=%v tx_ref=%s items=%d\n", resp.Accepted, resp.TxRef, len(batch.Items))
	if resp.Accepted {
		return s.WAL.Truncate()
	}
	return nil
}

func poeClaim(cmd *cobra.Command, args []string) error {
	if err := nodeInit(cmd, nil); err != nil {
		return err
	}
	stateMu.RLock()
	s := state
	stateMu.RUnlock()
	if s == nil {
		return fmt.Errorf("poe: node not initialised")
	}
	var epoch uint64
	if _, err := fmt.Sscanf(args[0], "%d", &epoch); err != nil {
		return fmt.Errorf("poe: invalid epoch %q: %w", args[0], err)
	}
	kp, err := s.Identity.SigningKey(0, 0)
	if err != nil {
		return err
	}
	resp, err := s.Chain.ClaimReward(context.Background(), epoch, [32]byte{}, kp.NodeID())
	if err != nil {
		return err
	}
	if resp.Claimed {
		if _, err := s.Ledger.Credit(kp.NodeID(), resp.Amount); err != nil {
			return fmt.Errorf("poe: ledger credit: %w", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "claimed=%v amount=%.6f\n", resp.Claimed, resp.Amount)
	return nil
}

func poeLedger(cmd *cobra.Command, _ []string) error {
	if err := nodeInit(cmd, nil); err != nil {
		return err
	}
	stateMu.RLock()
	s := state
	stateMu.RUnlock()
	if s == nil {
		return fmt.Errorf("poe: node not initialised")
	}
	holders, err := s.Ledger.TopHolders(ledgerTopN)
	if err != nil {
		return err
	}
	for _, h := range holders {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.6f\n", h.Author, h.Balance)
	}
	return nil
}

var ledgerTopN int

var poeRootCmd = &cobra.Command{Use: "poe", Short: "Proof-of-Emergence epoch accounting"}
var poeStatusCmd = &cobra.Command{Use: "status", Short: "Report pending epoch state", Args: cobra.NoArgs, RunE: epochStatus}
var poeSubmitCmd = &cobra.Command{Use: "submit <epoch>", Short: "Roll up and submit the current epoch batch", Args: cobra.ExactArgs(1), RunE: epochSubmit}
var poeClaimCmd = &cobra.Command{Use: "claim <epoch>", Short: "Claim this node's reward for an epoch", Args: cobra.ExactArgs(1), RunE: poeClaim}
var poeLedgerCmd = &cobra.Command{Use: "ledger", Short: "List top NGT balances known to this node", Args: cobra.NoArgs, RunE: poeLedger}

func init() {
	poeRootCmd.AddCommand(poeStatusCmd, poeSubmitCmd, poeClaimCmd, poeLedgerCmd)
	poeLedgerCmd.Flags().IntVar(&ledgerTopN, "top", 10, "number of holders to list")
}

// PoECmd exposes epoch accounting commands.
var PoECmd = poeRootCmd

// RegisterPoE adds the poe commands to the root CLI.
func RegisterPoE(root *cobra.Command) { root.AddCommand(PoECmd) }
