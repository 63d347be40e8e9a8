package cli

// -----------------------------------------------------------------------------
// query.go - distributed KNN query CLI
// -----------------------------------------------------------------------------

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"synapsenet/core"
)

var (
	queryK       int
	queryFanout  int
	queryTimeout time.Duration
)

func queryKNN(cmd *cobra.Command, args []string) error {
	if err := nodeInit(cmd, nil); err != nil {
		return err
	}
	stateMu.RLock()
	s := state
	stateMu.RUnlock()
	if s == nil {
		return fmt.Errorf("query: node not initialised")
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("query: read vector file: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return fmt.Errorf("query: parse vector file (expected JSON float array): %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if peerMgr == nil {
		peerMgr = core.NewPeerManagement(s.Node)
	}
	results, err := s.Query.Query(ctx, peerMgr, vec, queryK, queryFanout, queryTimeout)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%x\t%.4f\t%s\n", r.GrainID, r.Score, r.Origin)
	}
	return nil
}

var queryCmd = &cobra.Command{
	Use:   "query <vector-file.json>",
	Short: "Run a distributed KNN query against the local index and sampled peers",
	Args:  cobra.ExactArgs(1),
	RunE:  queryKNN,
}

func init() {
	queryCmd.Flags().IntVar(&queryK, "k", 10, "number of results")
	queryCmd.Flags().IntVar(&queryFanout, "fanout", 6, "number of peer responses to wait for")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 2*time.Second, "query deadline")
}

// QueryCmd exposes the distributed KNN query command.
var QueryCmd = queryCmd

// RegisterQuery adds the query command to the root CLI.
func RegisterQuery(root *cobra.Command) { root.AddCommand(QueryCmd) }
