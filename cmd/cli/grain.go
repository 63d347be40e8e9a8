package cli

// -----------------------------------------------------------------------------
// grain.go - local grain creation, ingest and gossip broadcast CLI
// -----------------------------------------------------------------------------
// Commands after RegisterGrain(root):
//   grain put <vector-file.json>  - mint, store, score and broadcast a grain
//   grain get <hex-id>            - fetch a stored grain by content id
// -----------------------------------------------------------------------------

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"synapsenet/core"
)

var (
	grainMime           string
	grainLang           string
	grainTitle          string
	grainSummary        string
	grainTags           []string
	grainEmbeddingModel string
	grainEmbeddingDim   int
)

// grainPut mints a grain from a local embedding vector, runs it through the
// same store/index/score path a remote grain takes on arrival, then
// broadcasts it on grains.put so peers pick it up.
func grainPut(cmd *cobra.Command, args []string) error {
	if err := nodeInit(cmd, nil); err != nil {
		return err
	}
	stateMu.RLock()
	s := state
	stateMu.RUnlock()
	if s == nil {
		return fmt.Errorf("grain: node not initialised")
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("grain: read vector file: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return fmt.Errorf("grain: parse vector file (expected JSON float array): %w", err)
	}

	kp, err := s.Identity.SigningKey(0, 0)
	if err != nil {
		return err
	}

	meta := core.GrainMeta{
		Author:         kp.NodeID(),
		CreatedAt:      time.Now().UnixMilli(),
		Tags:           grainTags,
		Mime:           grainMime,
		Lang:           grainLang,
		Title:          grainTitle,
		Summary:        grainSummary,
		EmbeddingModel: grainEmbeddingModel,
		EmbeddingDim:   grainEmbeddingDim,
	}
	g, err := core.NewGrain(vec, meta, kp)
	if err != nil {
		return fmt.Errorf("grain: mint: %w", err)
	}

	item, err := s.Ingest.IngestLocal(g, nil)
	if err != nil {
		return fmt.Errorf("grain: ingest: %w", err)
	}

	if err := core.BroadcastGrain(s.Node, g, nil); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "grain: broadcast warning: %v\n", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%x\tnovelty=%.4f\tcoherence=%.4f\treward=%.6f\n",
		g.ID, item.Novelty, item.Coherence, item.Reward)
	return nil
}

func grainGet(cmd *cobra.Command, args []string) error {
	if err := nodeInit(cmd, nil); err != nil {
		return err
	}
	stateMu.RLock()
	s := state
	stateMu.RUnlock()
	if s == nil {
		return fmt.Errorf("grain: node not initialised")
	}
	raw, err := hex.DecodeString(strings.TrimSpace(args[0]))
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("grain: expected a 32-byte hex id")
	}
	var id [32]byte
	copy(id[:], raw)
	g, err := s.Store.GetGrain(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "author=%s mime=%s lang=%s tags=%v dim=%d\n",
		g.Meta.Author, g.Meta.Mime, g.Meta.Lang, g.Meta.Tags, len(g.Vector))
	return nil
}

var grainRootCmd = &cobra.Command{Use: "grain", Short: "Grain creation and lookup"}
var grainPutCmd = &cobra.Command{Use: "put <vector-file.json>", Short: "Mint, store and broadcast a grain", Args: cobra.ExactArgs(1), RunE: grainPut}
var grainGetCmd = &cobra.Command{Use: "get <hex-id>", Short: "Fetch a stored grain by content id", Args: cobra.ExactArgs(1), RunE: grainGet}

func init() {
	grainRootCmd.AddCommand(grainPutCmd, grainGetCmd)
	grainPutCmd.Flags().StringVar(&grainMime, "mime", "text/plain", "grain content mime type")
	grainPutCmd.Flags().StringVar(&grainLang, "lang", "en", "grain content language (ISO 639-1)")
	grainPutCmd.Flags().StringVar(&grainTitle, "title", "", "optional grain title")
	grainPutCmd.Flags().StringVar(&grainSummary, "summary", "", "optional grain summary")
	grainPutCmd.Flags().StringSliceVar(&grainTags, "tags", nil, "grain tags")
	grainPutCmd.Flags().StringVar(&grainEmbeddingModel, "embedding-model", "", "optional embedding model identifier")
	grainPutCmd.Flags().IntVar(&grainEmbeddingDim, "embedding-dim", 0, "optional embedding dimension (must match vector length if set)")
}

// GrainCmd exposes grain creation and lookup commands.
var GrainCmd = grainRootCmd

// RegisterGrain adds the grain commands to the root CLI.
func RegisterGrain(root *cobra.Command) { root.AddCommand(GrainCmd) }
