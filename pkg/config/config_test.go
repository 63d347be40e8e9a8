package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"synapsenet/internal/testutil"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("nonexistent-config-name")
	require.NoError(t, err)
	require.Equal(t, 384, cfg.EmbeddingDim, "default embedding dim")
	require.Equal(t, 3, cfg.MinSigners, "default min_signers")
	require.Equal(t, 4001, cfg.P2P.Port, "default p2p port")
}

func TestLoadEnvOverride(t *testing.T) {
	os.Setenv("SYNAPSENET_EMBEDDING_DIM", "512")
	os.Setenv("SYNAPSENET_P2P_PORT", "5005")
	defer os.Unsetenv("SYNAPSENET_EMBEDDING_DIM")
	defer os.Unsetenv("SYNAPSENET_P2P_PORT")

	cfg, err := Load("nonexistent-config-name")
	require.NoError(t, err)
	require.Equal(t, 512, cfg.EmbeddingDim)
	require.Equal(t, 5005, cfg.P2P.Port)
}

func TestLoadConfigFile(t *testing.T) {
	sb, err := testutil.NewSandbox()
	require.NoError(t, err)
	defer sb.Cleanup()

	data := []byte("embedding_dim: 768\nmin_signers: 5\n")
	require.NoError(t, sb.WriteFile("synapsenet.yaml", data, 0600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(wd)

	require.NoError(t, os.Chdir(sb.Root))
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 768, cfg.EmbeddingDim, "embedding dim from file")
	require.Equal(t, 5, cfg.MinSigners, "min_signers from file")
}

func TestValidateRejectsBadEmbeddingDim(t *testing.T) {
	cfg := Config{EmbeddingDim: 128, MinSigners: 1, EpochSecs: 1}
	require.Error(t, cfg.Validate(), "expected validation error for out-of-range embedding dim")
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg, err := Load("nonexistent-config-name")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate(), "expected defaults to validate")
}
