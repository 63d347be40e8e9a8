// Package config provides a reusable loader for SynapseNet's node
// configuration: a default-backed, environment-overridable settings struct
// in the same shape the ambient config layer gives every node binary.
//
// Version: v0.2.0
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"synapsenet/pkg/utils"
)

const Version = "v0.2.0"

// P2PConfig configures the libp2p transport and discovery layer.
type P2PConfig struct {
	Port           int      `mapstructure:"port" json:"port"`
	ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
	DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
	EnableMDNS     bool     `mapstructure:"enable_mdns" json:"enable_mdns"`
	BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	FanoutPeers    int      `mapstructure:"fanout_peers" json:"fanout_peers"`
}

// ChainConfig configures the chain gateway client.
type ChainConfig struct {
	GatewayURL string `mapstructure:"gateway_url" json:"gateway_url"`
	TimeoutMS  int    `mapstructure:"timeout_ms" json:"timeout_ms"`
}

// Config is the unified SynapseNet node configuration, loaded from an
// optional config file, environment variables (prefixed SYNAPSENET_), and an
// optional .env file.
type Config struct {
	DataDir string `mapstructure:"data_dir" json:"data_dir"`

	CryptoBackend        string `mapstructure:"crypto_backend" json:"crypto_backend"`
	EmbeddingDim         int    `mapstructure:"embedding_dim" json:"embedding_dim"`
	AutoDownloadEmbedder bool   `mapstructure:"auto_download_embedder" json:"auto_download_embedder"`

	HNSWMaxElements int `mapstructure:"hnsw_max_elements" json:"hnsw_max_elements"`

	StatusAddr string `mapstructure:"status_addr" json:"status_addr"`

	EpochSecs  int `mapstructure:"epoch_secs" json:"epoch_secs"`
	MinSigners int `mapstructure:"min_signers" json:"min_signers"`

	P2P   P2PConfig   `mapstructure:"p2p" json:"p2p"`
	Chain ChainConfig `mapstructure:"chain" json:"chain"`

	Identity struct {
		Passphrase string `mapstructure:"passphrase" json:"-"`
	} `mapstructure:"identity" json:"identity"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load.
var AppConfig Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", utils.EnvOrDefault("HOME", ".")+"/.synapsenet")
	v.SetDefault("crypto_backend", "classical")
	v.SetDefault("embedding_dim", 384)
	v.SetDefault("auto_download_embedder", false)
	v.SetDefault("hnsw_max_elements", 1_000_000)
	v.SetDefault("status_addr", "127.0.0.1:7780")
	v.SetDefault("epoch_secs", 300)
	v.SetDefault("min_signers", 3)

	v.SetDefault("p2p.port", 4001)
	v.SetDefault("p2p.listen_addr", "/ip4/0.0.0.0/tcp/4001")
	v.SetDefault("p2p.discovery_tag", "synapsenet-peer-discovery")
	v.SetDefault("p2p.enable_mdns", true)
	v.SetDefault("p2p.bootstrap_peers", []string{})
	v.SetDefault("p2p.fanout_peers", 6)

	v.SetDefault("chain.gateway_url", "http://localhost:8585")
	v.SetDefault("chain.timeout_ms", 10_000)

	v.SetDefault("identity.passphrase", "")

	v.SetDefault("logging.level", "info")
}

// Load reads an optional config file named by name (searched in the current
// directory and /etc/synapsenet), merges a .env file if present, then
// overlays environment variables prefixed SYNAPSENET_ (nested keys use
// underscores, e.g. SYNAPSENET_P2P_PORT). A missing config file is not an
// error: defaults plus environment variables are a complete configuration on
// their own.
func Load(name string) (*Config, error) {
	_ = godotenv.Load() // optional; ignored if absent

	v := viper.New()
	setDefaults(v)

	if name == "" {
		name = "synapsenet"
	}
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/synapsenet")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "config: read config file")
		}
	}

	v.SetEnvPrefix("SYNAPSENET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "config: unmarshal")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the SYNAPSENET_ENV environment
// variable to pick the config file name (falling back to "synapsenet").
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("SYNAPSENET_ENV", ""))
}

// Validate rejects configurations that would produce an unusable node.
func (c *Config) Validate() error {
	if c.EmbeddingDim < 256 || c.EmbeddingDim > 1024 {
		return fmt.Errorf("config: embedding_dim %d out of range [256,1024]", c.EmbeddingDim)
	}
	if c.MinSigners < 1 {
		return fmt.Errorf("config: min_signers must be >= 1, got %d", c.MinSigners)
	}
	if c.EpochSecs < 1 {
		return fmt.Errorf("config: epoch_secs must be >= 1, got %d", c.EpochSecs)
	}
	return nil
}
