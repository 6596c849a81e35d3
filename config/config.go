package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultListenAddress = "127.0.0.1:8899"
	DefaultDataDir       = "./market-data"
	DefaultEnvironment   = "local"
)

type Config struct {
	Environment string    `toml:"Environment"`
	DataDir     string    `toml:"DataDir"`
	ProgramID   string    `toml:"ProgramID"`
	Log         Log       `toml:"log"`
	RPC         RPC       `toml:"rpc"`
	Oracle      Oracle    `toml:"oracle"`
	Indexer     Indexer   `toml:"indexer"`
	Telemetry   Telemetry `toml:"telemetry"`
	Genesis     Genesis   `toml:"genesis"`
}

// Load loads the configuration from the given path. A default file is
// written when none exists.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh install.
func Default() *Config {
	cfg := &Config{
		Environment: DefaultEnvironment,
		DataDir:     DefaultDataDir,
		RPC: RPC{
			ListenAddress:            DefaultListenAddress,
			RateLimitPerSecond:       20,
			RateLimitBurst:           40,
			MaxBodyBytes:             1 << 20,
			SignatureTTLSeconds:      120,
			ReadHeaderTimeoutSeconds: 5,
		},
		Oracle: Oracle{CacheTTLSeconds: 300},
		Log:    Log{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
	}
	return cfg
}

func (c *Config) applyDefaults() {
	def := Default()
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = def.Environment
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = def.DataDir
	}
	if strings.TrimSpace(c.RPC.ListenAddress) == "" {
		c.RPC.ListenAddress = def.RPC.ListenAddress
	}
	if c.RPC.MaxBodyBytes <= 0 {
		c.RPC.MaxBodyBytes = def.RPC.MaxBodyBytes
	}
	if c.RPC.SignatureTTLSeconds == 0 {
		c.RPC.SignatureTTLSeconds = def.RPC.SignatureTTLSeconds
	}
	if c.RPC.ReadHeaderTimeoutSeconds <= 0 {
		c.RPC.ReadHeaderTimeoutSeconds = def.RPC.ReadHeaderTimeoutSeconds
	}
	if c.Oracle.CacheTTLSeconds == 0 {
		c.Oracle.CacheTTLSeconds = def.Oracle.CacheTTLSeconds
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = def.Log.Level
	}
}

// StatePath is the LevelDB directory holding trie nodes.
func (c *Config) StatePath() string { return filepath.Join(c.DataDir, "state") }

// JournalPath is the LevelDB directory holding receipts.
func (c *Config) JournalPath() string { return filepath.Join(c.DataDir, "journal") }

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
