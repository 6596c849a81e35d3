package config

// Log controls structured logging and optional file rotation.
type Log struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// RPC configures the JSON-RPC listener.
type RPC struct {
	ListenAddress            string  `toml:"ListenAddress"`
	RateLimitPerSecond       float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst           int     `toml:"RateLimitBurst"`
	MaxBodyBytes             int64   `toml:"MaxBodyBytes"`
	SignatureTTLSeconds      uint32  `toml:"SignatureTTLSeconds"`
	ReadHeaderTimeoutSeconds int     `toml:"ReadHeaderTimeoutSeconds"`
	// JWTSecretEnv names the environment variable holding the HS256 secret
	// for operator tokens. Empty disables operator authentication.
	JWTSecretEnv string `toml:"JWTSecretEnv"`
	JWTIssuer    string `toml:"JWTIssuer"`
}

// Oracle points at the authenticity registry consulted on List.
type Oracle struct {
	RegistryFile    string `toml:"RegistryFile"`
	CacheTTLSeconds uint32 `toml:"CacheTTLSeconds"`
}

// Indexer enables the relational projection of marketplace events.
type Indexer struct {
	Enabled bool   `toml:"Enabled"`
	DSN     string `toml:"DSN"`
}

// Telemetry configures OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// Genesis is the allocation applied to an empty ledger. Keys are base58.
type Genesis struct {
	Accounts     []GenesisAccount     `toml:"accounts"`
	Assets       []GenesisAsset       `toml:"assets"`
	Marketplaces []GenesisMarketplace `toml:"marketplaces"`
}

type GenesisAccount struct {
	Address  string `toml:"Address"`
	Lamports uint64 `toml:"Lamports"`
}

type GenesisAsset struct {
	Owner string `toml:"Owner"`
	Asset string `toml:"Asset"`
}

type GenesisMarketplace struct {
	Admin  string `toml:"Admin"`
	Name   string `toml:"Name"`
	FeeBps uint16 `toml:"FeeBps"`
}
