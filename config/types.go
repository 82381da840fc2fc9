package config

// Storage selects and tunes the node database.
type Storage struct {
	// InMemory keeps the ledger in memory only. Development use.
	InMemory  bool `toml:"InMemory"`
	CacheMB   int  `toml:"CacheMB"`
	OpenFiles int  `toml:"OpenFiles"`
}

// Node controls block production and mempool admission.
type Node struct {
	BlockIntervalMs int64 `toml:"BlockIntervalMs"`
	MaxBlockTxs     int   `toml:"MaxBlockTxs"`
	MempoolLimit    int   `toml:"MempoolLimit"`
	EventBuffer     int   `toml:"EventBuffer"`
}

// Escrow carries the offer monitoring knobs.
type Escrow struct {
	// StaleAfterBlocks is the age at which an untaken offer is reported.
	StaleAfterBlocks uint64 `toml:"StaleAfterBlocks"`
}

// RPC configures the JSON-RPC endpoint.
type RPC struct {
	ListenAddress     string  `toml:"ListenAddress"`
	ReadHeaderTimeout int     `toml:"ReadHeaderTimeout"` // seconds
	SubmitTimeout     int     `toml:"SubmitTimeout"`     // seconds
	RateLimitPerSec   float64 `toml:"RateLimitPerSec"`
	RateLimitBurst    int     `toml:"RateLimitBurst"`
	TrustProxyHeaders bool    `toml:"TrustProxyHeaders"`
	// DevFaucet exposes dev_mint. It requires a JWT signed with the secret
	// read from JWTSecretEnv.
	DevFaucet    bool   `toml:"DevFaucet"`
	JWTSecretEnv string `toml:"JWTSecretEnv"`
	JWTIssuer    string `toml:"JWTIssuer"`
}

// Indexer configures the SQL projection of offers.
type Indexer struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"` // sqlite or postgres
	DSN     string `toml:"DSN"`
}

// Logging mirrors the options understood by the logging package.
type Logging struct {
	Env        string `toml:"Env"`
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Metrics     bool    `toml:"Metrics"`
	Traces      bool    `toml:"Traces"`
	SampleRatio float64 `toml:"SampleRatio"`
}
