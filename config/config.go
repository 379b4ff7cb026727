// Package config resolves the runtime configuration of the vote vault client
// from the environment. Values may come from a .env file, loaded with
// godotenv, which never overrides variables already set in the process.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

const (
	// EnvPrefix is prepended to every environment variable name.
	EnvPrefix = "VOTEVAULT_"

	// DefaultChainID is the Sepolia testnet.
	DefaultChainID = 11155111
	// DefaultRPC is the public Sepolia endpoint used when none is configured.
	DefaultRPC = "https://1rpc.io/sepolia"
	// DefaultRelayerURL is the public encryption relayer for Sepolia.
	DefaultRelayerURL = "https://relayer.testnet.zama.cloud"
	// DefaultDemoRevealDelay is how long demo mode waits before revealing
	// the results of an ended proposal.
	DefaultDemoRevealDelay = 2 * time.Second
	// DefaultCallTimeout bounds every ledger read and relayer call.
	DefaultCallTimeout = 15 * time.Second
	// DefaultTxTimeout bounds every ledger write, including mining.
	DefaultTxTimeout = 3 * time.Minute
	// DefaultPollInterval is the proposal snapshot refresh period.
	DefaultPollInterval = 30 * time.Second
)

// Config holds every value the client needs, already resolved.
type Config struct {
	// ContractAddress is the ledger address. Zero means not configured.
	ContractAddress common.Address
	ChainID         uint64
	RPCURLs         []string

	RelayerURL       string
	AllowPlaceholder bool

	// Signer sources, tried in this order.
	PrivateKey       string
	KeystoreDir      string
	KeystorePassword string

	DataDir  string
	APIHost  string
	APIPort  int
	LogLevel string

	DemoRevealDelay time.Duration
	CallTimeout     time.Duration
	TxTimeout       time.Duration
	PollInterval    time.Duration
}

// Default returns the configuration used when no variable is set.
func Default() *Config {
	return &Config{
		ChainID:          DefaultChainID,
		RPCURLs:          []string{DefaultRPC},
		RelayerURL:       DefaultRelayerURL,
		AllowPlaceholder: true,
		DataDir:          defaultDataDir(),
		APIHost:          "127.0.0.1",
		APIPort:          8080,
		LogLevel:         "info",
		DemoRevealDelay:  DefaultDemoRevealDelay,
		CallTimeout:      DefaultCallTimeout,
		TxTimeout:        DefaultTxTimeout,
		PollInterval:     DefaultPollInterval,
	}
}

// LedgerConfigured reports whether a non-zero ledger address is set.
func (c *Config) LedgerConfigured() bool {
	return c.ContractAddress != (common.Address{})
}

// Load reads the optional env files (".env" when none given) and builds the
// configuration from the environment on top of the defaults.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cannot load env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration using the given lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Default()
	get := func(name string) string {
		return strings.TrimSpace(getenv(EnvPrefix + name))
	}

	if v := get("CONTRACT_ADDRESS"); v != "" {
		if !common.IsHexAddress(v) {
			return nil, fmt.Errorf("invalid %sCONTRACT_ADDRESS %q", EnvPrefix, v)
		}
		cfg.ContractAddress = common.HexToAddress(v)
	}
	if v := get("CHAIN_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %sCHAIN_ID: %w", EnvPrefix, err)
		}
		cfg.ChainID = id
	}
	if v := get("RPC_URLS"); v != "" {
		cfg.RPCURLs = splitList(v)
	}
	if v := get("RELAYER_URL"); v != "" {
		cfg.RelayerURL = v
	}
	if v := get("ALLOW_PLACEHOLDER"); v != "" {
		allow, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %sALLOW_PLACEHOLDER: %w", EnvPrefix, err)
		}
		cfg.AllowPlaceholder = allow
	}
	cfg.PrivateKey = get("PRIVATE_KEY")
	cfg.KeystoreDir = get("KEYSTORE_DIR")
	cfg.KeystorePassword = getenv(EnvPrefix + "KEYSTORE_PASSWORD")
	if v := get("DATADIR"); v != "" {
		cfg.DataDir = v
	}
	if v := get("API_HOST"); v != "" {
		cfg.APIHost = v
	}
	if v := get("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %sAPI_PORT: %w", EnvPrefix, err)
		}
		cfg.APIPort = port
	}
	if v := get("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"DEMO_REVEAL_DELAY", &cfg.DemoRevealDelay},
		{"CALL_TIMEOUT", &cfg.CallTimeout},
		{"TX_TIMEOUT", &cfg.TxTimeout},
		{"POLL_INTERVAL", &cfg.PollInterval},
	}
	for _, d := range durations {
		v := get(d.name)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s%s: %w", EnvPrefix, d.name, err)
		}
		*d.dst = parsed
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".votevault"
	}
	return home + "/.votevault"
}
