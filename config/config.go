package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvPort              = "PORT"
	EnvBackendPort       = "BACKEND_PORT"
	EnvFrontendURL       = "FRONTEND_URL"
	EnvBackendURL        = "BACKEND_URL"
	EnvCORSOrigin        = "CORS_ORIGIN"
	EnvContractAddress   = "CONTRACT_ADDRESS"
	EnvPrivateKey        = "PRIVATE_KEY"
	EnvRPCURL            = "RPC_URL"
	EnvChainID           = "CHAIN_ID"
	EnvLedgerBackend     = "LEDGER_BACKEND"
	EnvExplorerURL       = "EXPLORER_URL"
	EnvNetworkName       = "NETWORK_NAME"
	EnvRPName            = "WEBAUTHN_RP_NAME"
	EnvChallengeTTL      = "CHALLENGE_TTL"
	EnvSweepInterval     = "SWEEP_INTERVAL"
	EnvMaxTokenSearch    = "MAX_TOKEN_SEARCH"
	EnvScanConcurrency   = "SCAN_CONCURRENCY"
	EnvProofBackend      = "PROOF_BACKEND"
	EnvSnarkJSBin        = "SNARKJS_BIN"
	EnvCircuitsDir       = "CIRCUITS_DIR"
	EnvWasmFile          = "WASM_FILE"
	EnvZkeyFile          = "ZKEY_FILE"
	EnvVkeyFile          = "VKEY_FILE"
	EnvProofKeysDir      = "PROOF_KEYS_DIR"
	EnvProofTimeout      = "PROOF_TIMEOUT"
	EnvMinEnrollmentYear = "MIN_ENROLLMENT_YEAR"
	EnvStoreBackend      = "STORE_BACKEND"
	EnvRedisURL          = "REDIS_URL"
	EnvReceiptTTL        = "RECEIPT_TTL"
	EnvLookupVerifierOrg = "LOOKUP_VERIFIER_ORG"
	EnvLogLevel          = "LOG_LEVEL"

	LedgerEthereum = "ethereum"
	LedgerMemory   = "memory"

	ProofGroth16 = "groth16"
	ProofSnarkJS = "snarkjs"

	StoreMemory = "memory"
	StoreRedis  = "redis"

	MinPortNumber = 1
	MaxPortNumber = 65535
)

// Config holds backend runtime configuration loaded from environment variables.
type Config struct {
	Port        int
	FrontendURL string
	BackendURL  string
	CORSOrigin  string

	ContractAddress string
	PrivateKey      string
	RPCURL          string
	ChainID         int64
	LedgerBackend   string
	ExplorerURL     string
	NetworkName     string

	RPName        string
	ChallengeTTL  time.Duration
	SweepInterval time.Duration

	MaxTokenSearch  int
	ScanConcurrency int

	ProofBackend      string
	SnarkJSBin        string
	CircuitsDir       string
	WasmFile          string
	ZkeyFile          string
	VkeyFile          string
	ProofKeysDir      string
	ProofTimeout      time.Duration
	MinEnrollmentYear int

	StoreBackend string
	RedisURL     string

	ReceiptTTL        time.Duration
	LookupVerifierOrg bool
	LogLevel          string
}

// LoadFromEnv loads and validates configuration from environment variables.
func LoadFromEnv() (Config, error) {
	var env envParser
	cfg := Config{
		Port:        env.intOrDefault(EnvBackendPort, env.intOrDefault(EnvPort, 3001)),
		FrontendURL: envOrDefault(EnvFrontendURL, "http://localhost:3000"),
		BackendURL:  envOrDefault(EnvBackendURL, "http://localhost:3001"),
		CORSOrigin:  envOrDefault(EnvCORSOrigin, "*"),

		ContractAddress: strings.TrimSpace(os.Getenv(EnvContractAddress)),
		PrivateKey:      strings.TrimSpace(os.Getenv(EnvPrivateKey)),
		RPCURL:          envOrDefault(EnvRPCURL, "https://testnet-passet-hub-eth-rpc.polkadot.io"),
		ChainID:         int64(env.intOrDefault(EnvChainID, 420420422)),
		LedgerBackend:   envOrDefault(EnvLedgerBackend, LedgerEthereum),
		ExplorerURL:     envOrDefault(EnvExplorerURL, "https://blockscout-passet-hub.parity-testnet.parity.io"),
		NetworkName:     envOrDefault(EnvNetworkName, "Polkadot Paseo Testnet"),

		RPName:        envOrDefault(EnvRPName, "ZK-Scholar"),
		ChallengeTTL:  env.durationOrDefault(EnvChallengeTTL, 5*time.Minute),
		SweepInterval: env.durationOrDefault(EnvSweepInterval, 60*time.Second),

		MaxTokenSearch:  env.intOrDefault(EnvMaxTokenSearch, 100),
		ScanConcurrency: env.intOrDefault(EnvScanConcurrency, 4),

		ProofBackend:      envOrDefault(EnvProofBackend, ProofGroth16),
		SnarkJSBin:        envOrDefault(EnvSnarkJSBin, "snarkjs"),
		CircuitsDir:       envOrDefault(EnvCircuitsDir, "circuits"),
		WasmFile:          envOrDefault(EnvWasmFile, "eligibility_student_js/eligibility_student.wasm"),
		ZkeyFile:          envOrDefault(EnvZkeyFile, "eligibility_student.zkey"),
		VkeyFile:          envOrDefault(EnvVkeyFile, "verification_key.json"),
		ProofKeysDir:      strings.TrimSpace(os.Getenv(EnvProofKeysDir)),
		ProofTimeout:      env.durationOrDefault(EnvProofTimeout, 5*time.Minute),
		MinEnrollmentYear: env.intOrDefault(EnvMinEnrollmentYear, 2000),

		StoreBackend: envOrDefault(EnvStoreBackend, StoreMemory),
		RedisURL:     strings.TrimSpace(os.Getenv(EnvRedisURL)),

		ReceiptTTL:        env.durationOrDefault(EnvReceiptTTL, time.Hour),
		LookupVerifierOrg: env.boolOrDefault(EnvLookupVerifierOrg, false),
		LogLevel:          envOrDefault(EnvLogLevel, "info"),
	}
	if env.err != nil {
		return Config{}, env.err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks that the configuration is coherent.
func (c Config) Validate() error {
	if c.Port < MinPortNumber || c.Port > MaxPortNumber {
		return fmt.Errorf("invalid %s: must be in range %d..%d", EnvPort, MinPortNumber, MaxPortNumber)
	}
	if _, err := c.RPID(); err != nil {
		return fmt.Errorf("invalid %s: %w", EnvFrontendURL, err)
	}
	if c.ChallengeTTL <= 0 {
		return fmt.Errorf("invalid %s: must be > 0", EnvChallengeTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("invalid %s: must be > 0", EnvSweepInterval)
	}
	if c.MaxTokenSearch <= 0 {
		return fmt.Errorf("invalid %s: must be > 0", EnvMaxTokenSearch)
	}
	if c.ScanConcurrency <= 0 {
		return fmt.Errorf("invalid %s: must be > 0", EnvScanConcurrency)
	}
	if c.ProofTimeout <= 0 {
		return fmt.Errorf("invalid %s: must be > 0", EnvProofTimeout)
	}
	if c.ReceiptTTL <= 0 {
		return fmt.Errorf("invalid %s: must be > 0", EnvReceiptTTL)
	}

	switch c.LedgerBackend {
	case LedgerMemory:
	case LedgerEthereum:
		if c.ContractAddress == "" {
			return fmt.Errorf("invalid %s: required when %s=%s", EnvContractAddress, EnvLedgerBackend, LedgerEthereum)
		}
		if c.PrivateKey == "" {
			return fmt.Errorf("invalid %s: required when %s=%s", EnvPrivateKey, EnvLedgerBackend, LedgerEthereum)
		}
		if c.ChainID <= 0 {
			return fmt.Errorf("invalid %s: must be > 0", EnvChainID)
		}
	default:
		return fmt.Errorf("invalid %s: must be %q or %q", EnvLedgerBackend, LedgerEthereum, LedgerMemory)
	}

	switch c.ProofBackend {
	case ProofGroth16, ProofSnarkJS:
	default:
		return fmt.Errorf("invalid %s: must be %q or %q", EnvProofBackend, ProofGroth16, ProofSnarkJS)
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("invalid %s: required when %s=%s", EnvRedisURL, EnvStoreBackend, StoreRedis)
		}
	default:
		return fmt.Errorf("invalid %s: must be %q or %q", EnvStoreBackend, StoreMemory, StoreRedis)
	}
	return nil
}

// RPID is the WebAuthn relying party id, the host name of the frontend.
func (c Config) RPID() (string, error) {
	u, err := url.Parse(c.FrontendURL)
	if err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%q has no host", c.FrontendURL)
	}
	return u.Hostname(), nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// envParser reads typed env vars and keeps the first parse error.
type envParser struct {
	err error
}

func (p *envParser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}

func (p *envParser) intOrDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

func (p *envParser) boolOrDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return b
}

func (p *envParser) durationOrDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return d
}
