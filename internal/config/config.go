package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"redeemdesk/internal/pool"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// DeploymentConfig represents deployments.json.
type DeploymentConfig struct {
	ChainID         int64  `json:"chainId"`
	RPCURL          string `json:"rpcUrl"`
	ExplorerURL     string `json:"explorerUrl"`
	ProtocolVersion string `json:"protocolVersion"`
	Contracts       struct {
		Dollar     string `json:"Dollar"`
		Governance string `json:"Governance"`
		Diamond    string `json:"Diamond"`
	} `json:"contracts"`
}

// AppConfig ties together deployment info and derived values.
type AppConfig struct {
	Deployment DeploymentConfig
	Service    ServiceConfig
	Chain      ChainConfig
	Redeem     RedeemConfig
}

type ServiceConfig struct {
	HTTPPort         int
	HMACSecret       string
	HMACClockSkew    time.Duration
	JournalDSN       string
	JournalPath      string
	NotifyWebhookURL string
	LogLevel         string
	LogFormat        string
}

type ChainConfig struct {
	RPCURL     string
	PrivateKey string
	Protocol   pool.ProtocolVersion
	// DevBlockTime drives block production of the in-memory chain used without a private key.
	DevBlockTime time.Duration
}

type RedeemConfig struct {
	Dollar          common.Address
	Governance      common.Address
	Diamond         common.Address
	ExplorerURL     string
	FinalityTimeout time.Duration
	AllowanceGate   bool
}

const (
	defaultDeploymentsPath = "deployments.json"
	defaultExplorerURL     = "https://etherscan.io"
)

// Load aggregates configuration from .env, disk and environment.
func Load() (*AppConfig, error) {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	deploymentsPath := envOr("DEPLOYMENTS_PATH", defaultDeploymentsPath)
	deployCfg, err := loadDeployments(deploymentsPath)
	if err != nil {
		return nil, fmt.Errorf("load deployments: %w", err)
	}
	return fromDeployments(deployCfg)
}

func fromDeployments(deployCfg *DeploymentConfig) (*AppConfig, error) {
	protocol, err := pool.ParseProtocolVersion(envOr("PROTOCOL_VERSION", deployCfg.ProtocolVersion))
	if err != nil {
		return nil, err
	}

	serviceCfg := ServiceConfig{
		HTTPPort:         envOrInt("API_HTTP_PORT", 3000),
		HMACSecret:       envOr("API_HMAC_SECRET", ""),
		HMACClockSkew:    time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
		JournalDSN:       envOr("JOURNAL_DSN", ""),
		JournalPath:      envOr("JOURNAL_PATH", filepath.Join(os.TempDir(), "redeemdesk-journal.json")),
		NotifyWebhookURL: envOr("NOTIFY_WEBHOOK_URL", ""),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "text"),
	}

	chainCfg := ChainConfig{
		RPCURL:       envOr("CHAIN_RPC_URL", deployCfg.RPCURL),
		PrivateKey:   envOr("CHAIN_PRIVATE_KEY", ""),
		Protocol:     protocol,
		DevBlockTime: time.Duration(envOrInt("DEV_BLOCK_TIME_MS", 2000)) * time.Millisecond,
	}

	redeemCfg := RedeemConfig{
		ExplorerURL:     envOr("EXPLORER_URL", deployCfg.ExplorerURL),
		FinalityTimeout: time.Duration(envOrInt("FINALITY_TIMEOUT_SECONDS", 600)) * time.Second,
		AllowanceGate:   envOrBool("ALLOWANCE_GATE", false),
	}
	if redeemCfg.ExplorerURL == "" {
		redeemCfg.ExplorerURL = defaultExplorerURL
	}
	if redeemCfg.Dollar, err = address("Dollar", deployCfg.Contracts.Dollar); err != nil {
		return nil, err
	}
	if redeemCfg.Governance, err = address("Governance", deployCfg.Contracts.Governance); err != nil {
		return nil, err
	}
	if redeemCfg.Diamond, err = address("Diamond", deployCfg.Contracts.Diamond); err != nil {
		return nil, err
	}

	return &AppConfig{
		Deployment: *deployCfg,
		Service:    serviceCfg,
		Chain:      chainCfg,
		Redeem:     redeemCfg,
	}, nil
}

// DevMode reports whether the desk runs against the in-memory chain.
func (c *AppConfig) DevMode() bool {
	return c.Chain.PrivateKey == "" && c.Chain.RPCURL == ""
}

func loadDeployments(path string) (*DeploymentConfig, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && path == defaultDeploymentsPath {
		return &DeploymentConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg DeploymentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func address(name, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("contracts.%s: invalid address %q", name, value)
	}
	return common.HexToAddress(value), nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
