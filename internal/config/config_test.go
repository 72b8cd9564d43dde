package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"redeemdesk/internal/pool"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deploymentsJSON = `{
  "chainId": 1,
  "rpcUrl": "https://eth.example",
  "protocolVersion": "v1",
  "contracts": {
    "Dollar": "0x0F644658510c95CB46955e55D7BA9DDa9E9fBEc6",
    "Governance": "0x4e38D89362f7e5db0096CE44ebD021c3962aA9a0",
    "Diamond": "0xED3084c98148e2528DaDCB53C56352e549C488fA"
  }
}`

func writeDeployments(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deployments.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromDeploymentsAndEnv(t *testing.T) {
	t.Setenv("DEPLOYMENTS_PATH", writeDeployments(t, deploymentsJSON))
	t.Setenv("FINALITY_TIMEOUT_SECONDS", "30")
	t.Setenv("ALLOWANCE_GATE", "true")
	t.Setenv("API_HTTP_PORT", "8088")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(1), cfg.Deployment.ChainID)
	assert.Equal(t, "https://eth.example", cfg.Chain.RPCURL)
	assert.Equal(t, pool.ProtocolV1, cfg.Chain.Protocol)
	assert.Equal(t, common.HexToAddress("0xED3084c98148e2528DaDCB53C56352e549C488fA"), cfg.Redeem.Diamond)
	assert.Equal(t, 30*time.Second, cfg.Redeem.FinalityTimeout)
	assert.True(t, cfg.Redeem.AllowanceGate)
	assert.Equal(t, 8088, cfg.Service.HTTPPort)
	assert.Equal(t, "https://etherscan.io", cfg.Redeem.ExplorerURL)
	assert.False(t, cfg.DevMode())
}

func TestEnvOverridesProtocol(t *testing.T) {
	t.Setenv("DEPLOYMENTS_PATH", writeDeployments(t, deploymentsJSON))
	t.Setenv("PROTOCOL_VERSION", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, pool.ProtocolV2, cfg.Chain.Protocol)
}

func TestLoadRejectsBadAddress(t *testing.T) {
	t.Setenv("DEPLOYMENTS_PATH", writeDeployments(t, `{"contracts":{"Dollar":"nope"}}`))
	_, err := Load()
	assert.ErrorContains(t, err, "contracts.Dollar")
}

func TestMissingExplicitDeploymentsFails(t *testing.T) {
	t.Setenv("DEPLOYMENTS_PATH", filepath.Join(t.TempDir(), "absent.json"))
	_, err := Load()
	assert.Error(t, err)
}

func TestDevModeWithoutChain(t *testing.T) {
	t.Setenv("DEPLOYMENTS_PATH", writeDeployments(t, `{}`))
	t.Setenv("CHAIN_RPC_URL", "")
	t.Setenv("CHAIN_PRIVATE_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.DevMode())
	assert.Equal(t, pool.ProtocolV2, cfg.Chain.Protocol)
}
