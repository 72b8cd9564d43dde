package pool

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"redeemdesk/internal/contracts"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

const (
	defaultReceiptPollInterval = 2 * time.Second
	defaultBlockPollInterval   = 4 * time.Second
)

// EthClient talks to the pool diamond and ERC-20 tokens over JSON-RPC.
type EthClient struct {
	client      *ethclient.Client
	pool        *bind.BoundContract
	erc20       abi.ABI
	diamond     common.Address
	protocol    ProtocolVersion
	chainID     *big.Int
	account     common.Address
	transacts   *bind.TransactOpts
	receiptPoll time.Duration
	blockPoll   time.Duration
	log         *logrus.Entry
}

type EthClientConfig struct {
	RPCURL              string
	PrivateKeyHex       string
	Diamond             string
	Protocol            ProtocolVersion
	ReceiptPollInterval time.Duration
	BlockPollInterval   time.Duration
	Logger              *logrus.Entry
}

func NewEthClient(ctx context.Context, cfg EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.Diamond) {
		return nil, fmt.Errorf("diamond address is required")
	}

	poolABIJSON, err := cfg.Protocol.poolABI()
	if err != nil {
		return nil, err
	}
	poolABI, err := contracts.Parse(poolABIJSON)
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	erc20ABI, err := contracts.Parse(contracts.ERC20ABI)
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	diamond := common.HexToAddress(cfg.Diamond)
	c := &EthClient{
		client:      cli,
		pool:        bind.NewBoundContract(diamond, poolABI, cli, cli, cli),
		erc20:       erc20ABI,
		diamond:     diamond,
		protocol:    cfg.Protocol,
		chainID:     chainID,
		receiptPoll: durationOr(cfg.ReceiptPollInterval, defaultReceiptPollInterval),
		blockPoll:   durationOr(cfg.BlockPollInterval, defaultBlockPollInterval),
		log:         logger.WithField("component", "pool"),
	}

	if cfg.PrivateKeyHex != "" {
		pk, err := parsePrivateKey(cfg.PrivateKeyHex)
		if err != nil {
			cli.Close()
			return nil, err
		}
		txOpts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
		if err != nil {
			cli.Close()
			return nil, fmt.Errorf("transactor: %w", err)
		}
		txOpts.GasLimit = 0 // let node estimate
		c.transacts = txOpts
		c.account = txOpts.From
	}

	c.log.WithFields(logrus.Fields{
		"chainId":  chainID.String(),
		"diamond":  diamond.Hex(),
		"protocol": cfg.Protocol.String(),
		"account":  c.account.Hex(),
	}).Info("connected to chain")
	return c, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (c *EthClient) Close() {
	c.client.Close()
}

func (c *EthClient) Account() common.Address {
	return c.account
}

func (c *EthClient) Protocol() ProtocolVersion {
	return c.protocol
}

func (c *EthClient) ListCollaterals(ctx context.Context) ([]common.Address, error) {
	var out []interface{}
	if err := c.pool.Call(&bind.CallOpts{Context: ctx}, &out, "allCollaterals"); err != nil {
		return nil, fmt.Errorf("all collaterals: %w", err)
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

func (c *EthClient) CollateralInfo(ctx context.Context, id common.Address) (CollateralInfo, error) {
	var out []interface{}
	if err := c.pool.Call(&bind.CallOpts{Context: ctx}, &out, "collateralInformation", id); err != nil {
		return CollateralInfo{}, fmt.Errorf("collateral information %s: %w", id.Hex(), err)
	}
	raw := *abi.ConvertType(out[0], new(contracts.CollateralInformation)).(*contracts.CollateralInformation)
	return CollateralInfo{
		Index:        raw.Index.Uint64(),
		Symbol:       raw.Symbol,
		Address:      raw.CollateralAddress,
		Enabled:      raw.IsEnabled,
		RedeemPaused: raw.IsRedeemPaused,
	}, nil
}

func (c *EthClient) token(address common.Address) *bind.BoundContract {
	return bind.NewBoundContract(address, c.erc20, c.client, c.client, c.client)
}

func (c *EthClient) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	var out []interface{}
	if err := c.token(token).Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, fmt.Errorf("decimals %s: %w", token.Hex(), err)
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

func (c *EthClient) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	var out []interface{}
	if err := c.token(token).Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, spender); err != nil {
		return nil, fmt.Errorf("allowance %s: %w", token.Hex(), err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *EthClient) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.transacts == nil {
		return nil, ErrReadOnly
	}
	opts := *c.transacts
	opts.Context = ctx
	return &opts, nil
}

func (c *EthClient) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	tx, err := c.token(token).Transact(opts, "approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("approve tx: %w", err)
	}
	return tx.Hash(), nil
}

func (c *EthClient) Redeem(ctx context.Context, req RedeemRequest) (common.Hash, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	args, err := c.protocol.redeemArgs(req)
	if err != nil {
		return common.Hash{}, err
	}
	tx, err := c.pool.Transact(opts, "redeemDollar", args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("redeem tx: %w", err)
	}
	return tx.Hash(), nil
}

func (c *EthClient) CollectRedemption(ctx context.Context, collateralIndex *big.Int) (common.Hash, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	tx, err := c.pool.Transact(opts, "collectRedemption", collateralIndex)
	if err != nil {
		return common.Hash{}, fmt.Errorf("collect redemption tx: %w", err)
	}
	return tx.Hash(), nil
}

// WaitForFinality polls until the transaction is mined or ctx is cancelled.
func (c *EthClient) WaitForFinality(ctx context.Context, hash common.Hash) (FinalityStatus, error) {
	ticker := time.NewTicker(c.receiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return FinalitySuccess, nil
			}
			return FinalityReverted, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return 0, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *EthClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.client.BlockNumber(ctx)
}

// SubscribeNewBlocks forwards newHeads block numbers to ch. Endpoints without
// notification support (plain HTTP) are polled instead.
func (c *EthClient) SubscribeNewBlocks(ctx context.Context, ch chan<- uint64) (ethereum.Subscription, error) {
	headers := make(chan *types.Header, 16)
	sub, err := c.client.SubscribeNewHead(ctx, headers)
	if errors.Is(err, rpc.ErrNotificationsUnsupported) {
		c.log.Debug("newHeads unsupported, polling block number")
		return c.pollBlocks(ch), nil
	}
	if err != nil {
		return nil, fmt.Errorf("subscribe new heads: %w", err)
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case h := <-headers:
				select {
				case ch <- h.Number.Uint64():
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (c *EthClient) pollBlocks(ch chan<- uint64) ethereum.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-quit:
			case <-ctx.Done():
			}
			cancel()
		}()

		ticker := time.NewTicker(c.blockPoll)
		defer ticker.Stop()

		var last uint64
		for {
			n, err := c.client.BlockNumber(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("poll block number: %w", err)
			}
			if n > last {
				last = n
				select {
				case ch <- n:
				case <-quit:
					return nil
				}
			}
			select {
			case <-ticker.C:
			case <-quit:
				return nil
			}
		}
	})
}

func (c *EthClient) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := c.client.BlockNumber(ctx)
	return err
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
