package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const (
	polygonUSDC        = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	polygonCTFExchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

	usdcDecimals = 6
)

// Client fetches on-chain wallet state needed before live trading is allowed.
type Client struct {
	rpcURL  string
	timeout time.Duration
	logger  *zap.Logger
}

// Balances holds on-chain token balances.
type Balances struct {
	MATIC         *big.Int // in wei
	USDC          *big.Int // in 6-decimal units
	USDCAllowance *big.Int // in 6-decimal units
}

// USDCFloat returns the USDC balance in whole dollars.
func (b *Balances) USDCFloat() float64 {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(b.USDC),
		big.NewFloat(1e6),
	).Float64()
	return f
}

// NewClient creates a new wallet client.
func NewClient(rpcURL string, logger *zap.Logger) (*Client, error) {
	if rpcURL == "" {
		return nil, errors.New("rpcURL cannot be empty")
	}

	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Client{
		rpcURL:  rpcURL,
		timeout: 15 * time.Second,
		logger:  logger,
	}, nil
}

// AddressFromPrivateKey derives the wallet address from a hex-encoded
// private key.
func AddressFromPrivateKey(privateKeyHex string) (common.Address, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("parse private key: %w", err)
	}

	return crypto.PubkeyToAddress(privateKey.PublicKey), nil
}

// GetBalances fetches on-chain token balances.
func (c *Client) GetBalances(ctx context.Context, address common.Address) (*Balances, error) {
	start := time.Now()

	client, err := ethclient.DialContext(ctx, c.rpcURL)
	if err != nil {
		UpdateErrorsTotal.Inc()
		return nil, fmt.Errorf("dial RPC: %w", err)
	}
	defer client.Close()

	maticBalance, err := client.BalanceAt(ctx, address, nil)
	if err != nil {
		UpdateErrorsTotal.Inc()
		return nil, fmt.Errorf("get MATIC balance: %w", err)
	}

	usdcBalance, err := c.getERC20Balance(ctx, client, address, polygonUSDC)
	if err != nil {
		UpdateErrorsTotal.Inc()
		return nil, fmt.Errorf("get USDC balance: %w", err)
	}

	allowance, err := c.getERC20Allowance(ctx, client, address, polygonUSDC, polygonCTFExchange)
	if err != nil {
		UpdateErrorsTotal.Inc()
		return nil, fmt.Errorf("get USDC allowance: %w", err)
	}

	balances := &Balances{
		MATIC:         maticBalance,
		USDC:          usdcBalance,
		USDCAllowance: allowance,
	}

	USDCBalance.Set(balances.USDCFloat())
	UpdateDuration.Observe(time.Since(start).Seconds())
	LastUpdateTimestamp.Set(float64(time.Now().Unix()))

	return balances, nil
}

// CanFund reports whether the wallet's USDC balance and exchange allowance
// cover the given dollar amount. Used as the live-capability gate before
// enabling live execution.
func (c *Client) CanFund(ctx context.Context, address common.Address, usd float64) (bool, error) {
	balances, err := c.GetBalances(ctx, address)
	if err != nil {
		return false, fmt.Errorf("fetch balances: %w", err)
	}

	required := new(big.Int)
	new(big.Float).Mul(big.NewFloat(usd), big.NewFloat(1e6)).Int(required)

	if balances.USDC.Cmp(required) < 0 {
		c.logger.Warn("insufficient-usdc-balance",
			zap.String("required", required.String()),
			zap.String("available", balances.USDC.String()))
		return false, nil
	}

	if balances.USDCAllowance.Cmp(required) < 0 {
		c.logger.Warn("insufficient-usdc-allowance",
			zap.String("required", required.String()),
			zap.String("allowance", balances.USDCAllowance.String()))
		return false, nil
	}

	return true, nil
}

// getERC20Balance fetches ERC20 token balance for an address.
func (c *Client) getERC20Balance(
	ctx context.Context,
	client *ethclient.Client,
	owner common.Address,
	tokenAddr string,
) (*big.Int, error) {
	balanceOfABI := `[{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

	parsedABI, err := abi.JSON(strings.NewReader(balanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}

	data, err := parsedABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack ABI: %w", err)
	}

	tokenAddress := common.HexToAddress(tokenAddr)
	msg := ethereum.CallMsg{
		To:   &tokenAddress,
		Data: data,
	}

	result, err := client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call contract: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}

// getERC20Allowance fetches ERC20 token allowance.
func (c *Client) getERC20Allowance(
	ctx context.Context,
	client *ethclient.Client,
	owner common.Address,
	tokenAddr string,
	spender string,
) (*big.Int, error) {
	allowanceABI := `[{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

	parsedABI, err := abi.JSON(strings.NewReader(allowanceABI))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}

	data, err := parsedABI.Pack("allowance", owner, common.HexToAddress(spender))
	if err != nil {
		return nil, fmt.Errorf("pack ABI: %w", err)
	}

	tokenAddress := common.HexToAddress(tokenAddr)
	msg := ethereum.CallMsg{
		To:   &tokenAddress,
		Data: data,
	}

	result, err := client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call contract: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}
