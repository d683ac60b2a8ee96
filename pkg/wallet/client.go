// Package wallet reads on-chain collateral and gas balances.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	polygonUSDC        = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	polygonCTFExchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

	usdcDecimals  = 6
	maticDecimals = 18

	erc20ABI = `[
		{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
		{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"}
	]`
)

// ChainReader is the read side of an Ethereum RPC client.
type ChainReader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Client reads balances over RPC.
type Client struct {
	chain  ChainReader
	erc20  abi.ABI
	closer func()
	logger *zap.Logger
}

// Balances holds on-chain balances in token units.
type Balances struct {
	Gas        decimal.Decimal // MATIC
	Collateral decimal.Decimal // USDC
	Allowance  decimal.Decimal // USDC approved to the exchange
}

// Dial connects to rpcURL and returns a client over it.
func Dial(ctx context.Context, rpcURL string, logger *zap.Logger) (*Client, error) {
	if rpcURL == "" {
		return nil, errors.New("rpcURL cannot be empty")
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}

	c, err := NewClient(eth, logger)
	if err != nil {
		eth.Close()
		return nil, err
	}
	c.closer = eth.Close

	return c, nil
}

// NewClient creates a client over an existing chain reader.
func NewClient(chain ChainReader, logger *zap.Logger) (*Client, error) {
	if chain == nil {
		return nil, errors.New("chain reader cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}

	return &Client{chain: chain, erc20: parsed, logger: logger}, nil
}

// CollateralBalance returns the USDC balance of owner.
func (c *Client) CollateralBalance(ctx context.Context, owner common.Address) (decimal.Decimal, error) {
	raw, err := c.call(ctx, "balanceOf", owner)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get USDC balance: %w", err)
	}

	return fromUnits(raw, usdcDecimals), nil
}

// GetBalances fetches gas, collateral and allowance of owner.
func (c *Client) GetBalances(ctx context.Context, owner common.Address) (*Balances, error) {
	gas, err := c.chain.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("get MATIC balance: %w", err)
	}

	collateral, err := c.CollateralBalance(ctx, owner)
	if err != nil {
		return nil, err
	}

	allowance, err := c.call(ctx, "allowance", owner, common.HexToAddress(polygonCTFExchange))
	if err != nil {
		return nil, fmt.Errorf("get USDC allowance: %w", err)
	}

	return &Balances{
		Gas:        fromUnits(gas, maticDecimals),
		Collateral: collateral,
		Allowance:  fromUnits(allowance, usdcDecimals),
	}, nil
}

// Close releases the RPC connection opened by Dial.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	data, err := c.erc20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack ABI: %w", err)
	}

	token := common.HexToAddress(polygonUSDC)
	result, err := c.chain.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call contract: %w", err)
	}

	return new(big.Int).SetBytes(result), nil
}

func fromUnits(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}

	return decimal.NewFromBigInt(v, -decimals)
}
