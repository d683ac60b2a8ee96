package settlement

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

const (
	ctfAddress        = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"
	collateralAddress = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	polygonChainID    = 137
	redeemGasLimit    = 200000

	redeemABI = `[{
		"inputs": [
			{"name": "collateralToken", "type": "address"},
			{"name": "parentCollectionId", "type": "bytes32"},
			{"name": "conditionId", "type": "bytes32"},
			{"name": "indexSets", "type": "uint256[]"}
		],
		"name": "redeemPositions",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}]`
)

// winningShares is what a resolved binary position pays out: one unit of
// collateral per winning share.
func winningShares(e *types.SettlementEntry) decimal.Decimal {
	if e.Winner == types.OutcomeNo {
		return e.NoShares
	}

	return e.YesShares
}

// Crediter receives simulated proceeds.
type Crediter interface {
	Credit(amount decimal.Decimal)
}

// PaperClaimer settles paper positions by crediting the simulated balance.
type PaperClaimer struct {
	wallet Crediter
	logger *zap.Logger
}

// NewPaperClaimer creates a paper claimer.
func NewPaperClaimer(wallet Crediter, logger *zap.Logger) *PaperClaimer {
	return &PaperClaimer{wallet: wallet, logger: logger}
}

// ClaimSettlement credits the winning shares.
func (p *PaperClaimer) ClaimSettlement(_ context.Context, e *types.SettlementEntry) (decimal.Decimal, error) {
	proceeds := winningShares(e)
	if proceeds.IsPositive() {
		p.wallet.Credit(proceeds)
	}

	p.logger.Debug("paper-settlement-claimed",
		zap.String("position-id", e.PositionID),
		zap.Stringer("proceeds", proceeds))

	return proceeds, nil
}

// ChainClient is the subset of an Ethereum RPC client the redeemer uses.
// *ethclient.Client satisfies it.
type ChainClient interface {
	bind.DeployBackend
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

// MarketSource looks up market metadata.
type MarketSource interface {
	Get(id string) (*types.Market, bool)
}

// RedeemConfig holds RedeemClaimer configuration.
type RedeemConfig struct {
	Client     ChainClient
	PrivateKey string
	Markets    MarketSource
	Logger     *zap.Logger
}

// RedeemClaimer redeems both outcome index sets of a resolved condition on
// the conditional tokens contract. The tokens must be held by the signing
// address.
type RedeemClaimer struct {
	client     ChainClient
	privateKey *ecdsa.PrivateKey
	address    common.Address
	markets    MarketSource
	abi        abi.ABI
	logger     *zap.Logger
}

// NewRedeemClaimer creates an on-chain claimer.
func NewRedeemClaimer(cfg *RedeemConfig) (*RedeemClaimer, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Client == nil {
		return nil, errors.New("client cannot be nil")
	}
	if cfg.Markets == nil {
		return nil, errors.New("market source cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(redeemABI))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}

	return &RedeemClaimer{
		client:     cfg.Client,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		markets:    cfg.Markets,
		abi:        parsed,
		logger:     cfg.Logger,
	}, nil
}

// ClaimSettlement sends redeemPositions and waits for the receipt. RPC
// failures are transient; a reverted transaction is not.
func (r *RedeemClaimer) ClaimSettlement(ctx context.Context, e *types.SettlementEntry) (decimal.Decimal, error) {
	market, ok := r.markets.Get(e.MarketID)
	if !ok {
		return decimal.Zero, fmt.Errorf("market %s: %w", e.MarketID, types.ErrNotFound)
	}
	if market.ConditionID == "" {
		return decimal.Zero, fmt.Errorf("market %s has no condition id", e.MarketID)
	}

	data, err := r.abi.Pack("redeemPositions",
		common.HexToAddress(collateralAddress),
		common.Hash{},
		common.HexToHash(market.ConditionID),
		[]*big.Int{big.NewInt(1), big.NewInt(2)})
	if err != nil {
		return decimal.Zero, fmt.Errorf("pack call data: %w", err)
	}

	nonce, err := r.client.PendingNonceAt(ctx, r.address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get nonce: %w: %w", types.ErrTransient, err)
	}
	gasPrice, err := r.client.SuggestGasPrice(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("suggest gas price: %w: %w", types.ErrTransient, err)
	}

	tx := ethtypes.NewTransaction(nonce, common.HexToAddress(ctfAddress), big.NewInt(0), redeemGasLimit, gasPrice, data)
	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(big.NewInt(polygonChainID)), r.privateKey)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sign tx: %w", err)
	}

	if err := r.client.SendTransaction(ctx, signed); err != nil {
		return decimal.Zero, fmt.Errorf("send tx: %w: %w", types.ErrTransient, err)
	}
	r.logger.Info("redemption-tx-sent",
		zap.String("position-id", e.PositionID),
		zap.String("condition-id", market.ConditionID),
		zap.String("tx-hash", signed.Hash().Hex()))

	receipt, err := bind.WaitMined(ctx, r.client, signed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("wait for tx: %w: %w", types.ErrTransient, err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return decimal.Zero, fmt.Errorf("redeem tx %s reverted", receipt.TxHash.Hex())
	}

	proceeds := winningShares(e)
	r.logger.Info("redemption-confirmed",
		zap.String("position-id", e.PositionID),
		zap.String("tx-hash", receipt.TxHash.Hex()),
		zap.Uint64("gas-used", receipt.GasUsed),
		zap.Stringer("proceeds", proceeds))

	return proceeds, nil
}
