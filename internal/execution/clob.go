package execution

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	json "github.com/goccy/go-json"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

const (
	polygonChainID  = 137
	zeroAddress     = "0x0000000000000000000000000000000000000000"
	endCursor       = "LTE="
	collateralScale = 6
)

// CollateralReader returns the spendable collateral held by an address.
type CollateralReader interface {
	CollateralBalance(ctx context.Context, address common.Address) (decimal.Decimal, error)
}

// CLOBConfig holds configuration for the CLOB exchange adapter.
type CLOBConfig struct {
	BaseURL           string
	APIKey            string
	Secret            string
	Passphrase        string
	PrivateKey        string
	ProxyAddress      string // maker/funder, empty for EOA wallets
	SignatureType     int
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Wallet            CollateralReader
	Logger            *zap.Logger
}

// CLOBExchange submits signed orders to the Polymarket CLOB. Orders are
// signed once per client order id so a retry resubmits the identical order
// and the exchange deduplicates it by hash.
type CLOBExchange struct {
	baseURL       string
	apiKey        string
	secret        []byte
	passphrase    string
	privateKey    *ecdsa.PrivateKey
	address       string // EOA address (signer)
	maker         string
	signatureType model.SignatureType
	orderBuilder  builder.ExchangeOrderBuilder
	httpClient    *http.Client
	limiter       *rate.Limiter
	wallet        CollateralReader
	logger        *zap.Logger

	mu     sync.Mutex
	signed map[string]*model.SignedOrder
}

// NewCLOBExchange creates a CLOB adapter.
func NewCLOBExchange(cfg *CLOBConfig) (*CLOBExchange, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	// The CLOB client encodes its secret with URL-safe base64.
	secret, err := base64.URLEncoding.DecodeString(cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey).Hex()
	maker := address
	if cfg.ProxyAddress != "" {
		maker = cfg.ProxyAddress
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &CLOBExchange{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		secret:        secret,
		passphrase:    cfg.Passphrase,
		privateKey:    privateKey,
		address:       address,
		maker:         maker,
		signatureType: model.SignatureType(cfg.SignatureType),
		orderBuilder:  builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil),
		httpClient:    httpClient,
		limiter:       rate.NewLimiter(rate.Limit(rps), burst),
		wallet:        cfg.Wallet,
		logger:        cfg.Logger,
		signed:        make(map[string]*model.SignedOrder),
	}, nil
}

// SubmitOrder signs (or reuses the signature of) req and posts it.
func (c *CLOBExchange) SubmitOrder(ctx context.Context, req *types.OrderRequest) (*types.OrderResult, error) {
	start := time.Now()

	order, err := c.signOnce(req)
	if err != nil {
		return nil, err
	}

	tif := req.TimeInForce
	if tif == "" {
		tif = types.ImmediateOrCancel
	}

	body, err := json.Marshal(types.OrderSubmissionRequest{
		Order:     toSignedOrderJSON(order),
		Owner:     c.apiKey,
		OrderType: string(tif),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	status, respBody, err := c.do(ctx, http.MethodPost, "/order", nil, body)
	if err != nil {
		return nil, err
	}

	result := &types.OrderResult{ClientOrderID: req.ClientOrderID}
	defer func() { result.Latency = time.Since(start) }()

	if status != http.StatusOK && status != http.StatusCreated {
		msg := apiErrorMessage(respBody)
		if isNoMatch(msg) {
			result.Status = types.OrderUnfilled
			return result, nil
		}
		result.Status = types.OrderRejected
		result.Err = &types.OrderError{Code: errorCode(msg), Message: msg, Side: string(req.Outcome)}
		return result, nil
	}

	var resp types.OrderSubmissionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}
	result.OrderID = resp.OrderID

	if !resp.Success {
		if isNoMatch(resp.ErrorMsg) {
			result.Status = types.OrderUnfilled
			return result, nil
		}
		result.Status = types.OrderRejected
		result.Err = &types.OrderError{
			Code:    errorCode(resp.ErrorMsg),
			Message: resp.ErrorMsg,
			OrderID: resp.OrderID,
			Side:    string(req.Outcome),
		}
		return result, nil
	}

	switch strings.ToLower(resp.Status) {
	case "matched":
		shares, collateral := resp.TakingAmount, resp.MakingAmount
		if req.Side == types.Sell {
			shares, collateral = resp.MakingAmount, resp.TakingAmount
		}
		fill, err := parseFill(shares, collateral)
		if err != nil {
			return nil, fmt.Errorf("parse fill amounts: %w", err)
		}
		result.FilledSize = fill.Shares
		result.AvgPrice = fill.AvgPrice()
		result.Status = types.OrderFilled
		if result.FilledSize.LessThan(req.Size) {
			result.Status = types.OrderPartiallyFilled
		}
	case "expired":
		result.Status = types.OrderExpired
	case "delayed":
		// The match is still being processed; the outcome is unknown until a resubmit.
		return nil, fmt.Errorf("order %s delayed: %w", resp.OrderID, types.ErrTransient)
	default:
		result.Status = types.OrderUnfilled
	}

	c.logger.Debug("clob-order-submitted",
		zap.String("client-order-id", req.ClientOrderID),
		zap.String("order-id", resp.OrderID),
		zap.String("status", resp.Status),
		zap.Stringer("filled", result.FilledSize))

	return result, nil
}

// CancelOrder cancels a resting order.
func (c *CLOBExchange) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	body, err := json.Marshal(map[string]string{"orderID": orderID})
	if err != nil {
		return false, fmt.Errorf("marshal cancel: %w", err)
	}

	status, respBody, err := c.do(ctx, http.MethodDelete, "/order", nil, body)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("cancel order %s: status %d: %s", orderID, status, apiErrorMessage(respBody))
	}

	var resp struct {
		Canceled    []string          `json:"canceled"`
		NotCanceled map[string]string `json:"not_canceled"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return false, fmt.Errorf("parse cancel response: %w", err)
	}

	for _, id := range resp.Canceled {
		if id == orderID {
			return true, nil
		}
	}

	if reason, ok := resp.NotCanceled[orderID]; ok {
		c.logger.Info("clob-order-not-canceled",
			zap.String("order-id", orderID),
			zap.String("reason", reason))
	}

	return false, nil
}

// OpenOrders lists every resting order, following the pagination cursor.
func (c *CLOBExchange) OpenOrders(ctx context.Context) ([]types.OpenOrder, error) {
	var orders []types.OpenOrder
	cursor := ""

	for {
		query := url.Values{}
		if cursor != "" {
			query.Set("next_cursor", cursor)
		}

		status, respBody, err := c.do(ctx, http.MethodGet, "/data/orders", query, nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("list open orders: status %d: %s", status, apiErrorMessage(respBody))
		}

		var page types.OpenOrdersPage
		if err := json.Unmarshal(respBody, &page); err != nil {
			return nil, fmt.Errorf("parse open orders: %w", err)
		}

		for _, o := range page.Data {
			orders = append(orders, types.OpenOrder{
				OrderID: o.ID,
				TokenID: o.AssetID,
				Side:    types.Side(strings.ToUpper(o.Side)),
			})
		}

		if page.NextCursor == "" || page.NextCursor == endCursor || page.NextCursor == cursor {
			return orders, nil
		}
		cursor = page.NextCursor
	}
}

// GetBalance returns the maker's collateral balance.
func (c *CLOBExchange) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	if c.wallet == nil {
		return decimal.Zero, fmt.Errorf("no wallet configured")
	}

	balance, err := c.wallet.CollateralBalance(ctx, common.HexToAddress(c.maker))
	if err != nil {
		return decimal.Zero, fmt.Errorf("collateral balance: %w", err)
	}

	return balance, nil
}

// Forget drops the cached signature of a terminal order.
func (c *CLOBExchange) Forget(clientOrderID string) {
	c.mu.Lock()
	delete(c.signed, clientOrderID)
	c.mu.Unlock()
}

func (c *CLOBExchange) signOnce(req *types.OrderRequest) (*model.SignedOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if order, ok := c.signed[req.ClientOrderID]; ok {
		return order, nil
	}

	makerAmount, takerAmount := orderAmounts(req)
	side := model.BUY
	if req.Side == types.Sell {
		side = model.SELL
	}

	order, err := c.orderBuilder.BuildSignedOrder(c.privateKey, &model.OrderData{
		Maker:         c.maker,
		Taker:         zeroAddress,
		TokenId:       req.TokenID,
		MakerAmount:   makerAmount,
		TakerAmount:   takerAmount,
		Side:          side,
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        c.address,
		Expiration:    "0",
		SignatureType: c.signatureType,
	}, model.CTFExchange)
	if err != nil {
		return nil, fmt.Errorf("build %s order: %w", req.Outcome, err)
	}

	c.signed[req.ClientOrderID] = order

	return order, nil
}

// do sends an authenticated request. A transport failure, a 429 or a 5xx is
// returned as an error since the outcome is unknown.
func (c *CLOBExchange) do(ctx context.Context, method, path string, query url.Values, body []byte) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter: %w", err)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_API_KEY", c.apiKey)
	req.Header.Set("POLY_SIGNATURE", c.sign(timestamp, method, path, body))
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", c.passphrase)
	req.Header.Set("POLY_ADDRESS", c.address)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w: %w", types.ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w: %w", types.ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return 0, nil, &types.OrderError{Code: types.ErrRateLimited, Message: string(respBody)}
	case resp.StatusCode >= http.StatusInternalServerError:
		return 0, nil, &types.OrderError{
			Code:    types.ErrServerError,
			Message: fmt.Sprintf("status %d: %s", resp.StatusCode, respBody),
		}
	}

	return resp.StatusCode, respBody, nil
}

func (c *CLOBExchange) sign(timestamp, method, path string, body []byte) string {
	h := hmac.New(sha256.New, c.secret)
	h.Write([]byte(timestamp + method + path + string(body)))

	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

func toSignedOrderJSON(order *model.SignedOrder) types.SignedOrderJSON {
	side := "BUY"
	if order.Side.Uint64() == uint64(model.SELL) {
		side = "SELL"
	}

	return types.SignedOrderJSON{
		Salt:          order.Salt.Int64(),
		Maker:         order.Maker.Hex(),
		Signer:        order.Signer.Hex(),
		Taker:         order.Taker.Hex(),
		TokenID:       order.TokenId.String(),
		MakerAmount:   order.MakerAmount.String(),
		TakerAmount:   order.TakerAmount.String(),
		Side:          side,
		Expiration:    order.Expiration.String(),
		Nonce:         order.Nonce.String(),
		FeeRateBps:    order.FeeRateBps.String(),
		SignatureType: int(order.SignatureType.Int64()),
		Signature:     "0x" + common.Bytes2Hex(order.Signature),
	}
}

// orderAmounts returns maker and taker amounts in 6-decimal base units. A
// buy gives collateral for shares, a sell gives shares for collateral.
// Shares are traded in hundredths and collateral in ten-thousandths.
func orderAmounts(req *types.OrderRequest) (string, string) {
	shares := req.Size.Truncate(2)
	collateral := shares.Mul(req.LimitPrice).Truncate(4)
	if req.Side == types.Sell {
		return toBaseUnits(shares), toBaseUnits(collateral)
	}

	return toBaseUnits(collateral), toBaseUnits(shares)
}

func toBaseUnits(amount decimal.Decimal) string {
	return amount.Shift(collateralScale).Truncate(0).String()
}

func parseFill(shares, collateral string) (fillAmounts, error) {
	s, err := decimal.NewFromString(shares)
	if err != nil {
		return fillAmounts{}, fmt.Errorf("shares %q: %w", shares, err)
	}
	n, err := decimal.NewFromString(collateral)
	if err != nil {
		return fillAmounts{}, fmt.Errorf("collateral %q: %w", collateral, err)
	}

	return fillAmounts{Shares: s, Collateral: n}, nil
}

type fillAmounts struct {
	Shares     decimal.Decimal
	Collateral decimal.Decimal
}

func (f fillAmounts) AvgPrice() decimal.Decimal {
	if f.Shares.IsZero() {
		return decimal.Zero
	}

	return f.Collateral.Div(f.Shares)
}

func apiErrorMessage(body []byte) string {
	var resp struct {
		Error    string `json:"error"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(body, &resp); err == nil {
		if resp.Error != "" {
			return resp.Error
		}
		if resp.ErrorMsg != "" {
			return resp.ErrorMsg
		}
	}

	return strings.TrimSpace(string(body))
}

func isNoMatch(msg string) bool {
	upper := strings.ToUpper(msg)

	return strings.Contains(upper, types.ErrFOKNotFilled) ||
		strings.Contains(upper, "NO ORDERS FOUND TO MATCH")
}

func errorCode(msg string) string {
	upper := strings.ToUpper(msg)
	for _, code := range []string{
		types.ErrInvalidMinTickSize,
		types.ErrNotEnoughBalance,
		types.ErrMarketNotReady,
		types.ErrUnmatched,
	} {
		if strings.Contains(upper, code) {
			return code
		}
	}
	if strings.Contains(upper, "NOT ENOUGH BALANCE") {
		return types.ErrNotEnoughBalance
	}

	return types.ErrUnknownStatus
}
