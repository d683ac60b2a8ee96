package types

// OrderSubmissionResponse represents the response from POST /order.
type OrderSubmissionResponse struct {
	Success      bool     `json:"success"`
	ErrorMsg     string   `json:"errorMsg"`
	OrderID      string   `json:"orderId"` // lowercase 'd' on submission
	OrderHashes  []string `json:"orderHashes"`
	Status       string   `json:"status"`       // matched, live, delayed, unmatched
	TakingAmount string   `json:"takingAmount"` // shares for a buy
	MakingAmount string   `json:"makingAmount"` // collateral for a buy
}

// SignedOrderJSON represents a signed order in the format expected by the CLOB API.
type SignedOrderJSON struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Side          string `json:"side"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	SignatureType int    `json:"signatureType"` // 0=EOA, 1=POLY_PROXY, 2=GNOSIS_SAFE
	Signature     string `json:"signature"`
}

// OrderSubmissionRequest wraps a signed order with its owner and order type.
type OrderSubmissionRequest struct {
	Order     SignedOrderJSON `json:"order"`
	Owner     string          `json:"owner"`     // API key, not the maker address
	OrderType string          `json:"orderType"` // FOK or FAK
}

// OpenOrderResponse is one element of GET /data/orders.
type OpenOrderResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
}

// OpenOrdersPage is the paginated envelope of GET /data/orders.
type OpenOrdersPage struct {
	Data       []OpenOrderResponse `json:"data"`
	NextCursor string              `json:"next_cursor"`
}

// OpenOrder is an exchange-side resting order.
type OpenOrder struct {
	OrderID string
	TokenID string
	Side    Side
}
