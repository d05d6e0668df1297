package types

// OrderSubmissionResponse is the response from POST /order.
type OrderSubmissionResponse struct {
	Success      bool     `json:"success"`
	ErrorMsg     string   `json:"errorMsg"`
	OrderID      string   `json:"orderId"`
	OrderHashes  []string `json:"orderHashes"`
	Status       string   `json:"status"` // matched, live, delayed, unmatched
	TakingAmount string   `json:"takingAmount"`
	MakingAmount string   `json:"makingAmount"`
}

// SignedOrderJSON is a signed order in the shape the CLOB API expects.
// Fields mirror the EIP-712 order structure after signing.
type SignedOrderJSON struct {
	Salt          int64  `json:"salt"` // Integer per API spec, not string
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"` // Raw amount, 6 decimals for USDC
	TakerAmount   string `json:"takerAmount"`
	Side          string `json:"side"` // "BUY" or "SELL"
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	SignatureType int    `json:"signatureType"` // 0=EOA, 1=POLY_PROXY, 2=GNOSIS_SAFE
	Signature     string `json:"signature"`
}

// OrderSubmissionRequest wraps a signed order with submission metadata.
type OrderSubmissionRequest struct {
	Order     SignedOrderJSON `json:"order"`
	Owner     string          `json:"owner"`     // API key, not the maker address
	OrderType string          `json:"orderType"` // GTC, FOK, GTD, or FAK
}

// OrderQueryResponse is the response from GET /order. It differs from
// OrderSubmissionResponse and carries the actual fill details.
type OrderQueryResponse struct {
	OrderID    string  `json:"orderID"` // Capital D in the GET endpoint
	Status     string  `json:"status"`
	TokenID    string  `json:"asset_id"`
	Price      float64 `json:"price,string"`
	Size       float64 `json:"original_size,string"`
	SizeFilled float64 `json:"size_matched,string"`
	Side       string  `json:"side"`
	OrderType  string  `json:"type"`
	MarketID   string  `json:"market"`
	Error      string  `json:"error,omitempty"`
}
