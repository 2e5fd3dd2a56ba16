package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"hypertrader/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID      int64     // Exchange's order ID
	Symbol       string    // Symbol for the order
	Price        float64   // Price of the order (might be 0 for market orders initially)
	AvgPrice     float64   // Average filled price
	OrigQuantity float64   // Original quantity requested
	ExecutedQty  float64   // Quantity filled
	Status       string    // Order status (e.g., NEW, FILLED, CANCELED)
	Type         string    // Order type (e.g., MARKET, LIMIT, STOP_MARKET)
	Side         string    // Order side (BUY, SELL)
	Timestamp    time.Time // Time the order response was generated
}

// AssetMeta holds exchange-mandated precision metadata for one asset.
type AssetMeta struct {
	Symbol         string // Symbol this metadata belongs to
	LotPrecision   int32  // Decimal places allowed for contract quantity
	PricePrecision int32  // Decimal places allowed for order prices
}

// MarketDataClient covers the unauthenticated market-data side of an
// exchange. Lot-size rounding lives here rather than in the sizing engine
// because precision is an asset-specific exchange property.
type MarketDataClient interface {
	// GetMarketPrices retrieves the current price for every tradable symbol.
	GetMarketPrices(ctx context.Context) (map[string]float64, error)

	// GetAssetMeta retrieves precision metadata for a given symbol.
	GetAssetMeta(ctx context.Context, symbol string) (*AssetMeta, error)

	// RoundQuantity rounds a contract quantity down to the symbol's lot precision.
	RoundQuantity(ctx context.Context, symbol string, qty decimal.Decimal) (decimal.Decimal, error)

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error
}

// ExchangeClient defines the interface for interacting with a cryptocurrency exchange.
// This abstraction allows decoupling the execution core from specific exchange
// implementations. All operations are fallible and report failure through the
// returned error so callers can apply the partial-failure policy step by step.
type ExchangeClient interface {
	MarketDataClient

	// SetLeverage sets the leverage for a specific symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// PlaceMarketOrder places a market order.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*OrderResponse, error)

	// PlaceLimitOrder places a GTC limit order.
	PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, price string, reduceOnly bool) (*OrderResponse, error)

	// PlaceStopLoss places a stop-market order protecting an open position.
	PlaceStopLoss(ctx context.Context, symbol string, side domain.OrderSide, quantity, stopPrice string) (*OrderResponse, error)

	// PlaceTakeProfit places a take-profit-market order for an open position.
	PlaceTakeProfit(ctx context.Context, symbol string, side domain.OrderSide, quantity, stopPrice string) (*OrderResponse, error)

	// CancelOrder cancels a resting order by its exchange ID. Used to clean
	// up dangling protective orders after a degraded execution.
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)

	// GetOpenOrders lists the resting orders for a symbol.
	GetOpenOrders(ctx context.Context, symbol string) ([]*OrderResponse, error)

	// ClosePosition market-closes the open position for a symbol.
	// Returns nil, nil when no position exists.
	ClosePosition(ctx context.Context, symbol string) (*OrderResponse, error)

	// CloseAllPositions market-closes every open position on the account.
	CloseAllPositions(ctx context.Context) error
}

// ClientFactory constructs authenticated exchange clients from decrypted
// credentials. Keeping construction behind a factory lets the orchestrator
// scope key material tightly and lets tests substitute a programmable fake.
type ClientFactory interface {
	NewClient(ctx context.Context, creds *domain.Credentials) (ExchangeClient, error)
}
