package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"hypertrader/internal/domain"
	"hypertrader/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements the ports.ExchangeClient interface using the go-binance library.
type Client struct {
	futuresClient   *futures.Client
	logger          ports.Logger
	limiter         *rate.Limiter
	retryMaxElapsed time.Duration

	metaMu    sync.Mutex
	metaCache map[string]*ports.AssetMeta
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey          string
	SecretKey       string
	UseTestnet      bool
	Logger          ports.Logger
	RequestsPerSec  int           // Client-side rate limit for outgoing API calls
	RetryMaxElapsed time.Duration // Upper bound on retrying idempotent market-data reads
}

// New creates a new Binance client adapter. With empty credentials the client
// works for public (market-data) endpoints only.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Debug(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}
	retryMax := cfg.RetryMaxElapsed
	if retryMax <= 0 {
		retryMax = 15 * time.Second
	}

	return &Client{
		futuresClient:   client,
		logger:          cfg.Logger,
		limiter:         rate.NewLimiter(rate.Limit(rps), rps),
		retryMaxElapsed: retryMax,
		metaCache:       make(map[string]*ports.AssetMeta),
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrOrderCancelFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014: // API-key format invalid
			mappedErr = ports.ErrInvalidAPIKeys
		case -2015: // Invalid API-key, IP, or permissions for action
			mappedErr = ports.ErrInvalidAPIKeys
		case -2019: // Margin is insufficient
			mappedErr = ports.ErrInsufficientFunds
		case -2022: // ReduceOnly Order is rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -3005: // Insufficient balance
			mappedErr = ports.ErrInsufficientFunds
		case -3041: // Position is not sufficient
			mappedErr = ports.ErrInsufficientFunds
		case -4003: // Qty not within permissible range
			mappedErr = ports.ErrInvalidRequest
		case -4014: // Price not within permissible range
			mappedErr = ports.ErrInvalidRequest
		case -4015: // Leverage is not valid
			mappedErr = ports.ErrInvalidRequest
		case -4044: // Position not found
			mappedErr = ports.ErrPositionNotFound
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// retryRead runs an idempotent market-data read with exponential backoff.
// Order placement is never retried here: a timed-out order may have been
// accepted, and a blind retry could double the position.
func (c *Client) retryRead(ctx context.Context, op func() error) error {
	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = c.retryMaxElapsed
	return backoff.Retry(op, backoff.WithContext(strategy, ctx))
}

// GetMarketPrices retrieves the current price for every tradable symbol.
func (c *Client) GetMarketPrices(ctx context.Context) (map[string]float64, error) {
	op := "GetMarketPrices"
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	var listed []*futures.SymbolPrice
	err := c.retryRead(ctx, func() error {
		var doErr error
		listed, doErr = c.futuresClient.NewListPricesService().Do(ctx)
		return doErr
	})
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	prices := make(map[string]float64, len(listed))
	for _, sp := range listed {
		price, parseErr := strconv.ParseFloat(sp.Price, 64)
		if parseErr != nil {
			c.logger.Warn(ctx, op+": skipping unparsable price", map[string]interface{}{"symbol": sp.Symbol, "price": sp.Price})
			continue
		}
		prices[sp.Symbol] = price
	}
	return prices, nil
}

// GetAssetMeta retrieves precision metadata for a given symbol. The full
// exchange-info table is fetched once and cached for the client's lifetime.
func (c *Client) GetAssetMeta(ctx context.Context, symbol string) (*ports.AssetMeta, error) {
	op := "GetAssetMeta"

	c.metaMu.Lock()
	meta, ok := c.metaCache[symbol]
	c.metaMu.Unlock()
	if ok {
		return meta, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	var info *futures.ExchangeInfo
	err := c.retryRead(ctx, func() error {
		var doErr error
		info, doErr = c.futuresClient.NewExchangeInfoService().Do(ctx)
		return doErr
	})
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	c.metaMu.Lock()
	for _, s := range info.Symbols {
		c.metaCache[s.Symbol] = &ports.AssetMeta{
			Symbol:         s.Symbol,
			LotPrecision:   int32(s.QuantityPrecision),
			PricePrecision: int32(s.PricePrecision),
		}
	}
	meta, ok = c.metaCache[symbol]
	c.metaMu.Unlock()

	if !ok {
		err := fmt.Errorf("symbol %s not listed on the exchange: %w", symbol, ports.ErrNotFound)
		c.logger.Error(ctx, err, op+" failed", map[string]interface{}{"symbol": symbol})
		return nil, err
	}
	return meta, nil
}

// RoundQuantity rounds a contract quantity down to the symbol's lot precision.
// Rounding down, never up: rounding up could exceed the intended risk.
func (c *Client) RoundQuantity(ctx context.Context, symbol string, qty decimal.Decimal) (decimal.Decimal, error) {
	meta, err := c.GetAssetMeta(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return qty.RoundDown(meta.LotPrecision), nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.limiter.Wait(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// SetLeverage sets the leverage for a specific symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	op := "SetLeverage"
	if err := c.limiter.Wait(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	_, err := c.futuresClient.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "leverage": leverage})
	return nil
}

// PlaceMarketOrder places a market order.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*ports.OrderResponse, error) {
	op := "PlaceMarketOrder"
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quantity": quantity, "orderID": resp.OrderID, "avgPrice": resp.AvgPrice})
	return resp, nil
}

// PlaceLimitOrder places a GTC limit order.
func (c *Client) PlaceLimitOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity, price string, reduceOnly bool) (*ports.OrderResponse, error) {
	op := "PlaceLimitOrder"
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(quantity).
		Price(price).
		ReduceOnly(reduceOnly).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quantity": quantity, "price": price, "orderID": resp.OrderID})
	return resp, nil
}

// PlaceStopLoss places a stop-market order protecting an open position.
func (c *Client) PlaceStopLoss(ctx context.Context, symbol string, side domain.OrderSide, quantity, stopPrice string) (*ports.OrderResponse, error) {
	op := "PlaceStopLoss"
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeStopMarket).
		Quantity(quantity).
		StopPrice(stopPrice).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quantity": quantity, "stopPrice": stopPrice, "orderID": resp.OrderID})
	return resp, nil
}

// PlaceTakeProfit places a take-profit-market order for an open position.
func (c *Client) PlaceTakeProfit(ctx context.Context, symbol string, side domain.OrderSide, quantity, stopPrice string) (*ports.OrderResponse, error) {
	op := "PlaceTakeProfit"
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeTakeProfitMarket).
		Quantity(quantity).
		StopPrice(stopPrice).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quantity": quantity, "stopPrice": stopPrice, "orderID": resp.OrderID})
	return resp, nil
}

// CancelOrder cancels an open order on Binance.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	op := "CancelOrder"
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	res, err := c.futuresClient.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	// CancelOrderResponse is not castable to CreateOrderResponse; copy the
	// shared fields so the common translation applies.
	resp := translateOrderResponse(&futures.CreateOrderResponse{
		OrderID:      res.OrderID,
		Symbol:       res.Symbol,
		Price:        res.Price,
		OrigQuantity: res.OrigQuantity,
		Status:       res.Status,
		Type:         res.Type,
		Side:         res.Side,
	})
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": orderID, "status": resp.Status})
	return resp, nil
}

// GetOpenOrders lists the resting orders for a symbol.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]*ports.OrderResponse, error) {
	op := "GetOpenOrders"
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	orders, err := c.futuresClient.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := make([]*ports.OrderResponse, 0, len(orders))
	for _, o := range orders {
		price, _ := strconv.ParseFloat(o.Price, 64)
		avgPrice, _ := strconv.ParseFloat(o.AvgPrice, 64)
		origQty, _ := strconv.ParseFloat(o.OrigQuantity, 64)
		executedQty, _ := strconv.ParseFloat(o.ExecutedQuantity, 64)
		resp = append(resp, &ports.OrderResponse{
			OrderID:      o.OrderID,
			Symbol:       o.Symbol,
			Price:        price,
			AvgPrice:     avgPrice,
			OrigQuantity: origQty,
			ExecutedQty:  executedQty,
			Status:       string(o.Status),
			Type:         string(o.Type),
			Side:         string(o.Side),
			Timestamp:    time.UnixMilli(o.UpdateTime),
		})
	}
	return resp, nil
}

// ClosePosition market-closes the open position for a symbol.
// Returns nil, nil when no position exists.
func (c *Client) ClosePosition(ctx context.Context, symbol string) (*ports.OrderResponse, error) {
	op := "ClosePosition"
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	positions, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(positions) == 0 {
		c.logger.Debug(ctx, op+": no position found for symbol", map[string]interface{}{"symbol": symbol})
		return nil, nil
	}

	amt, err := strconv.ParseFloat(positions[0].PositionAmt, 64)
	if err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("could not parse position amount '%s': %w", positions[0].PositionAmt, err), op)
	}
	if amt == 0 {
		return nil, nil
	}

	side := domain.Sell
	if amt < 0 {
		side = domain.Buy
		amt = -amt
	}
	quantity := strconv.FormatFloat(amt, 'f', -1, 64)

	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quantity": quantity, "orderID": resp.OrderID})
	return resp, nil
}

// CloseAllPositions market-closes every open position on the account.
func (c *Client) CloseAllPositions(ctx context.Context) error {
	op := "CloseAllPositions"
	if err := c.limiter.Wait(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}

	positions, err := c.futuresClient.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}

	var firstErr error
	for _, pos := range positions {
		amt, parseErr := strconv.ParseFloat(pos.PositionAmt, 64)
		if parseErr != nil || amt == 0 {
			continue
		}
		if _, closeErr := c.ClosePosition(ctx, pos.Symbol); closeErr != nil && firstErr == nil {
			firstErr = closeErr
		}
	}
	return firstErr
}

// translateOrderResponse converts a Binance order response to the ports type.
func translateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	price, _ := strconv.ParseFloat(order.Price, 64)
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	origQty, _ := strconv.ParseFloat(order.OrigQuantity, 64)
	executedQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)

	return &ports.OrderResponse{
		OrderID:      order.OrderID,
		Symbol:       order.Symbol,
		Price:        price,
		AvgPrice:     avgPrice,
		OrigQuantity: origQty,
		ExecutedQty:  executedQty,
		Status:       string(order.Status),
		Type:         string(order.Type),
		Side:         string(order.Side),
		Timestamp:    time.UnixMilli(order.UpdateTime),
	}
}
