package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"hypertrader/internal/domain"
	"hypertrader/internal/monitoring"
	"hypertrader/internal/ports"
	"hypertrader/internal/sizing"
)

// Step identifies a stage of the trade execution state machine.
type Step string

const (
	StepValidating        Step = "validating"
	StepSizing            Step = "sizing"
	StepVerifying         Step = "verifying"
	StepDecryptingKey     Step = "decrypting_key"
	StepSettingLeverage   Step = "setting_leverage"
	StepPlacingEntry      Step = "placing_entry"
	StepPlacingStop       Step = "placing_stop"
	StepPlacingTakeProfit Step = "placing_take_profit"
	StepRecording         Step = "recording"
	StepDone              Step = "done"
)

// Warning reports a non-fatal failure that occurred after the point of no
// return. The trade result it accompanies is otherwise successful; the caller
// should surface the warning so the user can act (e.g. place a missing stop).
type Warning struct {
	Step    Step   `json:"step"`
	Message string `json:"message"`
}

// Request is a single trade execution request.
type Request struct {
	Intent     domain.TradeIntent
	WalletID   string
	Password   string
	LimitEntry bool // place the entry as a GTC limit at the intent's entry price instead of a market order
}

// CloseRequest asks for the open position on a symbol to be market-closed.
type CloseRequest struct {
	WalletID string
	Password string
	Symbol   string
}

// Result is the outcome of a successful (possibly degraded) execution.
type Result struct {
	Trade    *domain.Trade  `json:"trade"`
	Sizing   *sizing.Result `json:"sizing"`
	Verified bool           `json:"verified"`
	Warnings []Warning      `json:"warnings,omitempty"`
}

// Config holds tunables for the orchestrator.
type Config struct {
	// Tolerance is the accepted relative deviation between realized and
	// requested risk before the quantity is re-derived.
	Tolerance decimal.Decimal
	// CallTimeout bounds each individual exchange call so a stuck order
	// placement fails fast enough to report partial state.
	CallTimeout time.Duration
}

// Orchestrator sequences a trade execution request through validation,
// sizing, verification, key decryption and order placement.
//
// The failure policy is asymmetric on purpose: before the entry order every
// failure aborts cleanly with no side effects to reconcile; after the entry
// order nothing is ever rolled back automatically, because an exchange
// position is a real-world side effect that must not be silently reversed
// without human confirmation. Post-entry failures degrade to warnings.
//
// Concurrent requests against the same wallet are not serialized here;
// callers that allow them must guard ordering themselves.
type Orchestrator struct {
	cfg      Config
	logger   ports.Logger
	market   ports.MarketDataClient
	keystore ports.KeyStore
	factory  ports.ClientFactory
	trades   ports.TradeRepository
	metrics  *monitoring.Metrics
}

// NewOrchestrator creates a new trade execution orchestrator.
func NewOrchestrator(
	cfg Config,
	logger ports.Logger,
	market ports.MarketDataClient,
	keystore ports.KeyStore,
	factory ports.ClientFactory,
	trades ports.TradeRepository,
	metrics *monitoring.Metrics,
) (*Orchestrator, error) {
	if logger == nil || market == nil || keystore == nil || factory == nil || trades == nil || metrics == nil {
		return nil, fmt.Errorf("missing required dependencies for Orchestrator")
	}
	if cfg.Tolerance.IsZero() {
		cfg.Tolerance = sizing.DefaultTolerance
	}
	if cfg.Tolerance.IsNegative() || cfg.Tolerance.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("tolerance must be in [0, 1), got %s", cfg.Tolerance)
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		market:   market,
		keystore: keystore,
		factory:  factory,
		trades:   trades,
		metrics:  metrics,
	}, nil
}

func (o *Orchestrator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.cfg.CallTimeout)
}

// fail terminates the state machine before any irreversible side effect.
func (o *Orchestrator) fail(ctx context.Context, step Step, err error) error {
	o.metrics.RecordStepFailure(string(step))
	o.logger.Error(ctx, err, "Trade execution failed", map[string]interface{}{"step": string(step)})
	return fmt.Errorf("%s: %w", step, err)
}

// ExecuteTrade runs one trade intent through the full execution sequence.
func (o *Orchestrator) ExecuteTrade(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	intent := req.Intent

	// VALIDATING: a hard gate. Nothing downstream executes on invalid input
	// and no exchange call has been made yet.
	if err := intent.Validate(); err != nil {
		return nil, o.fail(ctx, StepValidating, fmt.Errorf("%w: %v", ports.ErrValidation, err))
	}
	if req.WalletID == "" {
		return nil, o.fail(ctx, StepValidating, fmt.Errorf("%w: wallet ID must be set", ports.ErrValidation))
	}

	// SIZING: pure math, then lot rounding through the market-data facade.
	sized, err := sizing.CalculatePositionSize(sizing.InputFromIntent(&intent))
	if err != nil {
		return nil, o.fail(ctx, StepSizing, err)
	}
	roundCtx, cancelRound := o.callCtx(ctx)
	roundedQty, err := o.market.RoundQuantity(roundCtx, intent.Symbol, sized.Qty)
	cancelRound()
	if err != nil {
		return nil, o.fail(ctx, StepSizing, err)
	}
	if !roundedQty.IsPositive() {
		return nil, o.fail(ctx, StepSizing, fmt.Errorf("%w: quantity %s rounds below the lot size for %s", ports.ErrInvalidInput, sized.Qty, intent.Symbol))
	}

	// VERIFYING: does the rounded quantity still realize the requested risk
	// at the stop? Outside tolerance the quantity is re-derived and rounded
	// once more.
	verification, err := sizing.VerifyAndAdjustPnl(
		roundedQty,
		decimal.NewFromFloat(intent.EntryPrice),
		decimal.NewFromFloat(intent.StopLoss),
		decimal.NewFromFloat(intent.RiskAmount),
		o.cfg.Tolerance,
	)
	if err != nil {
		return nil, o.fail(ctx, StepVerifying, err)
	}
	finalQty := verification.AdjustedQty
	if !verification.Verified {
		o.logger.Warn(ctx, "Rounded quantity drifted outside risk tolerance, re-derived", map[string]interface{}{
			"symbol":     intent.Symbol,
			"roundedQty": roundedQty.String(),
			"adjusted":   finalQty.String(),
		})
		roundCtx, cancelRound = o.callCtx(ctx)
		finalQty, err = o.market.RoundQuantity(roundCtx, intent.Symbol, finalQty)
		cancelRound()
		if err != nil {
			return nil, o.fail(ctx, StepVerifying, err)
		}
		if !finalQty.IsPositive() {
			return nil, o.fail(ctx, StepVerifying, fmt.Errorf("%w: adjusted quantity rounds below the lot size for %s", ports.ErrInvalidInput, intent.Symbol))
		}
	}

	metaCtx, cancelMeta := o.callCtx(ctx)
	meta, err := o.market.GetAssetMeta(metaCtx, intent.Symbol)
	cancelMeta()
	if err != nil {
		return nil, o.fail(ctx, StepVerifying, err)
	}

	// DECRYPTING_KEY: last recoverable gate before exchange interaction.
	// The plaintext credentials stay local to this invocation.
	creds, err := o.keystore.Decrypt(ctx, req.WalletID, req.Password)
	if err != nil {
		return nil, o.fail(ctx, StepDecryptingKey, err)
	}
	defer creds.Zero()

	client, err := o.factory.NewClient(ctx, creds)
	if err != nil {
		return nil, o.fail(ctx, StepDecryptingKey, err)
	}

	result := &Result{Sizing: sized, Verified: verification.Verified}
	warn := func(step Step, err error) {
		o.metrics.RecordWarning(string(step))
		o.logger.Warn(ctx, "Non-fatal step failure", map[string]interface{}{"step": string(step), "error": err.Error()})
		result.Warnings = append(result.Warnings, Warning{Step: step, Message: err.Error()})
	}

	// SETTING_LEVERAGE: best effort. Aborting the whole flow here, after the
	// user committed to an order, is worse than proceeding at the asset's
	// existing leverage and surfacing the mismatch.
	if intent.Leverage > 1 {
		levCtx, cancelLev := o.callCtx(ctx)
		err = client.SetLeverage(levCtx, intent.Symbol, intent.Leverage)
		cancelLev()
		if err != nil {
			warn(StepSettingLeverage, err)
		}
	}

	qtyStr := finalQty.String()
	entrySide := intent.Direction.EntrySide()
	exitSide := intent.Direction.ExitSide()
	priceStr := func(p float64) string {
		return decimal.NewFromFloat(p).Round(meta.PricePrecision).String()
	}

	// PLACING_ENTRY: the first irreversible side effect. Failure here still
	// aborts cleanly because nothing has happened on-exchange yet.
	var entryOrder *ports.OrderResponse
	entryCtx, cancelEntry := o.callCtx(ctx)
	if req.LimitEntry {
		entryOrder, err = client.PlaceLimitOrder(entryCtx, intent.Symbol, entrySide, qtyStr, priceStr(intent.EntryPrice), false)
	} else {
		entryOrder, err = client.PlaceMarketOrder(entryCtx, intent.Symbol, entrySide, qtyStr)
	}
	cancelEntry()
	if err != nil {
		return nil, o.fail(ctx, StepPlacingEntry, err)
	}
	entryPrice := entryOrder.AvgPrice
	if entryPrice == 0 {
		entryPrice = intent.EntryPrice
	}
	o.logger.Info(ctx, "Entry order placed", map[string]interface{}{
		"symbol":   intent.Symbol,
		"side":     string(entrySide),
		"quantity": qtyStr,
		"orderID":  entryOrder.OrderID,
		"avgPrice": entryPrice,
	})

	trade := &domain.Trade{
		WalletID:     req.WalletID,
		Symbol:       intent.Symbol,
		Side:         intent.Direction,
		Size:         finalQty.InexactFloat64(),
		Leverage:     intent.Leverage,
		EntryPrice:   entryPrice,
		StopLoss:     intent.StopLoss,
		TakeProfit:   intent.TakeProfit,
		Status:       domain.StatusOpen,
		EntryTime:    time.Now().UTC(),
		EntryOrderID: strPtr(fmt.Sprintf("%d", entryOrder.OrderID)),
	}

	// PLACING_STOP: the position exists now, so a failure degrades to a
	// warning. Auto-closing a just-opened position is judged riskier than
	// leaving it open unprotected, so no rollback is attempted.
	slCtx, cancelSL := o.callCtx(ctx)
	slOrder, err := client.PlaceStopLoss(slCtx, intent.Symbol, exitSide, qtyStr, priceStr(intent.StopLoss))
	cancelSL()
	if err != nil {
		warn(StepPlacingStop, err)
	} else {
		trade.StopLossOrderID = strPtr(fmt.Sprintf("%d", slOrder.OrderID))
	}

	// PLACING_TAKE_PROFIT: same policy, independently of the stop outcome.
	if intent.HasTakeProfit() {
		tpCtx, cancelTP := o.callCtx(ctx)
		tpOrder, err := client.PlaceTakeProfit(tpCtx, intent.Symbol, exitSide, qtyStr, priceStr(intent.TakeProfit))
		cancelTP()
		if err != nil {
			warn(StepPlacingTakeProfit, err)
		} else {
			trade.TakeProfitOrderID = strPtr(fmt.Sprintf("%d", tpOrder.OrderID))
		}
	}

	// RECORDING: bookkeeping only. The trade already exists on the exchange
	// regardless of persistence success, so a failure is surfaced loudly but
	// never unwinds the exchange-side state.
	if _, err := o.trades.CreateTrade(ctx, trade); err != nil {
		recErr := fmt.Errorf("%w: %v", ports.ErrPersistence, err)
		o.logger.Error(ctx, recErr, "TRADE NOT RECORDED: exchange position exists without a database row", map[string]interface{}{
			"symbol":  intent.Symbol,
			"orderID": entryOrder.OrderID,
		})
		warn(StepRecording, recErr)
	}

	result.Trade = trade
	o.metrics.RecordExecution(intent.Symbol, string(intent.Direction), len(result.Warnings) == 0, time.Since(started))
	o.logger.Info(ctx, "Trade execution complete", map[string]interface{}{
		"symbol":   intent.Symbol,
		"tradeID":  trade.ID,
		"qty":      qtyStr,
		"verified": result.Verified,
		"warnings": len(result.Warnings),
	})
	return result, nil
}

// ClosePosition market-closes the recorded open trade for a symbol and marks
// it closed. The exchange close happens first; the database update follows.
func (o *Orchestrator) ClosePosition(ctx context.Context, req CloseRequest) (*domain.Trade, error) {
	trade, err := o.trades.FindOpenBySymbol(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to look up open trade for %s: %w", req.Symbol, err)
	}
	if trade == nil {
		return nil, fmt.Errorf("%w: no open trade for %s", ports.ErrNotFound, req.Symbol)
	}

	creds, err := o.keystore.Decrypt(ctx, req.WalletID, req.Password)
	if err != nil {
		return nil, err
	}
	defer creds.Zero()

	client, err := o.factory.NewClient(ctx, creds)
	if err != nil {
		return nil, err
	}

	closeCtx, cancelClose := o.callCtx(ctx)
	resp, err := client.ClosePosition(closeCtx, req.Symbol)
	cancelClose()
	if err != nil {
		return nil, fmt.Errorf("failed to close position for %s: %w", req.Symbol, err)
	}

	exitPrice := 0.0
	if resp != nil {
		exitPrice = resp.AvgPrice
	}
	if exitPrice == 0 {
		pricesCtx, cancelPrices := o.callCtx(ctx)
		prices, priceErr := o.market.GetMarketPrices(pricesCtx)
		cancelPrices()
		if priceErr == nil {
			exitPrice = prices[req.Symbol]
		}
	}

	pnl := realizedPNL(trade, exitPrice)
	if exitPrice == 0 {
		o.logger.Warn(ctx, "No exit price available, recording zero PnL", map[string]interface{}{
			"symbol":  req.Symbol,
			"tradeID": trade.ID,
		})
	}

	exitTime := time.Now().UTC()
	if err := o.trades.CloseTrade(ctx, trade.ID, exitPrice, pnl, exitTime); err != nil {
		recErr := fmt.Errorf("%w: %v", ports.ErrPersistence, err)
		o.logger.Error(ctx, recErr, "Position closed on exchange but database update failed", map[string]interface{}{"tradeID": trade.ID})
		return nil, recErr
	}

	trade.Status = domain.StatusClosed
	trade.ExitPrice = exitPrice
	trade.PNL = pnl
	trade.ExitTime = exitTime
	o.logger.Info(ctx, "Position closed", map[string]interface{}{"symbol": req.Symbol, "tradeID": trade.ID, "pnl": pnl})
	return trade, nil
}

// CloseAllPositions market-closes every open position on the wallet's account,
// then closes the matching database rows on a best-effort basis. Row failures
// are logged and skipped so one bad record cannot leave the rest unreconciled;
// the exchange side has already happened either way.
func (o *Orchestrator) CloseAllPositions(ctx context.Context, walletID, password string) error {
	creds, err := o.keystore.Decrypt(ctx, walletID, password)
	if err != nil {
		return err
	}
	defer creds.Zero()

	client, err := o.factory.NewClient(ctx, creds)
	if err != nil {
		return err
	}

	closeCtx, cancelClose := o.callCtx(ctx)
	err = client.CloseAllPositions(closeCtx)
	cancelClose()
	if err != nil {
		return err
	}

	open, err := o.trades.FindOpen(ctx)
	if err != nil {
		o.logger.Error(ctx, err, "Positions closed on exchange but open trades could not be listed for reconciliation")
		return nil
	}
	if len(open) == 0 {
		return nil
	}

	pricesCtx, cancelPrices := o.callCtx(ctx)
	prices, priceErr := o.market.GetMarketPrices(pricesCtx)
	cancelPrices()
	if priceErr != nil {
		o.logger.Warn(ctx, "Market prices unavailable, closed trades will record zero PnL", map[string]interface{}{"error": priceErr.Error()})
	}

	exitTime := time.Now().UTC()
	for _, trade := range open {
		exitPrice := prices[trade.Symbol]
		if err := o.trades.CloseTrade(ctx, trade.ID, exitPrice, realizedPNL(trade, exitPrice), exitTime); err != nil {
			o.logger.Error(ctx, err, "Position closed on exchange but database update failed", map[string]interface{}{"tradeID": trade.ID})
		}
	}
	return nil
}

// CancelOrder cancels a resting order, typically a protective order left
// dangling after a degraded execution or a manual close.
func (o *Orchestrator) CancelOrder(ctx context.Context, walletID, password, symbol string, orderID int64) (*ports.OrderResponse, error) {
	creds, err := o.keystore.Decrypt(ctx, walletID, password)
	if err != nil {
		return nil, err
	}
	defer creds.Zero()

	client, err := o.factory.NewClient(ctx, creds)
	if err != nil {
		return nil, err
	}

	cancelCtx, cancel := o.callCtx(ctx)
	defer cancel()
	return client.CancelOrder(cancelCtx, symbol, orderID)
}

// GetOpenOrders lists the resting orders for a symbol.
func (o *Orchestrator) GetOpenOrders(ctx context.Context, walletID, password, symbol string) ([]*ports.OrderResponse, error) {
	creds, err := o.keystore.Decrypt(ctx, walletID, password)
	if err != nil {
		return nil, err
	}
	defer creds.Zero()

	client, err := o.factory.NewClient(ctx, creds)
	if err != nil {
		return nil, err
	}

	listCtx, cancel := o.callCtx(ctx)
	defer cancel()
	return client.GetOpenOrders(listCtx, symbol)
}

// realizedPNL derives the profit and loss for a closed trade. With no exit
// price obtainable the PnL is zero rather than derived from a zero price,
// which would book the full notional as a fictitious loss or gain.
func realizedPNL(trade *domain.Trade, exitPrice float64) float64 {
	if exitPrice == 0 {
		return 0
	}
	pnl := (exitPrice - trade.EntryPrice) * trade.Size
	if trade.Side == domain.Short {
		pnl = -pnl
	}
	return pnl
}

func strPtr(s string) *string {
	return &s
}
