package sizing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"hypertrader/internal/domain"
	"hypertrader/internal/ports"
)

// Decimal arithmetic is used throughout so that the sizing → verification →
// lot-rounding chain does not accumulate binary floating-point drift.

var one = decimal.NewFromInt(1)

// Input carries the parameters for a position size calculation.
type Input struct {
	Direction  domain.Direction
	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal // zero when absent
	RiskAmount decimal.Decimal // fiat loss accepted if the stop is hit
	Leverage   int
}

// InputFromIntent converts a validated trade intent into a sizing input.
func InputFromIntent(ti *domain.TradeIntent) Input {
	in := Input{
		Direction:  ti.Direction,
		EntryPrice: decimal.NewFromFloat(ti.EntryPrice),
		StopLoss:   decimal.NewFromFloat(ti.StopLoss),
		RiskAmount: decimal.NewFromFloat(ti.RiskAmount),
		Leverage:   ti.Leverage,
	}
	if ti.HasTakeProfit() {
		in.TakeProfit = decimal.NewFromFloat(ti.TakeProfit)
	}
	return in
}

// Result holds the derived position size and its auxiliary metrics.
type Result struct {
	// Qty is the contract quantity satisfying qty * |entry - stop| == riskAmount.
	// It is NOT rounded to the asset's lot precision here; that is the exchange
	// facade's responsibility, keeping this function pure and asset-agnostic.
	Qty decimal.Decimal

	MarginRequired decimal.Decimal // notional / leverage

	// EstimatedLiquidationPrice uses the isolated-margin approximation
	// entry * (1 -/+ 1/leverage), ignoring funding and fees. An estimate,
	// not exchange-exact.
	EstimatedLiquidationPrice decimal.Decimal

	SLDistance decimal.Decimal  // |entry - stop|
	TPDistance decimal.Decimal  // |take-profit - entry| (zero when absent)
	RRRatio    *decimal.Decimal // tpDistance / slDistance, nil without take-profit
}

// CalculatePositionSize converts risk parameters into an exact contract
// quantity. The core invariant: the dollar loss when price moves from entry
// to stop at the returned quantity equals the requested risk amount,
// independent of leverage (leverage affects margin consumed, not the loss
// realized at the stop).
func CalculatePositionSize(in Input) (*Result, error) {
	if !in.EntryPrice.IsPositive() {
		return nil, fmt.Errorf("%w: entry price %s must be positive", ports.ErrInvalidInput, in.EntryPrice)
	}
	if !in.StopLoss.IsPositive() {
		return nil, fmt.Errorf("%w: stop loss %s must be positive", ports.ErrInvalidInput, in.StopLoss)
	}
	if !in.RiskAmount.IsPositive() {
		return nil, fmt.Errorf("%w: risk amount %s must be positive", ports.ErrInvalidInput, in.RiskAmount)
	}
	if in.Leverage < 1 {
		return nil, fmt.Errorf("%w: leverage %d must be at least 1", ports.ErrInvalidInput, in.Leverage)
	}

	slDistance := in.EntryPrice.Sub(in.StopLoss).Abs()
	if slDistance.IsZero() {
		return nil, fmt.Errorf("%w: stop loss equals entry price (zero stop distance)", ports.ErrInvalidInput)
	}

	lev := decimal.NewFromInt(int64(in.Leverage))
	qty := in.RiskAmount.Div(slDistance)

	res := &Result{
		Qty:            qty,
		MarginRequired: qty.Mul(in.EntryPrice).Div(lev),
		SLDistance:     slDistance,
	}

	invLev := one.Div(lev)
	if in.Direction == domain.Short {
		res.EstimatedLiquidationPrice = in.EntryPrice.Mul(one.Add(invLev))
	} else {
		res.EstimatedLiquidationPrice = in.EntryPrice.Mul(one.Sub(invLev))
	}

	if in.TakeProfit.IsPositive() {
		res.TPDistance = in.TakeProfit.Sub(in.EntryPrice).Abs()
		rr := res.TPDistance.Div(slDistance)
		res.RRRatio = &rr
	}

	return res, nil
}
