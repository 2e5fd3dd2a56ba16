package sizing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"hypertrader/internal/ports"
)

// DefaultTolerance is the accepted relative deviation between the realized
// loss at the stop and the requested risk amount. Observed from the reference
// system rather than exchange-verified; callers may override via config.
var DefaultTolerance = decimal.NewFromFloat(0.10)

// Verification is the outcome of a PnL check on a candidate quantity.
type Verification struct {
	// AdjustedQty is the quantity the caller must use. Equal to the input
	// quantity when verified, recomputed from the sizing formula otherwise.
	AdjustedQty decimal.Decimal
	// Verified is false when the input quantity drifted outside tolerance
	// and AdjustedQty was re-derived.
	Verified bool
}

// VerifyAndAdjustPnl re-derives the loss realized at the stop for qty and
// compares it against the target risk amount. Lot-size rounding or any other
// quantity perturbation can push the realized risk away from the user's
// intent; when the relative deviation exceeds tolerance the quantity is
// recomputed fresh from targetRisk / slDistance.
//
// This is a local self-correction safeguard, not a full re-sizing: entry and
// stop prices are assumed trustworthy and only qty drift is corrected.
//
// Degenerate inputs fail with an error rather than silently producing
// NaN/Infinity, since a silent bad quantity could be forwarded to a live
// exchange order.
func VerifyAndAdjustPnl(qty, entryPrice, stopLoss, targetRisk, tolerance decimal.Decimal) (Verification, error) {
	if !targetRisk.IsPositive() {
		return Verification{}, fmt.Errorf("%w: target risk %s must be positive", ports.ErrInvalidInput, targetRisk)
	}
	if qty.IsNegative() {
		return Verification{}, fmt.Errorf("%w: quantity %s must not be negative", ports.ErrInvalidInput, qty)
	}
	if tolerance.IsNegative() {
		return Verification{}, fmt.Errorf("%w: tolerance %s must not be negative", ports.ErrInvalidInput, tolerance)
	}

	slDistance := entryPrice.Sub(stopLoss).Abs()
	if !slDistance.IsPositive() {
		return Verification{}, fmt.Errorf("%w: stop distance must be positive (entry %s, stop %s)", ports.ErrInvalidInput, entryPrice, stopLoss)
	}

	realizedLoss := qty.Mul(slDistance)
	deviation := realizedLoss.Sub(targetRisk).Abs().Div(targetRisk)
	if deviation.LessThanOrEqual(tolerance) {
		return Verification{AdjustedQty: qty, Verified: true}, nil
	}

	return Verification{AdjustedQty: targetRisk.Div(slDistance), Verified: false}, nil
}
