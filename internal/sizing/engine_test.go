package sizing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypertrader/internal/domain"
	"hypertrader/internal/ports"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestCalculatePositionSize_LongScenario(t *testing.T) {
	res, err := CalculatePositionSize(Input{
		Direction:  domain.Long,
		EntryPrice: dec(50000),
		StopLoss:   dec(49000),
		RiskAmount: dec(100),
		Leverage:   10,
	})
	require.NoError(t, err)

	assert.True(t, res.SLDistance.Equal(dec(1000)), "slDistance = %s", res.SLDistance)
	assert.True(t, res.Qty.Equal(dec(0.1)), "qty = %s", res.Qty)
	assert.True(t, res.MarginRequired.Equal(dec(500)), "margin = %s", res.MarginRequired)
	assert.True(t, res.EstimatedLiquidationPrice.Equal(dec(45000)), "liq = %s", res.EstimatedLiquidationPrice)
	assert.Nil(t, res.RRRatio)
	assert.True(t, res.TPDistance.IsZero())
}

func TestCalculatePositionSize_WithTakeProfit(t *testing.T) {
	res, err := CalculatePositionSize(Input{
		Direction:  domain.Long,
		EntryPrice: dec(50000),
		StopLoss:   dec(49000),
		TakeProfit: dec(52000),
		RiskAmount: dec(100),
		Leverage:   10,
	})
	require.NoError(t, err)

	assert.True(t, res.TPDistance.Equal(dec(2000)), "tpDistance = %s", res.TPDistance)
	require.NotNil(t, res.RRRatio)
	assert.True(t, res.RRRatio.Equal(dec(2)), "rr = %s", res.RRRatio)
}

func TestCalculatePositionSize_ShortLiquidation(t *testing.T) {
	res, err := CalculatePositionSize(Input{
		Direction:  domain.Short,
		EntryPrice: dec(50000),
		StopLoss:   dec(51000),
		RiskAmount: dec(100),
		Leverage:   10,
	})
	require.NoError(t, err)

	// Short liquidation estimate sits above entry: entry * (1 + 1/leverage).
	assert.True(t, res.EstimatedLiquidationPrice.Equal(dec(55000)), "liq = %s", res.EstimatedLiquidationPrice)
}

// The core sizing invariant: the loss realized when price moves from entry to
// stop at the computed quantity equals the requested risk amount, independent
// of leverage.
func TestCalculatePositionSize_RiskInvariant(t *testing.T) {
	tests := []struct {
		name  string
		input Input
	}{
		{"long round numbers", Input{Direction: domain.Long, EntryPrice: dec(50000), StopLoss: dec(49000), RiskAmount: dec(100), Leverage: 10}},
		{"short round numbers", Input{Direction: domain.Short, EntryPrice: dec(2000), StopLoss: dec(2100), RiskAmount: dec(50), Leverage: 5}},
		{"tight stop", Input{Direction: domain.Long, EntryPrice: dec(100.5), StopLoss: dec(100.25), RiskAmount: dec(25), Leverage: 1}},
		{"wide stop high leverage", Input{Direction: domain.Short, EntryPrice: dec(0.085), StopLoss: dec(0.1), RiskAmount: dec(12.5), Leverage: 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := CalculatePositionSize(tt.input)
			require.NoError(t, err)

			realized := res.Qty.Mul(tt.input.EntryPrice.Sub(tt.input.StopLoss).Abs())
			diff := realized.Sub(tt.input.RiskAmount).Abs()
			assert.True(t, diff.LessThan(dec(1e-12)),
				"realized loss %s deviates from risk %s", realized, tt.input.RiskAmount)
		})
	}
}

func TestCalculatePositionSize_InvalidInputs(t *testing.T) {
	valid := Input{Direction: domain.Long, EntryPrice: dec(100), StopLoss: dec(95), RiskAmount: dec(10), Leverage: 5}

	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"zero stop distance", func(in *Input) { in.StopLoss = in.EntryPrice }},
		{"zero entry", func(in *Input) { in.EntryPrice = decimal.Zero }},
		{"negative entry", func(in *Input) { in.EntryPrice = dec(-100) }},
		{"zero stop", func(in *Input) { in.StopLoss = decimal.Zero }},
		{"zero risk", func(in *Input) { in.RiskAmount = decimal.Zero }},
		{"negative risk", func(in *Input) { in.RiskAmount = dec(-10) }},
		{"zero leverage", func(in *Input) { in.Leverage = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			res, err := CalculatePositionSize(in)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, ports.ErrInvalidInput), "expected ErrInvalidInput, got %v", err)
		})
	}
}

func TestInputFromIntent(t *testing.T) {
	intent := &domain.TradeIntent{
		Symbol:     "BTCUSDT",
		Direction:  domain.Long,
		EntryPrice: 50000,
		StopLoss:   49000,
		TakeProfit: 52000,
		RiskAmount: 100,
		Leverage:   10,
	}
	in := InputFromIntent(intent)
	assert.Equal(t, domain.Long, in.Direction)
	assert.True(t, in.EntryPrice.Equal(dec(50000)))
	assert.True(t, in.TakeProfit.Equal(dec(52000)))

	intent.TakeProfit = 0
	in = InputFromIntent(intent)
	assert.True(t, in.TakeProfit.IsZero())
}
