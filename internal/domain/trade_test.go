package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLongIntent() TradeIntent {
	return TradeIntent{
		Symbol:     "BTCUSDT",
		Direction:  Long,
		EntryPrice: 50000,
		StopLoss:   49000,
		TakeProfit: 52000,
		RiskAmount: 100,
		Leverage:   10,
	}
}

func TestTradeIntent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TradeIntent)
		wantErr bool
	}{
		{"valid long", func(ti *TradeIntent) {}, false},
		{"valid long without take profit", func(ti *TradeIntent) { ti.TakeProfit = 0 }, false},
		{"valid short", func(ti *TradeIntent) {
			ti.Direction = Short
			ti.StopLoss = 51000
			ti.TakeProfit = 48000
		}, false},
		{"missing symbol", func(ti *TradeIntent) { ti.Symbol = "" }, true},
		{"unknown direction", func(ti *TradeIntent) { ti.Direction = "sideways" }, true},
		{"zero entry price", func(ti *TradeIntent) { ti.EntryPrice = 0 }, true},
		{"negative stop loss", func(ti *TradeIntent) { ti.StopLoss = -1 }, true},
		{"zero risk amount", func(ti *TradeIntent) { ti.RiskAmount = 0 }, true},
		{"zero leverage", func(ti *TradeIntent) { ti.Leverage = 0 }, true},
		{"long stop above entry", func(ti *TradeIntent) { ti.StopLoss = 50500 }, true},
		{"long stop equals entry", func(ti *TradeIntent) { ti.StopLoss = 50000 }, true},
		{"long take profit below entry", func(ti *TradeIntent) { ti.TakeProfit = 49500 }, true},
		{"short stop below entry", func(ti *TradeIntent) {
			ti.Direction = Short
			ti.StopLoss = 49000
			ti.TakeProfit = 0
		}, true},
		{"short take profit above entry", func(ti *TradeIntent) {
			ti.Direction = Short
			ti.StopLoss = 51000
			ti.TakeProfit = 53000
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := validLongIntent()
			tt.mutate(&intent)
			err := intent.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestDirection_Sides(t *testing.T) {
	assert.Equal(t, Buy, Long.EntrySide())
	assert.Equal(t, Sell, Long.ExitSide())
	assert.Equal(t, Sell, Short.EntrySide())
	assert.Equal(t, Buy, Short.ExitSide())
}

func TestTrade_IsProtected(t *testing.T) {
	trade := Trade{Status: StatusOpen}
	assert.True(t, trade.IsOpen())
	assert.False(t, trade.IsProtected())

	id := "12345"
	trade.StopLossOrderID = &id
	assert.True(t, trade.IsProtected())

	trade.Status = StatusClosed
	assert.False(t, trade.IsOpen())
}
