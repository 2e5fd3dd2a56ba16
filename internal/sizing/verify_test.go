package sizing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypertrader/internal/ports"
)

func TestVerifyAndAdjustPnl_WithinTolerance(t *testing.T) {
	// entry 50000, stop 49000: slDistance 1000, target risk 100.
	tests := []struct {
		name string
		qty  decimal.Decimal
	}{
		{"exact", dec(0.1)},
		{"realized 109, deviation 0.09", dec(0.109)},
		{"realized 91, deviation 0.09", dec(0.091)},
		{"realized 110, deviation exactly at tolerance", dec(0.11)},
		{"realized 90, deviation exactly at tolerance", dec(0.09)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := VerifyAndAdjustPnl(tt.qty, dec(50000), dec(49000), dec(100), DefaultTolerance)
			require.NoError(t, err)
			assert.True(t, v.Verified)
			assert.True(t, v.AdjustedQty.Equal(tt.qty), "quantity must pass through unchanged, got %s", v.AdjustedQty)
		})
	}
}

func TestVerifyAndAdjustPnl_OutsideTolerance(t *testing.T) {
	tests := []struct {
		name string
		qty  decimal.Decimal
	}{
		{"realized 111, deviation 0.11", dec(0.111)},
		{"realized 89, deviation 0.11", dec(0.089)},
		{"zero quantity", decimal.Zero},
		{"wildly oversized", dec(5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := VerifyAndAdjustPnl(tt.qty, dec(50000), dec(49000), dec(100), DefaultTolerance)
			require.NoError(t, err)
			assert.False(t, v.Verified)
			assert.True(t, v.AdjustedQty.Equal(dec(0.1)), "adjusted qty = %s", v.AdjustedQty)
		})
	}
}

// A corrected quantity must always verify on a second pass: the adjustment is
// a fixed point of the check.
func TestVerifyAndAdjustPnl_Idempotent(t *testing.T) {
	cases := []struct {
		qty, entry, stop, risk decimal.Decimal
	}{
		{dec(0.3), dec(50000), dec(49000), dec(100)},
		{decimal.Zero, dec(2000), dec(2100), dec(50)},
		{dec(1234.5), dec(0.085), dec(0.1), dec(12.5)},
	}

	for _, c := range cases {
		first, err := VerifyAndAdjustPnl(c.qty, c.entry, c.stop, c.risk, DefaultTolerance)
		require.NoError(t, err)
		require.False(t, first.Verified)

		second, err := VerifyAndAdjustPnl(first.AdjustedQty, c.entry, c.stop, c.risk, DefaultTolerance)
		require.NoError(t, err)
		assert.True(t, second.Verified)
		assert.True(t, second.AdjustedQty.Equal(first.AdjustedQty))
	}
}

func TestVerifyAndAdjustPnl_InvalidInputs(t *testing.T) {
	tests := []struct {
		name                           string
		qty, entry, stop, risk, tolera decimal.Decimal
	}{
		{"zero target risk", dec(0.1), dec(50000), dec(49000), decimal.Zero, DefaultTolerance},
		{"negative target risk", dec(0.1), dec(50000), dec(49000), dec(-100), DefaultTolerance},
		{"negative quantity", dec(-0.1), dec(50000), dec(49000), dec(100), DefaultTolerance},
		{"negative tolerance", dec(0.1), dec(50000), dec(49000), dec(100), dec(-0.1)},
		{"zero stop distance", dec(0.1), dec(50000), dec(50000), dec(100), DefaultTolerance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyAndAdjustPnl(tt.qty, tt.entry, tt.stop, tt.risk, tt.tolera)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ports.ErrInvalidInput), "expected ErrInvalidInput, got %v", err)
		})
	}
}

func TestVerifyAndAdjustPnl_ZeroToleranceRequiresExactMatch(t *testing.T) {
	v, err := VerifyAndAdjustPnl(dec(0.1), dec(50000), dec(49000), dec(100), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, v.Verified)

	v, err = VerifyAndAdjustPnl(dec(0.1001), dec(50000), dec(49000), dec(100), decimal.Zero)
	require.NoError(t, err)
	assert.False(t, v.Verified)
}
