package domain

import (
	"errors"
	"fmt"
	"time"
)

// TradeIntent is the user-supplied input for a trade execution request.
// It is constructed per request and never persisted as-is.
type TradeIntent struct {
	Symbol     string    // Trading symbol (e.g., "BTCUSDT")
	Direction  Direction // long or short
	EntryPrice float64   // Intended entry price
	StopLoss   float64   // Stop-loss price level
	TakeProfit float64   // Take-profit price level (0 when absent)
	RiskAmount float64   // Fiat amount the user is willing to lose at the stop
	Leverage   int       // Leverage multiplier, >= 1
}

// HasTakeProfit reports whether a take-profit level was supplied.
func (ti *TradeIntent) HasTakeProfit() bool {
	return ti.TakeProfit > 0
}

// Validate checks the intent's internal consistency. It enforces the
// direction/stop invariant: a long's stop must sit below its entry, a
// short's stop above. Nothing downstream may execute on an invalid intent.
func (ti *TradeIntent) Validate() error {
	if ti.Symbol == "" {
		return errors.New("symbol must be set")
	}
	if !ti.Direction.IsValid() {
		return fmt.Errorf("direction must be %q or %q, got %q", Long, Short, ti.Direction)
	}
	if ti.EntryPrice <= 0 {
		return fmt.Errorf("entry price must be positive, got %v", ti.EntryPrice)
	}
	if ti.StopLoss <= 0 {
		return fmt.Errorf("stop loss must be positive, got %v", ti.StopLoss)
	}
	if ti.RiskAmount <= 0 {
		return fmt.Errorf("risk amount must be positive, got %v", ti.RiskAmount)
	}
	if ti.Leverage < 1 {
		return fmt.Errorf("leverage must be at least 1, got %d", ti.Leverage)
	}
	switch ti.Direction {
	case Long:
		if ti.StopLoss >= ti.EntryPrice {
			return fmt.Errorf("long stop loss %v must be below entry price %v", ti.StopLoss, ti.EntryPrice)
		}
		if ti.TakeProfit != 0 && ti.TakeProfit <= ti.EntryPrice {
			return fmt.Errorf("long take profit %v must be above entry price %v", ti.TakeProfit, ti.EntryPrice)
		}
	case Short:
		if ti.StopLoss <= ti.EntryPrice {
			return fmt.Errorf("short stop loss %v must be above entry price %v", ti.StopLoss, ti.EntryPrice)
		}
		if ti.TakeProfit != 0 && ti.TakeProfit >= ti.EntryPrice {
			return fmt.Errorf("short take profit %v must be below entry price %v", ti.TakeProfit, ti.EntryPrice)
		}
	}
	return nil
}

// Trade represents an executed trade as recorded by the application.
// It is created once the entry order is confirmed by the exchange and
// later mutated to closed by the close-position flow.
type Trade struct {
	ID         int64       // Unique identifier (from DB)
	WalletID   string      // Owning wallet
	Symbol     string      // Trading symbol
	Side       Direction   // long or short
	Size       float64     // Contract quantity actually ordered
	Leverage   int         // Leverage used
	EntryPrice float64     // Price at which the position was entered
	StopLoss   float64     // Stop-loss price level
	TakeProfit float64     // Take-profit price level (0 when absent)
	Status     TradeStatus // open, closed or cancelled
	ExitPrice  float64     // Price at which the position was exited (0 if open)
	PNL        float64     // Profit and loss, calculated on close
	EntryTime  time.Time   // Timestamp when the position was entered
	ExitTime   time.Time   // Timestamp when the position was exited (zero if open)

	// Exchange order IDs for whichever orders actually succeeded (nullable in DB).
	EntryOrderID      *string
	StopLossOrderID   *string
	TakeProfitOrderID *string
}

// IsOpen checks if the trade status is open.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// IsProtected reports whether a stop-loss order is resting on the exchange.
// A trade recorded without one needs a manually placed stop.
func (t *Trade) IsProtected() bool {
	return t.StopLossOrderID != nil
}
