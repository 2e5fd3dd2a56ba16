package ports

import (
	"context"
	"time"

	"hypertrader/internal/domain"
)

// TradeRepository defines the interface for storing and retrieving executed trades.
type TradeRepository interface {
	// CreateTrade saves a new trade record and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// CloseTrade marks an open trade as closed with its exit price and PNL.
	CloseTrade(ctx context.Context, id int64, exitPrice, pnl float64, exitTime time.Time) error
	// FindOpenBySymbol retrieves the currently open trade for a given symbol, if any.
	// Returns nil, nil if no open trade is found.
	FindOpenBySymbol(ctx context.Context, symbol string) (*domain.Trade, error)
	// FindOpen retrieves every currently open trade.
	FindOpen(ctx context.Context) ([]*domain.Trade, error)
	// FindBySymbol retrieves the most recent trades for a given symbol, up to a limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)
	// FindRecent retrieves the most recent trades across all symbols, up to a limit.
	FindRecent(ctx context.Context, limit int) ([]*domain.Trade, error)
	// CountTodayBySymbol counts the number of trades executed today for a given symbol.
	CountTodayBySymbol(ctx context.Context, symbol string) (int, error)
}

// KeyStore defines the interface for retrieving wallet credentials.
// Implementations hold only encrypted material at rest; Decrypt is the single
// point where plaintext credentials come into existence.
type KeyStore interface {
	// Decrypt unlocks the credentials for a wallet with the supplied password.
	// Callers must Zero the returned credentials as soon as they are done.
	Decrypt(ctx context.Context, walletID, password string) (*domain.Credentials, error)
}
