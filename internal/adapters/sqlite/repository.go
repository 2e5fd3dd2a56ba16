package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hypertrader/internal/domain"
	"hypertrader/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.TradeRepository interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/hypertrader.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		wallet_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		size REAL NOT NULL,
		leverage INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit REAL DEFAULT NULL,
		status TEXT NOT NULL,
		exit_price REAL DEFAULT NULL,
		pnl REAL DEFAULT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP DEFAULT NULL,
		entry_order_id TEXT DEFAULT NULL,
		sl_order_id TEXT DEFAULT NULL,
		tp_order_id TEXT DEFAULT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol_status ON trades (symbol, status);
	CREATE INDEX IF NOT EXISTS idx_trades_entry_time ON trades (entry_time);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// CreateTrade saves a new trade record and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (wallet_id, symbol, side, size, leverage, entry_price, stop_loss, take_profit,
	                    status, entry_time, entry_order_id, sl_order_id, tp_order_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var takeProfit sql.NullFloat64
	if trade.TakeProfit > 0 {
		takeProfit = sql.NullFloat64{Float64: trade.TakeProfit, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		trade.WalletID, trade.Symbol, trade.Side, trade.Size, trade.Leverage,
		trade.EntryPrice, trade.StopLoss, takeProfit, trade.Status, trade.EntryTime,
		nullable(trade.EntryOrderID), nullable(trade.StopLossOrderID), nullable(trade.TakeProfitOrderID))
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for symbol %s: %w", trade.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.Symbol, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": id, "symbol": trade.Symbol})
	return id, nil
}

// CloseTrade marks an open trade as closed with its exit price and PNL.
func (r *Repository) CloseTrade(ctx context.Context, id int64, exitPrice, pnl float64, exitTime time.Time) error {
	const query = `
	UPDATE trades
	SET status = ?, exit_price = ?, pnl = ?, exit_time = ?
	WHERE id = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query, domain.StatusClosed, exitPrice, pnl, exitTime, id, domain.StatusOpen)
	if err != nil {
		return fmt.Errorf("failed to close trade ID %d: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for close trade ID %d: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("open trade ID %d not found: %w", id, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Trade closed", map[string]interface{}{"tradeID": id, "pnl": pnl})
	return nil
}

const tradeColumns = `id, wallet_id, symbol, side, size, leverage, entry_price, stop_loss,
       COALESCE(take_profit, 0), status, COALESCE(exit_price, 0), COALESCE(pnl, 0),
       entry_time, exit_time, entry_order_id, sl_order_id, tp_order_id`

// FindOpenBySymbol retrieves the currently open trade for a given symbol, if any.
func (r *Repository) FindOpenBySymbol(ctx context.Context, symbol string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE symbol = ? AND status = ?`

	row := r.db.QueryRowContext(ctx, query, symbol, domain.StatusOpen)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "No open trade found for symbol", map[string]interface{}{"symbol": symbol})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query open trade for symbol %s: %w", symbol, err)
	}
	return trade, nil
}

// FindOpen retrieves every currently open trade.
func (r *Repository) FindOpen(ctx context.Context) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE status = ? ORDER BY entry_time ASC`

	rows, err := r.db.QueryContext(ctx, query, domain.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// FindBySymbol retrieves the most recent trades for a given symbol, up to a limit.
func (r *Repository) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE symbol = ? ORDER BY entry_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for symbol %s: %w", symbol, err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// FindRecent retrieves the most recent trades across all symbols, up to a limit.
func (r *Repository) FindRecent(ctx context.Context, limit int) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades ORDER BY entry_time DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// CountTodayBySymbol counts the number of trades executed today for a given symbol.
func (r *Repository) CountTodayBySymbol(ctx context.Context, symbol string) (int, error) {
	const query = `SELECT COUNT(*) FROM trades WHERE symbol = ? AND date(entry_time) = date('now', 'localtime')`
	var count int
	err := r.db.QueryRowContext(ctx, query, symbol).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades today for symbol %s: %w", symbol, err)
	}
	return count, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var side, status string
	var exitTime sql.NullTime
	var entryOrderID, slOrderID, tpOrderID sql.NullString
	err := s.Scan(
		&t.ID, &t.WalletID, &t.Symbol, &side, &t.Size, &t.Leverage, &t.EntryPrice, &t.StopLoss,
		&t.TakeProfit, &status, &t.ExitPrice, &t.PNL, &t.EntryTime, &exitTime,
		&entryOrderID, &slOrderID, &tpOrderID)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	t.Side = domain.Direction(side)
	t.Status = domain.TradeStatus(status)
	if exitTime.Valid {
		t.ExitTime = exitTime.Time
	}
	if entryOrderID.Valid {
		t.EntryOrderID = &entryOrderID.String
	}
	if slOrderID.Valid {
		t.StopLossOrderID = &slOrderID.String
	}
	if tpOrderID.Valid {
		t.TakeProfitOrderID = &tpOrderID.String
	}
	return t, nil
}

func collectTrades(rows *sql.Rows) ([]*domain.Trade, error) {
	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
