package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"hypertrader/config"
	"hypertrader/internal/adapters/binanceclient"
	"hypertrader/internal/adapters/keystore"
	"hypertrader/internal/adapters/logger"
	"hypertrader/internal/adapters/sqlite"
	"hypertrader/internal/domain"
	"hypertrader/internal/execution"
	"hypertrader/internal/monitoring"
	"hypertrader/internal/sizing"
)

// command is one JSON request line read from stdin. The engine speaks a
// line-oriented protocol: one JSON command in, one JSON result out.
type command struct {
	Action     string  `json:"action"`
	WalletID   string  `json:"wallet_id,omitempty"`
	Password   string  `json:"password,omitempty"`
	Symbol     string  `json:"symbol,omitempty"`
	Direction  string  `json:"direction,omitempty"`
	EntryPrice float64 `json:"entry_price,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	RiskAmount float64 `json:"risk_amount,omitempty"`
	Leverage   int     `json:"leverage,omitempty"`
	LimitEntry bool    `json:"limit_entry,omitempty"`
	Limit      int     `json:"limit,omitempty"`
	OrderID    int64   `json:"order_id,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type engine struct {
	cfg          *config.Config
	orchestrator *execution.Orchestrator
	market       *binanceclient.Client
	trades       *sqlite.Repository
}

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewZeroLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// 4. Initialize Keystore
	store, err := keystore.New(keystore.Config{
		Dir:    cfg.KeystoreDir,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize keystore: %v", err)
	}

	// 5. Public market-data client (no credentials) and authenticated factory
	market, err := binanceclient.New(binanceclient.Config{
		UseTestnet:      cfg.IsTestnet,
		Logger:          appLogger,
		RequestsPerSec:  cfg.RequestsPerSec,
		RetryMaxElapsed: cfg.RetryMaxElapsed,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize market data client: %v", err)
	}
	factory := binanceclient.NewFactory(binanceclient.FactoryConfig{
		UseTestnet:      cfg.IsTestnet,
		Logger:          appLogger,
		RequestsPerSec:  cfg.RequestsPerSec,
		RetryMaxElapsed: cfg.RetryMaxElapsed,
	})

	// 6. Metrics
	metrics := monitoring.New()
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				appLogger.Error(context.Background(), err, "Metrics endpoint stopped")
			}
		}()
		appLogger.Info(context.Background(), "Metrics endpoint started", map[string]interface{}{"addr": cfg.MetricsAddr})
	}

	// 7. Orchestrator
	orchestrator, err := execution.NewOrchestrator(
		execution.Config{
			Tolerance:   decimal.NewFromFloat(cfg.RiskTolerance),
			CallTimeout: cfg.CallTimeout,
		},
		appLogger,
		market,
		store,
		factory,
		repo,
		metrics,
	)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize orchestrator: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := &engine{cfg: cfg, orchestrator: orchestrator, market: market, trades: repo}
	appLogger.Info(ctx, "Engine ready, reading commands from stdin")
	eng.run(ctx)
	appLogger.Info(ctx, "Engine stopped")
}

// run reads JSON commands from stdin and writes one JSON result per line.
func (e *engine) run(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	out := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var cmd command
		if err := json.Unmarshal(line, &cmd); err != nil {
			out.Encode(errorResponse{Error: fmt.Sprintf("invalid JSON: %v", err)})
			continue
		}

		result, err := e.handle(ctx, cmd)
		if err != nil {
			out.Encode(errorResponse{Error: err.Error()})
			continue
		}
		out.Encode(result)
	}
}

func (e *engine) handle(ctx context.Context, cmd command) (interface{}, error) {
	switch cmd.Action {
	case "calculate_position":
		return e.calculatePosition(cmd)

	case "execute_trade":
		return e.orchestrator.ExecuteTrade(ctx, execution.Request{
			Intent: domain.TradeIntent{
				Symbol:     cmd.Symbol,
				Direction:  domain.Direction(cmd.Direction),
				EntryPrice: cmd.EntryPrice,
				StopLoss:   cmd.StopLoss,
				TakeProfit: cmd.TakeProfit,
				RiskAmount: cmd.RiskAmount,
				Leverage:   cmd.Leverage,
			},
			WalletID:   e.walletID(cmd),
			Password:   cmd.Password,
			LimitEntry: cmd.LimitEntry,
		})

	case "close_position":
		return e.orchestrator.ClosePosition(ctx, execution.CloseRequest{
			WalletID: e.walletID(cmd),
			Password: cmd.Password,
			Symbol:   cmd.Symbol,
		})

	case "close_all":
		if err := e.orchestrator.CloseAllPositions(ctx, e.walletID(cmd), cmd.Password); err != nil {
			return nil, err
		}
		return map[string]bool{"success": true}, nil

	case "cancel_order":
		if cmd.OrderID == 0 {
			return nil, fmt.Errorf("order_id is required for cancel_order")
		}
		return e.orchestrator.CancelOrder(ctx, e.walletID(cmd), cmd.Password, cmd.Symbol, cmd.OrderID)

	case "get_open_orders":
		return e.orchestrator.GetOpenOrders(ctx, e.walletID(cmd), cmd.Password, cmd.Symbol)

	case "get_mids":
		return e.market.GetMarketPrices(ctx)

	case "list_trades":
		limit := cmd.Limit
		if limit <= 0 {
			limit = 50
		}
		if cmd.Symbol != "" {
			return e.trades.FindBySymbol(ctx, cmd.Symbol, limit)
		}
		return e.trades.FindRecent(ctx, limit)

	default:
		return nil, fmt.Errorf("unknown action: %s", cmd.Action)
	}
}

func (e *engine) calculatePosition(cmd command) (interface{}, error) {
	direction := domain.Direction(cmd.Direction)
	if direction == "" {
		direction = domain.Long
	}
	if cmd.Leverage == 0 {
		cmd.Leverage = 1
	}
	return sizing.CalculatePositionSize(sizing.Input{
		Direction:  direction,
		EntryPrice: decimal.NewFromFloat(cmd.EntryPrice),
		StopLoss:   decimal.NewFromFloat(cmd.StopLoss),
		TakeProfit: decimal.NewFromFloat(cmd.TakeProfit),
		RiskAmount: decimal.NewFromFloat(cmd.RiskAmount),
		Leverage:   cmd.Leverage,
	})
}

func (e *engine) walletID(cmd command) string {
	if cmd.WalletID != "" {
		return cmd.WalletID
	}
	return e.cfg.DefaultWallet
}
