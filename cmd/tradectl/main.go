package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"

	"hypertrader/config"
	"hypertrader/internal/adapters/logger"
	"hypertrader/internal/adapters/sqlite"
	"hypertrader/internal/domain"
	"hypertrader/internal/sizing"
	"hypertrader/internal/utils"
)

// tradectl is a read-only operator CLI: sizing previews, trade history and
// CSV export. It never touches the exchange or the keystore.
func main() {
	action := flag.String("action", "history", "size | history | export")
	symbol := flag.String("symbol", "", "filter history by symbol")
	limit := flag.Int("limit", 25, "max rows for history/export")
	out := flag.String("out", "trades.csv", "output file for export")

	direction := flag.String("direction", "long", "long | short (size)")
	entry := flag.Float64("entry", 0, "entry price (size)")
	stop := flag.Float64("stop", 0, "stop-loss price (size)")
	takeProfit := flag.Float64("tp", 0, "take-profit price, optional (size)")
	risk := flag.Float64("risk", 0, "risk amount (size)")
	leverage := flag.Int("leverage", 1, "leverage (size)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewZeroLogger(logger.LevelWarn)

	switch *action {
	case "size":
		res, err := sizing.CalculatePositionSize(sizing.Input{
			Direction:  domain.Direction(*direction),
			EntryPrice: decimal.NewFromFloat(*entry),
			StopLoss:   decimal.NewFromFloat(*stop),
			TakeProfit: decimal.NewFromFloat(*takeProfit),
			RiskAmount: decimal.NewFromFloat(*risk),
			Leverage:   *leverage,
		})
		if err != nil {
			log.Fatalf("FATAL: %v", err)
		}
		printSizing(res)

	case "history", "export":
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
		if err != nil {
			log.Fatalf("FATAL: Failed to open database: %v", err)
		}
		defer repo.Close()

		ctx := context.Background()
		var trades []*domain.Trade
		if *symbol != "" {
			trades, err = repo.FindBySymbol(ctx, *symbol, *limit)
		} else {
			trades, err = repo.FindRecent(ctx, *limit)
		}
		if err != nil {
			log.Fatalf("FATAL: Failed to load trades: %v", err)
		}

		if *action == "export" {
			if err := utils.WriteTradesToCSV(trades, *out); err != nil {
				log.Fatalf("FATAL: Failed to write CSV: %v", err)
			}
			fmt.Printf("%d trades written to %s\n", len(trades), *out)
			return
		}
		printTrades(trades)

	default:
		log.Fatalf("FATAL: unknown action %q", *action)
	}
}

func printSizing(res *sizing.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Quantity", res.Qty.String()},
		{"Margin required", res.MarginRequired.StringFixed(2)},
		{"Est. liquidation", res.EstimatedLiquidationPrice.StringFixed(2)},
		{"SL distance", res.SLDistance.String()},
	})
	if res.RRRatio != nil {
		t.AppendRow(table.Row{"TP distance", res.TPDistance.String()})
		t.AppendRow(table.Row{"R:R ratio", res.RRRatio.StringFixed(2)})
	}
	t.Render()
}

func printTrades(trades []*domain.Trade) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Symbol", "Side", "Size", "Lev", "Entry", "Stop", "TP", "Status", "PNL", "Protected"})
	for _, tr := range trades {
		t.AppendRow(table.Row{
			tr.ID, tr.Symbol, tr.Side, tr.Size, tr.Leverage,
			tr.EntryPrice, tr.StopLoss, tr.TakeProfit, tr.Status,
			fmt.Sprintf("%.2f", tr.PNL), tr.IsProtected(),
		})
	}
	t.Render()
}
