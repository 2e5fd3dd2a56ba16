package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"hypertrader/internal/domain"
)

func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"id", "wallet_id", "symbol", "side", "size", "leverage", "entry_price", "stop_loss", "take_profit", "status", "exit_price", "pnl", "entry_time", "exit_time"})

	for _, t := range trades {
		exitTime := ""
		if !t.ExitTime.IsZero() {
			exitTime = t.ExitTime.Format(time.RFC3339)
		}
		writer.Write([]string{
			strconv.FormatInt(t.ID, 10),
			t.WalletID,
			t.Symbol,
			string(t.Side),
			strconv.FormatFloat(t.Size, 'f', -1, 64),
			strconv.Itoa(t.Leverage),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(t.StopLoss, 'f', -1, 64),
			strconv.FormatFloat(t.TakeProfit, 'f', -1, 64),
			string(t.Status),
			strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(t.PNL, 'f', -1, 64),
			t.EntryTime.Format(time.RFC3339),
			exitTime,
		})
	}
	return writer.Error()
}
