package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"hypertrader/config"
	"hypertrader/internal/adapters/keystore"
	"hypertrader/internal/adapters/logger"
	"hypertrader/internal/domain"
)

// walletctl manages encrypted exchange credentials in the keystore.
//
//	walletctl -action import -wallet default -api-key KEY -api-secret SECRET
//	walletctl -action list
//
// The encryption password is taken from WALLET_PASSWORD or prompted on stdin.
func main() {
	action := flag.String("action", "list", "import | list")
	walletID := flag.String("wallet", "default", "wallet ID")
	apiKey := flag.String("api-key", "", "exchange API key (import)")
	apiSecret := flag.String("api-secret", "", "exchange API secret (import)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewZeroLogger(cfg.LogLevel)

	store, err := keystore.New(keystore.Config{Dir: cfg.KeystoreDir, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize keystore: %v", err)
	}

	ctx := context.Background()
	switch *action {
	case "import":
		if *apiKey == "" || *apiSecret == "" {
			log.Fatal("FATAL: -api-key and -api-secret are required for import")
		}
		password := readPassword()
		creds := &domain.Credentials{APIKey: *apiKey, APISecret: *apiSecret}
		defer creds.Zero()
		if err := store.Save(ctx, *walletID, password, creds); err != nil {
			log.Fatalf("FATAL: Failed to store wallet: %v", err)
		}
		fmt.Printf("wallet %q stored\n", *walletID)

	case "list":
		ids, err := store.List(ctx)
		if err != nil {
			log.Fatalf("FATAL: Failed to list wallets: %v", err)
		}
		for _, id := range ids {
			fmt.Println(id)
		}

	default:
		log.Fatalf("FATAL: unknown action %q", *action)
	}
}

func readPassword() string {
	if pw := os.Getenv("WALLET_PASSWORD"); pw != "" {
		return pw
	}
	fmt.Fprint(os.Stderr, "password: ")
	reader := bufio.NewReader(os.Stdin)
	pw, err := reader.ReadString('\n')
	if err != nil {
		log.Fatalf("FATAL: Failed to read password: %v", err)
	}
	pw = strings.TrimRight(pw, "\r\n")
	if pw == "" {
		log.Fatal("FATAL: password must not be empty")
	}
	return pw
}
