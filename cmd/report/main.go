// Package main provides a CLI that builds a wallet report and prints it as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wallet-insight/internal/adapter"
	"github.com/wallet-insight/internal/config"
	apperrors "github.com/wallet-insight/internal/errors"
	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/service"
	"github.com/wallet-insight/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var (
		chain   = flag.String("chain", cfg.Report.DefaultChain, "Chain symbol: BTC, ETH or LTC")
		address = flag.String("address", "", "Wallet address to report on")
		noCache = flag.Bool("no-cache", false, "Bypass the report cache")
		history = flag.Int("history", 0, "List up to N stored reports instead of building a new one")
		timeout = flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	)
	flag.Parse()

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	ctx = logging.WithLogger(ctx, logger)

	deps := service.ReportDependencies{
		Explorer: adapter.NewBlockCypherClient(cfg.Providers.BlockCypher),
		Prices:   adapter.NewCoinGeckoClient(cfg.Providers.CoinGecko),
	}
	if cfg.Providers.Etherscan.APIKey != "" {
		deps.Etherscan = adapter.NewEtherscanClient(cfg.Providers.Etherscan)
	} else {
		logger.Warn("ETHERSCAN_API_KEY not set, ETH behavior analysis uses explorer data")
	}
	if cfg.Providers.Moralis.APIKey != "" {
		deps.Holdings = adapter.NewMoralisClient(cfg.Providers.Moralis)
	}

	if cfg.Database.Postgres.Enabled {
		postgres, err := storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
		if err != nil {
			logger.WithError(err).Warn("Postgres unavailable, report snapshots disabled")
		} else {
			defer postgres.Close()
			deps.Store = storage.NewReportRepository(postgres.Pool())
		}
	}

	if cfg.Database.Redis.Enabled {
		redis, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, report cache disabled")
		} else {
			defer func() { _ = redis.Close() }()
			deps.Cache = storage.NewCacheService(redis, cfg.Cache.TTL)
		}
	}

	svc := service.NewReportService(deps, cfg.Report.MaxTransactions, cfg.Report.HistoryLimit)

	var result interface{}
	if *history > 0 {
		result, err = svc.GetReportHistory(ctx, *chain, *address, *history)
	} else {
		result, err = svc.BuildWalletReport(ctx, service.ReportInput{
			Address:   *address,
			Chain:     *chain,
			SkipCache: *noCache,
		})
	}
	if err != nil {
		exitWithError(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.WithError(err).Fatal("Failed to encode report")
	}
}

func exitWithError(err error) {
	categorized := apperrors.Categorize(err)
	out, _ := json.Marshal(map[string]interface{}{"error": categorized.ToServiceError()})
	fmt.Fprintln(os.Stderr, string(out))
	if apperrors.IsUserError(err) {
		os.Exit(2)
	}
	os.Exit(1)
}
