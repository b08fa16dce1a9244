package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"escrowd/config"
	"escrowd/core/events"
	"escrowd/gateway"
	"escrowd/native/bank"
	"escrowd/native/common"
	"escrowd/native/escrow"
	"escrowd/native/fees"
	"escrowd/observability/logging"
	"escrowd/state"
	"escrowd/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("escrowd", cfg.Env, cfg.LogFile)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db, cfg.MustAddress(cfg.Admin))
	ledger := bank.NewLedger()
	recorder := events.NewRecorder()

	engine := escrow.NewEngine()
	engine.SetState(manager)
	engine.SetAssets(ledger)
	engine.SetAllowList(manager)
	engine.SetPauses(manager)
	engine.SetEmitter(recorder)
	engine.SetOperator(cfg.MustAddress(cfg.Operator))
	engine.SetFeePolicy(fees.Policy{
		FeeBps:   cfg.FeeBps,
		Treasury: cfg.MustAddress(cfg.FeeTreasury),
	})
	engine.SetHorizons(
		cfg.AutoExecuteHorizonSeconds,
		cfg.SettlementWindowSeconds,
		cfg.EmergencyExtensionSeconds,
	)

	server := gateway.NewServer(engine, manager, recorder, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("escrowd listening",
			slog.String("addr", cfg.ListenAddress),
			slog.String("module", common.ModuleEscrow))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
