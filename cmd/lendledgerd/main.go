package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lendledger/config"
	"lendledger/core"
	"lendledger/crypto"
	"lendledger/observability/logging"
	"lendledger/rpc"
	"lendledger/storage"
)

const (
	rpcTokenEnv = "LEND_RPC_TOKEN"
	envNameEnv  = "LEND_ENV"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv(envNameEnv))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup("lendledgerd", env, logging.ParseLevel(cfg.LogLevel))

	if err := config.Validate(cfg); err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	owner, err := crypto.DecodeAddress(cfg.OwnerAddress)
	if err != nil {
		logger.Error("invalid owner address", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err), slog.String("dataDir", cfg.DataDir))
		os.Exit(1)
	}

	ledger, err := core.NewLedger(db, owner.Raw(), cfg.ExchangeRate)
	if err != nil {
		db.Close()
		logger.Error("failed to initialise ledger", slog.Any("error", err))
		os.Exit(1)
	}
	defer ledger.Close()

	custodyRaw := core.ModuleAddress()
	custody := crypto.NewAddress(crypto.LendPrefix, custodyRaw[:]).String()
	logger.Info("loan custody address; approve it as spender before offer, match, or repay",
		slog.String("custody", custody))

	allocs, err := genesisAllocs(cfg.Genesis)
	if err != nil {
		logger.Error("invalid genesis allocation", slog.Any("error", err))
		os.Exit(1)
	}
	if err := ledger.InitGenesis(allocs); err != nil {
		logger.Error("failed to apply genesis", slog.Any("error", err))
		os.Exit(1)
	}

	authToken := strings.TrimSpace(os.Getenv(rpcTokenEnv))
	if authToken == "" {
		logger.Warn("no RPC auth token configured; mutating methods are disabled", slog.String("env", rpcTokenEnv))
	}
	server := rpc.NewServer(ledger, authToken, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.RPCAddress)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("rpc server failed", slog.Any("error", err))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", slog.Any("error", err))
		}
	}
}

func genesisAllocs(entries []config.GenesisAlloc) ([]core.GenesisAlloc, error) {
	allocs := make([]core.GenesisAlloc, 0, len(entries))
	for _, entry := range entries {
		decoded, err := crypto.DecodeAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("genesis address %q: %w", entry.Address, err)
		}
		alloc := core.GenesisAlloc{Address: decoded.Raw()}
		if alloc.Principal, err = parseOptionalAmount(entry.Principal); err != nil {
			return nil, fmt.Errorf("genesis principal for %q: %w", entry.Address, err)
		}
		if alloc.Collateral, err = parseOptionalAmount(entry.Collateral); err != nil {
			return nil, fmt.Errorf("genesis collateral for %q: %w", entry.Address, err)
		}
		allocs = append(allocs, alloc)
	}
	return allocs, nil
}

func parseOptionalAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}
