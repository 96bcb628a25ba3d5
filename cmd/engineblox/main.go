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
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"engineblox/audit"
	"engineblox/config"
	"engineblox/core/events"
	"engineblox/crypto"
	"engineblox/forwarder"
	"engineblox/native/secureops"
	"engineblox/observability/logging"
	"engineblox/observability/metrics"
	"engineblox/rpc"
	"engineblox/storage"
)

const operatorPassEnv = "ENGINEBLOX_OPERATOR_PASS"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Setup("engineblox", cfg.Environment, cfg.LogFile)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("failed to open state database", "backend", cfg.StorageBackend, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	operatorKey, created, err := crypto.LoadOrGenerateKeystore(
		filepath.Join(cfg.DataDir, "operator-key.json"), os.Getenv(operatorPassEnv))
	if err != nil {
		logger.Error("failed to load operator keystore", "err", err)
		os.Exit(1)
	}
	if created {
		logger.Info("generated new operator key", "address", operatorKey.PubKey().Address().String())
	} else {
		logger.Info("loaded operator key", "address", operatorKey.PubKey().Address().String())
	}

	state, err := secureops.LoadState(db)
	if err != nil {
		logger.Error("failed to load engine state", "err", err)
		os.Exit(1)
	}

	engine := secureops.NewEngine()
	engine.SetState(state)
	engine.SetChainID(cfg.ChainID)
	if strings.TrimSpace(cfg.VerifyingContract) != "" {
		verifying, err := crypto.DecodeAddress(cfg.VerifyingContract)
		if err != nil {
			logger.Error("invalid VerifyingContract address", "err", err)
			os.Exit(1)
		}
		engine.SetVerifyingContract(verifying.Word())
	}

	emitter := buildEmitter(cfg, logger)
	engine.SetEmitter(emitter)

	if !engine.IsInitialized() {
		owner, broadcaster, recovery, err := systemWallets(cfg)
		if err != nil {
			logger.Error("invalid system role address", "err", err)
			os.Exit(1)
		}
		if err := engine.Initialize(owner, broadcaster, recovery, cfg.TimeLockPeriodSec, emitter); err != nil {
			logger.Error("engine initialization failed", "err", err)
			os.Exit(1)
		}
		logger.Info("engine initialized",
			"timeLockPeriodSec", cfg.TimeLockPeriodSec, "chainId", cfg.ChainID)
	}

	if strings.TrimSpace(cfg.DefinitionsFile) != "" {
		if err := engine.LoadDefinitionsFile(cfg.DefinitionsFile); err != nil {
			if !errors.Is(err, secureops.ErrSchemaExists) && !errors.Is(err, secureops.ErrRoleExists) {
				logger.Error("failed to load definitions", "path", cfg.DefinitionsFile, "err", err)
				os.Exit(1)
			}
			logger.Info("definitions already applied", "path", cfg.DefinitionsFile)
		} else {
			logger.Info("definitions loaded", "path", cfg.DefinitionsFile)
		}
	}

	// Seed the pending gauge from the restored ledger; the event emitter
	// keeps it current from here on.
	metrics.SecureOps().SetPending(len(engine.PendingTransactionIDs()))

	rpcServer := rpc.NewServer(engine, logger, rpc.ServerOptions{
		Auth: rpc.AuthConfig{
			Enabled:    strings.TrimSpace(cfg.AuthSecret) != "",
			HMACSecret: cfg.AuthSecret,
		},
	})
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           rpcServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("rpc server listening", "addr", cfg.RPCAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("rpc server stopped", "err", err)
		}
	}()

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", "addr", cfg.MetricsAddress)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "err", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("rpc shutdown failed", "err", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown failed", "err", err)
	}

	if err := secureops.SaveState(db, engine.Snapshot()); err != nil {
		logger.Error("failed to persist engine state", "err", err)
		os.Exit(1)
	}
	logger.Info("state persisted")
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageBackend)) {
	case "memory":
		return storage.NewMemDB(), nil
	case "bolt":
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "engineblox.db"))
	default:
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	}
}

func buildEmitter(cfg *config.Config, logger *slog.Logger) events.Emitter {
	sinks := events.MultiEmitter{metrics.NewEventEmitter()}
	if strings.TrimSpace(cfg.ForwarderURL) != "" {
		sinks = append(sinks, forwarder.NewWSForwarder(cfg.ForwarderURL, logger))
	}
	if strings.TrimSpace(cfg.AuditDBPath) != "" {
		index, err := audit.Open(cfg.AuditDBPath, logger)
		if err != nil {
			logger.Warn("audit index disabled", "path", cfg.AuditDBPath, "err", err)
		} else {
			sinks = append(sinks, index)
		}
	}
	return sinks
}

func systemWallets(cfg *config.Config) (owner, broadcaster, recovery [20]byte, err error) {
	decode := func(raw string) ([20]byte, error) {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return [20]byte{}, err
		}
		return addr.Word(), nil
	}
	if owner, err = decode(cfg.Owner); err != nil {
		return
	}
	if broadcaster, err = decode(cfg.Broadcaster); err != nil {
		return
	}
	recovery, err = decode(cfg.Recovery)
	return
}
