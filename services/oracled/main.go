// Package oracled wires the oracle gateway daemon: configuration, logging,
// telemetry, the persistence backend, dev seeding, and the JSON-RPC server.
package oracled

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/subclone/pcidss-oracle/config"
	"github.com/subclone/pcidss-oracle/core/domain"
	"github.com/subclone/pcidss-oracle/crypto"
	"github.com/subclone/pcidss-oracle/observability/logging"
	telemetry "github.com/subclone/pcidss-oracle/observability/otel"
	"github.com/subclone/pcidss-oracle/processor"
	"github.com/subclone/pcidss-oracle/rpc"
	"github.com/subclone/pcidss-oracle/seed"
	"github.com/subclone/pcidss-oracle/storage/leveldb"
	"github.com/subclone/pcidss-oracle/storage/memory"
	"github.com/subclone/pcidss-oracle/storage/postgres"
)

const serviceName = "oracled"

// Main runs the oracle gateway daemon using the provided command line flags.
func Main() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./oracle.toml", "path to oracle config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var sink io.Writer = os.Stdout
	if cfg.LogFile != "" {
		sink = io.MultiWriter(os.Stdout, logging.RotatingSink(cfg.LogFile, 128, 7))
	}
	logger := logging.SetupWithSink(serviceName, cfg.Environment, sink)

	// Telemetry stays off unless an OTLP endpoint is configured.
	if otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); otlpEndpoint != "" {
		insecure := true
		if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
			if parsed, err := strconv.ParseBool(value); err == nil {
				insecure = parsed
			}
		}
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: serviceName,
			Environment: cfg.Environment,
			Endpoint:    otlpEndpoint,
			Insecure:    insecure,
			Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			_ = shutdownTelemetry(context.Background())
		}()
	}

	ocwKey, err := crypto.ParsePublicKey(cfg.OCWPublicKey)
	if err != nil {
		return fmt.Errorf("parse ocw public key: %w", err)
	}

	var (
		accounts domain.BankAccountStore
		ledger   domain.TransactionStore
	)
	switch cfg.StoreBackend {
	case config.BackendLevelDB:
		db, err := leveldb.Open(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open leveldb store: %w", err)
		}
		defer func() { _ = db.Close() }()
		accounts, ledger = db.BankAccounts(), db.Transactions()
	case config.BackendPostgres:
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		defer func() { _ = db.Close() }()
		accounts, ledger = db.BankAccounts(), db.Transactions()
	default:
		accounts, ledger = memory.NewBankAccounts(), memory.NewTransactions()
	}

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelSeed()
	if cfg.DevMode {
		inserted := seed.Apply(seedCtx, accounts, seed.DevAccounts(time.Now().UTC()), logger)
		logger.Info("dev accounts seeded", slog.Int("inserted", inserted))
	}
	if cfg.SeedFile != "" {
		creates, err := seed.LoadFile(cfg.SeedFile)
		if err != nil {
			return fmt.Errorf("load seed file: %w", err)
		}
		inserted := seed.Apply(seedCtx, accounts, creates, logger)
		logger.Info("seed file applied", slog.Int("inserted", inserted))
	}

	proc := processor.New(accounts, ledger, logger)
	server, err := rpc.NewServer(proc, accounts, ledger, rpc.ServerConfig{
		OCWPublicKey:        ocwKey,
		SubmitRatePerMinute: cfg.SubmitRatePerMinute,
		TrustProxyHeaders:   cfg.TrustProxyHeaders,
		Logger:              logger,
	})
	if err != nil {
		return fmt.Errorf("build rpc server: %w", err)
	}

	httpServer := &http.Server{
		Addr:         cfg.RPCAddress,
		Handler:      otelhttp.NewHandler(server.Handler(), serviceName),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("oracle gateway listening",
			slog.String("address", cfg.RPCAddress),
			slog.String("backend", cfg.StoreBackend),
			slog.Bool("dev_mode", cfg.DevMode),
		)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
