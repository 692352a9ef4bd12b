// Command euro2ccd runs the CCD/EUR exchange-rate oracle daemon: it
// samples external price feeds, aggregates and safety-gates the result,
// and publishes signed governance updates to a Concordium node. Command
// wiring follows the teacher's zerolog console-writer and signal-driven
// shutdown setup in cmd/cryptorun/main.go, with one flat pflag flag set
// (internal/config) in place of a cobra command tree.
package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/concordium/euro2ccd-oracle/internal/audit"
	"github.com/concordium/euro2ccd-oracle/internal/config"
	"github.com/concordium/euro2ccd-oracle/internal/node"
	"github.com/concordium/euro2ccd-oracle/internal/publisher"
	"github.com/concordium/euro2ccd-oracle/internal/ratehistory"
	"github.com/concordium/euro2ccd-oracle/internal/safetygate"
	"github.com/concordium/euro2ccd-oracle/internal/scalarmath"
	"github.com/concordium/euro2ccd-oracle/internal/secrets"
	"github.com/concordium/euro2ccd-oracle/internal/source"
	"github.com/concordium/euro2ccd-oracle/internal/stats"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Error().Err(err).Msg("startup validation failed")
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Error().Err(err).Msg("invalid --log-level")
		os.Exit(1)
	}
	zerolog.SetGlobalLevel(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("startup failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logStartupConfig(cfg)

	promReg := prometheus.NewRegistry()
	statsRegistry := stats.NewRegistry(promReg, log.Logger)

	var auditSink *audit.Sink
	if cfg.DatabaseURL != "" {
		var err error
		auditSink, err = audit.Open(ctx, cfg.DatabaseURL, log.Logger)
		if err != nil {
			return err
		}
		defer auditSink.Close()
	}

	nodeClient, err := node.Connect(ctx, node.Config{
		Endpoints: cfg.Nodes,
		RPCToken:  cfg.RPCToken,
		TLSCAPath: cfg.NodeTLSCA,
		Log:       log.Logger,
	})
	if err != nil {
		return err
	}
	defer nodeClient.Close()

	summary, err := nodeClient.GetBlockSummary(ctx)
	if err != nil {
		return err
	}

	signerSet, err := resolveSignerSet(ctx, cfg)
	if err != nil {
		return err
	}
	if err := signerSet.ValidateAgainstChain(summary.AuthorizedKeys); err != nil {
		return err
	}

	gate := safetygate.New(cfg.Thresholds, "update.lockfile", statsRegistry, log.Logger)

	histories := make(map[string]*ratehistory.History, len(cfg.Sources))
	httpClient := &http.Client{Timeout: 10 * time.Second}

	var sourceAudit source.AuditRecorder
	var pubAudit publisher.AuditRecorder
	if auditSink != nil {
		sourceAudit = auditSink
		pubAudit = auditSink
	}

	for _, src := range cfg.Sources {
		h := ratehistory.New(cfg.MaxRatesSaved)
		histories[src.Label] = h

		driver := &source.Driver{
			Src:          src,
			History:      h,
			Client:       httpClient,
			PullInterval: time.Duration(cfg.PullInterval) * time.Second,
			Backoff: source.BackoffConfig{
				InitialDelay: 10 * time.Second,
				MaxDelay:     5 * time.Minute,
				MaxRetries:   5,
			},
			RequestsPerSecond: 2,
			Audit:             sourceAudit,
			Stats:             statsRegistry,
			Log:               log.With().Str("component", "source").Str("source", src.Label).Logger(),
		}
		go driver.Run(ctx)
	}

	state := &publisher.State{
		PrevRate:  ratFromFraction(summary.OnChainRate),
		SeqNumber: summary.NextSequenceNumber,
		Gate:      gate,
		Signer:    signerSet,
	}

	timeouts := publisher.DefaultTimeouts()
	timeouts.UpdateInterval = time.Duration(cfg.UpdateInterval) * time.Second

	pub := &publisher.Publisher{
		Node:      nodeClient,
		Histories: histories,
		State:     state,
		Timeouts:  timeouts,
		Audit:     pubAudit,
		Stats:     statsRegistry,
		Log:       log.With().Str("component", "publisher").Logger(),
	}

	go serveHTTP(ctx, cfg.PrometheusPort, promReg)

	publisher.Start(ctx, pub, cfg.DryRun)
	return nil
}

// logStartupConfig logs the resolved configuration once at startup, with
// the RPC token and database URL passed through the redactor so a token or
// database credential never lands in the log stream verbatim. Secret names,
// key paths and env key names are identifiers and are logged as given.
func logStartupConfig(cfg *config.Config) {
	redactor := secrets.NewRedactor()
	log.Info().Fields(map[string]interface{}{
		"nodes":           cfg.Nodes,
		"rpc_token":       redactor.RedactString(fmt.Sprintf("rpc_token=%s", cfg.RPCToken)),
		"secret_names":    cfg.SecretNames,
		"local_keys":      cfg.LocalKeys,
		"env_keys":        cfg.EnvKeys,
		"aws_region":      cfg.AWSRegion,
		"update_interval": cfg.UpdateInterval,
		"pull_interval":   cfg.PullInterval,
		"prometheus_port": cfg.PrometheusPort,
		"dry_run":         cfg.DryRun,
		"database_url":    redactor.RedactString(fmt.Sprintf("database_url=%s", cfg.DatabaseURL)),
	}).Msg("starting with resolved configuration")
}

// resolveSignerSet picks the local-file, environment or cloud secret
// provider per the mutually-exclusive --local-keys/--env-keys/--secret-names
// flags, falling back to the cloud provider when neither of the first two
// is set.
func resolveSignerSet(ctx context.Context, cfg *config.Config) (*secrets.SignerSet, error) {
	if len(cfg.LocalKeys) > 0 {
		provider := secrets.NewLocalFileProvider(cfg.LocalKeys)
		names := make([]string, len(cfg.LocalKeys))
		for i, p := range cfg.LocalKeys {
			names[i] = filepath.Base(p)
		}
		return secrets.BuildSignerSet(ctx, provider, names)
	}

	if len(cfg.EnvKeys) > 0 {
		provider := secrets.NewEnvProvider(cfg.EnvKeyPrefix)
		return secrets.BuildSignerSet(ctx, provider, cfg.EnvKeys)
	}

	provider, err := secrets.NewAWSSecretsManagerProvider(cfg.AWSRegion)
	if err != nil {
		return nil, err
	}
	return secrets.BuildSignerSet(ctx, provider, cfg.SecretNames)
}

// ratFromFraction widens a bounded 64-bit fraction back into a big.Rat;
// big.Rat.SetFrac64 takes signed int64 operands and would misinterpret
// values in the upper half of the uint64 range, so the numerator and
// denominator are widened through big.Int first.
func ratFromFraction(f scalarmath.Fraction) *big.Rat {
	return new(big.Rat).SetFrac(new(big.Int).SetUint64(f.Num), new(big.Int).SetUint64(f.Den))
}

func serveHTTP(ctx context.Context, port int, reg *prometheus.Registry) {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	srv := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", srv.Addr).Msg("serving /metrics and /healthz")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}
