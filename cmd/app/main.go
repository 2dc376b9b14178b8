package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rpccache/gateway/internal/cache"
	"github.com/rpccache/gateway/internal/cachepolicy"
	"github.com/rpccache/gateway/internal/chain"
	"github.com/rpccache/gateway/internal/cleanup"
	"github.com/rpccache/gateway/internal/config"
	"github.com/rpccache/gateway/internal/dispatcher"
	"github.com/rpccache/gateway/internal/exporter"
	"github.com/rpccache/gateway/internal/server"
	"github.com/rpccache/gateway/internal/upstream"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

// exporterInterval is how often the size/item gauges are refreshed for
// chains backed by Postgres; memory-backed chains have no exporter.
const exporterInterval = 15 * time.Second

func buildLogger(format, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if strings.EqualFold(format, "json") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log_level %q: %w", level, err)
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

func main() {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "rpccache",
		Short: "Caching reverse proxy for JSON-RPC 2.0 endpoints",
		RunE:  run,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.rpccache.yaml)")

	cobra.OnInitialize(func() {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			viper.AddConfigPath(home)
			viper.SetConfigType("yaml")
			viper.SetConfigName(".rpccache")
		}

		viper.AutomaticEnv()
		_ = viper.ReadInConfig()
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Bind == "" {
		cfg.Bind = ":" + cfg.Port
	}

	logger, err := buildLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := upstream.New()

	var maxCacheSize int64
	if cfg.MaxCacheSize != "" {
		maxCacheSize, err = cfg.GetMaxCacheSizeBytes()
		if err != nil {
			return fmt.Errorf("invalid max_cache_size_bytes: %w", err)
		}
	}

	chains := make(map[string]*chain.State, len(cfg.Endpoints))
	var cleanupManagers []*cleanup.Manager
	var exporters []*exporter.Exporter
	var postgresBackends []*cache.PostgresBackend

	for _, ep := range cfg.Endpoints {
		logger.Info("probing chain id", zap.String("endpoint", ep.Name), zap.String("upstream_url", ep.UpstreamURL))

		chainID, err := chain.ProbeChainID(ctx, client, ep.UpstreamURL)
		if err != nil {
			return fmt.Errorf("endpoint %q: %w", ep.Name, err)
		}

		var backend cache.Backend
		var onWrite func()
		if cfg.DatabaseDSN == "" {
			backend = cache.NewMemoryBackend()
		} else {
			pg, err := cache.NewPostgresBackend(ctx, cfg.DatabaseDSN, chainID)
			if err != nil {
				return fmt.Errorf("endpoint %q: %w", ep.Name, err)
			}
			postgresBackends = append(postgresBackends, pg)
			backend = pg
			exporters = append(exporters, exporter.New(logger, ep.Name, pg, exporterInterval))

			if maxCacheSize > 0 {
				mgr := cleanup.NewManager(logger, ep.Name, pg, maxCacheSize, cfg.CleanupSlackRatio)
				cleanupManagers = append(cleanupManagers, mgr)
				onWrite = mgr.NotifyWrite
			}
		}

		var limiter *rate.Limiter
		if cfg.RateLimit > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
		}

		cs := &chain.State{
			Name:        ep.Name,
			UpstreamURL: ep.UpstreamURL,
			ChainID:     chainID,
			Backend:     backend,
			Policies:    cachepolicy.NewRegistry(),
			Limiter:     limiter,
			OnWrite:     onWrite,
		}
		chains[strings.ToUpper(ep.Name)] = cs

		logger.Info("endpoint ready", zap.String("endpoint", ep.Name), zap.String("chain_id", chainID))
	}

	defer func() {
		for _, pg := range postgresBackends {
			pg.Close()
		}
	}()

	state := &server.AppState{Chains: chains}
	d := dispatcher.New(client, logger)
	srv := server.New(logger, cfg.Bind, state, d, cfg.AuthToken)

	for _, mgr := range cleanupManagers {
		mgr.Start()
	}
	for _, exp := range exporters {
		go exp.Start(ctx)
	}

	go func() {
		logger.Info("starting server", zap.String("bind", cfg.Bind))
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	for _, mgr := range cleanupManagers {
		mgr.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}
