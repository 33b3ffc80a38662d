package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/synjan/qascan/internal/ai"
	"github.com/synjan/qascan/internal/api"
	"github.com/synjan/qascan/internal/cache"
	"github.com/synjan/qascan/internal/github"
	"github.com/synjan/qascan/internal/orchestration"
	"github.com/synjan/qascan/internal/storage"
	"github.com/synjan/qascan/pkg/models"
	"github.com/synjan/qascan/pkg/utils"
)

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the QAScan API server",
		Long: `Run the HTTP API server that starts repository scans, reports their
progress, and serves cached repository listings.`,
		RunE: runServe,
	}

	cmd.Flags().String("host", "", "Bind address (overrides server.host)")
	cmd.Flags().IntP("port", "p", 0, "Listen port (overrides server.port)")
	cmd.Flags().Bool("no-cache", false, "Disable the repository response cache")

	_ = viper.BindPFlag("serve.host", cmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("serve.port", cmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("serve.no_cache", cmd.Flags().Lookup("no-cache"))

	return cmd
}

// buildConfig assembles the typed configuration from viper, which has
// already merged defaults, the config file, env vars, and flags.
func buildConfig() (*models.Config, error) {
	cfg := models.DefaultConfig()

	cfg.Global.LogLevel = viper.GetString("global.log_level")
	cfg.Global.LogFormat = viper.GetString("global.log_format")
	cfg.Global.LogFile = viper.GetString("global.log_file")
	cfg.Global.DataDir = viper.GetString("global.data_dir")

	cfg.Server.Host = viper.GetString("server.host")
	cfg.Server.Port = viper.GetInt("server.port")
	cfg.Server.ReadTimeout = viper.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = viper.GetDuration("server.write_timeout")
	cfg.Server.SessionSecret = viper.GetString("server.session_secret")
	cfg.Server.MetricsEnabled = viper.GetBool("server.metrics_enabled")

	cfg.Scanner.MaxConcurrentScans = viper.GetInt("scanner.max_concurrent_scans")
	cfg.Scanner.DefaultModel = viper.GetString("scanner.default_model")
	cfg.Scanner.StepDelay = viper.GetDuration("scanner.step_delay")
	cfg.Scanner.IssueSampleSize = viper.GetInt("scanner.issue_sample_size")

	cfg.GitHub.BaseURL = viper.GetString("github.base_url")
	cfg.GitHub.Timeout = viper.GetDuration("github.timeout")
	cfg.GitHub.RateLimit = viper.GetFloat64("github.rate_limit")
	cfg.GitHub.Burst = viper.GetInt("github.burst")

	cfg.AI.BaseURL = viper.GetString("ai.base_url")
	cfg.AI.APIKey = viper.GetString("ai.api_key")
	cfg.AI.Timeout = viper.GetDuration("ai.timeout")
	cfg.AI.DefaultModel = viper.GetString("ai.default_model")
	cfg.AI.MaxPasses = viper.GetInt("ai.max_passes")

	cfg.Cache.Enabled = viper.GetBool("cache.enabled")
	cfg.Cache.TTL = viper.GetDuration("cache.ttl")
	cfg.Cache.MaxEntries = viper.GetInt("cache.max_entries")
	cfg.Cache.StaleRetention = viper.GetDuration("cache.stale_retention")
	cfg.Cache.SweepInterval = viper.GetDuration("cache.sweep_interval")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	if host := viper.GetString("serve.host"); host != "" {
		cfg.Server.Host = host
	}
	if port := viper.GetInt("serve.port"); port != 0 {
		cfg.Server.Port = port
	}
	if viper.GetBool("serve.no_cache") {
		cfg.Cache.Enabled = false
	}
	if cfg.Server.SessionSecret == "" {
		logrus.Warn("server.session_secret is not set; session tokens are disabled, PAT auth only")
	}

	logger := logrus.StandardLogger()
	metrics := utils.NewMetricsCollector(true)

	store := storage.NewMemoryStore(logger)
	repos := github.NewClient(cfg.GitHub, logger)
	analyzer := ai.NewClient(cfg.AI, logger)
	cacheManager := cache.NewManager(cfg.Cache, logger)
	defer cacheManager.Close()

	scannerCfg := cfg.Scanner
	scannerCfg.DefaultModel = firstNonEmpty(scannerCfg.DefaultModel, cfg.AI.DefaultModel)
	scannerCfg.MaxPasses = cfg.AI.MaxPasses

	orchestrator := orchestration.NewOrchestrator(store, repos, analyzer, scannerCfg, logger, metrics)
	server := api.NewServer(cfg.Server, store, orchestrator, repos, cacheManager, logger, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
