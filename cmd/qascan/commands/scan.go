package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/synjan/qascan/internal/ai"
	"github.com/synjan/qascan/internal/github"
	"github.com/synjan/qascan/internal/orchestration"
	"github.com/synjan/qascan/internal/storage"
	"github.com/synjan/qascan/pkg/models"
	"github.com/synjan/qascan/pkg/utils"
)

func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [repository-url]",
		Short: "Scan a repository for test coverage gaps",
		Long: `Run a one-shot scan of a GitHub repository, printing progress to the
terminal and a coverage summary when the scan finishes.`,
		Args: cobra.ExactArgs(1),
		RunE: runScan,
	}

	cmd.Flags().StringP("token", "t", "", "GitHub token (defaults to $GITHUB_TOKEN)")
	cmd.Flags().Bool("ai", false, "Use AI-assisted analysis")
	cmd.Flags().StringP("model", "m", "", "Model for AI-assisted analysis")
	cmd.Flags().Int("timeout", 15, "Scan timeout in minutes")

	_ = viper.BindPFlag("scan.token", cmd.Flags().Lookup("token"))
	_ = viper.BindPFlag("scan.ai", cmd.Flags().Lookup("ai"))
	_ = viper.BindPFlag("scan.model", cmd.Flags().Lookup("model"))
	_ = viper.BindPFlag("scan.timeout", cmd.Flags().Lookup("timeout"))

	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	repositoryURL := args[0]

	token := viper.GetString("scan.token")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return fmt.Errorf("a GitHub token is required (--token or $GITHUB_TOKEN)")
	}

	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	timeout := time.Duration(viper.GetInt("scan.timeout")) * time.Minute
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	logger := logrus.StandardLogger()
	store := storage.NewMemoryStore(logger)
	repos := github.NewClient(cfg.GitHub, logger)
	analyzer := ai.NewClient(cfg.AI, logger)

	scannerCfg := cfg.Scanner
	scannerCfg.DefaultModel = firstNonEmpty(scannerCfg.DefaultModel, cfg.AI.DefaultModel)
	scannerCfg.MaxPasses = cfg.AI.MaxPasses
	orchestrator := orchestration.NewOrchestrator(store, repos, analyzer, scannerCfg, logger, nil)

	logrus.Infof("Starting scan for repository: %s", repositoryURL)
	scanID, err := orchestrator.StartScan(orchestration.ScanRequest{
		RepositoryURL: repositoryURL,
		Owner:         utils.TokenDigest(token),
		Token:         token,
		UseAI:         viper.GetBool("scan.ai"),
		Model:         viper.GetString("scan.model"),
	})
	if err != nil {
		return fmt.Errorf("failed to start scan: %w", err)
	}
	logrus.Infof("Scan started with ID: %s", scanID)

	return monitorScan(ctx, store, scanID)
}

func monitorScan(ctx context.Context, store storage.Store, scanID string) error {
	displayProgress := func(step string, progress int) {
		if viper.GetBool("quiet") {
			return
		}
		barWidth := 50
		completed := progress * barWidth / 100
		if completed > barWidth {
			completed = barWidth
		}
		fmt.Printf("\r[%s%s] %-40s %3d%%",
			repeat("=", completed),
			repeat(" ", barWidth-completed),
			step,
			progress,
		)
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			if ctx.Err() == context.DeadlineExceeded {
				logrus.Warn("Scan timed out")
				return fmt.Errorf("scan timed out after %d minutes", viper.GetInt("scan.timeout"))
			}
			logrus.Info("Scan cancelled by user")
			return nil
		case <-ticker.C:
			session, err := store.Get(scanID)
			if err != nil {
				fmt.Println()
				return fmt.Errorf("failed to get scan status: %w", err)
			}
			displayProgress(session.CurrentStep, session.Progress)
			if session.Status.Terminal() {
				fmt.Println()
				return handleScanCompletion(session)
			}
		}
	}
}

func handleScanCompletion(session models.ScanSession) error {
	if session.Status == models.StatusFailed {
		return fmt.Errorf("scan failed: %s", session.Error)
	}
	if session.Results == nil {
		return fmt.Errorf("scan completed but no results available")
	}
	displaySummary(session)
	return nil
}

func displaySummary(session models.ScanSession) {
	results := session.Results
	duration := time.Duration(0)
	if session.CompletedAt != nil {
		duration = session.CompletedAt.Sub(session.StartedAt).Round(time.Second)
	}

	fmt.Printf(`
Scan Summary:
═══════════════════════════════════════════════════════════════
Repository:    %s
Mode:          %s
Open Issues:   %d
Findings:      %d
Risk Score:    %.1f/10.0
Scan Duration: %v
═══════════════════════════════════════════════════════════════
%s
`,
		results.Repository,
		results.Mode,
		results.OpenIssues,
		len(results.Findings),
		results.RiskScore,
		duration,
		results.Summary,
	)

	for _, f := range results.Findings {
		fmt.Printf("  [%-8s] %s: %s\n", f.Severity, f.Category, f.Title)
	}
}

func repeat(s string, n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
