// Package scanner holds the repository scan strategies. A scanner is
// selected once from the request flags and held for the lifetime of
// the job; progress is reported through a callback with values that
// never decrease.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/synjan/qascan/internal/ai"
	"github.com/synjan/qascan/internal/github"
	"github.com/synjan/qascan/internal/repourl"
	"github.com/synjan/qascan/pkg/models"
)

type ProgressFunc func(progress int, step string)

type Scanner interface {
	Scan(ctx context.Context) (*models.ScanResults, error)
	SetProgressCallback(fn ProgressFunc)
}

type Config struct {
	RepositoryURL   string
	Token           string
	UseAI           bool
	Model           string
	DefaultModel    string
	IssueSampleSize int
	MaxPasses       int
	StepDelay       time.Duration
	Repos           github.RepositoryService
	AI              ai.Analyzer
	Logger          *logrus.Logger
}

// Select picks the scan strategy from the caller-supplied flags. The
// choice is explicit configuration, never inferred from content:
// useAI=false yields the static analyzer, useAI=true the enhanced AI
// analyzer with the requested model (or the configured default).
func Select(cfg Config) Scanner {
	if !cfg.UseAI {
		return NewStaticScanner(cfg)
	}
	return NewEnhancedScanner(cfg)
}

// progressEmitter serializes callback delivery and clamps values so
// consumers always observe a non-decreasing sequence in [0,100], even
// if a strategy mis-reports.
type progressEmitter struct {
	mu   sync.Mutex
	fn   ProgressFunc
	last int
}

func (e *progressEmitter) setCallback(fn ProgressFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fn = fn
}

func (e *progressEmitter) emit(progress int, step string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if progress < e.last {
		progress = e.last
	}
	if progress > 100 {
		progress = 100
	}
	e.last = progress
	if e.fn != nil {
		e.fn(progress, step)
	}
}

// repoContext is everything the upstream calls yield before any
// findings are derived.
type repoContext struct {
	Repository *models.Repository
	Name       string
	Languages  map[string]int64
	Issues     []models.Issue
}

// gather runs the upstream collection phase common to all strategies,
// spreading its progress over [0, upTo].
func gather(ctx context.Context, cfg Config, emit *progressEmitter, upTo int) (*repoContext, error) {
	owner, name, ok := repourl.Split(cfg.RepositoryURL)
	if !ok {
		return nil, fmt.Errorf("cannot derive owner/name from %q", cfg.RepositoryURL)
	}
	full := owner + "/" + name

	emit.emit(upTo*5/100, "fetching repository metadata")
	repo, err := cfg.Repos.GetRepository(ctx, cfg.Token, owner, name)
	if err != nil {
		return nil, fmt.Errorf("fetch repository %s: %w", full, err)
	}
	pause(ctx, cfg.StepDelay)

	emit.emit(upTo*40/100, "analyzing languages")
	languages, err := cfg.Repos.ListLanguages(ctx, cfg.Token, owner, name)
	if err != nil {
		return nil, fmt.Errorf("list languages for %s: %w", full, err)
	}
	pause(ctx, cfg.StepDelay)

	emit.emit(upTo*70/100, "sampling open issues")
	issues, err := cfg.Repos.ListIssues(ctx, cfg.Token, owner, name, cfg.IssueSampleSize)
	if err != nil {
		return nil, fmt.Errorf("list issues for %s: %w", full, err)
	}

	emit.emit(upTo, "repository context collected")
	if cfg.Logger != nil {
		cfg.Logger.Debugf("Collected context for %s: %d languages, %d issues", full, len(languages), len(issues))
	}
	return &repoContext{
		Repository: repo,
		Name:       full,
		Languages:  languages,
		Issues:     issues,
	}, nil
}

// pause sleeps between upstream calls when a step delay is configured
// for rate-limit avoidance.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (cfg Config) model() string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return cfg.DefaultModel
}
