// Package orchestration drives scan sessions end to end. StartScan
// returns as soon as the session exists; the job itself runs detached
// from the triggering request and reports everything through the scan
// store, never back to the caller.
package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/synjan/qascan/internal/ai"
	"github.com/synjan/qascan/internal/github"
	"github.com/synjan/qascan/internal/repourl"
	"github.com/synjan/qascan/internal/scanner"
	"github.com/synjan/qascan/internal/storage"
	"github.com/synjan/qascan/pkg/models"
	"github.com/synjan/qascan/pkg/utils"
)

type ScanRequest struct {
	RepositoryURL string
	Owner         string
	Token         string
	UseAI         bool
	Model         string
}

type Orchestrator struct {
	store   storage.Store
	repos   github.RepositoryService
	ai      ai.Analyzer
	cfg     models.ScannerConfig
	logger  *logrus.Logger
	metrics *utils.MetricsCollector
	slots   chan struct{}
}

func NewOrchestrator(store storage.Store, repos github.RepositoryService, analyzer ai.Analyzer, cfg models.ScannerConfig, logger *logrus.Logger, metrics *utils.MetricsCollector) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	maxConcurrent := cfg.MaxConcurrentScans
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	o := &Orchestrator{
		store:   store,
		repos:   repos,
		ai:      analyzer,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		slots:   make(chan struct{}, maxConcurrent),
	}
	o.registerMetrics()
	return o
}

func (o *Orchestrator) registerMetrics() {
	if o.metrics == nil {
		return
	}
	_ = o.metrics.RegisterCounter("qascan_scans_started_total", "Scans started, by mode.", "mode")
	_ = o.metrics.RegisterCounter("qascan_scans_finished_total", "Scans reaching a terminal state, by status.", "status")
	_ = o.metrics.RegisterGauge("qascan_active_scans", "Scan jobs currently running.")
	_ = o.metrics.RegisterHistogram("qascan_scan_duration_seconds", "Wall time of finished scans.",
		[]float64{1, 5, 15, 30, 60, 120, 300, 600})
}

// StartScan creates the pending session and schedules the job. It
// never blocks on the job: the returned id is immediately pollable
// through the store.
func (o *Orchestrator) StartScan(req ScanRequest) (string, error) {
	if req.RepositoryURL == "" {
		return "", fmt.Errorf("repository URL is required")
	}

	id := uuid.NewString()
	session := models.ScanSession{
		ID:            id,
		RepositoryURL: req.RepositoryURL,
		Repository:    repourl.Normalize(req.RepositoryURL),
		Owner:         req.Owner,
		Status:        models.StatusPending,
		CurrentStep:   "queued",
		StartedAt:     time.Now(),
	}
	if err := o.store.Create(session); err != nil {
		return "", fmt.Errorf("create scan session: %w", err)
	}

	mode := "static"
	if req.UseAI {
		mode = "enhanced"
	}
	if o.metrics != nil {
		o.metrics.IncCounter("qascan_scans_started_total", 1, prometheus.Labels{"mode": mode})
	}
	o.logger.Infof("Scan %s queued for %s (mode: %s)", id, session.Repository, mode)

	go o.run(id, req)
	return id, nil
}

// run is the detached scan job. Every exit path, including a panic in
// a scanner, ends in exactly one terminal store update; nothing is
// ever re-raised to the request that started the scan.
func (o *Orchestrator) run(id string, req ScanRequest) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Errorf("Scan %s panicked: %v", id, r)
			o.fail(id, fmt.Errorf("internal scan error: %v", r))
		}
	}()

	o.slots <- struct{}{}
	defer func() { <-o.slots }()

	if o.metrics != nil {
		o.metrics.AddGauge("qascan_active_scans", 1, nil)
		defer o.metrics.AddGauge("qascan_active_scans", -1, nil)
	}

	scanning := models.StatusScanning
	step := "starting scan"
	if _, err := o.store.Update(id, models.SessionUpdate{Status: &scanning, CurrentStep: &step}); err != nil {
		o.logger.Errorf("Scan %s vanished before start: %v", id, err)
		return
	}

	sc := scanner.Select(scanner.Config{
		RepositoryURL:   req.RepositoryURL,
		Token:           req.Token,
		UseAI:           req.UseAI,
		Model:           req.Model,
		DefaultModel:    o.cfg.DefaultModel,
		IssueSampleSize: o.cfg.IssueSampleSize,
		MaxPasses:       o.cfg.MaxPasses,
		StepDelay:       o.cfg.StepDelay,
		Repos:           o.repos,
		AI:              o.ai,
		Logger:          o.logger,
	})

	sc.SetProgressCallback(func(progress int, currentStep string) {
		status := models.StatusScanning
		if progress >= 100 {
			status = models.StatusAnalyzing
		}
		if _, err := o.store.Update(id, models.SessionUpdate{
			Status:      &status,
			Progress:    &progress,
			CurrentStep: &currentStep,
		}); err != nil {
			o.logger.Warnf("Progress update for scan %s failed: %v", id, err)
		}
	})

	// Detached on purpose: the triggering request has already
	// returned and in-flight scans cannot be cancelled.
	results, err := sc.Scan(context.Background())
	if err != nil {
		o.fail(id, err)
		o.observeDuration(started)
		return
	}

	completed := models.StatusCompleted
	progress := 100
	now := time.Now()
	if _, err := o.store.Update(id, models.SessionUpdate{
		Status:      &completed,
		Progress:    &progress,
		Results:     results,
		CompletedAt: &now,
	}); err != nil {
		o.logger.Errorf("Terminal update for scan %s failed: %v", id, err)
		return
	}

	if o.metrics != nil {
		o.metrics.IncCounter("qascan_scans_finished_total", 1, prometheus.Labels{"status": "completed"})
	}
	o.observeDuration(started)
	o.logger.Infof("Scan %s completed in %v (%d findings)", id, time.Since(started).Round(time.Millisecond), len(results.Findings))
}

func (o *Orchestrator) fail(id string, scanErr error) {
	failed := models.StatusFailed
	msg := scanErr.Error()
	now := time.Now()
	if _, err := o.store.Update(id, models.SessionUpdate{
		Status:      &failed,
		Error:       &msg,
		CompletedAt: &now,
	}); err != nil {
		o.logger.Errorf("Failure update for scan %s failed: %v", id, err)
		return
	}
	if o.metrics != nil {
		o.metrics.IncCounter("qascan_scans_finished_total", 1, prometheus.Labels{"status": "failed"})
	}
	o.logger.Warnf("Scan %s failed: %v", id, scanErr)
}

func (o *Orchestrator) observeDuration(started time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveHistogram("qascan_scan_duration_seconds", time.Since(started).Seconds(), nil)
}
