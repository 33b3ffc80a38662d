package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/synjan/qascan/internal/ai"
	"github.com/synjan/qascan/pkg/models"
)

// AIAssistedScanner augments the structural analysis with a single
// inference pass over the collected repository context.
type AIAssistedScanner struct {
	cfg  Config
	emit *progressEmitter
}

func NewAIAssistedScanner(cfg Config) *AIAssistedScanner {
	return &AIAssistedScanner{cfg: cfg, emit: &progressEmitter{}}
}

func (s *AIAssistedScanner) SetProgressCallback(fn ProgressFunc) {
	s.emit.setCallback(fn)
}

func (s *AIAssistedScanner) Scan(ctx context.Context) (*models.ScanResults, error) {
	rc, err := gather(ctx, s.cfg, s.emit, 60)
	if err != nil {
		return nil, err
	}

	findings := structuralFindings(rc)

	s.emit.emit(75, "running AI analysis")
	resp, err := s.cfg.AI.Analyze(ctx, ai.AnalysisRequest{
		Model:      s.cfg.model(),
		Repository: rc.Name,
		Languages:  rc.Languages,
		Issues:     rc.Issues,
	})
	if err != nil {
		return nil, fmt.Errorf("ai analysis: %w", err)
	}
	findings = append(findings, resp.Findings...)

	summary := resp.Summary
	if summary == "" {
		summary = staticSummary(rc, findings)
	}

	results := &models.ScanResults{
		Repository:  rc.Name,
		Mode:        "ai",
		Model:       s.cfg.model(),
		Summary:     summary,
		Languages:   rc.Languages,
		OpenIssues:  rc.Repository.OpenIssues,
		Findings:    findings,
		RiskScore:   scoreFindings(findings),
		GeneratedAt: time.Now(),
	}

	s.emit.emit(100, "AI analysis complete")
	return results, nil
}
