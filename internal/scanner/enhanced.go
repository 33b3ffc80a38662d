package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/synjan/qascan/internal/ai"
	"github.com/synjan/qascan/pkg/models"
)

// focusAreas are the per-pass prompts for the enhanced analysis, in
// the order the passes run.
var focusAreas = []string{
	"critical user-facing paths",
	"edge cases and error handling",
	"regression risks from open issues",
}

// EnhancedScanner runs one inference pass per focus area with the
// configured model, merging findings across passes.
type EnhancedScanner struct {
	cfg   Config
	emit  *progressEmitter
	model string
}

func NewEnhancedScanner(cfg Config) *EnhancedScanner {
	return &EnhancedScanner{cfg: cfg, emit: &progressEmitter{}, model: cfg.model()}
}

func (s *EnhancedScanner) SetProgressCallback(fn ProgressFunc) {
	s.emit.setCallback(fn)
}

func (s *EnhancedScanner) Model() string { return s.model }

func (s *EnhancedScanner) Scan(ctx context.Context) (*models.ScanResults, error) {
	rc, err := gather(ctx, s.cfg, s.emit, 50)
	if err != nil {
		return nil, err
	}

	findings := structuralFindings(rc)

	passes := focusAreas
	if max := s.maxPasses(); len(passes) > max {
		passes = passes[:max]
	}

	var summaries []string
	for i, focus := range passes {
		s.emit.emit(50+(i+1)*50/len(passes)-1, fmt.Sprintf("AI pass %d/%d: %s", i+1, len(passes), focus))
		resp, err := s.cfg.AI.Analyze(ctx, ai.AnalysisRequest{
			Model:      s.model,
			Repository: rc.Name,
			Focus:      focus,
			Languages:  rc.Languages,
			Issues:     rc.Issues,
		})
		if err != nil {
			return nil, fmt.Errorf("ai pass %q: %w", focus, err)
		}
		findings = append(findings, resp.Findings...)
		if resp.Summary != "" {
			summaries = append(summaries, resp.Summary)
		}
	}

	summary := strings.Join(summaries, " ")
	if summary == "" {
		summary = staticSummary(rc, findings)
	}

	results := &models.ScanResults{
		Repository:  rc.Name,
		Mode:        "enhanced",
		Model:       s.model,
		Summary:     summary,
		Languages:   rc.Languages,
		OpenIssues:  rc.Repository.OpenIssues,
		Findings:    dedupeFindings(findings),
		GeneratedAt: time.Now(),
	}
	results.RiskScore = scoreFindings(results.Findings)

	s.emit.emit(100, "enhanced analysis complete")
	return results, nil
}

func (s *EnhancedScanner) maxPasses() int {
	if s.cfg.MaxPasses > 0 {
		return s.cfg.MaxPasses
	}
	return len(focusAreas)
}

// dedupeFindings drops findings whose category+title repeat across
// passes, keeping the higher-confidence one.
func dedupeFindings(findings []models.Finding) []models.Finding {
	seen := make(map[string]int, len(findings))
	out := make([]models.Finding, 0, len(findings))
	for _, f := range findings {
		key := strings.ToLower(f.Category + "|" + f.Title)
		if idx, ok := seen[key]; ok {
			if f.Confidence > out[idx].Confidence {
				out[idx] = f
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, f)
	}
	return out
}
