package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/synjan/qascan/pkg/models"
)

// StaticScanner derives coverage findings from repository structure
// alone: languages, issue labels, and activity. No model calls.
type StaticScanner struct {
	cfg  Config
	emit *progressEmitter
}

func NewStaticScanner(cfg Config) *StaticScanner {
	return &StaticScanner{cfg: cfg, emit: &progressEmitter{}}
}

func (s *StaticScanner) SetProgressCallback(fn ProgressFunc) {
	s.emit.setCallback(fn)
}

func (s *StaticScanner) Scan(ctx context.Context) (*models.ScanResults, error) {
	rc, err := gather(ctx, s.cfg, s.emit, 80)
	if err != nil {
		return nil, err
	}

	s.emit.emit(90, "deriving structural findings")
	findings := structuralFindings(rc)

	results := &models.ScanResults{
		Repository:  rc.Name,
		Mode:        "static",
		Summary:     staticSummary(rc, findings),
		Languages:   rc.Languages,
		OpenIssues:  rc.Repository.OpenIssues,
		Findings:    findings,
		RiskScore:   scoreFindings(findings),
		GeneratedAt: time.Now(),
	}

	s.emit.emit(100, "static analysis complete")
	return results, nil
}

func structuralFindings(rc *repoContext) []models.Finding {
	var findings []models.Finding

	bugCount := 0
	for _, issue := range rc.Issues {
		for _, label := range issue.Labels {
			if strings.Contains(strings.ToLower(label), "bug") {
				bugCount++
				break
			}
		}
	}
	if bugCount > 0 {
		severity := "medium"
		if bugCount >= 5 {
			severity = "high"
		}
		findings = append(findings, models.Finding{
			Category:    "regression",
			Title:       "Open bug reports without regression coverage",
			Description: fmt.Sprintf("%d open issues carry a bug label; each fixed bug should gain a regression test", bugCount),
			Severity:    severity,
			Confidence:  0.9,
			Source:      "static",
		})
	}

	if rc.Repository.OpenIssues > 50 {
		findings = append(findings, models.Finding{
			Category:    "triage",
			Title:       "Large open issue backlog",
			Description: fmt.Sprintf("%d open issues suggest untested or under-specified behavior", rc.Repository.OpenIssues),
			Severity:    "medium",
			Confidence:  0.6,
			Source:      "static",
		})
	}

	for _, lang := range topLanguages(rc.Languages, 3) {
		findings = append(findings, models.Finding{
			Category:    "coverage",
			Title:       fmt.Sprintf("Unit coverage for %s code", lang),
			Description: fmt.Sprintf("%s is a primary language in this repository; verify its unit test coverage", lang),
			Severity:    "low",
			Confidence:  0.5,
			Source:      "static",
		})
	}

	if age := time.Since(rc.Repository.PushedAt); rc.Repository.PushedAt.IsZero() || age > 180*24*time.Hour {
		findings = append(findings, models.Finding{
			Category:    "maintenance",
			Title:       "Stale repository",
			Description: "no recent pushes; a smoke suite should confirm the project still builds and runs",
			Severity:    "low",
			Confidence:  0.7,
			Source:      "static",
		})
	}

	return findings
}

func topLanguages(languages map[string]int64, n int) []string {
	type langSize struct {
		name string
		size int64
	}
	sorted := make([]langSize, 0, len(languages))
	for name, size := range languages {
		sorted = append(sorted, langSize{name, size})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].size == sorted[j].size {
			return sorted[i].name < sorted[j].name
		}
		return sorted[i].size > sorted[j].size
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	names := make([]string, len(sorted))
	for i, ls := range sorted {
		names[i] = ls.name
	}
	return names
}

func staticSummary(rc *repoContext, findings []models.Finding) string {
	primary := "unknown"
	if langs := topLanguages(rc.Languages, 1); len(langs) > 0 {
		primary = langs[0]
	}
	return fmt.Sprintf("%s (%s): %d open issues sampled, %d coverage findings",
		rc.Name, primary, len(rc.Issues), len(findings))
}
