package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/synjan/qascan/internal/ai"
	"github.com/synjan/qascan/pkg/models"
)

type fakeRepos struct {
	repo     *models.Repository
	langs    map[string]int64
	issues   []models.Issue
	fail     error
	failStep string
}

func (f *fakeRepos) ListRepositories(ctx context.Context, token string) ([]models.Repository, error) {
	return nil, errors.New("not used")
}

func (f *fakeRepos) GetRepository(ctx context.Context, token, owner, name string) (*models.Repository, error) {
	if f.fail != nil && f.failStep == "repo" {
		return nil, f.fail
	}
	return f.repo, nil
}

func (f *fakeRepos) ListLanguages(ctx context.Context, token, owner, name string) (map[string]int64, error) {
	if f.fail != nil && f.failStep == "languages" {
		return nil, f.fail
	}
	return f.langs, nil
}

func (f *fakeRepos) ListIssues(ctx context.Context, token, owner, name string, limit int) ([]models.Issue, error) {
	if f.fail != nil && f.failStep == "issues" {
		return nil, f.fail
	}
	return f.issues, nil
}

type fakeAnalyzer struct {
	calls []ai.AnalysisRequest
	resp  *ai.AnalysisResponse
	err   error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req ai.AnalysisRequest) (*ai.AnalysisResponse, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func testConfig(repos *fakeRepos, analyzer *fakeAnalyzer) Config {
	return Config{
		RepositoryURL: "https://github.com/acme/widgets",
		Token:         "token",
		DefaultModel:  "default-model",
		Repos:         repos,
		AI:            analyzer,
	}
}

func healthyRepos() *fakeRepos {
	return &fakeRepos{
		repo: &models.Repository{
			FullName:   "acme/widgets",
			OpenIssues: 12,
			PushedAt:   time.Now(),
		},
		langs: map[string]int64{"Go": 10000, "Shell": 200},
		issues: []models.Issue{
			{Number: 1, Title: "crash on save", Labels: []string{"bug"}},
			{Number: 2, Title: "add dark mode", Labels: []string{"enhancement"}},
		},
	}
}

func TestSelectVariants(t *testing.T) {
	cfg := testConfig(healthyRepos(), &fakeAnalyzer{})

	if _, ok := Select(cfg).(*StaticScanner); !ok {
		t.Error("useAI=false should select the static scanner")
	}

	cfg.UseAI = true
	cfg.Model = "enhanced-x"
	enhanced, ok := Select(cfg).(*EnhancedScanner)
	if !ok {
		t.Fatal("useAI=true should select the enhanced scanner")
	}
	if enhanced.Model() != "enhanced-x" {
		t.Errorf("Model() = %q, want enhanced-x", enhanced.Model())
	}

	cfg.Model = ""
	enhanced = Select(cfg).(*EnhancedScanner)
	if enhanced.Model() != "default-model" {
		t.Errorf("Model() = %q, want the configured default", enhanced.Model())
	}
}

func TestStaticScanProgressMonotonic(t *testing.T) {
	s := NewStaticScanner(testConfig(healthyRepos(), nil))

	var observed []int
	s.SetProgressCallback(func(p int, step string) {
		if step == "" {
			t.Error("progress callback fired with empty step")
		}
		observed = append(observed, p)
	})

	results, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(observed) == 0 {
		t.Fatal("no progress callbacks fired")
	}
	for i := 1; i < len(observed); i++ {
		if observed[i] < observed[i-1] {
			t.Errorf("progress decreased: %v", observed)
			break
		}
	}
	if last := observed[len(observed)-1]; last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
	if results.Mode != "static" {
		t.Errorf("Mode = %q, want static", results.Mode)
	}
	if results.Repository != "acme/widgets" {
		t.Errorf("Repository = %q", results.Repository)
	}
	if len(results.Findings) == 0 {
		t.Error("expected structural findings for a repo with bug-labeled issues")
	}
	for _, f := range results.Findings {
		if f.Source != "static" {
			t.Errorf("static scan produced finding with source %q", f.Source)
		}
	}
}

func TestStaticScanUpstreamFailure(t *testing.T) {
	repos := healthyRepos()
	repos.fail = errors.New("github down")
	repos.failStep = "languages"

	s := NewStaticScanner(testConfig(repos, nil))
	results, err := s.Scan(context.Background())
	if err == nil {
		t.Fatal("Scan should fail when an upstream call fails")
	}
	if results != nil {
		t.Error("failed scan must not return partial results")
	}
}

func TestStaticScanBadURL(t *testing.T) {
	cfg := testConfig(healthyRepos(), nil)
	cfg.RepositoryURL = "not a url"
	if _, err := NewStaticScanner(cfg).Scan(context.Background()); err == nil {
		t.Error("Scan should fail when owner/name cannot be derived")
	}
}

func TestAIAssistedScanMergesFindings(t *testing.T) {
	analyzer := &fakeAnalyzer{resp: &ai.AnalysisResponse{
		Summary: "needs integration tests",
		Findings: []models.Finding{
			{Category: "integration", Title: "API flow untested", Severity: "high", Confidence: 0.8, Source: "ai"},
		},
	}}
	cfg := testConfig(healthyRepos(), analyzer)
	cfg.Model = "gpt-test"

	s := NewAIAssistedScanner(cfg)
	results, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(analyzer.calls) != 1 {
		t.Fatalf("analyzer called %d times, want 1", len(analyzer.calls))
	}
	if analyzer.calls[0].Model != "gpt-test" {
		t.Errorf("analyzer model = %q", analyzer.calls[0].Model)
	}
	if results.Mode != "ai" || results.Model != "gpt-test" {
		t.Errorf("Mode/Model = %q/%q", results.Mode, results.Model)
	}
	if results.Summary != "needs integration tests" {
		t.Errorf("Summary = %q", results.Summary)
	}

	hasAI := false
	hasStatic := false
	for _, f := range results.Findings {
		switch f.Source {
		case "ai":
			hasAI = true
		case "static":
			hasStatic = true
		}
	}
	if !hasAI || !hasStatic {
		t.Error("ai-assisted results should merge static and ai findings")
	}
}

func TestEnhancedScanRunsMultiplePasses(t *testing.T) {
	analyzer := &fakeAnalyzer{resp: &ai.AnalysisResponse{Summary: "pass summary"}}
	cfg := testConfig(healthyRepos(), analyzer)
	cfg.UseAI = true
	cfg.Model = "enhanced-x"

	s := NewEnhancedScanner(cfg)

	var observed []int
	s.SetProgressCallback(func(p int, step string) { observed = append(observed, p) })

	results, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(analyzer.calls) != len(focusAreas) {
		t.Errorf("analyzer called %d times, want %d", len(analyzer.calls), len(focusAreas))
	}
	for i, call := range analyzer.calls {
		if call.Focus != focusAreas[i] {
			t.Errorf("pass %d focus = %q, want %q", i, call.Focus, focusAreas[i])
		}
		if call.Model != "enhanced-x" {
			t.Errorf("pass %d model = %q", i, call.Model)
		}
	}
	for i := 1; i < len(observed); i++ {
		if observed[i] < observed[i-1] {
			t.Errorf("progress decreased: %v", observed)
			break
		}
	}
	if results.Mode != "enhanced" {
		t.Errorf("Mode = %q", results.Mode)
	}
}

func TestEnhancedScanMaxPasses(t *testing.T) {
	analyzer := &fakeAnalyzer{resp: &ai.AnalysisResponse{}}
	cfg := testConfig(healthyRepos(), analyzer)
	cfg.UseAI = true
	cfg.MaxPasses = 1

	if _, err := NewEnhancedScanner(cfg).Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(analyzer.calls) != 1 {
		t.Errorf("analyzer called %d times with max_passes=1", len(analyzer.calls))
	}
}

func TestEnhancedScanFailsOnAnalyzerError(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("model overloaded")}
	cfg := testConfig(healthyRepos(), analyzer)
	cfg.UseAI = true

	results, err := NewEnhancedScanner(cfg).Scan(context.Background())
	if err == nil {
		t.Fatal("Scan should fail when the analyzer fails")
	}
	if results != nil {
		t.Error("failed scan must not return partial results")
	}
}

func TestDedupeFindings(t *testing.T) {
	in := []models.Finding{
		{Category: "coverage", Title: "A", Confidence: 0.5},
		{Category: "coverage", Title: "a", Confidence: 0.9},
		{Category: "other", Title: "A", Confidence: 0.2},
	}
	out := dedupeFindings(in)
	if len(out) != 2 {
		t.Fatalf("dedupe returned %d findings, want 2", len(out))
	}
	if out[0].Confidence != 0.9 {
		t.Errorf("dedupe kept confidence %v, want the higher one", out[0].Confidence)
	}
}

func TestScoreFindings(t *testing.T) {
	if got := scoreFindings(nil); got != 0 {
		t.Errorf("scoreFindings(nil) = %v, want 0", got)
	}
	findings := []models.Finding{
		{Severity: "critical"},
		{Severity: "low"},
	}
	want := (10.0 + 2.5) / 2
	if got := scoreFindings(findings); got != want {
		t.Errorf("scoreFindings = %v, want %v", got, want)
	}
}
