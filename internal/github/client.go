// Package github is a thin client for the pieces of the GitHub REST
// API the scanners and the repository listing need. Calls are rate
// limited client-side so a burst of scans does not trip abuse limits.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/synjan/qascan/pkg/models"
)

type RepositoryService interface {
	ListRepositories(ctx context.Context, token string) ([]models.Repository, error)
	GetRepository(ctx context.Context, token, owner, name string) (*models.Repository, error)
	ListLanguages(ctx context.Context, token, owner, name string) (map[string]int64, error)
	ListIssues(ctx context.Context, token, owner, name string, limit int) ([]models.Issue, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

func NewClient(cfg models.GitHubConfig, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		logger:     logger,
	}
}

type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("github: %s (status %d)", e.Message, e.StatusCode)
}

func (c *Client) do(ctx context.Context, token, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warnf("GitHub API %s returned %d", path, resp.StatusCode)
		return &apiError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type wireRepository struct {
	FullName    string `json:"full_name"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
	DefaultBranch   string    `json:"default_branch"`
	Language        string    `json:"language"`
	OpenIssuesCount int       `json:"open_issues_count"`
	StargazersCount int       `json:"stargazers_count"`
	PushedAt        time.Time `json:"pushed_at"`
	HTMLURL         string    `json:"html_url"`
}

func (w wireRepository) toModel() models.Repository {
	return models.Repository{
		FullName:      w.FullName,
		Name:          w.Name,
		Owner:         w.Owner.Login,
		Description:   w.Description,
		Private:       w.Private,
		DefaultBranch: w.DefaultBranch,
		Language:      w.Language,
		OpenIssues:    w.OpenIssuesCount,
		Stars:         w.StargazersCount,
		PushedAt:      w.PushedAt,
		URL:           w.HTMLURL,
	}
}

func (c *Client) ListRepositories(ctx context.Context, token string) ([]models.Repository, error) {
	var wire []wireRepository
	if err := c.do(ctx, token, "/user/repos?per_page=100&sort=pushed", &wire); err != nil {
		return nil, err
	}

	repos := make([]models.Repository, 0, len(wire))
	for _, w := range wire {
		repos = append(repos, w.toModel())
	}
	return repos, nil
}

func (c *Client) GetRepository(ctx context.Context, token, owner, name string) (*models.Repository, error) {
	var wire wireRepository
	if err := c.do(ctx, token, fmt.Sprintf("/repos/%s/%s", owner, name), &wire); err != nil {
		return nil, err
	}
	repo := wire.toModel()
	return &repo, nil
}

func (c *Client) ListLanguages(ctx context.Context, token, owner, name string) (map[string]int64, error) {
	languages := make(map[string]int64)
	if err := c.do(ctx, token, fmt.Sprintf("/repos/%s/%s/languages", owner, name), &languages); err != nil {
		return nil, err
	}
	return languages, nil
}

func (c *Client) ListIssues(ctx context.Context, token, owner, name string, limit int) ([]models.Issue, error) {
	if limit <= 0 {
		limit = 30
	}
	var wire []struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		State  string `json:"state"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
		CreatedAt   time.Time `json:"created_at"`
		PullRequest *struct{} `json:"pull_request,omitempty"`
	}
	path := fmt.Sprintf("/repos/%s/%s/issues?state=open&per_page=%d", owner, name, limit)
	if err := c.do(ctx, token, path, &wire); err != nil {
		return nil, err
	}

	issues := make([]models.Issue, 0, len(wire))
	for _, w := range wire {
		if w.PullRequest != nil {
			// the issues endpoint also returns pull requests
			continue
		}
		labels := make([]string, 0, len(w.Labels))
		for _, l := range w.Labels {
			labels = append(labels, l.Name)
		}
		issues = append(issues, models.Issue{
			Number:    w.Number,
			Title:     w.Title,
			State:     w.State,
			Labels:    labels,
			CreatedAt: w.CreatedAt,
		})
	}
	return issues, nil
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	if ae, ok := err.(*apiError); ok {
		return ae.StatusCode == http.StatusNotFound
	}
	return false
}
