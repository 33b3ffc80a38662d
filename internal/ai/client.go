// Package ai calls a chat-completions style inference API to turn
// repository context into test-coverage findings.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/synjan/qascan/pkg/models"
)

type AnalysisRequest struct {
	Model      string
	Repository string
	Focus      string
	Languages  map[string]int64
	Issues     []models.Issue
}

type AnalysisResponse struct {
	Summary  string
	Findings []models.Finding
}

type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(cfg models.AIConfig, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// analysisPayload is the JSON shape the model is instructed to emit.
type analysisPayload struct {
	Summary  string `json:"summary"`
	Findings []struct {
		Category    string  `json:"category"`
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Severity    string  `json:"severity"`
		Confidence  float64 `json:"confidence"`
	} `json:"findings"`
}

const systemPrompt = `You are a QA engineer reviewing a software repository.
Given repository context, identify areas that need test coverage.
Respond with JSON only: {"summary": string, "findings": [{"category",
"title", "description", "severity" (critical|high|medium|low|info),
"confidence" (0..1)}]}.`

func (c *Client) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("analysis request missing model")
	}

	body := chatRequest{
		Model:       req.Model,
		Temperature: 0.2,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(req)},
		},
	}
	body.ResponseFormat = &struct {
		Type string `json:"type"`
	}{Type: "json_object"}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("inference API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("inference API returned no choices")
	}

	return c.parseContent(chat.Choices[0].Message.Content, req.Model)
}

func (c *Client) parseContent(content, model string) (*AnalysisResponse, error) {
	var parsed analysisPayload
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		// Some models wrap the JSON despite the instruction; salvage
		// what we can rather than failing the whole pass.
		c.logger.Warnf("Model %s returned non-JSON analysis, keeping raw text as summary", model)
		return &AnalysisResponse{Summary: strings.TrimSpace(content)}, nil
	}

	out := &AnalysisResponse{Summary: parsed.Summary}
	for _, f := range parsed.Findings {
		out.Findings = append(out.Findings, models.Finding{
			Category:    f.Category,
			Title:       f.Title,
			Description: f.Description,
			Severity:    normalizeSeverity(f.Severity),
			Confidence:  clamp01(f.Confidence),
			Source:      "ai",
		})
	}
	return out, nil
}

func buildUserPrompt(req AnalysisRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s\n", req.Repository)
	if req.Focus != "" {
		fmt.Fprintf(&b, "Focus area: %s\n", req.Focus)
	}
	if len(req.Languages) > 0 {
		b.WriteString("Languages (bytes):\n")
		for lang, size := range req.Languages {
			fmt.Fprintf(&b, "  %s: %d\n", lang, size)
		}
	}
	if len(req.Issues) > 0 {
		b.WriteString("Open issues:\n")
		for _, issue := range req.Issues {
			fmt.Fprintf(&b, "  #%d %s [%s]\n", issue.Number, issue.Title, strings.Join(issue.Labels, ","))
		}
	}
	return b.String()
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return "critical"
	case "high":
		return "high"
	case "medium":
		return "medium"
	case "low":
		return "low"
	default:
		return "info"
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
