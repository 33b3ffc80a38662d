package models

import "time"

// ScanStatus is the lifecycle state of a scan session. The lifecycle
// only moves forward: pending -> scanning -> analyzing -> completed,
// with failed reachable from any non-terminal state.
type ScanStatus string

const (
	StatusPending   ScanStatus = "pending"
	StatusScanning  ScanStatus = "scanning"
	StatusAnalyzing ScanStatus = "analyzing"
	StatusCompleted ScanStatus = "completed"
	StatusFailed    ScanStatus = "failed"
)

var statusRank = map[ScanStatus]int{
	StatusPending:   0,
	StatusScanning:  1,
	StatusAnalyzing: 2,
	StatusCompleted: 3,
	StatusFailed:    3,
}

func (s ScanStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

func (s ScanStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next keeps the
// lifecycle forward-only. Re-asserting the current status is allowed;
// leaving a terminal status is not.
func (s ScanStatus) CanTransitionTo(next ScanStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return statusRank[next] > statusRank[s]
}

type ScanSession struct {
	ID            string       `json:"id"`
	RepositoryURL string       `json:"repositoryUrl"`
	Repository    string       `json:"repository"`
	Owner         string       `json:"owner"`
	Status        ScanStatus   `json:"status"`
	Progress      int          `json:"progress"`
	CurrentStep   string       `json:"currentStep"`
	Results       *ScanResults `json:"results,omitempty"`
	Error         string       `json:"error,omitempty"`
	StartedAt     time.Time    `json:"startedAt"`
	CompletedAt   *time.Time   `json:"completedAt,omitempty"`
}

// SessionUpdate is a partial write: nil fields are left untouched.
type SessionUpdate struct {
	Status      *ScanStatus
	Progress    *int
	CurrentStep *string
	Results     *ScanResults
	Error       *string
	CompletedAt *time.Time
}

type ScanResults struct {
	Repository  string           `json:"repository"`
	Mode        string           `json:"mode"`
	Model       string           `json:"model,omitempty"`
	Summary     string           `json:"summary"`
	Languages   map[string]int64 `json:"languages"`
	OpenIssues  int              `json:"openIssues"`
	Findings    []Finding        `json:"findings"`
	RiskScore   float64          `json:"riskScore"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

type Finding struct {
	Category    string  `json:"category"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Severity    string  `json:"severity"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"`
}

type Repository struct {
	FullName      string    `json:"fullName"`
	Name          string    `json:"name"`
	Owner         string    `json:"owner"`
	Description   string    `json:"description,omitempty"`
	Private       bool      `json:"private"`
	DefaultBranch string    `json:"defaultBranch"`
	Language      string    `json:"language,omitempty"`
	OpenIssues    int       `json:"openIssues"`
	Stars         int       `json:"stars"`
	PushedAt      time.Time `json:"pushedAt"`
	URL           string    `json:"url"`
}

type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	Labels    []string  `json:"labels"`
	CreatedAt time.Time `json:"createdAt"`
}
