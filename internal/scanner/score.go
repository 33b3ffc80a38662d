package scanner

import "github.com/synjan/qascan/pkg/models"

var severityWeights = map[string]float64{
	"critical": 10.0,
	"high":     7.5,
	"medium":   5.0,
	"low":      2.5,
	"info":     1.0,
}

// scoreFindings averages severity weights into a 0..10 risk score.
func scoreFindings(findings []models.Finding) float64 {
	if len(findings) == 0 {
		return 0.0
	}

	total := 0.0
	for _, finding := range findings {
		if weight, ok := severityWeights[finding.Severity]; ok {
			total += weight
		}
	}

	avg := total / float64(len(findings))
	if avg > 10.0 {
		return 10.0
	}
	return avg
}
