// Package quality implements the terminal quality gate: five independent
// scoring phases over the assembled deliverable, an unweighted overall
// score, and the deployment-readiness decision that blocks delivery.
package quality

import "fmt"

// Phase names. Evaluation runs all five; they have no ordering dependency.
const (
	PhaseFunctional  = "functional"
	PhasePerformance = "performance"
	PhaseSecurity    = "security"
	PhaseIntegration = "integration"
	PhaseQuality     = "quality"
)

// PhaseNames returns the canonical phase order used for deterministic
// aggregation. Execution order is unconstrained; reduction order is not.
func PhaseNames() []string {
	return []string{PhaseFunctional, PhasePerformance, PhaseSecurity, PhaseIntegration, PhaseQuality}
}

// Pass threshold per phase. A phase below its threshold emits one
// recommendation.
var passThresholds = map[string]float64{
	PhaseFunctional:  90,
	PhasePerformance: 80,
	PhaseSecurity:    85,
	PhaseIntegration: 80,
	PhaseQuality:     85,
}

// Issue severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Issue is one problem found during evaluation.
type Issue struct {
	Phase       string `json:"phase"`
	Severity    string `json:"severity"` // low | medium | high | critical
	Description string `json:"description"`
}

// Recommendation suggests a followup for a phase that scored below its
// threshold.
type Recommendation struct {
	Category    string `json:"category"`
	Priority    string `json:"priority"` // low | medium | high
	Title       string `json:"title"`
	Description string `json:"description"`
}

// PhaseResult is the outcome of one phase: check counts plus a 0-100 score.
type PhaseResult struct {
	Passed int     `json:"passed"`
	Failed int     `json:"failed"`
	Score  float64 `json:"score"`
	Issues []Issue `json:"-"`
}

// Report is the persisted, append-only record of one evaluation.
type Report struct {
	Timestamp       int64                  `json:"timestamp"` // Unix milliseconds
	OverallScore    float64                `json:"overall_score"`
	Tests           map[string]PhaseResult `json:"tests"`
	Metrics         map[string]float64     `json:"metrics"`
	Recommendations []Recommendation       `json:"recommendations"`
	Issues          []Issue                `json:"issues"`
	DeploymentReady bool                   `json:"deployment_ready"`
}

// CriticalCount returns the number of critical issues in the report.
func (r *Report) CriticalCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// ReportKey returns the workspace artifact name for a report taken at the
// given Unix-millisecond timestamp.
func ReportKey(unixMillis int64) string {
	return fmt.Sprintf("qa-report-%d", unixMillis)
}
