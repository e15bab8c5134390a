package quality

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"campaignsmith/internal/logging"
	"campaignsmith/internal/workspace"
)

// HandoffSummary is the slice of a handoff the gate cares about.
type HandoffSummary struct {
	From           string
	To             string
	Status         string
	CompletionRate int
}

// Deliverable is the accumulated campaign output under evaluation.
type Deliverable struct {
	CampaignID string
	Markup     string           // rendered output from the renderer collaborator
	Artifacts  map[string]any   // content and design artifacts by name
	Handoffs   []HandoffSummary // one per stage boundary
}

// PhaseFunc scores one aspect of the deliverable. Phases are pure functions
// of the deliverable and may run concurrently.
type PhaseFunc func(ctx context.Context, d *Deliverable) PhaseResult

// Gate evaluates deliverables and persists one report per evaluation.
type Gate struct {
	ws     workspace.Store
	phases map[string]PhaseFunc
}

// NewGate creates a gate with the standard five phases.
func NewGate(ws workspace.Store) *Gate {
	return NewGateWithPhases(ws, map[string]PhaseFunc{
		PhaseFunctional:  functionalPhase,
		PhasePerformance: performancePhase,
		PhaseSecurity:    securityPhase,
		PhaseIntegration: integrationPhase,
		PhaseQuality:     qualityPhase,
	})
}

// NewGateWithPhases creates a gate with custom phase functions. Used by
// tests to pin phase outputs.
func NewGateWithPhases(ws workspace.Store, phases map[string]PhaseFunc) *Gate {
	return &Gate{ws: ws, phases: phases}
}

// Evaluate runs every phase concurrently, reduces the results in canonical
// phase order, decides deployment readiness, and persists the report at
// reports/qa-report-{unixMillis}.
func (g *Gate) Evaluate(ctx context.Context, d *Deliverable) (*Report, error) {
	start := time.Now()

	results := make(map[string]PhaseResult, len(g.phases))
	var mu sync.Mutex

	eg, phaseCtx := errgroup.WithContext(ctx)
	for name, phase := range g.phases {
		eg.Go(func() error {
			result := runPhase(phaseCtx, name, phase, d)
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	report := reduce(results)
	report.Timestamp = time.Now().UnixMilli()
	report.Metrics["evaluation_ms"] = float64(time.Since(start).Milliseconds())

	if g.ws != nil {
		key := ReportKey(report.Timestamp)
		if err := g.ws.WriteJSON(workspace.NamespaceReports, key, report); err != nil {
			return nil, err
		}
		logging.Quality("persisted %s (overall=%.1f ready=%v)", key, report.OverallScore, report.DeploymentReady)
	}
	return report, nil
}

// runPhase executes one phase, converting a panic into a zero score plus a
// single critical issue so sibling phases are never aborted.
func runPhase(ctx context.Context, name string, phase PhaseFunc, d *Deliverable) (result PhaseResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.Quality("phase %s panicked: %v", name, r)
			result = PhaseResult{
				Passed: 0,
				Failed: 1,
				Score:  0,
				Issues: []Issue{{
					Phase:       name,
					Severity:    SeverityCritical,
					Description: fmt.Sprintf("phase %s aborted internally: %v", name, r),
				}},
			}
		}
	}()
	return phase(ctx, d)
}

// reduce folds per-phase results into a report. Iteration follows the
// canonical phase order so the report is identical regardless of which
// phase finished first.
func reduce(results map[string]PhaseResult) *Report {
	report := &Report{
		Tests:           make(map[string]PhaseResult, len(results)),
		Metrics:         make(map[string]float64),
		Recommendations: []Recommendation{},
		Issues:          []Issue{},
	}

	var sum float64
	var count int
	for _, name := range PhaseNames() {
		result, ok := results[name]
		if !ok {
			continue
		}
		result.Issues = nil // issues are carried at report level
		report.Tests[name] = result

		full := results[name]
		sum += full.Score
		count++
		report.Issues = append(report.Issues, full.Issues...)

		if threshold := passThresholds[name]; full.Score < threshold {
			report.Recommendations = append(report.Recommendations, Recommendation{
				Category:    name,
				Priority:    priorityFor(threshold - full.Score),
				Title:       fmt.Sprintf("Raise %s score above %.0f", name, threshold),
				Description: fmt.Sprintf("The %s phase scored %.1f, below its pass threshold of %.0f.", name, full.Score, threshold),
			})
		}
	}

	if count > 0 {
		// Unweighted mean over whatever phases ran.
		report.OverallScore = math.Round(sum/float64(count)*10) / 10
	}
	report.Metrics["phases"] = float64(count)
	report.Metrics["critical_issues"] = float64(report.CriticalCount())

	report.DeploymentReady = decideReadiness(report)
	return report
}

// decideReadiness applies the deployment criteria: a critical issue is a
// hard veto, and at least four of the five readiness criteria must hold.
func decideReadiness(r *Report) bool {
	critical := r.CriticalCount()
	if critical > 0 {
		return false
	}

	criteria := []bool{
		r.OverallScore >= 85,
		critical == 0,
		r.Tests[PhaseFunctional].Score >= 90,
		r.Tests[PhasePerformance].Score >= 80,
		r.Tests[PhaseSecurity].Score >= 85,
	}
	met := 0
	for _, ok := range criteria {
		if ok {
			met++
		}
	}
	return met >= 4
}

func priorityFor(gap float64) string {
	switch {
	case gap >= 25:
		return "high"
	case gap >= 10:
		return "medium"
	default:
		return "low"
	}
}
