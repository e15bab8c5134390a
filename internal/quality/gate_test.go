package quality

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignsmith/internal/workspace"
)

func fixedPhase(result PhaseResult) PhaseFunc {
	return func(_ context.Context, _ *Deliverable) PhaseResult { return result }
}

func fixedPhases(scores map[string]float64, issues ...Issue) map[string]PhaseFunc {
	phases := make(map[string]PhaseFunc, len(scores))
	for name, s := range scores {
		result := PhaseResult{Passed: 1, Score: s}
		for _, issue := range issues {
			if issue.Phase == name {
				result.Issues = append(result.Issues, issue)
			}
		}
		phases[name] = fixedPhase(result)
	}
	return phases
}

var referenceScores = map[string]float64{
	PhaseFunctional:  95,
	PhasePerformance: 82,
	PhaseSecurity:    90,
	PhaseIntegration: 100,
	PhaseQuality:     96,
}

func TestEvaluateReferenceScores(t *testing.T) {
	gate := NewGateWithPhases(nil, fixedPhases(referenceScores))
	report, err := gate.Evaluate(context.Background(), &Deliverable{CampaignID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, 92.6, report.OverallScore)
	assert.True(t, report.DeploymentReady)
}

func TestCriticalIssueVetoesDeployment(t *testing.T) {
	critical := Issue{Phase: PhaseSecurity, Severity: SeverityCritical, Description: "credential leaked"}
	gate := NewGateWithPhases(nil, fixedPhases(referenceScores, critical))

	report, err := gate.Evaluate(context.Background(), &Deliverable{CampaignID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, 92.6, report.OverallScore, "scores are unchanged")
	assert.False(t, report.DeploymentReady, "a critical issue blocks deployment")
}

func TestFourOfFiveCriteria(t *testing.T) {
	// Security misses its 85 bar but everything else holds: 4 of 5.
	scores := map[string]float64{
		PhaseFunctional:  95,
		PhasePerformance: 85,
		PhaseSecurity:    80,
		PhaseIntegration: 100,
		PhaseQuality:     96,
	}
	gate := NewGateWithPhases(nil, fixedPhases(scores))
	report, err := gate.Evaluate(context.Background(), &Deliverable{CampaignID: "c1"})
	require.NoError(t, err)
	assert.True(t, report.DeploymentReady)

	// Two criteria miss: functional below 90 as well.
	scores[PhaseFunctional] = 70
	gate = NewGateWithPhases(nil, fixedPhases(scores))
	report, err = gate.Evaluate(context.Background(), &Deliverable{CampaignID: "c1"})
	require.NoError(t, err)
	assert.False(t, report.DeploymentReady)
}

// Evaluation must be invariant under phase execution order: repeated runs
// over identical phase outputs always reduce to the same report.
func TestEvaluateOrderInvariant(t *testing.T) {
	critical := Issue{Phase: PhaseIntegration, Severity: SeverityHigh, Description: "slow handoff"}
	gate := NewGateWithPhases(nil, fixedPhases(referenceScores, critical))

	first, err := gate.Evaluate(context.Background(), &Deliverable{CampaignID: "c1"})
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		next, err := gate.Evaluate(context.Background(), &Deliverable{CampaignID: "c1"})
		require.NoError(t, err)

		// Timestamps and wall-clock metrics differ run to run; everything
		// decision-bearing must not.
		assert.Equal(t, first.OverallScore, next.OverallScore)
		assert.Equal(t, first.DeploymentReady, next.DeploymentReady)
		if diff := cmp.Diff(first.Tests, next.Tests); diff != "" {
			t.Fatalf("tests differ between runs:\n%s", diff)
		}
		if diff := cmp.Diff(first.Issues, next.Issues); diff != "" {
			t.Fatalf("issue order differs between runs:\n%s", diff)
		}
		if diff := cmp.Diff(first.Recommendations, next.Recommendations); diff != "" {
			t.Fatalf("recommendations differ between runs:\n%s", diff)
		}
	}
}

func TestPanickingPhaseScoresZeroWithoutAbortingSiblings(t *testing.T) {
	phases := fixedPhases(referenceScores)
	phases[PhaseSecurity] = func(_ context.Context, _ *Deliverable) PhaseResult {
		panic("nil dereference in scanner")
	}
	gate := NewGateWithPhases(nil, phases)

	report, err := gate.Evaluate(context.Background(), &Deliverable{CampaignID: "c1"})
	require.NoError(t, err)

	assert.Equal(t, float64(0), report.Tests[PhaseSecurity].Score)
	assert.Equal(t, 1, report.CriticalCount())
	assert.False(t, report.DeploymentReady)
	// Siblings still scored.
	assert.Equal(t, float64(95), report.Tests[PhaseFunctional].Score)
	assert.Equal(t, float64(100), report.Tests[PhaseIntegration].Score)
}

func TestRecommendationsForBelowThresholdPhases(t *testing.T) {
	scores := map[string]float64{
		PhaseFunctional:  95,
		PhasePerformance: 60, // below 80
		PhaseSecurity:    90,
		PhaseIntegration: 75, // below 80
		PhaseQuality:     96,
	}
	gate := NewGateWithPhases(nil, fixedPhases(scores))
	report, err := gate.Evaluate(context.Background(), &Deliverable{CampaignID: "c1"})
	require.NoError(t, err)

	require.Len(t, report.Recommendations, 2)
	assert.Equal(t, PhasePerformance, report.Recommendations[0].Category)
	assert.Equal(t, "medium", report.Recommendations[0].Priority)
	assert.Equal(t, PhaseIntegration, report.Recommendations[1].Category)
	assert.Equal(t, "low", report.Recommendations[1].Priority)
}

func TestEvaluatePersistsReport(t *testing.T) {
	ws, err := workspace.NewDirStore(t.TempDir())
	require.NoError(t, err)

	gate := NewGateWithPhases(ws, fixedPhases(referenceScores))
	report, err := gate.Evaluate(context.Background(), &Deliverable{CampaignID: "c1"})
	require.NoError(t, err)

	names, err := ws.ListNamespace(workspace.NamespaceReports)
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.True(t, strings.HasPrefix(names[0], "qa-report-"))

	var stored Report
	require.NoError(t, ws.ReadJSON(workspace.NamespaceReports, ReportKey(report.Timestamp), &stored))
	assert.Equal(t, report.OverallScore, stored.OverallScore)
	assert.Equal(t, report.DeploymentReady, stored.DeploymentReady)
}

func TestDefaultPhasesOnCleanDeliverable(t *testing.T) {
	d := &Deliverable{
		CampaignID: "c1",
		Markup:     strings.Repeat("<p>Visit Paris this summer and save.</p>\n", 8),
		Artifacts: map[string]any{
			"content/headline": "Seven days in Paris for less than you think, booked in one click",
			"content/body":     strings.Repeat("Paris rewards slow mornings. ", 10),
			"design/brief":     map[string]any{"palette": "warm", "hero": "eiffel-dusk"},
		},
		Handoffs: []HandoffSummary{
			{From: "data-collection", To: "content", Status: "passed", CompletionRate: 86},
			{From: "content", To: "design", Status: "passed", CompletionRate: 100},
		},
	}

	gate := NewGate(nil)
	report, err := gate.Evaluate(context.Background(), d)
	require.NoError(t, err)

	assert.True(t, report.DeploymentReady, "clean deliverable should pass: %+v", report)
	assert.Zero(t, report.CriticalCount())
}

func TestSecurityPhaseFlagsScript(t *testing.T) {
	d := &Deliverable{
		CampaignID: "c1",
		Markup:     `<p>ok</p><script>alert(1)</script>` + strings.Repeat(" pad", 20),
		Artifacts:  map[string]any{"content/x": "long enough artifact body for the quality phase"},
		Handoffs:   []HandoffSummary{{From: "a", To: "b", Status: "passed", CompletionRate: 100}},
	}
	gate := NewGate(nil)
	report, err := gate.Evaluate(context.Background(), d)
	require.NoError(t, err)

	assert.False(t, report.DeploymentReady)
	assert.GreaterOrEqual(t, report.CriticalCount(), 1)
}
