package quality

import (
	"context"
	"fmt"
	"strings"
)

// check is one named assertion inside a phase.
type check struct {
	ok       bool
	severity string
	problem  string
}

// score folds checks into a PhaseResult. Score is the passing fraction.
func score(phase string, checks []check) PhaseResult {
	result := PhaseResult{}
	for _, c := range checks {
		if c.ok {
			result.Passed++
			continue
		}
		result.Failed++
		result.Issues = append(result.Issues, Issue{
			Phase:       phase,
			Severity:    c.severity,
			Description: c.problem,
		})
	}
	total := result.Passed + result.Failed
	if total > 0 {
		result.Score = float64(result.Passed) / float64(total) * 100
	}
	return result
}

// functionalPhase verifies the deliverable actually renders something and
// that the stages all contributed output.
func functionalPhase(_ context.Context, d *Deliverable) PhaseResult {
	hasContent := false
	hasDesign := false
	for name := range d.Artifacts {
		switch {
		case strings.HasPrefix(name, "content/"):
			hasContent = true
		case strings.HasPrefix(name, "design/"):
			hasDesign = true
		}
	}

	checks := []check{
		{d.CampaignID != "", SeverityCritical, "deliverable has no campaign id"},
		{strings.TrimSpace(d.Markup) != "", SeverityCritical, "rendered markup is empty"},
		{len(d.Artifacts) > 0, SeverityHigh, "no artifacts were produced"},
		{hasContent, SeverityHigh, "no content artifacts present"},
		{hasDesign, SeverityMedium, "no design artifacts present"},
	}
	return score(PhaseFunctional, checks)
}

// performancePhase checks the deliverable stays inside sane size bounds.
func performancePhase(_ context.Context, d *Deliverable) PhaseResult {
	const (
		maxMarkupBytes = 512 * 1024
		maxArtifacts   = 64
	)
	checks := []check{
		{len(d.Markup) <= maxMarkupBytes, SeverityHigh,
			fmt.Sprintf("rendered markup is %d bytes, above the %d byte budget", len(d.Markup), maxMarkupBytes)},
		{len(d.Artifacts) <= maxArtifacts, SeverityMedium,
			fmt.Sprintf("%d artifacts exceeds the %d artifact budget", len(d.Artifacts), maxArtifacts)},
		{len(d.Markup) >= 64, SeverityMedium, "rendered markup is suspiciously small"},
	}
	return score(PhasePerformance, checks)
}

// securityPhase scans the rendered markup for active content and leaked
// credentials.
func securityPhase(_ context.Context, d *Deliverable) PhaseResult {
	lower := strings.ToLower(d.Markup)
	checks := []check{
		{!strings.Contains(lower, "<script"), SeverityCritical, "rendered markup embeds a script tag"},
		{!strings.Contains(lower, "javascript:"), SeverityCritical, "rendered markup embeds a javascript: URL"},
		{!strings.Contains(lower, "onerror="), SeverityHigh, "rendered markup embeds an inline event handler"},
		{!strings.Contains(lower, "api_key") && !strings.Contains(lower, "sk-"), SeverityCritical,
			"rendered markup appears to leak a credential"},
	}
	return score(PhaseSecurity, checks)
}

// integrationPhase verifies every stage boundary produced a usable handoff.
func integrationPhase(_ context.Context, d *Deliverable) PhaseResult {
	checks := []check{
		{len(d.Handoffs) > 0, SeverityHigh, "no handoffs recorded for the campaign"},
	}
	for _, h := range d.Handoffs {
		checks = append(checks, check{
			h.Status != "failed", SeverityHigh,
			fmt.Sprintf("handoff %s->%s failed validation", h.From, h.To),
		})
		checks = append(checks, check{
			h.CompletionRate >= 50, SeverityMedium,
			fmt.Sprintf("handoff %s->%s completion rate %d is below 50", h.From, h.To, h.CompletionRate),
		})
	}
	return score(PhaseIntegration, checks)
}

// qualityPhase applies content-quality heuristics to the artifacts.
func qualityPhase(_ context.Context, d *Deliverable) PhaseResult {
	degraded := 0
	for _, h := range d.Handoffs {
		if h.Status == "degraded" {
			degraded++
		}
	}

	substantive := 0
	for _, v := range d.Artifacts {
		switch val := v.(type) {
		case string:
			if len(strings.TrimSpace(val)) >= 40 {
				substantive++
			}
		case map[string]any:
			if len(val) > 0 {
				substantive++
			}
		default:
			substantive++
		}
	}

	checks := []check{
		{degraded == 0, SeverityMedium, fmt.Sprintf("%d handoffs were degraded", degraded)},
		{substantive == len(d.Artifacts), SeverityMedium, "some artifacts are hollow or near-empty"},
		{len(d.Artifacts) >= 3, SeverityLow, "deliverable carries very few artifacts"},
	}
	return score(PhaseQuality, checks)
}
