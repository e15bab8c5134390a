package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"campaignsmith/internal/generate"
	"campaignsmith/internal/handoff"
	"campaignsmith/internal/logging"
	"campaignsmith/internal/workspace"
)

// Stage runs one specialist over the shared workspace and returns the
// artifacts it proposes for the outgoing handoff, keyed canonically.
type Stage interface {
	Name() string
	Run(ctx context.Context, c *Campaign, ws workspace.Store) (map[string]any, error)
}

// artifactSpec describes one generated artifact: where it lands, what the
// specialist is asked for, and which fields the result must carry.
type artifactSpec struct {
	name      string
	namespace string
	prompt    string
	required  []string
}

// requireFields rejects results missing any of the named top-level fields.
// The error text deliberately leads with "missing required field" so the
// retry loop classifies it as MISSING_FIELD.
func requireFields(fields ...string) generate.ValidateFunc[map[string]any] {
	return func(m map[string]any) error {
		if len(m) == 0 {
			return fmt.Errorf("missing required field: result object is empty")
		}
		for _, f := range fields {
			if _, ok := m[f]; !ok {
				return fmt.Errorf("missing required field: %s", f)
			}
		}
		return nil
	}
}

// runSpecs generates each artifact in order, persists it, and accumulates
// the proposed handoff payload. A single exhausted generation fails the
// whole stage; partial output stays in the workspace for reconstruction.
func runSpecs(ctx context.Context, gen *generate.Generator, c *Campaign, ws workspace.Store, specs []artifactSpec) (map[string]any, error) {
	proposed := make(map[string]any, len(specs))
	for _, spec := range specs {
		result, err := generate.Run(ctx, gen, spec.prompt, requireFields(spec.required...))
		if err != nil {
			return proposed, fmt.Errorf("artifact %s: %w", spec.name, err)
		}
		if err := ws.WriteJSON(spec.namespace, spec.name, result); err != nil {
			return proposed, err
		}
		proposed[handoff.CanonicalKey(spec.name)] = result
	}
	return proposed, nil
}

// loadIncoming reads the handoff artifact addressed to this stage. Upstream
// context is advisory: a missing handoff degrades the prompts, it does not
// block the stage.
func loadIncoming(ws workspace.Store, c *Campaign, from, to string) *handoff.Artifact {
	var art handoff.Artifact
	if err := ws.ReadJSON(workspace.NamespaceHandoffs, handoff.Key(c.ID, from, to), &art); err != nil {
		logging.PipelineWarn("stage %s: no incoming handoff from %s: %v", to, from, err)
		return nil
	}
	return &art
}

func upstreamContext(art *handoff.Artifact) string {
	if art == nil {
		return "No upstream context is available; work from the brief alone."
	}
	var sb strings.Builder
	sb.WriteString("Upstream summary: ")
	sb.WriteString(art.HandoffContext.Summary)
	if art.HandoffContext.ContextForNext != "" {
		sb.WriteString("\nGuidance: ")
		sb.WriteString(art.HandoffContext.ContextForNext)
	}
	keys := make([]string, 0, len(art.SpecialistData))
	for k := range art.SpecialistData {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		sb.WriteString("\nAvailable upstream artifacts: ")
		sb.WriteString(strings.Join(keys, ", "))
	}
	return sb.String()
}

// --- data collection ---

// DataCollectionStage produces the seven research artifacts the rest of the
// pipeline builds on.
type DataCollectionStage struct {
	Gen    *generate.Generator
	Quotes QuoteSource
}

func (s *DataCollectionStage) Name() string { return StageDataCollection }

func (s *DataCollectionStage) Run(ctx context.Context, c *Campaign, ws workspace.Store) (map[string]any, error) {
	briefLine := fmt.Sprintf("Campaign brief: %s\nRespond with a single JSON object only.", c.Brief)
	specs := []artifactSpec{
		{
			name: "destination-analysis", namespace: workspace.NamespaceData,
			prompt:   briefLine + "\nAnalyze the destination: positioning, travel seasons, signature attractions, and traveler sentiment. Required fields: destination, highlights, positioning.",
			required: []string{"destination", "highlights", "positioning"},
		},
		{
			name: "audience-insights", namespace: workspace.NamespaceData,
			prompt:   briefLine + "\nProfile the target audience: segments, motivations, booking behavior, objections. Required fields: segments, motivations.",
			required: []string{"segments", "motivations"},
		},
		{
			name: "pricing", namespace: workspace.NamespaceData,
			prompt:   briefLine + "\nEstimate pricing: typical fare range, value framing, urgency angle. Required fields: route, month, fare_range.",
			required: []string{"route", "month", "fare_range"},
		},
		{
			name: "seasonal-trends", namespace: workspace.NamespaceData,
			prompt:   briefLine + "\nDescribe seasonal demand trends relevant to the campaign window. Required fields: peak_months, trend_summary.",
			required: []string{"peak_months", "trend_summary"},
		},
		{
			name: "competitor-scan", namespace: workspace.NamespaceData,
			prompt:   briefLine + "\nScan competing offers: who is promoting this route or destination and with what angle. Required fields: competitors, differentiation.",
			required: []string{"competitors", "differentiation"},
		},
		{
			name: "keyword-set", namespace: workspace.NamespaceData,
			prompt:   briefLine + "\nPropose search and social keywords for the campaign. Required fields: primary_keywords, secondary_keywords.",
			required: []string{"primary_keywords", "secondary_keywords"},
		},
		{
			name: "brief-digest", namespace: workspace.NamespaceData,
			prompt:   briefLine + "\nDistill the brief into a structured digest: objective, audience, offer, constraints, tone. Required fields: objective, audience, tone.",
			required: []string{"objective", "audience", "tone"},
		},
	}

	proposed, err := runSpecs(ctx, s.Gen, c, ws, specs)
	if err != nil {
		return proposed, err
	}

	s.attachQuotes(ctx, ws, proposed)
	return proposed, nil
}

// attachQuotes enriches the generated pricing estimate with observed fares.
// Quote failures degrade the artifact, they never fail the stage.
func (s *DataCollectionStage) attachQuotes(ctx context.Context, ws workspace.Store, proposed map[string]any) {
	if s.Quotes == nil {
		return
	}
	pricing, ok := proposed["pricing"].(map[string]any)
	if !ok {
		return
	}
	route, _ := pricing["route"].(string)
	month, _ := pricing["month"].(string)
	records, err := s.Quotes.Quotes(ctx, route, month)
	if err != nil {
		logging.PipelineWarn("quote source failed for %s/%s: %v", route, month, err)
		return
	}
	pricing["observed_quotes"] = records
	pricing["observed_quote_count"] = len(records)
	if err := ws.WriteJSON(workspace.NamespaceData, "pricing", pricing); err != nil {
		logging.PipelineWarn("persisting enriched pricing failed: %v", err)
	}
}

// --- content ---

// ContentStage writes the five copy artifacts.
type ContentStage struct {
	Gen *generate.Generator
}

func (s *ContentStage) Name() string { return StageContent }

func (s *ContentStage) Run(ctx context.Context, c *Campaign, ws workspace.Store) (map[string]any, error) {
	incoming := loadIncoming(ws, c, StageDataCollection, StageContent)
	header := fmt.Sprintf("Campaign brief: %s\n%s\nRespond with a single JSON object only.", c.Brief, upstreamContext(incoming))
	specs := []artifactSpec{
		{
			name: "headline", namespace: workspace.NamespaceContent,
			prompt:   header + "\nWrite the campaign headline with two alternates. Required fields: headline, alternates.",
			required: []string{"headline", "alternates"},
		},
		{
			name: "subject-line", namespace: workspace.NamespaceContent,
			prompt:   header + "\nWrite the email subject line and preview text. Required fields: subject, preview.",
			required: []string{"subject", "preview"},
		},
		{
			name: "body", namespace: workspace.NamespaceContent,
			prompt:   header + "\nWrite the main body copy in sections. Required fields: sections.",
			required: []string{"sections"},
		},
		{
			name: "call-to-action", namespace: workspace.NamespaceContent,
			prompt:   header + "\nWrite the call to action: label, urgency framing, supporting line. Required fields: label, supporting_line.",
			required: []string{"label", "supporting_line"},
		},
		{
			name: "social-posts", namespace: workspace.NamespaceContent,
			prompt:   header + "\nWrite three social posts adapted per platform. Required fields: posts.",
			required: []string{"posts"},
		},
	}
	return runSpecs(ctx, s.Gen, c, ws, specs)
}

// --- design ---

// DesignStage writes the four design artifacts and resolves the hero asset.
type DesignStage struct {
	Gen    *generate.Generator
	Assets AssetSource
}

func (s *DesignStage) Name() string { return StageDesign }

func (s *DesignStage) Run(ctx context.Context, c *Campaign, ws workspace.Store) (map[string]any, error) {
	incoming := loadIncoming(ws, c, StageContent, StageDesign)
	header := fmt.Sprintf("Campaign brief: %s\n%s\nRespond with a single JSON object only.", c.Brief, upstreamContext(incoming))
	specs := []artifactSpec{
		{
			name: "design-brief", namespace: workspace.NamespaceDesign,
			prompt:   header + "\nWrite the design brief: visual direction, mood, imagery guidance, and an asset_query describing the ideal hero image. Required fields: visual_direction, asset_query.",
			required: []string{"visual_direction", "asset_query"},
		},
		{
			name: "palette", namespace: workspace.NamespaceDesign,
			prompt:   header + "\nDefine the color palette with hex values and usage notes. Required fields: colors.",
			required: []string{"colors"},
		},
		{
			name: "layout", namespace: workspace.NamespaceDesign,
			prompt:   header + "\nDefine the layout: section order, hierarchy, responsive notes. Required fields: sections.",
			required: []string{"sections"},
		},
	}
	proposed, err := runSpecs(ctx, s.Gen, c, ws, specs)
	if err != nil {
		return proposed, err
	}

	hero := s.resolveHero(ctx, proposed)
	if err := ws.WriteJSON(workspace.NamespaceDesign, "hero-asset", hero); err != nil {
		return proposed, err
	}
	proposed[handoff.CanonicalKey("hero-asset")] = hero
	return proposed, nil
}

// resolveHero looks up a real asset matching the design brief's query. With
// no source or a lookup failure the artifact records a placeholder so the
// deliverable remains renderable.
func (s *DesignStage) resolveHero(ctx context.Context, proposed map[string]any) map[string]any {
	query := "campaign hero image"
	if brief, ok := proposed[handoff.CanonicalKey("design-brief")].(map[string]any); ok {
		if q, ok := brief["asset_query"].(string); ok && q != "" {
			query = q
		}
	}
	if s.Assets != nil {
		ref, err := s.Assets.FindAsset(ctx, query)
		if err == nil {
			return map[string]any{"query": query, "asset": ref, "placeholder": false}
		}
		logging.PipelineWarn("asset lookup failed for %q: %v", query, err)
	}
	return map[string]any{"query": query, "placeholder": true}
}

// --- quality docs ---

// QualityStage writes the review documentation. The enforcement itself
// happens in the terminal gate; this stage prepares the human-facing record.
type QualityStage struct {
	Gen *generate.Generator
}

func (s *QualityStage) Name() string { return StageQuality }

func (s *QualityStage) Run(ctx context.Context, c *Campaign, ws workspace.Store) (map[string]any, error) {
	incoming := loadIncoming(ws, c, StageDesign, StageQuality)
	header := fmt.Sprintf("Campaign brief: %s\n%s\nRespond with a single JSON object only.", c.Brief, upstreamContext(incoming))
	specs := []artifactSpec{
		{
			name: "qa-summary", namespace: workspace.NamespaceDocs,
			prompt:   header + "\nSummarize review findings across the campaign artifacts. Required fields: findings, overall_assessment.",
			required: []string{"findings", "overall_assessment"},
		},
		{
			name: "compliance-checklist", namespace: workspace.NamespaceDocs,
			prompt:   header + "\nProduce a brand and legal compliance checklist with pass/fail per item. Required fields: items.",
			required: []string{"items"},
		},
		{
			name: "revision-notes", namespace: workspace.NamespaceDocs,
			prompt:   header + "\nList concrete revision notes for any weak artifact, or an empty list if none. Required fields: notes.",
			required: []string{"notes"},
		},
	}
	return runSpecs(ctx, s.Gen, c, ws, specs)
}

// --- delivery ---

// DeliveryStage writes the final manifest tying every artifact together.
type DeliveryStage struct {
	Gen *generate.Generator
}

func (s *DeliveryStage) Name() string { return StageDelivery }

func (s *DeliveryStage) Run(ctx context.Context, c *Campaign, ws workspace.Store) (map[string]any, error) {
	incoming := loadIncoming(ws, c, StageQuality, StageDelivery)
	header := fmt.Sprintf("Campaign brief: %s\n%s\nRespond with a single JSON object only.", c.Brief, upstreamContext(incoming))
	specs := []artifactSpec{
		{
			name: "manifest", namespace: workspace.NamespaceDocs,
			prompt:   header + "\nWrite the delivery manifest: channels, launch checklist, owner notes. Required fields: channels, launch_checklist.",
			required: []string{"channels", "launch_checklist"},
		},
	}
	return runSpecs(ctx, s.Gen, c, ws, specs)
}
