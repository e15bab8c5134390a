package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"campaignsmith/internal/generate"
	"campaignsmith/internal/handoff"
	"campaignsmith/internal/logging"
	"campaignsmith/internal/quality"
	"campaignsmith/internal/workspace"
)

// Orchestrator drives one campaign through the fixed stage sequence. One
// orchestrator serves one run at a time; Run returns an error if a run is
// already in flight.
type Orchestrator struct {
	mu       sync.Mutex
	ws       workspace.Store
	broker   *handoff.Broker
	gate     *quality.Gate
	renderer Renderer
	stages   []Stage
	events   chan Event
	campaign *Campaign
	running  bool
}

// Config wires an orchestrator's collaborators.
type Config struct {
	Workspace workspace.Store
	Broker    *handoff.Broker
	Gate      *quality.Gate
	Renderer  Renderer
	Stages    []Stage // defaults to the standard five when empty
	// EventBuffer sizes the event channel. Events are dropped, never
	// blocked on, when the consumer falls behind.
	EventBuffer int
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	buf := cfg.EventBuffer
	if buf <= 0 {
		buf = 64
	}
	return &Orchestrator{
		ws:       cfg.Workspace,
		broker:   cfg.Broker,
		gate:     cfg.Gate,
		renderer: cfg.Renderer,
		stages:   cfg.Stages,
		events:   make(chan Event, buf),
	}
}

// Events returns the event stream for UI or log consumers.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// Campaign returns a snapshot of the active (or last) campaign.
func (o *Orchestrator) Campaign() *Campaign {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.campaign == nil {
		return nil
	}
	snap := *o.campaign
	snap.Stages = make(map[string]StageStatus, len(o.campaign.Stages))
	for k, v := range o.campaign.Stages {
		snap.Stages[k] = v
	}
	return &snap
}

// Run executes the campaign end to end. Cancellation is coarse: the current
// stage finishes or hard-fails, and the check happens between stages.
func (o *Orchestrator) Run(ctx context.Context, c *Campaign) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("a campaign run is already in progress")
	}
	o.running = true
	o.campaign = c
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	c.Status = StatusRunning
	if err := o.save(c); err != nil {
		return err
	}
	logging.Pipeline("campaign %s started: %s", c.ID, c.Brief)

	for i, stage := range o.stages {
		if err := ctx.Err(); err != nil {
			return o.fail(c, stage.Name(), fmt.Errorf("run aborted before stage %s: %w", stage.Name(), err))
		}

		timer := logging.StartTimer(logging.CategoryPipeline, "stage "+stage.Name())
		o.setStage(c, stage.Name(), StageRunning)
		o.emit("stage_started", c, stage.Name(), fmt.Sprintf("stage %s started", stage.Name()), nil)

		proposed, err := stage.Run(ctx, c, o.ws)
		if err != nil {
			timer.Stop()
			return o.fail(c, stage.Name(), fmt.Errorf("stage %s: %w", stage.Name(), err))
		}

		if i < len(o.stages)-1 {
			next := o.stages[i+1]
			o.setStage(c, stage.Name(), StageHandoffPending)
			o.emit("handoff_pending", c, stage.Name(), fmt.Sprintf("handing off %s -> %s", stage.Name(), next.Name()), nil)

			art, err := o.broker.Create(stage.Name(), next.Name(), handoff.CampaignRef{ID: c.ID, Path: c.Root}, proposed)
			if err != nil {
				timer.Stop()
				return o.fail(c, stage.Name(), fmt.Errorf("handoff %s -> %s: %w", stage.Name(), next.Name(), err))
			}
			o.emit("handoff_created", c, stage.Name(), fmt.Sprintf("handoff %s -> %s at %d%% completion", stage.Name(), next.Name(), art.Deliverables.DataQualityMetrics.CompletionRate), art.TraceID)
		}

		o.setStage(c, stage.Name(), StageComplete)
		timer.Stop()
		o.emit("stage_completed", c, stage.Name(), fmt.Sprintf("stage %s completed", stage.Name()), nil)
		if err := o.save(c); err != nil {
			return err
		}
	}

	deliverable, err := o.assembleDeliverable(ctx, c)
	if err != nil {
		return o.fail(c, StageDelivery, fmt.Errorf("assembling deliverable: %w", err))
	}
	report, err := o.gate.Evaluate(ctx, deliverable)
	if err != nil {
		return o.fail(c, StageDelivery, fmt.Errorf("quality gate: %w", err))
	}
	if !report.DeploymentReady {
		c.Status = StatusQualityBlocked
		if err := o.save(c); err != nil {
			return err
		}
		blocked := &QualityBlockedError{Report: report}
		logging.PipelineError("campaign %s blocked: %v", c.ID, blocked)
		o.emit("quality_blocked", c, StageQuality, blocked.Error(), report.OverallScore)
		return blocked
	}

	c.Status = StatusDelivered
	if err := o.save(c); err != nil {
		return err
	}
	logging.Pipeline("campaign %s delivered (score %.1f)", c.ID, report.OverallScore)
	o.emit("campaign_delivered", c, StageDelivery, fmt.Sprintf("campaign %s delivered", c.ID), report.OverallScore)
	return nil
}

// assembleDeliverable gathers the content and design artifacts, every
// handoff for this campaign, and the rendered markup into one unit for the
// gate.
func (o *Orchestrator) assembleDeliverable(ctx context.Context, c *Campaign) (*quality.Deliverable, error) {
	artifacts := make(map[string]any)
	for _, ns := range []string{workspace.NamespaceContent, workspace.NamespaceDesign} {
		names, err := o.ws.ListNamespace(ns)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			var v any
			if err := o.ws.ReadJSON(ns, name, &v); err != nil {
				return nil, err
			}
			artifacts[ns+"/"+name] = v
		}
	}

	handoffs, err := o.campaignHandoffs(c)
	if err != nil {
		return nil, err
	}

	markup := ""
	if o.renderer != nil {
		markup, err = o.renderer.Render(ctx, artifacts)
		if err != nil {
			return nil, fmt.Errorf("rendering deliverable: %w", err)
		}
	}

	return &quality.Deliverable{
		CampaignID: c.ID,
		Markup:     markup,
		Artifacts:  artifacts,
		Handoffs:   handoffs,
	}, nil
}

func (o *Orchestrator) campaignHandoffs(c *Campaign) ([]quality.HandoffSummary, error) {
	names, err := o.ws.ListNamespace(workspace.NamespaceHandoffs)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	var summaries []quality.HandoffSummary
	for _, name := range names {
		if !strings.HasPrefix(name, "handoff_"+c.ID+"_") {
			continue
		}
		var art handoff.Artifact
		if err := o.ws.ReadJSON(workspace.NamespaceHandoffs, name, &art); err != nil {
			return nil, err
		}
		summaries = append(summaries, quality.HandoffSummary{
			From:           art.FromSpecialist,
			To:             art.ToSpecialist,
			Status:         art.QualityMetadata.ValidationStatus,
			CompletionRate: art.Deliverables.DataQualityMetrics.CompletionRate,
		})
	}
	return summaries, nil
}

func (o *Orchestrator) setStage(c *Campaign, stage string, status StageStatus) {
	o.mu.Lock()
	c.Current = stage
	c.Stages[stage] = status
	o.mu.Unlock()
}

func (o *Orchestrator) fail(c *Campaign, stage string, err error) error {
	o.mu.Lock()
	c.Status = StatusFailed
	c.LastError = err.Error()
	if stage != "" {
		c.Stages[stage] = StageFailed
	}
	o.mu.Unlock()
	if saveErr := o.save(c); saveErr != nil {
		logging.PipelineError("saving failed campaign %s: %v", c.ID, saveErr)
	}
	logging.PipelineError("campaign %s failed at %s: %v", c.ID, stage, err)
	o.emit("campaign_failed", c, stage, err.Error(), nil)
	return err
}

// save persists the campaign record to the docs namespace.
func (o *Orchestrator) save(c *Campaign) error {
	return o.ws.WriteJSON(workspace.NamespaceDocs, CampaignKey(c.ID), c)
}

// CampaignKey is the docs-namespace name a campaign record is stored under.
func CampaignKey(id string) string { return "campaign_" + id }

// LoadCampaign reads a persisted campaign record.
func LoadCampaign(ws workspace.Store, id string) (*Campaign, error) {
	var c Campaign
	if err := ws.ReadJSON(workspace.NamespaceDocs, CampaignKey(id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// emit performs a non-blocking send so a slow or absent consumer never
// stalls the pipeline.
func (o *Orchestrator) emit(eventType string, c *Campaign, stage, message string, data any) {
	ev := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Stage:     stage,
		State:     c.State(),
		Message:   message,
		Data:      data,
	}
	select {
	case o.events <- ev:
	default:
		logging.PipelineDebug("event channel full, dropped %s", eventType)
	}
}

// DefaultStages builds the standard five-stage sequence over one shared
// generator.
func DefaultStages(gen *generate.Generator, quotes QuoteSource, assets AssetSource) []Stage {
	return []Stage{
		&DataCollectionStage{Gen: gen, Quotes: quotes},
		&ContentStage{Gen: gen},
		&DesignStage{Gen: gen, Assets: assets},
		&QualityStage{Gen: gen},
		&DeliveryStage{Gen: gen},
	}
}
