package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaignsmith/internal/generate"
	"campaignsmith/internal/handoff"
	"campaignsmith/internal/quality"
	"campaignsmith/internal/workspace"
)

// autoClient answers every prompt with a JSON object carrying exactly the
// fields the prompt's "Required fields:" line asks for.
type autoClient struct {
	mu    sync.Mutex
	calls int
}

func (c *autoClient) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	m := make(map[string]any)
	for _, f := range requiredFieldsFrom(prompt) {
		m[f] = "generated " + f
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return "```json\n" + string(b) + "\n```", nil
}

func requiredFieldsFrom(prompt string) []string {
	const marker = "Required fields:"
	idx := strings.LastIndex(prompt, marker)
	if idx < 0 {
		return []string{"summary"}
	}
	rest := prompt[idx+len(marker):]
	if end := strings.IndexByte(rest, '.'); end >= 0 {
		rest = rest[:end]
	}
	var fields []string
	for _, f := range strings.Split(rest, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// garbageClient never produces parseable output.
type garbageClient struct{}

func (garbageClient) Complete(context.Context, string) (string, error) {
	return "this is not structured output", nil
}

type fakeQuotes struct {
	records []PriceRecord
	err     error
	lastReq string
}

func (f *fakeQuotes) Quotes(_ context.Context, route, month string) ([]PriceRecord, error) {
	f.lastReq = route + "/" + month
	return f.records, f.err
}

type fakeAssets struct {
	ref AssetRef
	err error
}

func (f *fakeAssets) FindAsset(context.Context, string) (AssetRef, error) {
	return f.ref, f.err
}

type fakeRenderer struct{ markup string }

func (f *fakeRenderer) Render(_ context.Context, artifacts map[string]any) (string, error) {
	if f.markup != "" {
		return f.markup, nil
	}
	return fmt.Sprintf("<html><body>%d artifacts</body></html>", len(artifacts)), nil
}

func passingPhases() map[string]quality.PhaseFunc {
	scores := map[string]float64{
		quality.PhaseFunctional:  95,
		quality.PhasePerformance: 90,
		quality.PhaseSecurity:    88,
		quality.PhaseIntegration: 90,
		quality.PhaseQuality:     85,
	}
	phases := make(map[string]quality.PhaseFunc, len(scores))
	for name, score := range scores {
		phases[name] = func(context.Context, *quality.Deliverable) quality.PhaseResult {
			return quality.PhaseResult{Passed: 1, Score: score}
		}
	}
	return phases
}

func blockingPhases() map[string]quality.PhaseFunc {
	phases := passingPhases()
	phases[quality.PhaseSecurity] = func(context.Context, *quality.Deliverable) quality.PhaseResult {
		return quality.PhaseResult{Failed: 1, Score: 40, Issues: []quality.Issue{{
			Phase:       quality.PhaseSecurity,
			Severity:    quality.SeverityCritical,
			Description: "credential material in markup",
		}}}
	}
	return phases
}

func newTestOrchestrator(t *testing.T, client generate.LLMClient, phases map[string]quality.PhaseFunc, quotes QuoteSource, assets AssetSource) (*Orchestrator, workspace.Store) {
	t.Helper()
	ws, err := workspace.NewDirStore(t.TempDir())
	require.NoError(t, err)

	gen := generate.NewGenerator(client, generate.WithMaxAttempts(2))
	return New(Config{
		Workspace: ws,
		Broker:    handoff.NewBroker(ws),
		Gate:      quality.NewGateWithPhases(ws, phases),
		Renderer:  &fakeRenderer{},
		Stages:    DefaultStages(gen, quotes, assets),
	}), ws
}

func TestRunDeliversCleanCampaign(t *testing.T) {
	quotes := &fakeQuotes{records: []PriceRecord{
		{Route: "JFK-LIS", Date: "2026-10-04", Price: 412, Currency: "USD", Carrier: "TP"},
		{Route: "JFK-LIS", Date: "2026-10-11", Price: 389, Currency: "USD", Carrier: "TP"},
	}}
	assets := &fakeAssets{ref: AssetRef{ID: "img-1", URL: "https://assets.example/lisbon-hero.jpg"}}
	o, ws := newTestOrchestrator(t, &autoClient{}, passingPhases(), quotes, assets)

	c := NewCampaign("October fare sale to Lisbon", t.TempDir())
	require.NoError(t, o.Run(context.Background(), c))

	assert.Equal(t, StatusDelivered, c.Status)
	assert.Equal(t, "delivered", c.State())
	for _, stage := range StageOrder() {
		assert.Equal(t, StageComplete, c.Stages[stage], stage)
	}

	counts := map[string]int{
		workspace.NamespaceData:    7,
		workspace.NamespaceContent: 5,
		workspace.NamespaceDesign:  4,
	}
	for ns, want := range counts {
		names, err := ws.ListNamespace(ns)
		require.NoError(t, err)
		assert.Len(t, names, want, ns)
	}

	// One handoff per stage boundary.
	names, err := ws.ListNamespace(workspace.NamespaceHandoffs)
	require.NoError(t, err)
	assert.Len(t, names, 4)

	// The persisted record round-trips.
	loaded, err := LoadCampaign(ws, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, loaded.Status)

	// A report landed in the reports namespace.
	reports, err := ws.ListNamespace(workspace.NamespaceReports)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestRunEnrichesPricingWithQuotes(t *testing.T) {
	quotes := &fakeQuotes{records: []PriceRecord{{Route: "JFK-LIS", Price: 399, Currency: "USD"}}}
	o, ws := newTestOrchestrator(t, &autoClient{}, passingPhases(), quotes, nil)

	c := NewCampaign("fare sale", t.TempDir())
	require.NoError(t, o.Run(context.Background(), c))

	var pricing map[string]any
	require.NoError(t, ws.ReadJSON(workspace.NamespaceData, "pricing", &pricing))
	assert.Equal(t, float64(1), pricing["observed_quote_count"])
	assert.NotNil(t, pricing["observed_quotes"])
	assert.Equal(t, "generated route/generated month", quotes.lastReq)
}

func TestRunQuoteFailureDegrades(t *testing.T) {
	quotes := &fakeQuotes{err: errors.New("quote API unavailable")}
	o, ws := newTestOrchestrator(t, &autoClient{}, passingPhases(), quotes, nil)

	c := NewCampaign("fare sale", t.TempDir())
	require.NoError(t, o.Run(context.Background(), c))
	assert.Equal(t, StatusDelivered, c.Status)

	var pricing map[string]any
	require.NoError(t, ws.ReadJSON(workspace.NamespaceData, "pricing", &pricing))
	_, enriched := pricing["observed_quotes"]
	assert.False(t, enriched)
}

func TestRunHeroAssetPlaceholderWithoutSource(t *testing.T) {
	o, ws := newTestOrchestrator(t, &autoClient{}, passingPhases(), nil, nil)

	c := NewCampaign("fare sale", t.TempDir())
	require.NoError(t, o.Run(context.Background(), c))

	var hero map[string]any
	require.NoError(t, ws.ReadJSON(workspace.NamespaceDesign, "hero-asset", &hero))
	assert.Equal(t, true, hero["placeholder"])
	assert.Equal(t, "generated asset_query", hero["query"])
}

func TestRunBlockedByQualityGate(t *testing.T) {
	o, ws := newTestOrchestrator(t, &autoClient{}, blockingPhases(), nil, nil)

	c := NewCampaign("fare sale", t.TempDir())
	err := o.Run(context.Background(), c)
	require.Error(t, err)

	var blocked *QualityBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.False(t, blocked.Report.DeploymentReady)
	assert.GreaterOrEqual(t, blocked.Report.CriticalCount(), 1)

	assert.Equal(t, StatusQualityBlocked, c.Status)
	assert.Equal(t, "quality_blocked", c.State())

	// Blocked is not failed: every stage still ran to completion.
	for _, stage := range StageOrder() {
		assert.Equal(t, StageComplete, c.Stages[stage], stage)
	}

	loaded, err := LoadCampaign(ws, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQualityBlocked, loaded.Status)
}

func TestRunFailsOnExhaustedGeneration(t *testing.T) {
	o, ws := newTestOrchestrator(t, garbageClient{}, passingPhases(), nil, nil)

	c := NewCampaign("fare sale", t.TempDir())
	err := o.Run(context.Background(), c)
	require.Error(t, err)

	var exhausted *generate.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.MaxAttempts)

	assert.Equal(t, StatusFailed, c.Status)
	assert.Equal(t, StageFailed, c.Stages[StageDataCollection])
	assert.NotEmpty(t, c.LastError)

	loaded, err := LoadCampaign(ws, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, loaded.Status)
}

func TestRunChecksCancellationBetweenStages(t *testing.T) {
	o, _ := newTestOrchestrator(t, &autoClient{}, passingPhases(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCampaign("fare sale", t.TempDir())
	err := o.Run(ctx, c)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusFailed, c.Status)
}

func TestRunRejectsConcurrentRuns(t *testing.T) {
	o, _ := newTestOrchestrator(t, &autoClient{}, passingPhases(), nil, nil)
	o.mu.Lock()
	o.running = true
	o.mu.Unlock()

	err := o.Run(context.Background(), NewCampaign("fare sale", t.TempDir()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in progress")
}

func TestEventsNeverBlockTheRun(t *testing.T) {
	ws, err := workspace.NewDirStore(t.TempDir())
	require.NoError(t, err)

	gen := generate.NewGenerator(&autoClient{}, generate.WithMaxAttempts(2))
	o := New(Config{
		Workspace:   ws,
		Broker:      handoff.NewBroker(ws),
		Gate:        quality.NewGateWithPhases(ws, passingPhases()),
		Renderer:    &fakeRenderer{},
		Stages:      DefaultStages(gen, nil, nil),
		EventBuffer: 1,
	})

	// Nobody drains the channel; the run must still complete.
	c := NewCampaign("fare sale", t.TempDir())
	require.NoError(t, o.Run(context.Background(), c))
	assert.Equal(t, StatusDelivered, c.Status)
}

func TestEventStreamOrder(t *testing.T) {
	o, _ := newTestOrchestrator(t, &autoClient{}, passingPhases(), nil, nil)

	c := NewCampaign("fare sale", t.TempDir())
	require.NoError(t, o.Run(context.Background(), c))

	var types []string
drain:
	for {
		select {
		case ev := <-o.Events():
			types = append(types, ev.Type)
		default:
			break drain
		}
	}

	assert.Equal(t, "stage_started", types[0])
	assert.Equal(t, "campaign_delivered", types[len(types)-1])
	// Four boundaries, one handoff each.
	created := 0
	for _, typ := range types {
		if typ == "handoff_created" {
			created++
		}
	}
	assert.Equal(t, 4, created)
}

func TestCampaignState(t *testing.T) {
	c := NewCampaign("fare sale", t.TempDir())
	assert.Equal(t, "created", c.State())

	c.Status = StatusRunning
	c.Current = StageContent
	c.Stages[StageContent] = StageRunning
	assert.Equal(t, "stage_2_running", c.State())

	c.Stages[StageContent] = StageHandoffPending
	assert.Equal(t, "stage_2_handoff_pending", c.State())

	c.Stages[StageContent] = StageComplete
	assert.Equal(t, "stage_2_complete", c.State())

	c.Status = StatusDelivered
	assert.Equal(t, "delivered", c.State())
}

func TestCampaignSnapshotIsIndependent(t *testing.T) {
	o, _ := newTestOrchestrator(t, &autoClient{}, passingPhases(), nil, nil)
	c := NewCampaign("fare sale", t.TempDir())
	require.NoError(t, o.Run(context.Background(), c))

	snap := o.Campaign()
	require.NotNil(t, snap)
	snap.Stages[StageContent] = StageFailed
	assert.Equal(t, StageComplete, c.Stages[StageContent])
}
