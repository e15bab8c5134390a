package handoff

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"campaignsmith/internal/logging"
	"campaignsmith/internal/workspace"
)

// Expected top-level output count per producing specialist. Completion rate
// is measured against these fixed constants, not against whatever happened
// to arrive.
var expectedOutputs = map[string]int{
	"data-collection": 7,
	"content":         5,
	"design":          4,
	"quality":         3,
	"delivery":        1,
}

const defaultExpectedOutputs = 5

// Suffixes stripped when deriving a canonical key from a workspace artifact
// name. "audience-insights" and "audience" both reconstruct as "audience".
var knownSuffixes = []string{"-insights", "_insights"}

var separatorRun = regexp.MustCompile(`[-\s]+|_{2,}`)

// Broker builds, repairs, and persists handoff artifacts.
type Broker struct {
	ws              workspace.Store
	requireUpstream bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithRequireUpstreamData makes the broker fail handoff creation when both
// the proposed data and the workspace are empty, instead of degrading.
func WithRequireUpstreamData() Option {
	return func(b *Broker) { b.requireUpstream = true }
}

// NewBroker creates a broker over the given workspace.
func NewBroker(ws workspace.Store, opts ...Option) *Broker {
	b := &Broker{ws: ws}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Create builds and persists the handoff from one specialist to the next.
// Valid entries in proposed take precedence; missing keys are reconstructed
// from the workspace data namespace. An all-empty handoff is accepted as
// degraded (or rejected under the strict policy), never silently dropped.
func (b *Broker) Create(from, to string, ref CampaignRef, proposed map[string]any) (*Artifact, error) {
	start := time.Now()

	valid := make(map[string]any)
	for k, v := range proposed {
		if workspace.HasData(v) {
			valid[k] = v
		}
	}

	merged := make(map[string]any, len(valid))
	for k, v := range valid {
		merged[k] = v
	}

	if len(valid) == 0 {
		reconstructed, err := b.reconstruct()
		if err != nil {
			return nil, err
		}
		logging.Handoff("reconstructed %d entries from workspace for %s->%s", len(reconstructed), from, to)
		for k, v := range reconstructed {
			if _, taken := merged[k]; !taken {
				merged[k] = v
			}
		}
	}

	validCount := 0
	for _, v := range merged {
		if workspace.HasData(v) {
			validCount++
		}
	}

	if validCount == 0 && b.requireUpstream {
		return nil, fmt.Errorf("%w: %s -> %s", ErrMissingUpstreamData, from, to)
	}

	art := b.assemble(from, to, ref, merged, validCount, start)
	if art.TraceID == "" {
		art.TraceID = newTraceID()
	}

	key := Key(ref.ID, from, to)
	if err := b.ws.WriteJSON(workspace.NamespaceHandoffs, key, art); err != nil {
		return nil, err
	}
	logging.Handoff("persisted %s (status=%s completion=%d)", key, art.QualityMetadata.ValidationStatus, art.Deliverables.DataQualityMetrics.CompletionRate)
	return art, nil
}

// Repair re-runs reconstruction and scoring against current workspace state
// and overwrites the stored artifact only if the recomputed completion rate
// is strictly higher. Safe to call any number of times.
func (b *Broker) Repair(handoffKey string) (*Artifact, bool, error) {
	var stored Artifact
	err := b.ws.ReadJSON(workspace.NamespaceHandoffs, handoffKey, &stored)
	if err != nil {
		return nil, false, err
	}

	start := time.Now()
	valid := make(map[string]any)
	for k, v := range stored.SpecialistData {
		if workspace.HasData(v) {
			valid[k] = v
		}
	}

	merged := make(map[string]any, len(valid))
	for k, v := range valid {
		merged[k] = v
	}
	reconstructed, err := b.reconstruct()
	if err != nil {
		return nil, false, err
	}
	for k, v := range reconstructed {
		if _, taken := merged[k]; !taken {
			merged[k] = v
		}
	}

	validCount := 0
	for _, v := range merged {
		if workspace.HasData(v) {
			validCount++
		}
	}

	repaired := b.assemble(stored.FromSpecialist, stored.ToSpecialist, CampaignRef{ID: stored.CampaignID, Path: stored.CampaignPath}, merged, validCount, start)
	repaired.TraceID = stored.TraceID
	if repaired.TraceID == "" {
		repaired.TraceID = newTraceID()
	}

	oldRate := stored.Deliverables.DataQualityMetrics.CompletionRate
	newRate := repaired.Deliverables.DataQualityMetrics.CompletionRate
	if newRate <= oldRate {
		logging.HandoffDebug("repair %s: completion %d -> %d, keeping stored artifact", handoffKey, oldRate, newRate)
		return &stored, false, nil
	}

	if err := b.ws.WriteJSON(workspace.NamespaceHandoffs, handoffKey, repaired); err != nil {
		return nil, false, err
	}
	logging.Handoff("repaired %s: completion %d -> %d", handoffKey, oldRate, newRate)
	return repaired, true, nil
}

// reconstruct loads every artifact in the data namespace under its
// canonical key. Deterministic for a fixed workspace state: names are
// listed sorted and later names win ties on the same canonical key.
func (b *Broker) reconstruct() (map[string]any, error) {
	names, err := b.ws.ListNamespace(workspace.NamespaceData)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(names))
	for _, name := range names {
		var payload any
		if err := b.ws.ReadJSON(workspace.NamespaceData, name, &payload); err != nil {
			if errors.Is(err, workspace.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !workspace.HasData(payload) {
			continue
		}
		out[CanonicalKey(name)] = payload
	}
	return out, nil
}

func (b *Broker) assemble(from, to string, ref CampaignRef, merged map[string]any, validCount int, start time.Time) *Artifact {
	expected, ok := expectedOutputs[from]
	if !ok {
		expected = defaultExpectedOutputs
	}
	rate := roundPct(validCount, expected)

	status := StatusPassed
	completeness := rate
	var recommendations []string
	if validCount == 0 {
		status = StatusDegraded
		completeness = 0
		recommendations = append(recommendations,
			"No upstream data was available; downstream output quality will be reduced",
			fmt.Sprintf("Re-run the %s stage or repair this handoff once data exists", from),
		)
	} else if rate < 100 {
		recommendations = append(recommendations,
			fmt.Sprintf("Only %d of %d expected outputs present; consider repairing after the %s stage completes fully", validCount, expected, from),
		)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	warnings := expected - validCount
	if warnings < 0 {
		warnings = 0
	}

	return &Artifact{
		FromSpecialist: from,
		ToSpecialist:   to,
		CampaignID:     ref.ID,
		CampaignPath:   ref.Path,
		SpecialistData: merged,
		HandoffContext: Context{
			Summary:         fmt.Sprintf("%s handed %d outputs to %s", from, validCount, to),
			ContextForNext:  fmt.Sprintf("Consume specialist_data produced by %s for campaign %s", from, ref.ID),
			Recommendations: recommendations,
			SuccessCriteria: []string{
				fmt.Sprintf("%s consumes every specialist_data entry", to),
				"Outputs trace back to the campaign brief",
			},
		},
		Deliverables: Deliverables{
			CreatedFiles: []CreatedFile{},
			KeyOutputs:   keys,
			DataQualityMetrics: DataQualityMetrics{
				TotalAnalyses:  len(merged),
				CompletionRate: rate,
				QualityScore:   rate,
			},
		},
		QualityMetadata: QualityMetadata{
			DataQualityScore:  rate,
			CompletenessScore: completeness,
			ValidationStatus:  status,
			ErrorCount:        0,
			WarningCount:      warnings,
			ProcessingTime:    float64(time.Since(start).Microseconds()) / 1000.0,
		},
	}
}

// CanonicalKey derives the specialist_data key for a workspace artifact
// name: known suffixes are stripped and separator runs collapse to single
// underscores.
func CanonicalKey(name string) string {
	base := strings.ToLower(strings.TrimSpace(name))
	for _, suffix := range knownSuffixes {
		base = strings.TrimSuffix(base, suffix)
	}
	base = separatorRun.ReplaceAllString(base, "_")
	return strings.Trim(base, "_")
}

// roundPct returns round(100*n/d) clamped to the 0-100 range a completion
// rate must stay in, even when a specialist over-delivers.
func roundPct(n, d int) int {
	if d <= 0 {
		return 0
	}
	pct := int((float64(n)/float64(d))*100 + 0.5)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func newTraceID() string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("handoff_%d_%s", time.Now().UnixMilli(), token)
}
