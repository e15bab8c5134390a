// Package handoff implements the artifact protocol between two pipeline
// specialists. A handoff carries the producing stage's output plus quality
// metadata, and is the only input the next stage consumes.
//
// The broker never blocks the pipeline on missing upstream data: when both
// the proposed payload and the workspace are empty it emits a degraded
// artifact (visible to downstream consumers) unless configured strict.
package handoff

import "errors"

// Validation status values for an artifact.
const (
	StatusPassed   = "passed"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
)

// ErrMissingUpstreamData is returned under the strict policy when neither
// the proposed data nor the workspace holds anything reconstructable.
var ErrMissingUpstreamData = errors.New("handoff: no upstream data available")

// CampaignRef identifies the campaign a handoff belongs to.
type CampaignRef struct {
	ID   string
	Path string
}

// Context carries the narrative portion of a handoff.
type Context struct {
	Summary         string   `json:"summary"`
	ContextForNext  string   `json:"context_for_next"`
	Recommendations []string `json:"recommendations"`
	SuccessCriteria []string `json:"success_criteria"`
}

// CreatedFile describes one file-level output of a specialist.
type CreatedFile struct {
	FileName    string `json:"file_name"`
	FilePath    string `json:"file_path"`
	FileType    string `json:"file_type"`
	Description string `json:"description"`
	IsPrimary   bool   `json:"is_primary"`
}

// DataQualityMetrics summarizes how complete a specialist's output is.
type DataQualityMetrics struct {
	TotalAnalyses  int `json:"total_analyses"`
	CompletionRate int `json:"completion_rate"` // 0-100
	QualityScore   int `json:"quality_score"`   // 0-100
}

// Deliverables lists what a specialist produced.
type Deliverables struct {
	CreatedFiles       []CreatedFile      `json:"created_files"`
	KeyOutputs         []string           `json:"key_outputs"`
	DataQualityMetrics DataQualityMetrics `json:"data_quality_metrics"`
}

// QualityMetadata carries the broker's assessment of the handoff.
type QualityMetadata struct {
	DataQualityScore  int     `json:"data_quality_score"`
	CompletenessScore int     `json:"completeness_score"`
	ValidationStatus  string  `json:"validation_status"` // passed | degraded | failed
	ErrorCount        int     `json:"error_count"`
	WarningCount      int     `json:"warning_count"`
	ProcessingTime    float64 `json:"processing_time"` // milliseconds
}

// Artifact is the persisted handoff between two specialists. Immutable once
// accepted; Broker.Repair is the only sanctioned mutation and it is
// idempotent. Readers must tolerate unknown additional top-level fields.
type Artifact struct {
	FromSpecialist  string          `json:"from_specialist"`
	ToSpecialist    string          `json:"to_specialist"`
	CampaignID      string          `json:"campaign_id"`
	CampaignPath    string          `json:"campaign_path"`
	TraceID         string          `json:"trace_id"`
	SpecialistData  map[string]any  `json:"specialist_data"`
	HandoffContext  Context         `json:"handoff_context"`
	Deliverables    Deliverables    `json:"deliverables"`
	QualityMetadata QualityMetadata `json:"quality_metadata"`
}

// Key returns the workspace artifact name a handoff is stored under.
func Key(campaignID, from, to string) string {
	return "handoff_" + campaignID + "_" + from + "_to_" + to
}
