// Package pipeline implements the campaign orchestrator: a fixed sequence
// of specialist stages over one workspace, with handoffs between stages and
// a terminal quality gate before delivery.
package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"campaignsmith/internal/quality"
)

// Stage names in execution order.
const (
	StageDataCollection = "data-collection"
	StageContent        = "content"
	StageDesign         = "design"
	StageQuality        = "quality"
	StageDelivery       = "delivery"
)

// StageOrder returns the fixed stage sequence.
func StageOrder() []string {
	return []string{StageDataCollection, StageContent, StageDesign, StageQuality, StageDelivery}
}

// CampaignStatus is the top-level status of a campaign run.
type CampaignStatus string

const (
	StatusCreated        CampaignStatus = "/created"
	StatusRunning        CampaignStatus = "/running"
	StatusQualityBlocked CampaignStatus = "/quality_blocked" // terminal unless an operator re-drives a stage
	StatusFailed         CampaignStatus = "/failed"          // terminal, no automatic recovery
	StatusDelivered      CampaignStatus = "/delivered"
)

// StageStatus tracks one stage inside a run.
type StageStatus string

const (
	StagePending        StageStatus = "/pending"
	StageRunning        StageStatus = "/running"
	StageHandoffPending StageStatus = "/handoff_pending"
	StageComplete       StageStatus = "/complete"
	StageFailed         StageStatus = "/failed"
)

// Campaign is the persisted state of one pipeline run.
type Campaign struct {
	ID        string                 `json:"id"`
	Brief     string                 `json:"brief"`
	Root      string                 `json:"root"`
	CreatedAt time.Time              `json:"created_at"`
	Status    CampaignStatus         `json:"status"`
	Stages    map[string]StageStatus `json:"stages"`
	Current   string                 `json:"current_stage,omitempty"`
	LastError string                 `json:"last_error,omitempty"`
}

// NewCampaign creates a campaign for the given brief.
func NewCampaign(brief, root string) *Campaign {
	stages := make(map[string]StageStatus, len(StageOrder()))
	for _, s := range StageOrder() {
		stages[s] = StagePending
	}
	return &Campaign{
		ID:        uuid.NewString()[:8],
		Brief:     brief,
		Root:      root,
		CreatedAt: time.Now().UTC(),
		Status:    StatusCreated,
		Stages:    stages,
	}
}

// State renders the composite run state: created, stage_{i}_running,
// stage_{i}_handoff_pending, stage_{i}_complete, quality_blocked, failed,
// delivered.
func (c *Campaign) State() string {
	switch c.Status {
	case StatusCreated:
		return "created"
	case StatusQualityBlocked:
		return "quality_blocked"
	case StatusFailed:
		return "failed"
	case StatusDelivered:
		return "delivered"
	}
	idx := stageIndex(c.Current)
	switch c.Stages[c.Current] {
	case StageRunning:
		return fmt.Sprintf("stage_%d_running", idx+1)
	case StageHandoffPending:
		return fmt.Sprintf("stage_%d_handoff_pending", idx+1)
	case StageComplete:
		return fmt.Sprintf("stage_%d_complete", idx+1)
	}
	return "running"
}

func stageIndex(name string) int {
	for i, s := range StageOrder() {
		if s == name {
			return i
		}
	}
	return -1
}

// Event is emitted on stage transitions and terminal outcomes.
type Event struct {
	Type      string    `json:"type"` // stage_started, handoff_pending, handoff_created, stage_completed, quality_blocked, campaign_failed, campaign_delivered
	Timestamp time.Time `json:"timestamp"`
	Stage     string    `json:"stage,omitempty"`
	State     string    `json:"state"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
}

// QualityBlockedError is returned when the terminal gate refuses
// deployment. It carries the full report so an operator can act without
// reading raw logs.
type QualityBlockedError struct {
	Report *quality.Report
}

func (e *QualityBlockedError) Error() string {
	return fmt.Sprintf("quality gate blocked delivery: overall score %.1f, %d critical issues",
		e.Report.OverallScore, e.Report.CriticalCount())
}
