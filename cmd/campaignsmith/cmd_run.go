package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"campaignsmith/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run [brief]",
	Short: "Run a brief through the full pipeline",
	Long: `Creates a campaign from the brief and drives it through all five
stages. The run ends Delivered, QualityBlocked (gate refused) or Failed
(a stage exhausted its retry budget).

Example:
  campaignsmith run "October fare sale, NYC to Lisbon, families"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCampaign,
}

func runCampaign(cmd *cobra.Command, args []string) error {
	brief := strings.Join(args, " ")

	ws, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	orch, err := buildOrchestrator(ctx, cfg, ws)
	if err != nil {
		return err
	}

	c := pipeline.NewCampaign(brief, cfg.Workspace.Root)
	logger.Info("Starting campaign", zap.String("id", c.ID), zap.String("brief", brief))
	fmt.Printf("campaign %s: %s\n", c.ID, brief)

	go func() {
		for ev := range orch.Events() {
			fmt.Printf("  [%s] %s\n", ev.State, ev.Message)
		}
	}()

	runErr := orch.Run(ctx, c)

	var blocked *pipeline.QualityBlockedError
	switch {
	case runErr == nil:
		fmt.Printf("delivered: campaign %s passed the quality gate\n", c.ID)
	case errors.As(runErr, &blocked):
		fmt.Printf("blocked: %v\n", blocked)
		for _, issue := range blocked.Report.Issues {
			fmt.Printf("  %s [%s] %s\n", issue.Phase, issue.Severity, issue.Description)
		}
	default:
		logger.Error("Campaign failed", zap.String("id", c.ID), zap.Error(runErr))
	}
	return runErr
}
