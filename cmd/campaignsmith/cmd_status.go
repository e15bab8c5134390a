package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"campaignsmith/internal/pipeline"
	"campaignsmith/internal/workspace"
)

var statusCmd = &cobra.Command{
	Use:   "status [campaign-id]",
	Short: "Show campaign state and per-stage progress",
	Long: `With a campaign id, prints the campaign's state and every stage's
status. Without arguments, lists all campaigns in the workspace.`,
	Args: cobra.MaximumNArgs(1),
	RunE: showStatus,
}

func showStatus(cmd *cobra.Command, args []string) error {
	ws, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if len(args) == 0 {
		return listCampaigns(ws)
	}

	c, err := pipeline.LoadCampaign(ws, args[0])
	if err != nil {
		return fmt.Errorf("campaign %s: %w", args[0], err)
	}

	fmt.Printf("campaign %s (%s)\n", c.ID, c.State())
	fmt.Printf("  brief:   %s\n", c.Brief)
	fmt.Printf("  created: %s\n", c.CreatedAt.Format("2006-01-02 15:04:05"))
	for _, stage := range pipeline.StageOrder() {
		fmt.Printf("  %-16s %s\n", stage, c.Stages[stage])
	}
	if c.LastError != "" {
		fmt.Printf("  last error: %s\n", c.LastError)
	}
	return nil
}

func listCampaigns(ws workspace.Store) error {
	names, err := ws.ListNamespace(workspace.NamespaceDocs)
	if err != nil {
		return err
	}

	found := 0
	for _, name := range names {
		id, ok := strings.CutPrefix(name, "campaign_")
		if !ok {
			continue
		}
		c, err := pipeline.LoadCampaign(ws, id)
		if err != nil {
			continue
		}
		fmt.Printf("%-10s %-24s %s\n", c.ID, c.State(), c.Brief)
		found++
	}
	if found == 0 {
		fmt.Println("no campaigns in this workspace")
	}
	return nil
}
