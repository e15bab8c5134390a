package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"campaignsmith/internal/handoff"
	"campaignsmith/internal/workspace"
)

var repairCmd = &cobra.Command{
	Use:   "repair [handoff-key | campaign-id]",
	Short: "Re-derive degraded handoffs from workspace artifacts",
	Long: `Recomputes a handoff from what is actually in the workspace and
overwrites it only if completeness improved. With a campaign id, every
handoff of that campaign is repaired. Repair is idempotent: a second run
changes nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: repairHandoffs,
}

func repairHandoffs(cmd *cobra.Command, args []string) error {
	ws, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	keys, err := resolveHandoffKeys(ws, args[0])
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("no handoffs match %q", args[0])
	}

	broker := handoff.NewBroker(ws)
	for _, key := range keys {
		art, changed, err := broker.Repair(key)
		if err != nil {
			return fmt.Errorf("repair %s: %w", key, err)
		}
		rate := art.Deliverables.DataQualityMetrics.CompletionRate
		if changed {
			fmt.Printf("%s: repaired, now %d%% complete (%s)\n", key, rate, art.QualityMetadata.ValidationStatus)
		} else {
			fmt.Printf("%s: unchanged at %d%% complete\n", key, rate)
		}
	}
	return nil
}

// resolveHandoffKeys accepts either a full handoff key or a campaign id.
func resolveHandoffKeys(ws workspace.Store, arg string) ([]string, error) {
	names, err := ws.ListNamespace(workspace.NamespaceHandoffs)
	if err != nil {
		return nil, err
	}
	prefix := "handoff_" + arg + "_"
	var keys []string
	for _, name := range names {
		if name == arg {
			return []string{name}, nil
		}
		if strings.HasPrefix(name, prefix) {
			keys = append(keys, name)
		}
	}
	return keys, nil
}
