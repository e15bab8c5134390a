package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"campaignsmith/internal/quality"
	"campaignsmith/internal/workspace"
)

var reportAll bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the latest quality gate report",
	RunE:  showReport,
}

func init() {
	reportCmd.Flags().BoolVar(&reportAll, "all", false, "List every report, newest first")
}

func showReport(cmd *cobra.Command, args []string) error {
	ws, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	names, err := ws.ListNamespace(workspace.NamespaceReports)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("no quality reports in this workspace")
		return nil
	}
	// Report names embed unix milliseconds, so lexical order is
	// chronological for same-length timestamps.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	if !reportAll {
		names = names[:1]
	}
	for _, name := range names {
		var r quality.Report
		if err := ws.ReadJSON(workspace.NamespaceReports, name, &r); err != nil {
			return err
		}
		printReport(name, &r)
	}
	return nil
}

func printReport(name string, r *quality.Report) {
	verdict := "BLOCKED"
	if r.DeploymentReady {
		verdict = "READY"
	}
	fmt.Printf("%s  overall %.1f  %s\n", name, r.OverallScore, verdict)
	for _, phase := range quality.PhaseNames() {
		result, ok := r.Tests[phase]
		if !ok {
			continue
		}
		fmt.Printf("  %-12s %5.1f  (%d passed, %d failed)\n", phase, result.Score, result.Passed, result.Failed)
	}
	for _, issue := range r.Issues {
		fmt.Printf("  [%s] %s: %s\n", issue.Severity, issue.Phase, issue.Description)
	}
	for _, rec := range r.Recommendations {
		fmt.Printf("  -> (%s) %s\n", rec.Priority, rec.Title)
	}
}
