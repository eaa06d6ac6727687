package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/internal/types"
	"github.com/xhad/recall/pkg/cluster"
)

var (
	clusterCall      int64
	clusterThreshold float64
	clusterMinSize   int
	clusterRecompute bool
	clusterSummarize bool
	clusterShow      int
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Group chunks into recurring topics",
	Long: `Groups the embedded chunks of one call, or of every call, into topics
and lists them with a short label.

Stored clusters are reused unless --recompute is given. Search expansion
reads the clusters stored for the whole corpus.`,
	Args: cobra.NoArgs,
	RunE: runCluster,
}

func init() {
	clusterCmd.Flags().Int64Var(&clusterCall, "call", 0, "cluster a single call instead of every call")
	clusterCmd.Flags().Float64Var(&clusterThreshold, "threshold", 0, "cosine distance below which clusters merge (default from config)")
	clusterCmd.Flags().IntVar(&clusterMinSize, "min-size", 0, "smallest cluster to list (default from config)")
	clusterCmd.Flags().BoolVar(&clusterRecompute, "recompute", false, "recompute even if clusters are stored")
	clusterCmd.Flags().BoolVar(&clusterSummarize, "summarize", false, "summarize each cluster with the chat model")
	clusterCmd.Flags().IntVar(&clusterShow, "show", 3, "chunks shown per cluster, 0 for all")
	rootCmd.AddCommand(clusterCmd)
}

type clusterReport struct {
	Run      *models.ClusterRun     `json:"run"`
	Reused   bool                   `json:"reused"`
	Clusters []models.ClusterDetail `json:"clusters"`
}

func runCluster(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	scope := models.Scope{CallID: clusterCall}

	engine, err := current.clusterEngine(ctx, clusterSummarize)
	if err != nil {
		return err
	}

	var report clusterReport
	if !clusterRecompute && !cmd.Flags().Changed("threshold") {
		report.Run, err = engine.LatestRun(ctx, scope)
		switch {
		case err == nil:
			report.Reused = true
		case errors.Is(err, types.ErrNotFound):
		default:
			return fmt.Errorf("failed to read stored clusters: %w", err)
		}
	}

	if report.Run == nil {
		var spinner *progressbar.ProgressBar
		if !jsonOutput {
			spinner = getSpinner(fmt.Sprintf(" Clustering %s...", scope))
		}
		run, err := engine.Store(ctx, scope, clusterThreshold)
		if spinner != nil {
			spinner.Finish()
			fmt.Fprintln(cmd.ErrOrStderr())
		}
		if err != nil {
			return fmt.Errorf("clustering failed: %w", err)
		}
		report.Run = &run
	}

	report.Clusters, err = engine.Details(ctx, scope, clusterMinSize)
	if err != nil {
		return fmt.Errorf("failed to load clusters: %w", err)
	}

	if clusterSummarize {
		summarizeClusters(cmd, engine, report.Clusters)
	}

	if jsonOutput {
		return printJSON(out, report)
	}

	run := report.Run
	if report.Reused {
		fmt.Fprintln(out, color.BlueString("Using existing clusters for %s from %s (threshold %.2f), --recompute to refresh",
			scope, run.CreatedAt.Local().Format("2006-01-02 15:04"), run.Threshold))
	} else {
		fmt.Fprintln(out, color.GreenString("✓ %d clusters over %d chunks of %s (threshold %.2f)",
			run.Clusters, run.Chunks, scope, run.Threshold))
	}
	fmt.Fprintln(out)
	printClusters(out, report.Clusters, clusterShow)
	return nil
}

// summarizeClusters fills in Summary for each cluster. A failed summary is
// reported and left empty.
func summarizeClusters(cmd *cobra.Command, engine *cluster.Engine, details []models.ClusterDetail) {
	for i := range details {
		summary, err := engine.Summarize(cmd.Context(), details[i])
		if err != nil {
			current.logger.Warn("summary failed", "cluster", details[i].ClusterID, "err", err)
			if !jsonOutput {
				color.Red("✗ cluster %d: %v", details[i].ClusterID, err)
			}
			continue
		}
		details[i].Summary = summary
	}
}
