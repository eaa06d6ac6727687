package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/pkg/cluster"
	"github.com/xhad/recall/pkg/search"
)

var (
	searchOrg     string
	searchProject string
	searchLimit   int
	searchDays    int
	searchHybrid  bool
	searchRecent  bool
	searchExpand  bool

	expandCall    int64
	expandExclude []int64
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search transcripts and notes by meaning",
	Long: `Finds the chunks closest in meaning to the query. Older calls are
discounted, so a slightly weaker match from last week can outrank a
stronger one from last year.

--hybrid also matches exact keywords, which helps with names, acronyms and
product terms. --expand adds chunks from the same topic clusters, which
requires clusters computed with "recall cluster".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var recentCmd = &cobra.Command{
	Use:   "recent [query]",
	Short: "Search only recent calls",
	Long: `Searches calls from the last --days days (default from config). When
nothing recent matches, says so and falls back to the full corpus.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		searchRecent = true
		return runSearch(cmd, args)
	},
}

var expandCmd = &cobra.Command{
	Use:   "expand [chunk-id...]",
	Short: "Show chunks on the same topics as the given chunks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExpand,
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, recentCmd} {
		c.Flags().StringVarP(&searchOrg, "org", "o", "", "restrict to one organization")
		c.Flags().StringVarP(&searchProject, "project", "p", "", "restrict to one project")
		c.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
		c.Flags().IntVar(&searchDays, "days", 0, "only calls from the last N days")
		c.Flags().BoolVar(&searchExpand, "expand", false, "add related chunks from the same topic clusters")
	}
	searchCmd.Flags().BoolVar(&searchHybrid, "hybrid", false, "combine semantic and keyword matching")
	searchCmd.Flags().BoolVar(&searchRecent, "recent", false, "search recent calls first")

	expandCmd.Flags().Int64Var(&expandCall, "call", 0, "use the clusters computed for this call")
	expandCmd.Flags().Int64SliceVar(&expandExclude, "exclude", nil, "chunk IDs to leave out")

	rootCmd.AddCommand(searchCmd, recentCmd, expandCmd)
}

func searchOptions(cmd *cobra.Command) search.Options {
	opts := search.Options{
		Org:     searchOrg,
		Project: searchProject,
		Limit:   searchLimit,
	}
	if cmd.Flags().Changed("days") {
		opts.DaysBack = search.Days(searchDays)
	}
	return opts
}

type searchReport struct {
	Hits     []models.SearchHit     `json:"results"`
	DaysBack int                    `json:"days_back,omitempty"`
	Fallback bool                   `json:"fell_back_to_full_search,omitempty"`
	Related  []models.ClusterMember `json:"related,omitempty"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	engine, err := current.searchEngine(ctx)
	if err != nil {
		return err
	}
	opts := searchOptions(cmd)

	var report searchReport
	switch {
	case searchHybrid:
		report.Hits, err = engine.Hybrid(ctx, query, opts)
	case searchRecent:
		var result models.RecentResult
		result, err = engine.Recent(ctx, query, opts)
		report.Hits, report.DaysBack = result.Hits, result.DaysBack
		if err == nil && result.NeedsExpansion {
			report.Fallback = true
			opts.DaysBack = nil
			report.Hits, err = engine.Semantic(ctx, query, opts)
		}
	default:
		report.Hits, err = engine.Semantic(ctx, query, opts)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchExpand && len(report.Hits) > 0 {
		clusters, err := current.clusterEngine(ctx, false)
		if err != nil {
			return err
		}
		seeds := make([]int64, len(report.Hits))
		for i, h := range report.Hits {
			seeds[i] = h.ChunkID
		}
		report.Related, err = clusters.Expand(ctx, seeds, cluster.ExpandOptions{})
		if err != nil {
			return fmt.Errorf("expand failed: %w", err)
		}
	}

	if jsonOutput {
		return printJSON(out, report)
	}
	printSearchReport(out, report, searchExpand)
	return nil
}

func printSearchReport(w io.Writer, report searchReport, expanded bool) {
	if report.Fallback {
		fmt.Fprintln(w, color.YellowString("Nothing in the last %d days, showing all calls.", report.DaysBack))
		fmt.Fprintln(w)
	}
	printHits(w, report.Hits)

	if !expanded || len(report.Hits) == 0 {
		return
	}
	if len(report.Related) == 0 {
		fmt.Fprintln(w, color.YellowString(`No related chunks. Run "recall cluster" if clusters have not been computed.`))
		return
	}
	fmt.Fprintln(w, color.CyanString("Related from the same topics:"))
	printMembers(w, report.Related)
}

func parseChunkIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid chunk id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func runExpand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	seeds, err := parseChunkIDs(args)
	if err != nil {
		return err
	}

	clusters, err := current.clusterEngine(ctx, false)
	if err != nil {
		return err
	}
	members, err := clusters.Expand(ctx, seeds, cluster.ExpandOptions{
		Scope:   models.Scope{CallID: expandCall},
		Exclude: expandExclude,
	})
	if err != nil {
		return fmt.Errorf("expand failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, members)
	}
	if len(members) == 0 {
		fmt.Fprintln(out, color.YellowString(`No related chunks. Run "recall cluster" if clusters have not been computed.`))
		return nil
	}
	printMembers(out, members)
	return nil
}
