package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xhad/recall/internal/models"
	"github.com/xhad/recall/pkg/ingest"
)

var (
	ingestOrg     string
	ingestProject string
	ingestDate    string
	ingestTitle   string
	ingestType    string
	ingestReplace bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file or URL...]",
	Short: "Chunk, embed and store transcripts or notes",
	Long: `Loads each file or URL, splits it into chunks, embeds the chunks and
stores them as one call. HTML pages are flattened to text first.

A source that was ingested before is skipped unless --replace is given.

Examples:
  recall ingest --org Acme --date 2025-06-02 calls/acme-kickoff.txt
  recall ingest --org Acme --type notes --replace notes/*.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestOrg, "org", "o", "", "organization the calls belong to (required)")
	ingestCmd.Flags().StringVarP(&ingestProject, "project", "p", "", "project within the organization")
	ingestCmd.Flags().StringVarP(&ingestDate, "date", "d", "", "call date as YYYY-MM-DD (default today)")
	ingestCmd.Flags().StringVarP(&ingestTitle, "title", "t", "", "call title (default the file or page title)")
	ingestCmd.Flags().StringVar(&ingestType, "type", models.SourceTranscript, "source type: transcript, notes or reference")
	ingestCmd.Flags().BoolVar(&ingestReplace, "replace", false, "replace sources that were ingested before")
	ingestCmd.MarkFlagRequired("org")
	rootCmd.AddCommand(ingestCmd)
}

func parseCallDate(s string, now time.Time) (time.Time, error) {
	if s == "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	date, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return date, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	callDate, err := parseCallDate(ingestDate, time.Now())
	if err != nil {
		return err
	}

	vs, err := current.openStore(ctx)
	if err != nil {
		return err
	}
	emb, err := current.newEmbedder()
	if err != nil {
		return err
	}
	c, err := current.newChunker()
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	var label string
	pipeline, err := ingest.NewPipeline(c, emb, vs,
		ingest.WithPoolSize(current.config.Ingest.Workers),
		ingest.WithBatchSize(current.config.Ingest.BatchSize),
		ingest.WithLogger(current.logger),
		ingest.WithProgress(func(done, total int) {
			if jsonOutput {
				return
			}
			if bar == nil {
				bar = getProgressBar(total, "Embedding "+label)
			}
			bar.Set(done)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	defer pipeline.Release()

	loader := ingest.NewLoader(current.config.LoaderConfig())

	type ingested struct {
		Source   string `json:"source"`
		CallID   int64  `json:"call_id,omitempty"`
		Chunks   int    `json:"chunks"`
		Replaced int    `json:"replaced,omitempty"`
		Skipped  bool   `json:"skipped,omitempty"`
	}
	var results []ingested
	var failed int

	for _, location := range args {
		src, err := loader.Load(ctx, location)
		if err != nil {
			color.Red("✗ %s: %v", location, err)
			failed++
			continue
		}

		title := ingestTitle
		if title == "" {
			title = src.Title
		}
		doc := models.Document{
			Parent: models.Parent{
				Org:        ingestOrg,
				Project:    ingestProject,
				Title:      title,
				CallDate:   callDate,
				SourceType: ingestType,
				SourceFile: src.Location,
			},
			Content: src.Text,
		}

		bar, label = nil, location
		res, err := pipeline.Ingest(ctx, doc, ingest.IngestOptions{Replace: ingestReplace})
		if bar != nil {
			bar.Finish()
			fmt.Fprintln(cmd.ErrOrStderr())
		}
		switch {
		case errors.Is(err, ingest.ErrAlreadyIngested):
			results = append(results, ingested{Source: location, Skipped: true})
			if !jsonOutput {
				color.Yellow("• %s was already ingested, use --replace to re-ingest", location)
			}
			continue
		case err != nil:
			color.Red("✗ %s: %v", location, err)
			failed++
			continue
		}

		results = append(results, ingested{Source: location, CallID: res.ParentID, Chunks: res.Chunks, Replaced: res.Replaced})
		if !jsonOutput {
			msg := fmt.Sprintf("✓ %s: %d chunks stored as call %d", location, res.Chunks, res.ParentID)
			if res.Replaced > 0 {
				msg += fmt.Sprintf(" (replaced %d)", res.Replaced)
			}
			color.Green("%s", msg)
		}
	}

	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), results); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(args))
	}
	return nil
}
