package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/recall/internal/models"
)

const (
	dateLayout   = "2006-01-02"
	snippetWidth = 240
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// snippet flattens whitespace and truncates text to width runes.
func snippet(text string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= width {
		return text
	}
	runes := []rune(text)
	return string(runes[:width-1]) + "…"
}

func callHeader(org, project, title string, date string) string {
	parts := []string{org}
	if project != "" {
		parts = append(parts, project)
	}
	if title != "" {
		parts = append(parts, title)
	}
	return fmt.Sprintf("%s (%s)", strings.Join(parts, " / "), date)
}

func printHits(w io.Writer, hits []models.SearchHit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	header := color.New(color.FgGreen, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	for i, h := range hits {
		score := fmt.Sprintf("distance %.3f, recency %.3f", h.Distance, h.RecencyScore)
		if h.CombinedScore != 0 {
			score = fmt.Sprintf("combined %.3f, semantic %.3f, keyword %.3f", h.CombinedScore, h.SemanticScore, h.LexicalScore)
		}
		fmt.Fprintf(w, "[%d] %s\n", i+1, header(callHeader(h.Org, h.Project, h.Title, h.CallDate.Format(dateLayout))))
		fmt.Fprintf(w, "    %s\n", dim(fmt.Sprintf("chunk %d, %d days old, %s", h.ChunkID, h.DaysOld, score)))
		if h.Speaker != "" {
			fmt.Fprintf(w, "    %s: %s\n\n", h.Speaker, snippet(h.Text, snippetWidth))
		} else {
			fmt.Fprintf(w, "    %s\n\n", snippet(h.Text, snippetWidth))
		}
	}
}

func printMembers(w io.Writer, members []models.ClusterMember) {
	dim := color.New(color.Faint).SprintFunc()
	for _, m := range members {
		fmt.Fprintf(w, "  • %s %s\n", callHeader(m.Org, m.Project, m.Title, m.CallDate.Format(dateLayout)), dim(fmt.Sprintf("[chunk %d]", m.ChunkID)))
		fmt.Fprintf(w, "    %s\n", snippet(m.Text, snippetWidth))
	}
}

func printClusters(w io.Writer, details []models.ClusterDetail, perCluster int) {
	if len(details) == 0 {
		fmt.Fprintln(w, "No clusters found.")
		return
	}
	header := color.New(color.FgCyan, color.Bold).SprintFunc()

	for _, d := range details {
		fmt.Fprintf(w, "%s %s\n", header(fmt.Sprintf("Cluster %d: %s", d.ClusterID, d.Label)), fmt.Sprintf("(%d chunks)", d.Size))
		if d.Summary != "" {
			fmt.Fprintf(w, "  %s\n", color.YellowString(d.Summary))
		}
		shown := d.Members
		if perCluster > 0 && len(shown) > perCluster {
			shown = shown[:perCluster]
		}
		printMembers(w, shown)
		if len(shown) < len(d.Members) {
			fmt.Fprintf(w, "  … and %d more\n", len(d.Members)-len(shown))
		}
		fmt.Fprintln(w)
	}
}
