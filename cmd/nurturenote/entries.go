package main

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/thebtf/nurturenote/internal/config"
	"github.com/thebtf/nurturenote/pkg/models"
)

// ListCmd prints the entries inside the range.
func ListCmd(debug *bool) *cobra.Command {
	var rangeDays int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show recent entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*debug)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.entries.EntriesInRange(cmd.Context(), rangeDays)
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&rangeDays, "range", config.DefaultRangeDays, "Number of days to include")

	return cmd
}

// AnalyzeCmd runs a strict window analysis and prints the canonical result.
func AnalyzeCmd(debug *bool) *cobra.Command {
	var (
		rangeDays int
		question  string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyse the entries inside the range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*debug)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.entries.EntriesInRange(cmd.Context(), rangeDays)
			if err != nil {
				return err
			}

			result, err := a.analyzer.Produce(cmd.Context(), models.AnalysisRequest{
				Entries:  models.Snapshots(entries),
				Question: question,
				Metadata: map[string]any{
					"type":        "cli_analysis",
					"range_days":  rangeDays,
					"entry_count": len(entries),
				},
			}, models.ModeStrict)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "분석 요청 실패: %v\n", err)
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().IntVar(&rangeDays, "range", config.DefaultRangeDays, "Number of days to include")
	cmd.Flags().StringVar(&question, "question", "", "Question to ask about the entries")

	return cmd
}

func printEntries(w io.Writer, entries []*models.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "최근 범위 내 일기 기록이 없습니다.")
		return
	}
	fmt.Fprintln(w, "최근 일기 기록:")
	for _, e := range entries {
		fmt.Fprintf(w, "- %s | %s | %s\n", e.CreatedAt, e.Mood, e.Body)
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
