package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/equinor/flotilla-sub005/internal/app/scheduling"
)

type planResponse struct {
	Jobs []scheduling.PlannedJob `json:"jobs"`
}

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the auto-schedule times left today",
		Long:  "Lists the jobs a planning cycle started now would register, without registering them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var plan planResponse
			if err := newAPIClient(viper.GetString("server")).get(cmd.Context(), "/v1/auto-schedule/plan", nil, &plan); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), plan.Jobs)
			}
			renderPlan(cmd.OutOrStdout(), plan.Jobs)
			return nil
		},
	}
}

func renderPlan(w io.Writer, jobs []scheduling.PlannedJob) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Definition", "Name", "Time", "At", "In"})
	for _, j := range jobs {
		tw.AppendRow(table.Row{j.DefinitionID, j.DefinitionName, j.TimeOfDay.String(), j.At.Format(time.RFC3339), j.Delay.Round(time.Second)})
	}
	tw.AppendFooter(table.Row{"", "", "", "Total", len(jobs)})
	tw.Render()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
