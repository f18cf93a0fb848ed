package main

import (
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// runSummary is the part of a mission run the listing shows.
type runSummary struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	RobotID          string    `json:"robot_id"`
	Status           string    `json:"status"`
	RunType          string    `json:"run_type"`
	Priority         int       `json:"priority"`
	DesiredStartTime time.Time `json:"desired_start_time"`
}

type runPage struct {
	Items []runSummary `json:"items"`
	Page  int          `json:"page"`
	Rows  int          `json:"rows"`
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List mission runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			for _, name := range []string{"robot_id", "installation_code", "status"} {
				if v, _ := cmd.Flags().GetString(name); v != "" {
					q.Set(name, v)
				}
			}
			page, _ := cmd.Flags().GetInt("page")
			rows, _ := cmd.Flags().GetInt("rows")
			q.Set("page", strconv.Itoa(page))
			q.Set("rows", strconv.Itoa(rows))

			var res runPage
			if err := newAPIClient(viper.GetString("server")).get(cmd.Context(), "/v1/mission-runs", q, &res); err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), res)
			}
			renderRuns(cmd.OutOrStdout(), res.Items)
			return nil
		},
	}
	cmd.Flags().String("robot_id", "", "only runs of this robot")
	cmd.Flags().String("installation_code", "", "only runs at this installation")
	cmd.Flags().String("status", "", "comma separated statuses")
	cmd.Flags().Int("page", 1, "page number, starting at 1")
	cmd.Flags().Int("rows", 100, "runs per page")
	return cmd
}

func renderRuns(w io.Writer, runs []runSummary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Name", "Robot", "Status", "Type", "Priority", "Desired start"})
	for _, r := range runs {
		tw.AppendRow(table.Row{r.ID, r.Name, r.RobotID, r.Status, r.RunType, r.Priority, r.DesiredStartTime.Format(time.RFC3339)})
	}
	tw.Render()
}
