package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для просмотра runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Inspect job runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListOpts

	cmd := &cobra.Command{
		Use:   "list JOB_ID",
		Short: "List runs of a job, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, page, err := client.ListRuns(args[0], opts)
			if err != nil {
				return err
			}

			headers := []string{"ID", "STATUS", "RETRIES", "STARTED", "FINISHED", "NEXT_RETRY"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{
					r.ID, r.Status, strconv.Itoa(r.RetryCount),
					orDash(r.StartedAt), orDash(r.FinishedAt), orDash(r.NextRetryAt),
				}
			}

			out.Print(headers, rows, runs)
			if !out.jsonMode {
				out.Success(fmt.Sprintf("Page %d, %d of %d runs", page.Page, len(runs), page.Total))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Page, "page", 0, "Page number (from 1)")
	cmd.Flags().IntVar(&opts.Size, "size", 0, "Page size (max 100)")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var showLogs bool

	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "JOB_ID", "STATUS", "RETRIES", "STARTED", "FINISHED", "ERROR"},
				[][]string{{
					run.ID, run.JobID, run.Status, strconv.Itoa(run.RetryCount),
					orDash(run.StartedAt), orDash(run.FinishedAt), orDash(run.Error),
				}},
				run,
			)
			if showLogs && !out.jsonMode && run.Logs != "" {
				out.Text("\n" + run.Logs)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showLogs, "logs", false, "Print execution logs")

	return cmd
}
