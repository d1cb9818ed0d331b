package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// NewJobCmd создаёт группу команд для управления jobs.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage jobs",
	}

	cmd.AddCommand(
		newJobListCmd(clientFn, outputFn),
		newJobCreateCmd(clientFn, outputFn),
		newJobShowCmd(clientFn, outputFn),
		newJobUpdateCmd(clientFn, outputFn),
		newJobDeleteCmd(clientFn, outputFn),
		newJobStatusCmd(clientFn, outputFn, "pause", "paused", "Pause a job"),
		newJobStatusCmd(clientFn, outputFn, "resume", "active", "Resume a paused job"),
		newJobRunCmd(clientFn, outputFn),
	)

	return cmd
}

var jobHeaders = []string{"ID", "NAME", "SCHEDULE", "TIMEZONE", "STATUS", "NEXT_RUN", "LAST_RUN"}

func jobRow(j JobResponse) []string {
	return []string{j.ID, j.Name, j.ScheduleExpr, j.Timezone, j.Status, orDash(j.NextRun), orDash(j.LastRun)}
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, page, err := client.ListJobs(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = jobRow(j)
			}

			out.Print(jobHeaders, rows, jobs)
			if !out.jsonMode {
				out.Success(fmt.Sprintf("Page %d, %d of %d jobs", page.Page, len(jobs), page.Total))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (active, paused, completed)")
	cmd.Flags().StringVar(&opts.OwnerID, "owner", "", "Filter by owner ID")
	cmd.Flags().IntVar(&opts.Page, "page", 0, "Page number (from 1)")
	cmd.Flags().IntVar(&opts.Size, "size", 0, "Page size (max 100)")

	return cmd
}

// jobFlags — общие флаги create/update.
type jobFlags struct {
	name         string
	schedule     string
	timezone     string
	owner        string
	payload      string
	payloadFile  string
	sets         []string
	maxRetries   int
	baseDelay    float64
	backoff      float64
	maxDelay     float64
	createPaused bool
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Job name")
	cmd.Flags().StringVar(&f.schedule, "schedule", "", "Cron expression, interval (e.g. '30s', '5m') or ISO-8601 instant")
	cmd.Flags().StringVar(&f.timezone, "timezone", "", "IANA timezone (e.g. 'Europe/Moscow')")
	cmd.Flags().StringVar(&f.owner, "owner", "", "Owner ID")
	cmd.Flags().StringVar(&f.payload, "payload", "", "Payload as JSON object")
	cmd.Flags().StringVar(&f.payloadFile, "payload-file", "", "Path to payload JSON file")
	cmd.Flags().StringSliceVar(&f.sets, "set", nil, "Payload values as KEY=VALUE (repeatable)")
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", 0, "Maximum number of retries")
	cmd.Flags().Float64Var(&f.baseDelay, "base-delay", 0, "Base retry delay in seconds")
	cmd.Flags().Float64Var(&f.backoff, "backoff-factor", 0, "Retry backoff factor")
	cmd.Flags().Float64Var(&f.maxDelay, "max-delay", 0, "Retry delay cap in seconds (0 = no cap)")
}

// buildPayload собирает payload из --payload, --payload-file и --set.
// Nil — payload не задан.
func (f *jobFlags) buildPayload() (map[string]any, error) {
	var payload map[string]any

	raw := []byte(f.payload)
	if f.payloadFile != "" {
		if f.payload != "" {
			return nil, fmt.Errorf("--payload and --payload-file are mutually exclusive")
		}
		data, err := os.ReadFile(f.payloadFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		raw = data
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("payload is not a valid JSON object: %w", err)
		}
	}

	for _, kv := range f.sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid payload format %q, expected KEY=VALUE", kv)
		}
		if payload == nil {
			payload = make(map[string]any)
		}
		payload[key] = parseValue(value)
	}

	return payload, nil
}

// buildPolicy возвращает политику только из явно заданных флагов.
func (f *jobFlags) buildPolicy(cmd *cobra.Command) *RetryPolicy {
	var p RetryPolicy
	changed := false

	if cmd.Flags().Changed("max-retries") {
		p.MaxRetries = &f.maxRetries
		changed = true
	}
	if cmd.Flags().Changed("base-delay") {
		p.BaseDelaySeconds = &f.baseDelay
		changed = true
	}
	if cmd.Flags().Changed("backoff-factor") {
		p.BackoffFactor = &f.backoff
		changed = true
	}
	if cmd.Flags().Changed("max-delay") {
		p.MaxDelaySeconds = f.maxDelay
		changed = true
	}

	if !changed {
		return nil
	}
	return &p
}

func newJobCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flags jobFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new job",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			payload, err := flags.buildPayload()
			if err != nil {
				return err
			}

			req := CreateJobRequest{
				Name:         flags.name,
				ScheduleExpr: flags.schedule,
				Timezone:     flags.timezone,
				Payload:      payload,
				RetryPolicy:  flags.buildPolicy(cmd),
				OwnerID:      flags.owner,
			}
			if flags.createPaused {
				req.Status = "paused"
			}

			job, err := client.CreateJob(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job created: %s", job.ID))
			out.Print(jobHeaders, [][]string{jobRow(*job)}, job)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.createPaused, "paused", false, "Create the job paused")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("schedule")

	return cmd
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.GetJob(args[0])
			if err != nil {
				return err
			}

			payload, _ := json.Marshal(job.Payload)
			out.Print(
				append(jobHeaders, "OWNER", "PAYLOAD"),
				[][]string{append(jobRow(*job), orDash(job.OwnerID), string(payload))},
				job,
			)
			return nil
		},
	}
}

func newJobUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var flags jobFlags

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			payload, err := flags.buildPayload()
			if err != nil {
				return err
			}

			req := UpdateJobRequest{
				Payload:     payload,
				RetryPolicy: flags.buildPolicy(cmd),
			}
			if cmd.Flags().Changed("name") {
				req.Name = &flags.name
			}
			if cmd.Flags().Changed("schedule") {
				req.ScheduleExpr = &flags.schedule
			}
			if cmd.Flags().Changed("timezone") {
				req.Timezone = &flags.timezone
			}
			if cmd.Flags().Changed("owner") {
				req.OwnerID = &flags.owner
			}

			job, err := client.UpdateJob(args[0], req)
			if err != nil {
				return err
			}

			out.Success("Job updated")
			out.Print(jobHeaders, [][]string{jobRow(*job)}, job)
			return nil
		},
	}

	flags.register(cmd)

	return cmd
}

func newJobDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a job and its runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteJob(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job deleted: %s", args[0]))
			return nil
		},
	}
}

// newJobStatusCmd создаёт pause/resume: обе команды только меняют статус.
func newJobStatusCmd(clientFn func() *Client, outputFn func() *Output, use, status, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.SetJobStatus(args[0], status)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job %s: %s", job.Status, job.ID))
			out.Print(jobHeaders, [][]string{jobRow(*job)}, job)
			return nil
		},
	}
}

func newJobRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "run ID",
		Short: "Run a job now, outside its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.RunJob(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run queued: %s", resp.RunID))
			out.Print(
				[]string{"JOB_ID", "RUN_ID"},
				[][]string{{resp.JobID, resp.RunID}},
				resp,
			)
			return nil
		},
	}
}

// parseValue читает значение --set как JSON (числа, bool, объекты),
// иначе оставляет строкой.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
