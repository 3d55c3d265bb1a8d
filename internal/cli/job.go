package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewJobCmd создаёт группу команд для управления jobs.
func NewJobCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage video generation jobs",
	}

	cmd.AddCommand(
		newJobListCmd(clientFn, outputFn),
		newJobCreateCmd(clientFn, outputFn),
		newJobShowCmd(clientFn, outputFn),
		newJobInspectCmd(clientFn, outputFn),
		newJobUnitsCmd(clientFn, outputFn),
		newJobCancelCmd(clientFn, outputFn),
		newJobFailCmd(clientFn, outputFn),
		newJobDeleteCmd(clientFn, outputFn),
		newJobWatchCmd(clientFn, outputFn),
	)

	return cmd
}

func newJobListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var state string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			jobs, err := client.ListJobs(ListJobsOpts{
				State: state,
				Limit: limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "STATE", "PROGRESS", "RETRIES", "PROMPT", "CREATED"}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = []string{
					j.ID,
					j.State,
					formatProgress(j.Progress),
					strconv.Itoa(j.RetryCount),
					truncate(j.Spec.Prompt, 40),
					j.CreatedAt,
				}
			}

			out.Print(headers, rows, jobs)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (INIT, PLAN, ASSET_GENERATION, RENDER, QA, END, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newJobCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var mode string
	var numScenes int
	var artStyle string
	var musicGenre string

	cmd := &cobra.Command{
		Use:   "create PROMPT",
		Short: "Create a new generation job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.CreateJob(CreateJobRequest{
				Prompt:     args[0],
				Mode:       mode,
				NumScenes:  numScenes,
				ArtStyle:   artStyle,
				MusicGenre: musicGenre,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job created: %s", job.ID))
			out.Print(
				[]string{"ID", "STATE", "PROGRESS", "CREATED"},
				[][]string{{job.ID, job.State, formatProgress(job.Progress), job.CreatedAt}},
				job,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Generation mode (general, story, ad)")
	cmd.Flags().IntVar(&numScenes, "scenes", 0, "Number of scenes")
	cmd.Flags().StringVar(&artStyle, "art-style", "", "Art style for images")
	cmd.Flags().StringVar(&musicGenre, "music-genre", "", "Background music genre")

	return cmd
}

func newJobShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var showLogs bool

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show job details",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.GetJob(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "STATE", "PROGRESS", "RETRIES", "ERROR", "CREATED"},
				[][]string{{
					job.ID,
					job.State,
					formatProgress(job.Progress),
					strconv.Itoa(job.RetryCount),
					job.Error,
					job.CreatedAt,
				}},
				job,
			)

			if showLogs && len(job.Logs) > 0 {
				out.Success("")
				for _, line := range job.Logs {
					out.Success(line)
				}
			}
			return nil
		},
		Args: cobra.ExactArgs(1),
	}

	cmd.Flags().BoolVar(&showLogs, "logs", false, "Also print the job log")

	return cmd
}

func newJobInspectCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect ID",
		Short: "Show the job position in the pipeline state machine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			ins, err := client.InspectJob(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "STATE", "TERMINAL", "RETRIES", "HISTORY"},
				[][]string{{
					ins.ID,
					ins.State,
					strconv.FormatBool(ins.IsTerminal),
					strconv.Itoa(ins.RetryCount),
					strings.Join(ins.History, " > "),
				}},
				ins,
			)
			return nil
		},
	}
}

func newJobUnitsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "units JOB_ID",
		Short: "List units of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			units, err := client.ListUnits(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ID", "KIND", "STAGE", "PASS", "ATTEMPT", "STATUS", "ERROR"}
			rows := make([][]string, len(units))
			for i, u := range units {
				rows[i] = []string{
					u.ID,
					u.Kind,
					u.Stage,
					strconv.Itoa(u.Pass),
					strconv.Itoa(u.Attempt),
					u.Status,
					u.Error,
				}
			}

			out.Print(headers, rows, units)
			return nil
		},
	}
}

func newJobCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.CancelJob(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job cancelled: %s", job.ID))
			return nil
		},
	}
}

func newJobFailCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "fail ID",
		Short: "Force a job into FAILED state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			job, err := client.FailJob(args[0], reason)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Job failed: %s", job.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Failure reason to record")

	return cmd
}

func newJobDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a finished job and its units",
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

func newJobWatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "watch ID",
		Short: "Stream live progress of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			return client.WatchJob(cmd.Context(), args[0], func(frame Frame) error {
				switch frame.Type {
				case "initial_state":
					if frame.Job != nil {
						out.Success(fmt.Sprintf("[%s] %s (%s)",
							frame.Job.State, formatProgress(frame.Job.Progress), frame.Job.ID))
					}
				case "progress":
					var parts []string
					if frame.State != nil {
						parts = append(parts, "["+*frame.State+"]")
					}
					if frame.Progress != nil {
						parts = append(parts, formatProgress(*frame.Progress))
					}
					if frame.Log != "" {
						parts = append(parts, frame.Log)
					}
					if len(parts) > 0 {
						out.Success(strings.Join(parts, " "))
					}
				}
				return nil
			})
		},
	}
}

// formatProgress форматирует прогресс как процент.
func formatProgress(p float64) string {
	return fmt.Sprintf("%.0f%%", p*100)
}

// truncate обрезает строку до n символов.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
