package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"stagehand/internal/jobs"
	"stagehand/internal/pipeline"
	"stagehand/internal/services"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage production jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsReviewCommand(ctx))
	jobsCmd.AddCommand(newJobsFinalizeCommand(ctx))
	jobsCmd.AddCommand(newJobsRetryCommand(ctx))
	jobsCmd.AddCommand(newJobsLogsCommand(ctx))
	jobsCmd.AddCommand(newJobsRemoveCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]jobs.Status, 0, len(listStatuses))
			for _, raw := range listStatuses {
				status, ok := jobs.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				statuses = append(statuses, status)
			}

			return ctx.withRegistry(func(registry jobs.Registry) error {
				list, err := registry.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Track", "Status", "Progress", "Created"},
					buildJobListRows(list),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by job status (repeatable)")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <job>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRegistry(func(registry jobs.Registry) error {
				job, err := resolveJob(cmd.Context(), registry, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, map[string]any{
						"id":         job.ID,
						"status":     string(job.Status),
						"progress":   job.Progress,
						"created_at": job.CreatedAt,
						"updated_at": job.UpdatedAt,
						"attributes": job.Attributes,
						"timeline":   job.Timeline,
					})
				}
				printJobDetail(cmd, job)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the job as JSON")
	return cmd
}

func printJobDetail(cmd *cobra.Command, job *jobs.Job) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader(job.DisplayName(), colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Job ID", statusInfo, job.ID, colorize))
	fmt.Fprintln(out, renderStatusLine("Status", jobStatusKind(job.Status), formatStatusLabel(string(job.Status)), colorize))
	fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, fmt.Sprintf("%d%%", job.Progress), colorize))
	fmt.Fprintln(out, renderStatusLine("Created", statusInfo, formatDisplayTime(job.CreatedAt), colorize))
	fmt.Fprintln(out, renderStatusLine("Updated", statusInfo, formatDisplayTime(job.UpdatedAt), colorize))
	if errMsg := job.Attr(jobs.AttrError); errMsg != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, errMsg, colorize))
	}

	if keys := sortedAttrKeys(job); len(keys) > 0 {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(keys))
		for _, key := range keys {
			rows = append(rows, []string{key, job.Attributes[key]})
		}
		fmt.Fprint(out, renderTable(
			[]string{"Attribute", "Value"},
			rows,
			[]columnAlignment{alignLeft, alignLeft},
		))
	}

	if rows := buildTimelineRows(job); len(rows) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTable(
			[]string{"Phase", "Started", "Ended", "Duration"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
		))
	}
}

func jobStatusKind(status jobs.Status) statusKind {
	switch status {
	case jobs.StatusComplete:
		return statusOK
	case jobs.StatusError:
		return statusError
	case jobs.StatusAwaitingReview, jobs.StatusReadyForFinalization:
		return statusWarn
	default:
		return statusInfo
	}
}

func newJobsReviewCommand(ctx *commandContext) *cobra.Command {
	var correctionsPath string

	cmd := &cobra.Command{
		Use:   "review <job>",
		Short: "Submit review corrections and trigger a preview re-render",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload []byte
			if path := strings.TrimSpace(correctionsPath); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read corrections: %w", err)
				}
				payload = data
			}

			return ctx.withPipeline(func(orch *pipeline.Orchestrator, registry jobs.Registry) error {
				job, err := resolveJob(cmd.Context(), registry, args[0])
				if err != nil {
					return err
				}
				if _, err := orch.RequestReview(cmd.Context(), job.ID, payload); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Review submitted for job %s; preview re-render queued\n", shortID(job.ID))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&correctionsPath, "corrections", "", "Lyric corrections file applied before the re-render")
	return cmd
}

func newJobsFinalizeCommand(ctx *commandContext) *cobra.Command {
	var instrumental string

	cmd := &cobra.Command{
		Use:   "finalize <job>",
		Short: "Approve a job for final assembly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(orch *pipeline.Orchestrator, registry jobs.Registry) error {
				job, err := resolveJob(cmd.Context(), registry, args[0])
				if err != nil {
					return err
				}
				if _, err := orch.RequestFinalize(cmd.Context(), job.ID, instrumental); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s approved for finalization\n", shortID(job.ID))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&instrumental, "instrumental", "", "Instrumental selection (stem, original, or a file path)")
	return cmd
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job>",
		Short: "Return an errored job to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPipeline(func(orch *pipeline.Orchestrator, registry jobs.Registry) error {
				job, err := resolveJob(cmd.Context(), registry, args[0])
				if err != nil {
					return err
				}
				if _, err := orch.Retry(cmd.Context(), job.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s returned to queue\n", shortID(job.ID))
				return nil
			})
		},
	}
}

func newJobsLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int

	cmd := &cobra.Command{
		Use:   "logs <job>",
		Short: "Show a job's processing log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if lines <= 0 {
				return errors.New("--lines must be positive")
			}
			return ctx.withRegistry(func(registry jobs.Registry) error {
				job, err := resolveJob(cmd.Context(), registry, args[0])
				if err != nil {
					return err
				}
				entries, err := jobLogStore(ctx.configValue()).ReadLast(job.ID, lines)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
					return nil
				}
				for _, entry := range entries {
					fmt.Fprintln(cmd.OutOrStdout(), entry)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of lines to show")
	return cmd
}

func newJobsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job>",
		Short: "Delete a job from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRegistry(func(registry jobs.Registry) error {
				job, err := resolveJob(cmd.Context(), registry, args[0])
				if err != nil {
					return err
				}
				if job.Status.IsWorking() {
					return fmt.Errorf("job %s is %s; wait for the phase to finish or stop the daemon first",
						shortID(job.ID), job.Status)
				}
				removed, err := registry.Delete(cmd.Context(), job.ID)
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "Job %s not found\n", shortID(job.ID))
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s removed\n", shortID(job.ID))
				return nil
			})
		},
	}
}

// resolveJob accepts a full job ID or a unique prefix of one. Prefix matching
// keeps the CLI usable with the short IDs the list output prints.
func resolveJob(ctx context.Context, registry jobs.Registry, ref string) (*jobs.Job, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("job id required")
	}

	job, err := registry.Get(ctx, ref)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, services.ErrNotFound) {
		return nil, err
	}

	list, listErr := registry.List(ctx)
	if listErr != nil {
		return nil, listErr
	}
	var match *jobs.Job
	for _, candidate := range list {
		if !strings.HasPrefix(candidate.ID, ref) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("job id %q is ambiguous", ref)
		}
		match = candidate
	}
	if match == nil {
		return nil, err
	}
	return match, nil
}
