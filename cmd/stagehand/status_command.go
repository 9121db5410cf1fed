package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"stagehand/internal/config"
	"stagehand/internal/daemon"
	"stagehand/internal/deps"
	"stagehand/internal/jobs"
	"stagehand/internal/preflight"
	"stagehand/internal/resourcelock"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and job status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			running, pid := daemon.Probe(cfg)
			tools := preflight.CheckTools(cfg)
			gpu := resourcelock.New(cfg.Paths.LockDir, "gpu", cfg.Separation.GPUSlots, nil)

			var health jobs.HealthSummary
			registryErr := ctx.withRegistry(func(registry jobs.Registry) error {
				list, err := registry.List(cmd.Context())
				if err != nil {
					return err
				}
				health = jobs.Summarize(list)
				return nil
			})

			if asJSON {
				payload := map[string]any{
					"daemon": map[string]any{
						"running": running,
						"pid":     pid,
						"store":   daemon.StoreDescription(cfg),
					},
					"jobs":         health,
					"dependencies": tools,
					"gpu_slots":    gpu.Holders(),
				}
				if registryErr != nil {
					payload["registry_error"] = registryErr.Error()
				}
				return writeJSON(cmd, payload)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, daemonStatusLine(running, pid, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Registry", statusInfo, daemon.StoreDescription(cfg), colorize))
			if registryErr != nil {
				fmt.Fprintln(stdout, renderStatusLine("Registry Access", statusError, registryErr.Error(), colorize))
			}
			for _, holder := range gpu.Holders() {
				detail := fmt.Sprintf("pid %d on %s (%s)", holder.PID, holder.Hostname, holder.Description)
				fmt.Fprintln(stdout, renderStatusLine("GPU Slot", statusInfo, detail, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range dependencyLines(tools, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Directories", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, directoryStatusLine("Staging", cfg.Paths.StagingDir, colorize))
			if cfg.Paths.LibraryDir != "" {
				fmt.Fprintln(stdout, directoryStatusLine("Library", cfg.Paths.LibraryDir, colorize))
			}
			fmt.Fprintln(stdout, directoryStatusLine("Logs", cfg.Paths.LogDir, colorize))
			fmt.Fprintln(stdout, directoryStatusLine("Locks", cfg.Paths.LockDir, colorize))
			fmt.Fprintln(stdout, notificationStatusLine(cfg, colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Jobs", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if registryErr != nil {
				fmt.Fprintln(stdout, "Registry unavailable")
				return nil
			}
			if health.Total == 0 {
				fmt.Fprintln(stdout, "No jobs recorded")
				return nil
			}
			fmt.Fprint(stdout, renderTable(
				[]string{"State", "Count"},
				buildHealthRows(health),
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit status as JSON")
	return cmd
}

func daemonStatusLine(running bool, pid int, colorize bool) string {
	if !running {
		return renderStatusLine("Daemon", statusWarn, "Not running", colorize)
	}
	detail := "Running"
	if pid > 0 {
		detail = fmt.Sprintf("Running (pid %d)", pid)
	}
	return renderStatusLine("Daemon", statusOK, detail, colorize)
}

func dependencyLines(tools []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(tools)+1)
	missing := make([]string, 0)
	for _, tool := range tools {
		if tool.Available {
			message := "Ready"
			if version := deps.Version(tool.Command); version != "" {
				message = fmt.Sprintf("Ready (%s)", version)
			} else if tool.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", tool.Command)
			}
			lines = append(lines, renderStatusLine(tool.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(tool.Detail)
		if detail == "" {
			detail = "not available"
		}
		if tool.Optional {
			lines = append(lines, renderStatusLine(tool.Name, statusWarn, detail+" (optional)", colorize))
			continue
		}
		lines = append(lines, renderStatusLine(tool.Name, statusError, detail, colorize))
		missing = append(missing, tool.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing tools", statusError, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func directoryStatusLine(label, path string, colorize bool) string {
	result := preflight.CheckDirectoryAccess(label, path)
	if result.Passed {
		return renderStatusLine(label, statusOK, result.Detail, colorize)
	}
	return renderStatusLine(label, statusError, result.Detail, colorize)
}

func notificationStatusLine(cfg *config.Config, colorize bool) string {
	result := preflight.CheckNtfyFromConfig(cfg)
	if result.Passed {
		return renderStatusLine(result.Name, statusOK, result.Detail, colorize)
	}
	return renderStatusLine(result.Name, statusWarn, result.Detail, colorize)
}

func buildHealthRows(health jobs.HealthSummary) [][]string {
	type entry struct {
		label string
		count int
	}
	entries := []entry{
		{"Queued", health.Queued},
		{"Working", health.Working},
		{"Awaiting review", health.AwaitingReview},
		{"Ready to finalize", health.ReadyToFinal},
		{"Errored", health.Errored},
		{"Complete", health.Complete},
	}
	rows := make([][]string, 0, len(entries)+1)
	for _, e := range entries {
		if e.count == 0 {
			continue
		}
		rows = append(rows, []string{e.label, strconv.Itoa(e.count)})
	}
	rows = append(rows, []string{"Total", strconv.Itoa(health.Total)})
	return rows
}
