package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"stagehand/internal/jobs"
)

func buildJobListRows(list []*jobs.Job) [][]string {
	if len(list) == 0 {
		return nil
	}
	sorted := make([]*jobs.Job, len(list))
	copy(sorted, list)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	rows := make([][]string, 0, len(sorted))
	for _, job := range sorted {
		rows = append(rows, []string{
			shortID(job.ID),
			job.DisplayName(),
			formatStatusLabel(string(job.Status)),
			fmt.Sprintf("%d%%", job.Progress),
			formatDisplayTime(job.CreatedAt),
		})
	}
	return rows
}

func buildTimelineRows(job *jobs.Job) [][]string {
	if job == nil || len(job.Timeline) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(job.Timeline))
	for _, rec := range job.Timeline {
		ended := "-"
		duration := "-"
		if rec.EndedAt != nil {
			ended = formatDisplayTime(*rec.EndedAt)
		}
		if rec.DurationSeconds != nil {
			duration = formatSeconds(*rec.DurationSeconds)
		}
		rows = append(rows, []string{
			formatStatusLabel(string(rec.Status)),
			formatDisplayTime(rec.StartedAt),
			ended,
			duration,
		})
	}
	return rows
}

func sortedAttrKeys(job *jobs.Job) []string {
	if job == nil || len(job.Attributes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(job.Attributes))
	for key := range job.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func formatSeconds(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
