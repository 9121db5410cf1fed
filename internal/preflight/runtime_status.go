package preflight

import (
	"context"
	"strings"

	"stagehand/internal/config"
)

// CheckNtfyFromConfig evaluates notification status from config and connectivity.
// An unset topic reports as passed: notifications are optional and leaving
// them off is a valid configuration, not a fault.
func CheckNtfyFromConfig(cfg *config.Config) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	check := CheckNtfy(context.Background(), cfg.Notifications.NtfyTopic)
	if check.Passed {
		return Result{Name: name, Passed: true, Detail: check.Detail}
	}
	return Result{Name: name, Detail: check.Detail}
}
