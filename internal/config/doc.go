// Package config loads, normalizes, and validates Stagehand configuration.
//
// Configuration lives in a TOML file (default ~/.config/stagehand/config.toml)
// with one section per subsystem. Load applies defaults for missing values,
// expands ~ in path fields, pulls secrets from the environment when the file
// leaves them blank, and rejects configurations the daemon cannot run with.
package config
