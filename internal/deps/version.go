package deps

import (
	"os/exec"
	"strings"
)

// versionArgs maps tool commands to the flag that prints their version.
// rclone takes a subcommand instead of a flag.
var versionArgs = map[string][]string{
	"ffmpeg":  {"-version"},
	"ffprobe": {"-version"},
	"rclone":  {"version"},
}

// Version runs the tool's version command and returns the first output line,
// or an empty string when the tool cannot report one. Best effort only; this
// feeds status display, never gating.
func Version(command string) string {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return ""
	}
	args, ok := versionArgs[baseName(cmd)]
	if !ok {
		args = []string{"--version"}
	}
	out, err := exec.Command(cmd, args...).Output()
	if err != nil {
		return ""
	}
	return firstLine(out)
}

func baseName(command string) string {
	if idx := strings.LastIndexByte(command, '/'); idx >= 0 {
		return command[idx+1:]
	}
	return command
}

func firstLine(out []byte) string {
	text := strings.TrimSpace(string(out))
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
