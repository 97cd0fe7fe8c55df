package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/mcp-getgather/mcp-gateway/internal/gatewayerr"
	"github.com/mcp-getgather/mcp-gateway/internal/log"
)

var runnerLog = log.With("engine")

// Default per-call timeouts, per §4.1 of the requirements document.
const (
	DefaultTimeout  = 5 * time.Second
	PullTimeout     = 180 * time.Second
	CreateTimeout   = 30 * time.Second
	ExecTimeout     = 5 * time.Second
)

// runCLI runs `name args...` (optionally under sudo via asRoot), waits up to
// timeout, and returns trimmed stdout. A non-zero exit is EngineFailure; a
// timeout is EngineTimeout. Mirrors the original's run_cli helper, including
// killing the process on timeout instead of leaving it to finish.
func runCLI(ctx context.Context, name string, args []string, env []string, asRoot bool, timeout time.Duration) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bin := name
	cmdArgs := args
	if asRoot {
		cmdArgs = append([]string{name}, args...)
		bin = "sudo"
	}

	cmd := exec.CommandContext(runCtx, bin, cmdArgs...)
	if env != nil {
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	cmdStr := fmt.Sprintf("%s %v", name, args)

	if runCtx.Err() == context.DeadlineExceeded {
		return "", gatewayerr.EngineTimeout("CLI timed out after %s\nCommand: %s", timeout, cmdStr)
	}

	if err != nil {
		errMsg := trimmed(stderr.String())
		runnerLog.Warn("cli command failed", "command", cmdStr, "error", errMsg)
		if errMsg != "" {
			return "", gatewayerr.EngineFailure(err, "CLI failed: %s\nCommand: %s", errMsg, cmdStr)
		}
		return "", gatewayerr.EngineFailure(err, "CLI failed (%v)\nCommand: %s", err, cmdStr)
	}

	runnerLog.Debug("executed cli command", "command", cmdStr)
	return trimmed(stdout.String()), nil
}

func trimmed(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}

// SocketFor returns the unix socket URL for the given engine, matching the
// original's OS-dependent path selection (Linux system path vs per-user
// path on macOS).
func SocketFor(engineName string) string {
	switch engineName {
	case "podman":
		if runtime.GOOS == "darwin" {
			return "unix://" + homeExpand("~/.local/share/containers/podman/machine/podman.sock")
		}
		return "unix:///run/podman/podman.sock"
	default: // docker
		if runtime.GOOS == "darwin" {
			return "unix://" + homeExpand("~/.docker/run/docker.sock")
		}
		return "unix:///var/run/docker.sock"
	}
}

func homeExpand(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}
