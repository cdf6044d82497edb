package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/remedystack/remedy-engine/internal/models"
	"github.com/remedystack/remedy-engine/internal/utils"
)

// Executor runs remediation commands as isolated subprocesses. Commands are
// of the form "<script> <args...>"; the script name is resolved against the
// configured scripts directory and nothing outside it is ever executed.
type Executor struct {
	scriptsDir string
	timeout    time.Duration
	logger     *slog.Logger
	latency    *utils.LatencyTracker
}

// New constructs an Executor.
func New(logger *slog.Logger, scriptsDir string, timeout time.Duration) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{
		scriptsDir: scriptsDir,
		timeout:    timeout,
		logger:     logger,
		latency:    utils.NewLatencyTracker(256),
	}
}

// Run executes a remediation command and reports the outcome. It never
// returns an error: a missing or failing script yields a result with
// Success=false and a descriptive Output, and the caller decides whether to
// retry on a later sweep.
func (e *Executor) Run(ctx context.Context, command string) models.ExecutionResult {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return models.ExecutionResult{Success: false, Output: "empty remediation command"}
	}
	name, args := fields[0], fields[1:]

	scriptPath := filepath.Join(e.scriptsDir, filepath.Base(name))
	if err := checkScript(scriptPath); err != nil {
		e.logger.Error("remediation script unavailable",
			slog.String("script", name),
			slog.Any("error", err))
		return models.ExecutionResult{Success: false, Output: err.Error()}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, scriptPath, args...)
	cmd.Dir = e.scriptsDir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Info("executing remediation",
		slog.String("script", name),
		slog.String("args", strings.Join(args, " ")))

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	e.latency.Observe(elapsed)

	output := strings.TrimSpace(stdout.String())
	if s := strings.TrimSpace(stderr.String()); s != "" {
		if output != "" {
			output += "\n"
		}
		output += s
	}

	if execCtx.Err() == context.DeadlineExceeded {
		e.logger.Error("remediation timed out",
			slog.String("script", name),
			slog.Duration("timeout", e.timeout))
		return models.ExecutionResult{
			Success:  false,
			Duration: elapsed,
			Output:   fmt.Sprintf("timed out after %s", e.timeout),
		}
	}

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		e.logger.Error("remediation failed",
			slog.String("script", name),
			slog.Int("exit_code", exitCode),
			slog.String("output", output))
		if output == "" {
			output = err.Error()
		}
		return models.ExecutionResult{Success: false, Duration: elapsed, Output: output}
	}

	e.logger.Info("remediation succeeded",
		slog.String("script", name),
		slog.Duration("elapsed", elapsed))
	return models.ExecutionResult{Success: true, Duration: elapsed, Output: output}
}

// LatencyP95 reports the 95th percentile script runtime over recent runs.
func (e *Executor) LatencyP95() time.Duration {
	return e.latency.Percentile(95)
}

func checkScript(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("script not found: %s", path)
		}
		return fmt.Errorf("stat script %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("script is not a regular file: %s", path)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("script is not executable: %s", path)
	}
	return nil
}
