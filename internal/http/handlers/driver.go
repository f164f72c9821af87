package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"studio/internal/infra"
)

// DriverRunner runs the generation driver with args and returns its stdout.
type DriverRunner func(ctx context.Context, args []string) ([]byte, error)

// DriverError is a failed driver run.
type DriverError struct {
	ExitCode int
	Stderr   string
}

func (e *DriverError) Error() string {
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return fmt.Sprintf("generation failed with exit code %d", e.ExitCode)
	}
	return "generation failed: " + last
}

// ExecDriver runs the binary at path as a child process.
func ExecDriver(path string, logger *infra.Logger) DriverRunner {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return func(ctx context.Context, args []string) ([]byte, error) {
		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, path, args...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		logger.Debug().Str("driver", path).Strs("args", args).Msg("starting generation driver")
		err := cmd.Run()
		if err == nil {
			return stdout.Bytes(), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("generation driver: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &DriverError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, fmt.Errorf("generation driver: %w", err)
	}
}
