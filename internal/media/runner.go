package media

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// CommandResult captures one external command invocation.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner abstracts process execution so ffmpeg, ffprobe and whisper can be faked in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// IsMissingBinary reports whether err means the executable could not be found.
func IsMissingBinary(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}
