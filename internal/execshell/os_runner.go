package execshell

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
)

const environmentAssignmentSeparatorConstant = "="

// OSCommandRunner executes shell commands through os/exec.
type OSCommandRunner struct{}

// NewOSCommandRunner constructs a runner backed by the operating system.
func NewOSCommandRunner() *OSCommandRunner {
	return &OSCommandRunner{}
}

// Run executes the supplied command and captures its output streams.
//
// Non-zero exits are reported through ExecutionResult.ExitCode rather than an
// error so callers can distinguish failed commands from commands that never ran.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executable := runner.buildExecutable(executionContext, command)

	var standardOutputBuffer bytes.Buffer
	var standardErrorBuffer bytes.Buffer
	executable.Stdout = &standardOutputBuffer
	executable.Stderr = &standardErrorBuffer

	runError := executable.Run()
	if runError != nil {
		exitError := &exec.ExitError{}
		if !errors.As(runError, &exitError) {
			return ExecutionResult{}, runError
		}
		return ExecutionResult{
			StandardOutput: standardOutputBuffer.String(),
			StandardError:  standardErrorBuffer.String(),
			ExitCode:       exitError.ExitCode(),
		}, nil
	}

	return ExecutionResult{
		StandardOutput: standardOutputBuffer.String(),
		StandardError:  standardErrorBuffer.String(),
		ExitCode:       0,
	}, nil
}

func (runner *OSCommandRunner) buildExecutable(executionContext context.Context, command ShellCommand) *exec.Cmd {
	commandArguments := append([]string{}, command.Details.Arguments...)
	executable := exec.CommandContext(executionContext, string(command.Name), commandArguments...)

	if len(command.Details.WorkingDirectory) > 0 {
		executable.Dir = command.Details.WorkingDirectory
	}

	if len(command.Details.EnvironmentVariables) > 0 {
		mergedEnvironment := append([]string{}, os.Environ()...)
		for environmentKey, environmentValue := range command.Details.EnvironmentVariables {
			mergedEnvironment = append(mergedEnvironment, environmentKey+environmentAssignmentSeparatorConstant+environmentValue)
		}
		executable.Env = mergedEnvironment
	}

	if len(command.Details.StandardInput) > 0 {
		executable.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	return executable
}
