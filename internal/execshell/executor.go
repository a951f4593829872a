package execshell

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	loggerNotConfiguredMessageConstant        = "logger not configured"
	commandRunnerNotConfiguredMessageConstant = "command runner not configured"
	commandFailedTemplateConstant             = "%s command failed with exit code %d: %s"
	commandExecutionFailedTemplateConstant    = "%s command execution failed: %s"
	commandStartingMessageConstant            = "shell command starting"
	commandCompletedMessageConstant           = "shell command completed"
	commandExecutionFailedMessageConstant     = "shell command execution failed"
	logFieldCommandConstant                   = "command"
	logFieldArgumentsConstant                 = "arguments"
	logFieldWorkingDirectoryConstant          = "working_directory"
	logFieldExitCodeConstant                  = "exit_code"
)

// Sentinel construction errors reported by NewShellExecutor.
var (
	// ErrLoggerNotConfigured indicates the executor was constructed without a logger.
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)
	// ErrCommandRunnerNotConfigured indicates the executor was constructed without a runner.
	ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)
)

// CommandFailedError reports a command that completed with a non-zero exit code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error formats the failure including exit code and captured standard error.
func (failedError CommandFailedError) Error() string {
	return fmt.Sprintf(commandFailedTemplateConstant, failedError.Command.Name, failedError.Result.ExitCode, failedError.Result.StandardError)
}

// CommandExecutionError reports a command that could not be executed at all.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error formats the execution failure with its underlying cause.
func (executionError CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionFailedTemplateConstant, executionError.Command.Name, executionError.Cause)
}

// Unwrap exposes the underlying cause for errors.Is and errors.As inspection.
func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}

// CommandRunner executes shell commands and reports their results.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// ShellExecutor coordinates external tool invocations with logging and event observation.
type ShellExecutor struct {
	logger        *zap.Logger
	commandRunner CommandRunner
	eventObserver CommandEventObserver
}

// NewShellExecutor validates collaborators and assembles a ShellExecutor.
func NewShellExecutor(logger *zap.Logger, commandRunner CommandRunner) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if commandRunner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}

	return &ShellExecutor{
		logger:        logger,
		commandRunner: commandRunner,
		eventObserver: discardingCommandEventObserver{},
	}, nil
}

// SetCommandEventObserver replaces the observer notified about command lifecycle events.
func (executor *ShellExecutor) SetCommandEventObserver(observer CommandEventObserver) {
	if observer == nil {
		executor.eventObserver = discardingCommandEventObserver{}
		return
	}
	executor.eventObserver = observer
}

// ExecuteGit runs git with the provided details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	gitCommand := ShellCommand{Name: CommandGit, Details: details}
	return executor.Execute(executionContext, gitCommand)
}

// ExecuteHistoryFilter runs the resolved history-filtering executable with the provided details.
func (executor *ShellExecutor) ExecuteHistoryFilter(executionContext context.Context, executablePath string, details CommandDetails) (ExecutionResult, error) {
	filterCommand := ShellCommand{Name: CommandName(executablePath), Details: details}
	return executor.Execute(executionContext, filterCommand)
}

// Execute runs an arbitrary shell command through the configured runner.
//
// Commands that complete with a non-zero exit code return CommandFailedError;
// callers probing repository state inspect the error rather than treating it as
// fatal. Commands that cannot be started at all return CommandExecutionError.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executor.eventObserver.CommandStarted(command)
	executor.logger.Debug(
		commandStartingMessageConstant,
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
	)

	executionResult, runError := executor.commandRunner.Run(executionContext, command)
	if runError != nil {
		executor.eventObserver.CommandExecutionFailed(command, runError)
		executor.logger.Error(
			commandExecutionFailedMessageConstant,
			zap.String(logFieldCommandConstant, string(command.Name)),
			zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
			zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
			zap.Error(runError),
		)
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}

	executor.eventObserver.CommandCompleted(command, executionResult)
	executor.logger.Debug(
		commandCompletedMessageConstant,
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
		zap.Int(logFieldExitCodeConstant, executionResult.ExitCode),
	)

	if executionResult.ExitCode != 0 {
		return ExecutionResult{}, CommandFailedError{Command: command, Result: executionResult}
	}

	return executionResult, nil
}
