package execshell

// CommandEventObserver receives lifecycle notifications while the executor
// drives git and history-filter invocations.
type CommandEventObserver interface {
	// CommandStarted announces that the executor is about to run a command.
	CommandStarted(command ShellCommand)
	// CommandCompleted delivers the result of a command that ran to completion.
	CommandCompleted(command ShellCommand, result ExecutionResult)
	// CommandExecutionFailed reports commands that never produced a result.
	CommandExecutionFailed(command ShellCommand, failure error)
}

// discardingCommandEventObserver ignores every lifecycle notification.
type discardingCommandEventObserver struct{}

func (discardingCommandEventObserver) CommandStarted(ShellCommand) {}

func (discardingCommandEventObserver) CommandCompleted(ShellCommand, ExecutionResult) {}

func (discardingCommandEventObserver) CommandExecutionFailed(ShellCommand, error) {}
