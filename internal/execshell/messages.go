package execshell

import (
	"fmt"
	"path/filepath"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
	fallbackUnknownValueLabelConstant       = "unknown"
)

const (
	gitInitSubcommandNameConstant         = "init"
	gitCloneSubcommandNameConstant        = "clone"
	gitRevParseSubcommandNameConstant     = "rev-parse"
	gitWorkTreeFlagConstant               = "--is-inside-work-tree"
	gitAbbrevRefFlagConstant              = "--abbrev-ref"
	gitHeadReferenceConstant              = "HEAD"
	gitCheckoutSubcommandNameConstant     = "checkout"
	gitCreateBranchFlagConstant           = "-b"
	gitBranchSubcommandNameConstant       = "branch"
	gitMoveBranchFlagConstant             = "-m"
	gitForceMoveBranchFlagConstant        = "-M"
	gitRemoteSubcommandNameConstant       = "remote"
	gitRemoteAddSubcommandNameConstant    = "add"
	gitRemoteRemoveSubcommandNameConstant = "remove"
	gitFetchSubcommandNameConstant        = "fetch"
	gitMergeSubcommandNameConstant        = "merge"
	gitLogSubcommandNameConstant          = "log"
	gitFilterBranchSubcommandNameConstant = "filter-branch"
	gitResetSubcommandNameConstant        = "reset"
	gitAddSubcommandNameConstant          = "add"
	gitRemoveSubcommandNameConstant       = "rm"
	gitCommitSubcommandNameConstant       = "commit"
	gitMessageFlagConstant                = "-m"
	gitConfigurationFlagConstant          = "-c"
	gitFetchAllRemotesLabelConstant       = "all remotes"
)

const (
	gitInitStartTemplateConstant                     = "Initializing repository at %s"
	gitInitSuccessTemplateConstant                   = "Initialized repository at %s"
	gitInitFailureTemplateConstant                   = "Failed to initialize repository at %s (exit code %d%s)"
	gitInitExecutionFailureTemplateConstant          = "Unable to initialize repository at %s: %s"
	gitCloneStartTemplateConstant                    = "Cloning %s into %s"
	gitCloneSuccessTemplateConstant                  = "Cloned %s into %s"
	gitCloneFailureTemplateConstant                  = "Failed to clone %s into %s (exit code %d%s)"
	gitCloneExecutionFailureTemplateConstant         = "Unable to clone %s into %s: %s"
	gitWorkTreeStartTemplateConstant                 = "Analyzing repository at %s"
	gitWorkTreeSuccessTemplateConstant               = "%s is a Git repository"
	gitWorkTreeFailureTemplateConstant               = "Could not confirm %s is a Git repository (exit code %d%s)"
	gitWorkTreeExecutionFailureTemplateConstant      = "Could not analyze %s: %s"
	gitCurrentBranchStartTemplateConstant            = "Identifying current branch in %s"
	gitCurrentBranchSuccessTemplateConstant          = "Current branch in %s is %s"
	gitCurrentBranchDetachedSuccessTemplateConstant  = "%s is in a detached HEAD state"
	gitCurrentBranchFailureTemplateConstant          = "Failed to identify current branch in %s (exit code %d%s)"
	gitCurrentBranchExecutionFailureTemplateConstant = "Unable to identify current branch in %s: %s"
	gitRevisionStartTemplateConstant                 = "Resolving %s in %s"
	gitRevisionSuccessTemplateConstant               = "%s in %s resolved to %s"
	gitRevisionEmptySuccessTemplateConstant          = "%s in %s did not resolve to a revision"
	gitRevisionFailureTemplateConstant               = "Failed to resolve %s in %s (exit code %d%s)"
	gitRevisionExecutionFailureTemplateConstant      = "Unable to resolve %s in %s: %s"
	gitCheckoutStartTemplateConstant                 = "Switching %s to branch %s"
	gitCheckoutCreateStartTemplateConstant           = "Creating and switching %s to branch %s"
	gitCheckoutSuccessTemplateConstant               = "%s now on branch %s"
	gitCheckoutFailureTemplateConstant               = "Failed to switch %s to branch %s (exit code %d%s)"
	gitCheckoutExecutionFailureTemplateConstant      = "Unable to switch %s to branch %s: %s"
	gitBranchRenameStartTemplateConstant             = "Renaming current branch to %s in %s"
	gitBranchRenameSuccessTemplateConstant           = "Renamed current branch to %s in %s"
	gitBranchRenameFailureTemplateConstant           = "Failed to rename current branch to %s in %s (exit code %d%s)"
	gitBranchRenameExecutionFailureTemplateConstant  = "Unable to rename current branch to %s in %s: %s"
	gitRemoteAddStartTemplateConstant                = "Adding remote %s pointing at %s in %s"
	gitRemoteAddSuccessTemplateConstant              = "Added remote %s pointing at %s in %s"
	gitRemoteAddFailureTemplateConstant              = "Failed to add remote %s pointing at %s in %s (exit code %d%s)"
	gitRemoteAddExecutionFailureTemplateConstant     = "Unable to add remote %s pointing at %s in %s: %s"
	gitRemoteRemoveStartTemplateConstant             = "Removing remote %s in %s"
	gitRemoteRemoveSuccessTemplateConstant           = "Removed remote %s in %s"
	gitRemoteRemoveFailureTemplateConstant           = "Failed to remove remote %s in %s (exit code %d%s)"
	gitRemoteRemoveExecutionFailureTemplateConstant  = "Unable to remove remote %s in %s: %s"
	gitFetchStartTemplateConstant                    = "Fetching %s from %s in %s"
	gitFetchWithoutRefsStartTemplateConstant         = "Fetching from %s in %s"
	gitFetchSuccessTemplateConstant                  = "Fetched %s from %s in %s"
	gitFetchWithoutRefsSuccessTemplateConstant       = "Fetched from %s in %s"
	gitFetchFailureTemplateConstant                  = "Failed to fetch %s from %s in %s (exit code %d%s)"
	gitFetchWithoutRefsFailureTemplateConstant       = "Failed to fetch from %s in %s (exit code %d%s)"
	gitFetchExecutionFailureTemplateConstant         = "Unable to fetch %s from %s in %s: %s"
	gitFetchWithoutRefsExecutionFailureTemplate      = "Unable to fetch from %s in %s: %s"
	gitMergeStartTemplateConstant                    = "Merging %s into %s"
	gitMergeSuccessTemplateConstant                  = "Merged %s into %s"
	gitMergeFailureTemplateConstant                  = "Failed to merge %s into %s (exit code %d%s)"
	gitMergeExecutionFailureTemplateConstant         = "Unable to merge %s into %s: %s"
	gitHistoryListStartTemplateConstant              = "Listing historical paths in %s"
	gitHistoryListSuccessTemplateConstant            = "Listed historical paths in %s"
	gitHistoryListFailureTemplateConstant            = "Failed to list historical paths in %s (exit code %d%s)"
	gitHistoryListExecutionFailureTemplateConstant   = "Unable to list historical paths in %s: %s"
	gitFilterBranchStartTemplateConstant             = "Rewriting history in %s"
	gitFilterBranchSuccessTemplateConstant           = "Rewrote history in %s"
	gitFilterBranchFailureTemplateConstant           = "Failed to rewrite history in %s (exit code %d%s)"
	gitFilterBranchExecutionFailureTemplateConstant  = "Unable to rewrite history in %s: %s"
	gitResetStartTemplateConstant                    = "Resetting working tree in %s"
	gitResetSuccessTemplateConstant                  = "Reset working tree in %s"
	gitResetFailureTemplateConstant                  = "Failed to reset working tree in %s (exit code %d%s)"
	gitResetExecutionFailureTemplateConstant         = "Unable to reset working tree in %s: %s"
	gitAddStartTemplateConstant                      = "Staging %s in %s"
	gitAddSuccessTemplateConstant                    = "Staged %s in %s"
	gitAddFailureTemplateConstant                    = "Failed to stage %s in %s (exit code %d%s)"
	gitAddExecutionFailureTemplateConstant           = "Unable to stage %s in %s: %s"
	gitRemoveStartTemplateConstant                   = "Removing %s in %s"
	gitRemoveSuccessTemplateConstant                 = "Removed %s in %s"
	gitRemoveFailureTemplateConstant                 = "Failed to remove %s in %s (exit code %d%s)"
	gitRemoveExecutionFailureTemplateConstant        = "Unable to remove %s in %s: %s"
	gitCommitStartTemplateConstant                   = "Creating commit in %s with message %q"
	gitCommitSuccessTemplateConstant                 = "Created commit in %s with message %q"
	gitCommitFailureTemplateConstant                 = "Failed to create commit in %s with message %q (exit code %d%s)"
	gitCommitExecutionFailureTemplateConstant        = "Unable to create commit in %s with message %q: %s"
	filterToolStartTemplateConstant                  = "Filtering history with %s in %s"
	filterToolSuccessTemplateConstant                = "Filtered history with %s in %s"
	filterToolFailureTemplateConstant                = "Failed to filter history with %s in %s (exit code %d%s)"
	filterToolExecutionFailureTemplateConstant       = "Unable to filter history with %s in %s: %s"
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if command.Name == CommandGit {
		return formatter.describeGitMessage(command, result, failure, stage)
	}
	return formatter.describeFilterToolMessage(command, result, failure, stage)
}

func (formatter CommandMessageFormatter) describeGitMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	subcommand := formatter.resolveGitSubcommand(command.Details.Arguments)
	if len(subcommand) == 0 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
	switch subcommand {
	case gitInitSubcommandNameConstant:
		return formatter.describeGitInitMessage(command, result, failure, stage)
	case gitCloneSubcommandNameConstant:
		return formatter.describeGitCloneMessage(command, result, failure, stage)
	case gitRevParseSubcommandNameConstant:
		return formatter.describeGitRevParseMessage(command, result, failure, stage)
	case gitCheckoutSubcommandNameConstant:
		return formatter.describeGitCheckoutMessage(command, result, failure, stage)
	case gitBranchSubcommandNameConstant:
		return formatter.describeGitBranchMessage(command, result, failure, stage)
	case gitRemoteSubcommandNameConstant:
		return formatter.describeGitRemoteMessage(command, result, failure, stage)
	case gitFetchSubcommandNameConstant:
		return formatter.describeGitFetchMessage(command, result, failure, stage)
	case gitMergeSubcommandNameConstant:
		return formatter.describeGitMergeMessage(command, result, failure, stage)
	case gitLogSubcommandNameConstant:
		return formatter.describeGitHistoryListMessage(command, result, failure, stage)
	case gitFilterBranchSubcommandNameConstant:
		return formatter.describeGitFilterBranchMessage(command, result, failure, stage)
	case gitResetSubcommandNameConstant:
		return formatter.describeGitResetMessage(command, result, failure, stage)
	case gitAddSubcommandNameConstant:
		return formatter.describeGitAddMessage(command, result, failure, stage)
	case gitRemoveSubcommandNameConstant:
		return formatter.describeGitRemoveMessage(command, result, failure, stage)
	case gitCommitSubcommandNameConstant:
		return formatter.describeGitCommitMessage(command, result, failure, stage)
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitInitMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitInitStartTemplateConstant, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitInitSuccessTemplateConstant, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitInitFailureTemplateConstant, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitInitExecutionFailureTemplateConstant, workingDirectory, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitCloneMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	sourceArgument := fallbackUnknownValueLabelConstant
	targetArgument := fallbackUnknownValueLabelConstant
	positional := make([]string, 0, 2)
	for _, argument := range arguments[1:] {
		if strings.HasPrefix(argument, "-") {
			continue
		}
		positional = append(positional, argument)
	}
	if len(positional) > 0 {
		sourceArgument = positional[0]
	}
	if len(positional) > 1 {
		targetArgument = positional[1]
	}

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitCloneStartTemplateConstant, sourceArgument, targetArgument)
	case messageStageSuccess:
		return fmt.Sprintf(gitCloneSuccessTemplateConstant, sourceArgument, targetArgument)
	case messageStageFailure:
		return fmt.Sprintf(gitCloneFailureTemplateConstant, sourceArgument, targetArgument, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitCloneExecutionFailureTemplateConstant, sourceArgument, targetArgument, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitRevParseMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	workingDirectory := formatter.describeWorkingDirectory(command)

	if containsArgument(arguments, gitWorkTreeFlagConstant) {
		switch stage {
		case messageStageStart:
			return fmt.Sprintf(gitWorkTreeStartTemplateConstant, workingDirectory)
		case messageStageSuccess:
			return fmt.Sprintf(gitWorkTreeSuccessTemplateConstant, workingDirectory)
		case messageStageFailure:
			return fmt.Sprintf(gitWorkTreeFailureTemplateConstant, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
		case messageStageExecutionFailure:
			return fmt.Sprintf(gitWorkTreeExecutionFailureTemplateConstant, workingDirectory, formatter.describeFailure(failure))
		}
	}

	if containsArgument(arguments, gitAbbrevRefFlagConstant) {
		switch stage {
		case messageStageStart:
			return fmt.Sprintf(gitCurrentBranchStartTemplateConstant, workingDirectory)
		case messageStageSuccess:
			trimmed := strings.TrimSpace(result.StandardOutput)
			if strings.EqualFold(trimmed, gitHeadReferenceConstant) || len(trimmed) == 0 {
				return fmt.Sprintf(gitCurrentBranchDetachedSuccessTemplateConstant, workingDirectory)
			}
			return fmt.Sprintf(gitCurrentBranchSuccessTemplateConstant, workingDirectory, trimmed)
		case messageStageFailure:
			return fmt.Sprintf(gitCurrentBranchFailureTemplateConstant, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
		case messageStageExecutionFailure:
			return fmt.Sprintf(gitCurrentBranchExecutionFailureTemplateConstant, workingDirectory, formatter.describeFailure(failure))
		}
	}

	reference := formatter.resolveRevisionReference(arguments)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitRevisionStartTemplateConstant, reference, workingDirectory)
	case messageStageSuccess:
		trimmed := strings.TrimSpace(result.StandardOutput)
		if len(trimmed) == 0 {
			return fmt.Sprintf(gitRevisionEmptySuccessTemplateConstant, reference, workingDirectory)
		}
		return fmt.Sprintf(gitRevisionSuccessTemplateConstant, reference, workingDirectory, trimmed)
	case messageStageFailure:
		return fmt.Sprintf(gitRevisionFailureTemplateConstant, reference, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitRevisionExecutionFailureTemplateConstant, reference, workingDirectory, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitCheckoutMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	workingDirectory := formatter.describeWorkingDirectory(command)
	creatingBranch := containsArgument(arguments, gitCreateBranchFlagConstant)
	branchName := formatter.ensureValue(formatter.lastArgument(arguments))

	switch stage {
	case messageStageStart:
		if creatingBranch {
			return fmt.Sprintf(gitCheckoutCreateStartTemplateConstant, workingDirectory, branchName)
		}
		return fmt.Sprintf(gitCheckoutStartTemplateConstant, workingDirectory, branchName)
	case messageStageSuccess:
		return fmt.Sprintf(gitCheckoutSuccessTemplateConstant, workingDirectory, branchName)
	case messageStageFailure:
		return fmt.Sprintf(gitCheckoutFailureTemplateConstant, workingDirectory, branchName, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitCheckoutExecutionFailureTemplateConstant, workingDirectory, branchName, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitBranchMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	workingDirectory := formatter.describeWorkingDirectory(command)
	if !containsArgument(arguments, gitMoveBranchFlagConstant) && !containsArgument(arguments, gitForceMoveBranchFlagConstant) {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	branchName := formatter.ensureValue(formatter.lastArgument(arguments))
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitBranchRenameStartTemplateConstant, branchName, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitBranchRenameSuccessTemplateConstant, branchName, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitBranchRenameFailureTemplateConstant, branchName, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitBranchRenameExecutionFailureTemplateConstant, branchName, workingDirectory, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitRemoteMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	workingDirectory := formatter.describeWorkingDirectory(command)
	if len(arguments) < 2 {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	subcommand := strings.TrimSpace(arguments[1])
	remoteName := formatter.ensureValue(formatter.argumentAtIndex(arguments, 2))

	switch subcommand {
	case gitRemoteAddSubcommandNameConstant:
		remoteTarget := formatter.ensureValue(formatter.argumentAtIndex(arguments, 3))
		switch stage {
		case messageStageStart:
			return fmt.Sprintf(gitRemoteAddStartTemplateConstant, remoteName, remoteTarget, workingDirectory)
		case messageStageSuccess:
			return fmt.Sprintf(gitRemoteAddSuccessTemplateConstant, remoteName, remoteTarget, workingDirectory)
		case messageStageFailure:
			return fmt.Sprintf(gitRemoteAddFailureTemplateConstant, remoteName, remoteTarget, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
		case messageStageExecutionFailure:
			return fmt.Sprintf(gitRemoteAddExecutionFailureTemplateConstant, remoteName, remoteTarget, workingDirectory, formatter.describeFailure(failure))
		}
	case gitRemoteRemoveSubcommandNameConstant:
		switch stage {
		case messageStageStart:
			return fmt.Sprintf(gitRemoteRemoveStartTemplateConstant, remoteName, workingDirectory)
		case messageStageSuccess:
			return fmt.Sprintf(gitRemoteRemoveSuccessTemplateConstant, remoteName, workingDirectory)
		case messageStageFailure:
			return fmt.Sprintf(gitRemoteRemoveFailureTemplateConstant, remoteName, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
		case messageStageExecutionFailure:
			return fmt.Sprintf(gitRemoteRemoveExecutionFailureTemplateConstant, remoteName, workingDirectory, formatter.describeFailure(failure))
		}
	}

	return formatter.buildGenericMessage(command, result, failure, stage)
}

func (formatter CommandMessageFormatter) describeGitFetchMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	workingDirectory := formatter.describeWorkingDirectory(command)

	positional := make([]string, 0, len(arguments))
	for _, argument := range arguments[1:] {
		if strings.HasPrefix(argument, "-") {
			continue
		}
		positional = append(positional, argument)
	}

	remoteName := gitFetchAllRemotesLabelConstant
	if len(positional) > 0 {
		remoteName = positional[0]
	}
	references := strings.Join(positional[min(1, len(positional)):], commandArgumentsJoinSeparatorConstant)

	if len(strings.TrimSpace(references)) == 0 {
		switch stage {
		case messageStageStart:
			return fmt.Sprintf(gitFetchWithoutRefsStartTemplateConstant, remoteName, workingDirectory)
		case messageStageSuccess:
			return fmt.Sprintf(gitFetchWithoutRefsSuccessTemplateConstant, remoteName, workingDirectory)
		case messageStageFailure:
			return fmt.Sprintf(gitFetchWithoutRefsFailureTemplateConstant, remoteName, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
		case messageStageExecutionFailure:
			return fmt.Sprintf(gitFetchWithoutRefsExecutionFailureTemplate, remoteName, workingDirectory, formatter.describeFailure(failure))
		}
	}

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitFetchStartTemplateConstant, references, remoteName, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitFetchSuccessTemplateConstant, references, remoteName, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitFetchFailureTemplateConstant, references, remoteName, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitFetchExecutionFailureTemplateConstant, references, remoteName, workingDirectory, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitMergeMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	workingDirectory := formatter.describeWorkingDirectory(command)
	mergeSource := formatter.ensureValue(formatter.lastArgument(arguments))

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitMergeStartTemplateConstant, mergeSource, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitMergeSuccessTemplateConstant, mergeSource, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitMergeFailureTemplateConstant, mergeSource, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitMergeExecutionFailureTemplateConstant, mergeSource, workingDirectory, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitHistoryListMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitHistoryListStartTemplateConstant, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitHistoryListSuccessTemplateConstant, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitHistoryListFailureTemplateConstant, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitHistoryListExecutionFailureTemplateConstant, workingDirectory, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitFilterBranchMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitFilterBranchStartTemplateConstant, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitFilterBranchSuccessTemplateConstant, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitFilterBranchFailureTemplateConstant, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitFilterBranchExecutionFailureTemplateConstant, workingDirectory, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitResetMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitResetStartTemplateConstant, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitResetSuccessTemplateConstant, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitResetFailureTemplateConstant, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitResetExecutionFailureTemplateConstant, workingDirectory, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitAddMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	stagedTargets := formatter.describePathArguments(command.Details.Arguments)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitAddStartTemplateConstant, stagedTargets, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitAddSuccessTemplateConstant, stagedTargets, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitAddFailureTemplateConstant, stagedTargets, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitAddExecutionFailureTemplateConstant, stagedTargets, workingDirectory, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitRemoveMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	removalTargets := formatter.describePathArguments(command.Details.Arguments)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitRemoveStartTemplateConstant, removalTargets, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitRemoveSuccessTemplateConstant, removalTargets, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitRemoveFailureTemplateConstant, removalTargets, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitRemoveExecutionFailureTemplateConstant, removalTargets, workingDirectory, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitCommitMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	workingDirectory := formatter.describeWorkingDirectory(command)
	commitMessage := formatter.extractCommitSubject(command.Details.Arguments)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitCommitStartTemplateConstant, workingDirectory, commitMessage)
	case messageStageSuccess:
		return fmt.Sprintf(gitCommitSuccessTemplateConstant, workingDirectory, commitMessage)
	case messageStageFailure:
		return fmt.Sprintf(gitCommitFailureTemplateConstant, workingDirectory, commitMessage, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitCommitExecutionFailureTemplateConstant, workingDirectory, commitMessage, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeFilterToolMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	toolName := filepath.Base(string(command.Name))
	workingDirectory := formatter.describeWorkingDirectory(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(filterToolStartTemplateConstant, toolName, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(filterToolSuccessTemplateConstant, toolName, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(filterToolFailureTemplateConstant, toolName, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(filterToolExecutionFailureTemplateConstant, toolName, workingDirectory, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	default:
		return commandLabel
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	commandParts := []string{string(command.Name)}
	if len(command.Details.Arguments) > 0 {
		commandParts = append(commandParts, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	commandLabel := strings.Join(commandParts, commandArgumentsJoinSeparatorConstant)
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, formatter.formatWorkingDirectorySuffix(command))
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func (formatter CommandMessageFormatter) resolveGitSubcommand(arguments []string) string {
	argumentIndex := 0
	for argumentIndex < len(arguments) {
		if strings.TrimSpace(arguments[argumentIndex]) == gitConfigurationFlagConstant {
			argumentIndex += 2
			continue
		}
		break
	}
	if argumentIndex >= len(arguments) {
		return emptyStringConstant
	}
	return strings.TrimSpace(arguments[argumentIndex])
}

func (formatter CommandMessageFormatter) resolveRevisionReference(arguments []string) string {
	for argumentIndex := len(arguments) - 1; argumentIndex > 0; argumentIndex-- {
		candidate := strings.TrimSpace(arguments[argumentIndex])
		if len(candidate) == 0 {
			continue
		}
		if strings.HasPrefix(candidate, "-") {
			continue
		}
		return candidate
	}
	return gitHeadReferenceConstant
}

func (formatter CommandMessageFormatter) describePathArguments(arguments []string) string {
	pathArguments := make([]string, 0, len(arguments))
	for _, argument := range arguments[min(1, len(arguments)):] {
		trimmedArgument := strings.TrimSpace(argument)
		if len(trimmedArgument) == 0 {
			continue
		}
		if strings.HasPrefix(trimmedArgument, "-") {
			continue
		}
		pathArguments = append(pathArguments, trimmedArgument)
	}
	if len(pathArguments) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return strings.Join(pathArguments, commandArgumentsJoinSeparatorConstant)
}

func (formatter CommandMessageFormatter) extractCommitSubject(arguments []string) string {
	for argumentIndex, argument := range arguments {
		if strings.TrimSpace(argument) != gitMessageFlagConstant {
			continue
		}
		if argumentIndex+1 < len(arguments) {
			subject, _, _ := strings.Cut(arguments[argumentIndex+1], "\n")
			return subject
		}
	}
	return fallbackUnknownValueLabelConstant
}

func (formatter CommandMessageFormatter) argumentAtIndex(arguments []string, index int) string {
	if index < 0 || index >= len(arguments) {
		return emptyStringConstant
	}
	return strings.TrimSpace(arguments[index])
}

func (formatter CommandMessageFormatter) lastArgument(arguments []string) string {
	for argumentIndex := len(arguments) - 1; argumentIndex > 0; argumentIndex-- {
		candidate := strings.TrimSpace(arguments[argumentIndex])
		if len(candidate) == 0 || strings.HasPrefix(candidate, "-") {
			continue
		}
		return candidate
	}
	return emptyStringConstant
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmedValue
}

func containsArgument(arguments []string, expectedArgument string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == expectedArgument {
			return true
		}
	}
	return false
}
