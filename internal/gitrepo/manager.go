package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/celder/histmove/internal/execshell"
	"github.com/celder/histmove/internal/shared"
)

const (
	gitExecutorNotConfiguredMessageConstant = "git executor not configured"
	operationFailedTemplateConstant         = "%s in %s: %w"
	cloneFailedTemplateConstant             = "clone %s into %s: %w"

	initializeRepositoryOperationConstant  = "initialize repository"
	checkRepositoryOperationConstant       = "check repository"
	checkCommitsOperationConstant          = "check for commits"
	currentBranchOperationConstant         = "determine current branch"
	branchLookupOperationConstant          = "check branch existence"
	checkoutBranchOperationConstant        = "checkout branch"
	createBranchOperationConstant          = "create branch"
	renameBranchOperationConstant          = "rename current branch"
	addRemoteOperationConstant             = "add remote"
	removeRemoteOperationConstant          = "remove remote"
	fetchBranchOperationConstant           = "fetch remote branch"
	mergeOperationConstant                 = "merge fetched history"
	resolveHeadOperationConstant           = "resolve head commit"
	listHistoricalPathsOperationConstant   = "list historical paths"
	rewriteHistoryOperationConstant        = "rewrite history"
	resetWorktreeOperationConstant         = "reset worktree"
	stagePathOperationConstant             = "stage path"
	removePathsOperationConstant           = "remove paths"
	checkStagedChangesOperationConstant    = "check staged changes"
	createCommitOperationConstant          = "create commit"

	initSubcommandConstant              = "init"
	cloneSubcommandConstant             = "clone"
	cloneNoHardlinksFlagConstant        = "--no-hardlinks"
	revParseSubcommandConstant          = "rev-parse"
	insideWorkTreeFlagConstant          = "--is-inside-work-tree"
	verifyFlagConstant                  = "--verify"
	abbreviatedReferenceFlagConstant    = "--abbrev-ref"
	headReferenceConstant               = "HEAD"
	localBranchReferencePrefixConstant  = "refs/heads/"
	checkoutSubcommandConstant          = "checkout"
	createBranchFlagConstant            = "-b"
	branchSubcommandConstant            = "branch"
	forceMoveBranchFlagConstant         = "-M"
	remoteSubcommandConstant            = "remote"
	remoteAddSubcommandConstant         = "add"
	remoteRemoveSubcommandConstant      = "remove"
	fetchSubcommandConstant             = "fetch"
	mergeSubcommandConstant             = "merge"
	allowUnrelatedHistoriesFlagConstant = "--allow-unrelated-histories"
	mergeMessageFlagConstant            = "-m"
	fetchHeadReferenceConstant          = "FETCH_HEAD"
	configurationFlagConstant           = "-c"
	disableQuotePathSettingConstant     = "core.quotePath=false"
	logSubcommandConstant               = "log"
	emptyPrettyFormatFlagConstant       = "--pretty=format:"
	nameOnlyFlagConstant                = "--name-only"
	filterBranchSubcommandConstant      = "filter-branch"
	forceFlagConstant                   = "--force"
	indexFilterFlagConstant             = "--index-filter"
	resetSubcommandConstant             = "reset"
	hardResetFlagConstant               = "--hard"
	addSubcommandConstant               = "add"
	pathspecSeparatorConstant           = "--"
	removeSubcommandConstant            = "rm"
	recursiveRemovalFlagConstant        = "-r"
	diffSubcommandConstant              = "diff"
	cachedDiffFlagConstant              = "--cached"
	quietDiffFlagConstant               = "--quiet"
	commitSubcommandConstant            = "commit"
	commitMessageFlagConstant           = "-m"

	filterBranchSquelchVariableConstant = "FILTER_BRANCH_SQUELCH_WARNING"
	filterBranchSquelchValueConstant    = "1"

	stagedChangesPresentExitCodeConstant = 1

	trueProbeOutputConstant = "true"
	newlineConstant         = "\n"
)

// ErrGitExecutorNotConfigured indicates the manager was constructed without an executor.
var ErrGitExecutorNotConfigured = errors.New(gitExecutorNotConfiguredMessageConstant)

// RepositoryManager exposes the repository-level git operations used during history relocation.
type RepositoryManager struct {
	gitExecutor shared.GitExecutor
}

// NewRepositoryManager validates collaborators and assembles a RepositoryManager.
func NewRepositoryManager(gitExecutor shared.GitExecutor) (*RepositoryManager, error) {
	if gitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &RepositoryManager{gitExecutor: gitExecutor}, nil
}

// InitializeRepository creates an empty git repository at the provided path.
// The directory must already exist.
func (manager *RepositoryManager) InitializeRepository(executionContext context.Context, repositoryPath string) error {
	details := execshell.CommandDetails{
		Arguments:        []string{initSubcommandConstant},
		WorkingDirectory: repositoryPath,
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		return fmt.Errorf(operationFailedTemplateConstant, initializeRepositoryOperationConstant, repositoryPath, executionError)
	}
	return nil
}

// CloneRepository creates a standalone copy of sourcePath at targetPath without hardlinked objects.
func (manager *RepositoryManager) CloneRepository(executionContext context.Context, sourcePath string, targetPath string) error {
	details := execshell.CommandDetails{
		Arguments: []string{cloneSubcommandConstant, cloneNoHardlinksFlagConstant, sourcePath, targetPath},
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		return fmt.Errorf(cloneFailedTemplateConstant, sourcePath, targetPath, executionError)
	}
	return nil
}

// CheckIsRepository reports whether the provided path is inside a git working tree.
func (manager *RepositoryManager) CheckIsRepository(executionContext context.Context, repositoryPath string) (bool, error) {
	details := execshell.CommandDetails{
		Arguments:        []string{revParseSubcommandConstant, insideWorkTreeFlagConstant},
		WorkingDirectory: repositoryPath,
	}
	result, executionError := manager.gitExecutor.ExecuteGit(executionContext, details)
	if executionError != nil {
		if isCommandFailure(executionError) {
			return false, nil
		}
		return false, fmt.Errorf(operationFailedTemplateConstant, checkRepositoryOperationConstant, repositoryPath, executionError)
	}
	return strings.TrimSpace(result.StandardOutput) == trueProbeOutputConstant, nil
}

// HasCommits reports whether the repository history contains at least one commit.
func (manager *RepositoryManager) HasCommits(executionContext context.Context, repositoryPath string) (bool, error) {
	details := execshell.CommandDetails{
		Arguments:        []string{revParseSubcommandConstant, verifyFlagConstant, headReferenceConstant},
		WorkingDirectory: repositoryPath,
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		if isCommandFailure(executionError) {
			return false, nil
		}
		return false, fmt.Errorf(operationFailedTemplateConstant, checkCommitsOperationConstant, repositoryPath, executionError)
	}
	return true, nil
}

// GetCurrentBranch returns the short name of the branch currently checked out.
func (manager *RepositoryManager) GetCurrentBranch(executionContext context.Context, repositoryPath string) (string, error) {
	details := execshell.CommandDetails{
		Arguments:        []string{revParseSubcommandConstant, abbreviatedReferenceFlagConstant, headReferenceConstant},
		WorkingDirectory: repositoryPath,
	}
	result, executionError := manager.gitExecutor.ExecuteGit(executionContext, details)
	if executionError != nil {
		return "", fmt.Errorf(operationFailedTemplateConstant, currentBranchOperationConstant, repositoryPath, executionError)
	}
	return strings.TrimSpace(result.StandardOutput), nil
}

// BranchExists reports whether a local branch with the provided name exists.
func (manager *RepositoryManager) BranchExists(executionContext context.Context, repositoryPath string, branchName string) (bool, error) {
	details := execshell.CommandDetails{
		Arguments:        []string{revParseSubcommandConstant, verifyFlagConstant, localBranchReferencePrefixConstant + branchName},
		WorkingDirectory: repositoryPath,
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		if isCommandFailure(executionError) {
			return false, nil
		}
		return false, fmt.Errorf(operationFailedTemplateConstant, branchLookupOperationConstant, repositoryPath, executionError)
	}
	return true, nil
}

// CheckoutBranch switches the repository to an existing branch.
func (manager *RepositoryManager) CheckoutBranch(executionContext context.Context, repositoryPath string, branchName string) error {
	details := execshell.CommandDetails{
		Arguments:        []string{checkoutSubcommandConstant, branchName},
		WorkingDirectory: repositoryPath,
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		return fmt.Errorf(operationFailedTemplateConstant, checkoutBranchOperationConstant, repositoryPath, executionError)
	}
	return nil
}

// CreateBranch creates a branch at the current head and switches to it.
func (manager *RepositoryManager) CreateBranch(executionContext context.Context, repositoryPath string, branchName string) error {
	details := execshell.CommandDetails{
		Arguments:        []string{checkoutSubcommandConstant, createBranchFlagConstant, branchName},
		WorkingDirectory: repositoryPath,
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		return fmt.Errorf(operationFailedTemplateConstant, createBranchOperationConstant, repositoryPath, executionError)
	}
	return nil
}

// RenameCurrentBranch renames the branch currently checked out.
func (manager *RepositoryManager) RenameCurrentBranch(executionContext context.Context, repositoryPath string, branchName string) error {
	details := execshell.CommandDetails{
		Arguments:        []string{branchSubcommandConstant, forceMoveBranchFlagConstant, branchName},
		WorkingDirectory: repositoryPath,
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		return fmt.Errorf(operationFailedTemplateConstant, renameBranchOperationConstant, repositoryPath, executionError)
	}
	return nil
}

// AddRemote registers a named remote pointing at the provided target.
func (manager *RepositoryManager) AddRemote(executionContext context.Context, repositoryPath string, remoteName string, remoteTarget string) error {
	details := execshell.CommandDetails{
		Arguments:        []string{remoteSubcommandConstant, remoteAddSubcommandConstant, remoteName, remoteTarget},
		WorkingDirectory: repositoryPath,
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		return fmt.Errorf(operationFailedTemplateConstant, addRemoteOperationConstant, repositoryPath, executionError)
	}
	return nil
}

// RemoveRemote deletes a named remote.
func (manager *RepositoryManager) RemoveRemote(executionContext context.Context, repositoryPath string, remoteName string) error {
	details := execshell.CommandDetails{
		Arguments:        []string{remoteSubcommandConstant, remoteRemoveSubcommandConstant, remoteName},
		WorkingDirectory: repositoryPath,
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		return fmt.Errorf(operationFailedTemplateConstant, removeRemoteOperationConstant, repositoryPath, executionError)
	}
	return nil
}

// FetchRemoteBranch fetches a single branch from the named remote into FETCH_HEAD.
func (manager *RepositoryManager) FetchRemoteBranch(executionContext context.Context, repositoryPath string, remoteName string, branchName string) error {
	details := execshell.CommandDetails{
		Arguments:        []string{fetchSubcommandConstant, remoteName, branchName},
		WorkingDirectory: repositoryPath,
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		return fmt.Errorf(operationFailedTemplateConstant, fetchBranchOperationConstant, repositoryPath, executionError)
	}
	return nil
}

// MergeFetchedHistory merges FETCH_HEAD into the current branch.
//
// Merging into a repository without commits adopts the fetched history without
// creating a merge commit, so callers must pass allowUnrelatedHistories only
// when the repository already has commits of its own.
func (manager *RepositoryManager) MergeFetchedHistory(executionContext context.Context, repositoryPath string, mergeMessage string, allowUnrelatedHistories bool) error {
	arguments := []string{mergeSubcommandConstant}
	if allowUnrelatedHistories {
		arguments = append(arguments, allowUnrelatedHistoriesFlagConstant)
	}
	if len(mergeMessage) > 0 {
		arguments = append(arguments, mergeMessageFlagConstant, mergeMessage)
	}
	arguments = append(arguments, fetchHeadReferenceConstant)

	details := execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: repositoryPath,
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		return fmt.Errorf(operationFailedTemplateConstant, mergeOperationConstant, repositoryPath, executionError)
	}
	return nil
}

// ResolveHeadCommit returns the commit hash the repository head points at.
func (manager *RepositoryManager) ResolveHeadCommit(executionContext context.Context, repositoryPath string) (string, error) {
	details := execshell.CommandDetails{
		Arguments:        []string{revParseSubcommandConstant, headReferenceConstant},
		WorkingDirectory: repositoryPath,
	}
	result, executionError := manager.gitExecutor.ExecuteGit(executionContext, details)
	if executionError != nil {
		return "", fmt.Errorf(operationFailedTemplateConstant, resolveHeadOperationConstant, repositoryPath, executionError)
	}
	return strings.TrimSpace(result.StandardOutput), nil
}

// ListHistoricalPaths returns every path that appears anywhere in the history
// reachable from the repository head, without duplicates, in first-seen order.
func (manager *RepositoryManager) ListHistoricalPaths(executionContext context.Context, repositoryPath string) ([]string, error) {
	details := execshell.CommandDetails{
		Arguments: []string{
			configurationFlagConstant, disableQuotePathSettingConstant,
			logSubcommandConstant, emptyPrettyFormatFlagConstant, nameOnlyFlagConstant, headReferenceConstant,
		},
		WorkingDirectory: repositoryPath,
	}
	result, executionError := manager.gitExecutor.ExecuteGit(executionContext, details)
	if executionError != nil {
		return nil, fmt.Errorf(operationFailedTemplateConstant, listHistoricalPathsOperationConstant, repositoryPath, executionError)
	}

	seenPaths := make(map[string]struct{})
	var historicalPaths []string
	for _, outputLine := range strings.Split(result.StandardOutput, newlineConstant) {
		trimmedLine := strings.TrimSpace(outputLine)
		if len(trimmedLine) == 0 {
			continue
		}
		if _, alreadySeen := seenPaths[trimmedLine]; alreadySeen {
			continue
		}
		seenPaths[trimmedLine] = struct{}{}
		historicalPaths = append(historicalPaths, trimmedLine)
	}
	return historicalPaths, nil
}

// RunIndexRewrite rewrites every commit reachable from the repository head by
// applying the provided index filter script with the supplied environment.
func (manager *RepositoryManager) RunIndexRewrite(executionContext context.Context, repositoryPath string, filterScript string, environment map[string]string) error {
	mergedEnvironment := map[string]string{filterBranchSquelchVariableConstant: filterBranchSquelchValueConstant}
	for environmentKey, environmentValue := range environment {
		mergedEnvironment[environmentKey] = environmentValue
	}

	details := execshell.CommandDetails{
		Arguments:            []string{filterBranchSubcommandConstant, forceFlagConstant, indexFilterFlagConstant, filterScript, headReferenceConstant},
		WorkingDirectory:     repositoryPath,
		EnvironmentVariables: mergedEnvironment,
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		return fmt.Errorf(operationFailedTemplateConstant, rewriteHistoryOperationConstant, repositoryPath, executionError)
	}
	return nil
}

// ResetWorktree discards the working tree and index in favor of the current head.
func (manager *RepositoryManager) ResetWorktree(executionContext context.Context, repositoryPath string) error {
	details := execshell.CommandDetails{
		Arguments:        []string{resetSubcommandConstant, hardResetFlagConstant},
		WorkingDirectory: repositoryPath,
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		return fmt.Errorf(operationFailedTemplateConstant, resetWorktreeOperationConstant, repositoryPath, executionError)
	}
	return nil
}

// StagePath stages the provided path, including deletions, for the next commit.
func (manager *RepositoryManager) StagePath(executionContext context.Context, repositoryPath string, stagedPath string) error {
	details := execshell.CommandDetails{
		Arguments:        []string{addSubcommandConstant, pathspecSeparatorConstant, stagedPath},
		WorkingDirectory: repositoryPath,
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		return fmt.Errorf(operationFailedTemplateConstant, stagePathOperationConstant, repositoryPath, executionError)
	}
	return nil
}

// RemovePaths removes the provided paths from the working tree and stages the removals.
func (manager *RepositoryManager) RemovePaths(executionContext context.Context, repositoryPath string, removedPaths []string) error {
	arguments := []string{removeSubcommandConstant, recursiveRemovalFlagConstant, pathspecSeparatorConstant}
	arguments = append(arguments, removedPaths...)

	details := execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: repositoryPath,
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		return fmt.Errorf(operationFailedTemplateConstant, removePathsOperationConstant, repositoryPath, executionError)
	}
	return nil
}

// HasStagedChanges reports whether the index differs from the current head.
func (manager *RepositoryManager) HasStagedChanges(executionContext context.Context, repositoryPath string) (bool, error) {
	details := execshell.CommandDetails{
		Arguments:        []string{diffSubcommandConstant, cachedDiffFlagConstant, quietDiffFlagConstant},
		WorkingDirectory: repositoryPath,
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		if exitCode, isFailure := commandFailureExitCode(executionError); isFailure && exitCode == stagedChangesPresentExitCodeConstant {
			return true, nil
		}
		return false, fmt.Errorf(operationFailedTemplateConstant, checkStagedChangesOperationConstant, repositoryPath, executionError)
	}
	return false, nil
}

// CreateCommit records the staged changes with the provided message.
func (manager *RepositoryManager) CreateCommit(executionContext context.Context, repositoryPath string, commitMessage string) error {
	details := execshell.CommandDetails{
		Arguments:        []string{commitSubcommandConstant, commitMessageFlagConstant, commitMessage},
		WorkingDirectory: repositoryPath,
	}
	if _, executionError := manager.gitExecutor.ExecuteGit(executionContext, details); executionError != nil {
		return fmt.Errorf(operationFailedTemplateConstant, createCommitOperationConstant, repositoryPath, executionError)
	}
	return nil
}

func isCommandFailure(executionError error) bool {
	var failedError execshell.CommandFailedError
	return errors.As(executionError, &failedError)
}

func commandFailureExitCode(executionError error) (int, bool) {
	var failedError execshell.CommandFailedError
	if errors.As(executionError, &failedError) {
		return failedError.Result.ExitCode, true
	}
	return 0, false
}
