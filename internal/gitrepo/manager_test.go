package gitrepo_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/celder/histmove/internal/execshell"
	"github.com/celder/histmove/internal/gitrepo"
	"github.com/celder/histmove/internal/shared"
)

const (
	testRepositoryPathConstant    = "/repos/alpha"
	testBranchNameConstant        = "work"
	testRemoteNameConstant        = "scratch"
	testRemoteTargetConstant      = "/repos/alpha.filtered.beta"
	testCommitMessageConstant     = "Relocate services/api"
	testArgumentsJoinSeparator    = " "
	testHeadCommitHashConstant    = "0123456789abcdef0123456789abcdef01234567"
	testFilterScriptConstant      = "git ls-files -s"
	testRenameTableVariableKey    = "HISTMOVE_RENAME_TABLE"
	testRenameTablePathConstant   = "/tmp/histmove-rename-table"
	testSquelchWarningVariableKey = "FILTER_BRANCH_SQUELCH_WARNING"
)

type scriptedResponse struct {
	result         execshell.ExecutionResult
	executionError error
}

type scriptedGitExecutor struct {
	responses map[string]scriptedResponse
	commands  []execshell.CommandDetails
}

func (executor *scriptedGitExecutor) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.commands = append(executor.commands, details)
	if executor.responses == nil {
		return execshell.ExecutionResult{}, nil
	}
	response, found := executor.responses[strings.Join(details.Arguments, testArgumentsJoinSeparator)]
	if !found {
		return execshell.ExecutionResult{}, nil
	}
	return response.result, response.executionError
}

func (executor *scriptedGitExecutor) ExecuteHistoryFilter(_ context.Context, _ string, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.commands = append(executor.commands, details)
	return execshell.ExecutionResult{}, nil
}

func commandFailure(exitCode int, standardError string) error {
	return execshell.CommandFailedError{
		Command: execshell.ShellCommand{Name: execshell.CommandGit},
		Result:  execshell.ExecutionResult{ExitCode: exitCode, StandardError: standardError},
	}
}

func TestNewRepositoryManagerValidation(testInstance *testing.T) {
	_, creationError := gitrepo.NewRepositoryManager(nil)
	require.ErrorIs(testInstance, creationError, gitrepo.ErrGitExecutorNotConfigured)

	manager, managerError := gitrepo.NewRepositoryManager(&scriptedGitExecutor{})
	require.NoError(testInstance, managerError)
	require.NotNil(testInstance, manager)
}

func TestRepositoryProbes(testInstance *testing.T) {
	testCases := []struct {
		name           string
		responses      map[string]scriptedResponse
		probe          func(manager *gitrepo.RepositoryManager) (bool, error)
		expectedResult bool
	}{
		{
			name: "repository_probe_true",
			responses: map[string]scriptedResponse{
				"rev-parse --is-inside-work-tree": {result: execshell.ExecutionResult{StandardOutput: "true\n"}},
			},
			probe: func(manager *gitrepo.RepositoryManager) (bool, error) {
				return manager.CheckIsRepository(context.Background(), testRepositoryPathConstant)
			},
			expectedResult: true,
		},
		{
			name: "repository_probe_false_on_failure",
			responses: map[string]scriptedResponse{
				"rev-parse --is-inside-work-tree": {executionError: commandFailure(128, "fatal: not a git repository")},
			},
			probe: func(manager *gitrepo.RepositoryManager) (bool, error) {
				return manager.CheckIsRepository(context.Background(), testRepositoryPathConstant)
			},
			expectedResult: false,
		},
		{
			name: "commits_probe_true",
			probe: func(manager *gitrepo.RepositoryManager) (bool, error) {
				return manager.HasCommits(context.Background(), testRepositoryPathConstant)
			},
			expectedResult: true,
		},
		{
			name: "commits_probe_false_on_unborn_head",
			responses: map[string]scriptedResponse{
				"rev-parse --verify HEAD": {executionError: commandFailure(128, "fatal: Needed a single revision")},
			},
			probe: func(manager *gitrepo.RepositoryManager) (bool, error) {
				return manager.HasCommits(context.Background(), testRepositoryPathConstant)
			},
			expectedResult: false,
		},
		{
			name: "branch_probe_false_when_missing",
			responses: map[string]scriptedResponse{
				"rev-parse --verify refs/heads/work": {executionError: commandFailure(128, "fatal: Needed a single revision")},
			},
			probe: func(manager *gitrepo.RepositoryManager) (bool, error) {
				return manager.BranchExists(context.Background(), testRepositoryPathConstant, testBranchNameConstant)
			},
			expectedResult: false,
		},
		{
			name: "staged_changes_probe_true_on_differences",
			responses: map[string]scriptedResponse{
				"diff --cached --quiet": {executionError: commandFailure(1, "")},
			},
			probe: func(manager *gitrepo.RepositoryManager) (bool, error) {
				return manager.HasStagedChanges(context.Background(), testRepositoryPathConstant)
			},
			expectedResult: true,
		},
		{
			name: "staged_changes_probe_false_when_clean",
			probe: func(manager *gitrepo.RepositoryManager) (bool, error) {
				return manager.HasStagedChanges(context.Background(), testRepositoryPathConstant)
			},
			expectedResult: false,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &scriptedGitExecutor{responses: testCase.responses}
			manager, managerError := gitrepo.NewRepositoryManager(executor)
			require.NoError(testInstance, managerError)

			probeResult, probeError := testCase.probe(manager)
			require.NoError(testInstance, probeError)
			require.Equal(testInstance, testCase.expectedResult, probeResult)
			require.Len(testInstance, executor.commands, 1)
			require.Equal(testInstance, testRepositoryPathConstant, executor.commands[0].WorkingDirectory)
		})
	}
}

func TestGetCurrentBranchTrimsOutput(testInstance *testing.T) {
	executor := &scriptedGitExecutor{responses: map[string]scriptedResponse{
		"rev-parse --abbrev-ref HEAD": {result: execshell.ExecutionResult{StandardOutput: "master\n"}},
	}}
	manager, managerError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, managerError)

	branchName, branchError := manager.GetCurrentBranch(context.Background(), testRepositoryPathConstant)
	require.NoError(testInstance, branchError)
	require.Equal(testInstance, "master", branchName)
}

func TestResolveHeadCommitTrimsOutput(testInstance *testing.T) {
	executor := &scriptedGitExecutor{responses: map[string]scriptedResponse{
		"rev-parse HEAD": {result: execshell.ExecutionResult{StandardOutput: testHeadCommitHashConstant + "\n"}},
	}}
	manager, managerError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, managerError)

	commitHash, resolveError := manager.ResolveHeadCommit(context.Background(), testRepositoryPathConstant)
	require.NoError(testInstance, resolveError)
	require.Equal(testInstance, testHeadCommitHashConstant, commitHash)
}

func TestListHistoricalPathsDeduplicatesAndSkipsBlankLines(testInstance *testing.T) {
	logOutput := "\nservices/api/main.go\nREADME.md\n\nservices/api/main.go\nservices/api/handler.go\n"
	executor := &scriptedGitExecutor{responses: map[string]scriptedResponse{
		"-c core.quotePath=false log --pretty=format: --name-only HEAD": {result: execshell.ExecutionResult{StandardOutput: logOutput}},
	}}
	manager, managerError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, managerError)

	historicalPaths, listError := manager.ListHistoricalPaths(context.Background(), testRepositoryPathConstant)
	require.NoError(testInstance, listError)
	require.Equal(testInstance, []string{"services/api/main.go", "README.md", "services/api/handler.go"}, historicalPaths)
}

func TestMergeFetchedHistoryArgumentAssembly(testInstance *testing.T) {
	testCases := []struct {
		name                    string
		mergeMessage            string
		allowUnrelatedHistories bool
		expectedArguments       []string
	}{
		{
			name:              "adopting_merge_without_flags",
			expectedArguments: []string{"merge", "FETCH_HEAD"},
		},
		{
			name:                    "unrelated_histories_with_message",
			mergeMessage:            testCommitMessageConstant,
			allowUnrelatedHistories: true,
			expectedArguments:       []string{"merge", "--allow-unrelated-histories", "-m", testCommitMessageConstant, "FETCH_HEAD"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &scriptedGitExecutor{}
			manager, managerError := gitrepo.NewRepositoryManager(executor)
			require.NoError(testInstance, managerError)

			mergeError := manager.MergeFetchedHistory(context.Background(), testRepositoryPathConstant, testCase.mergeMessage, testCase.allowUnrelatedHistories)
			require.NoError(testInstance, mergeError)
			require.Len(testInstance, executor.commands, 1)
			require.Equal(testInstance, testCase.expectedArguments, executor.commands[0].Arguments)
		})
	}
}

func TestRemoteLifecycleArgumentAssembly(testInstance *testing.T) {
	executor := &scriptedGitExecutor{}
	manager, managerError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, managerError)

	require.NoError(testInstance, manager.AddRemote(context.Background(), testRepositoryPathConstant, testRemoteNameConstant, testRemoteTargetConstant))
	require.NoError(testInstance, manager.FetchRemoteBranch(context.Background(), testRepositoryPathConstant, testRemoteNameConstant, testBranchNameConstant))
	require.NoError(testInstance, manager.RemoveRemote(context.Background(), testRepositoryPathConstant, testRemoteNameConstant))

	require.Equal(testInstance, []string{"remote", "add", testRemoteNameConstant, testRemoteTargetConstant}, executor.commands[0].Arguments)
	require.Equal(testInstance, []string{"fetch", testRemoteNameConstant, testBranchNameConstant}, executor.commands[1].Arguments)
	require.Equal(testInstance, []string{"remote", "remove", testRemoteNameConstant}, executor.commands[2].Arguments)
}

func TestRunIndexRewriteMergesSquelchEnvironment(testInstance *testing.T) {
	executor := &scriptedGitExecutor{}
	manager, managerError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, managerError)

	rewriteError := manager.RunIndexRewrite(context.Background(), testRepositoryPathConstant, testFilterScriptConstant, map[string]string{
		testRenameTableVariableKey: testRenameTablePathConstant,
	})
	require.NoError(testInstance, rewriteError)
	require.Len(testInstance, executor.commands, 1)

	recordedDetails := executor.commands[0]
	require.Equal(testInstance, []string{"filter-branch", "--force", "--index-filter", testFilterScriptConstant, "HEAD"}, recordedDetails.Arguments)
	require.Equal(testInstance, testRenameTablePathConstant, recordedDetails.EnvironmentVariables[testRenameTableVariableKey])
	require.Equal(testInstance, "1", recordedDetails.EnvironmentVariables[testSquelchWarningVariableKey])
}

func TestRemovePathsArgumentAssembly(testInstance *testing.T) {
	executor := &scriptedGitExecutor{}
	manager, managerError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, managerError)

	removalError := manager.RemovePaths(context.Background(), testRepositoryPathConstant, []string{"services/api", "pkg_dirs"})
	require.NoError(testInstance, removalError)
	require.Equal(testInstance, []string{"rm", "-r", "--", "services/api", "pkg_dirs"}, executor.commands[0].Arguments)
}

func TestCommandFailuresAreWrappedWithRepositoryContext(testInstance *testing.T) {
	executor := &scriptedGitExecutor{responses: map[string]scriptedResponse{
		"checkout work": {executionError: commandFailure(1, "error: pathspec 'work' did not match")},
	}}
	manager, managerError := gitrepo.NewRepositoryManager(executor)
	require.NoError(testInstance, managerError)

	checkoutError := manager.CheckoutBranch(context.Background(), testRepositoryPathConstant, testBranchNameConstant)
	require.Error(testInstance, checkoutError)
	require.Contains(testInstance, checkoutError.Error(), testRepositoryPathConstant)

	var failedError execshell.CommandFailedError
	require.ErrorAs(testInstance, checkoutError, &failedError)
}

var _ shared.GitExecutor = (*scriptedGitExecutor)(nil)
