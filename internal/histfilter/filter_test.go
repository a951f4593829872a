package histfilter_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/celder/histmove/internal/execshell"
	"github.com/celder/histmove/internal/filesystem"
	"github.com/celder/histmove/internal/histfilter"
	"github.com/celder/histmove/internal/moveplan"
	"github.com/celder/histmove/internal/shared"
)

const (
	filterToolPathConstant     = "/opt/tools/filter_git_history.sh"
	sourceBranchValueConstant  = "main"
	scratchDirectoryPermission = 0o755
)

type recordedCheckout struct {
	repositoryPath string
	branchName     string
}

type recordingScratchStager struct {
	cloneSources []string
	cloneTargets []string
	checkouts    []recordedCheckout
	cloneFailure error
}

var _ histfilter.ScratchStager = (*recordingScratchStager)(nil)

func (stager *recordingScratchStager) CloneRepository(_ context.Context, sourcePath string, targetPath string) error {
	stager.cloneSources = append(stager.cloneSources, sourcePath)
	stager.cloneTargets = append(stager.cloneTargets, targetPath)
	return stager.cloneFailure
}

func (stager *recordingScratchStager) CheckoutBranch(_ context.Context, repositoryPath string, branchName string) error {
	stager.checkouts = append(stager.checkouts, recordedCheckout{repositoryPath: repositoryPath, branchName: branchName})
	return nil
}

type recordingFilterExecutor struct {
	executablePaths []string
	commandDetails  []execshell.CommandDetails
}

var _ shared.GitExecutor = (*recordingFilterExecutor)(nil)

func (executor *recordingFilterExecutor) ExecuteGit(_ context.Context, _ execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return execshell.ExecutionResult{}, nil
}

func (executor *recordingFilterExecutor) ExecuteHistoryFilter(_ context.Context, executablePath string, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.executablePaths = append(executor.executablePaths, executablePath)
	executor.commandDetails = append(executor.commandDetails, details)
	return execshell.ExecutionResult{}, nil
}

func buildFilterRequest(t *testing.T, sourceRepository string, destinationRepository string, pathPrefixes ...string) histfilter.FilterRequest {
	t.Helper()
	sourcePath, sourceError := shared.NewRepositoryPath(sourceRepository)
	require.NoError(t, sourceError)
	destinationPath, destinationError := shared.NewRepositoryPath(destinationRepository)
	require.NoError(t, destinationError)
	sourceBranch, branchError := shared.NewBranchName(sourceBranchValueConstant)
	require.NoError(t, branchError)

	prefixes := make([]shared.SubdirectoryPath, 0, len(pathPrefixes))
	for _, pathPrefix := range pathPrefixes {
		subdirectoryPath, prefixError := shared.NewSubdirectoryPath(pathPrefix)
		require.NoError(t, prefixError)
		prefixes = append(prefixes, subdirectoryPath)
	}

	return histfilter.FilterRequest{
		Pair:         moveplan.RepositoryPair{SourceRepository: sourcePath, DestinationRepository: destinationPath},
		SourceBranch: sourceBranch,
		PathPrefixes: prefixes,
	}
}

func TestScratchPathTagsDestinationBasename(t *testing.T) {
	t.Parallel()

	request := buildFilterRequest(t, "/repos/alpha", "/repos/beta", "project/module_x")
	require.Equal(t, "/repos/alpha.filtered.beta", histfilter.ScratchPath(request.Pair))
}

func TestNewExternalHistoryFilterValidation(t *testing.T) {
	t.Parallel()

	stager := &recordingScratchStager{}
	executor := &recordingFilterExecutor{}

	testCases := []struct {
		name          string
		fileSystem    shared.FileSystem
		stager        histfilter.ScratchStager
		gitExecutor   shared.GitExecutor
		toolPath      string
		expectedError error
	}{
		{name: "missing_file_system", fileSystem: nil, stager: stager, gitExecutor: executor, toolPath: filterToolPathConstant, expectedError: histfilter.ErrFileSystemNotConfigured},
		{name: "missing_stager", fileSystem: filesystem.OSFileSystem{}, stager: nil, gitExecutor: executor, toolPath: filterToolPathConstant, expectedError: histfilter.ErrScratchStagerNotConfigured},
		{name: "missing_executor", fileSystem: filesystem.OSFileSystem{}, stager: stager, gitExecutor: nil, toolPath: filterToolPathConstant, expectedError: histfilter.ErrGitExecutorNotConfigured},
		{name: "missing_tool_path", fileSystem: filesystem.OSFileSystem{}, stager: stager, gitExecutor: executor, toolPath: "", expectedError: histfilter.ErrToolPathNotConfigured},
		{name: "complete_collaborators", fileSystem: filesystem.OSFileSystem{}, stager: stager, gitExecutor: executor, toolPath: filterToolPathConstant},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			filter, filterError := histfilter.NewExternalHistoryFilter(testCase.fileSystem, testCase.stager, testCase.gitExecutor, testCase.toolPath)
			if testCase.expectedError != nil {
				require.ErrorIs(t, filterError, testCase.expectedError)
				return
			}
			require.NoError(t, filterError)
			require.NotNil(t, filter)
		})
	}
}

func TestFilterHistoryStagesScratchAndRunsTool(t *testing.T) {
	t.Parallel()

	rootDirectory := t.TempDir()
	sourceRepository := filepath.Join(rootDirectory, "alpha")
	require.NoError(t, os.MkdirAll(sourceRepository, scratchDirectoryPermission))
	destinationRepository := filepath.Join(rootDirectory, "beta")

	stager := &recordingScratchStager{}
	executor := &recordingFilterExecutor{}
	filter, filterError := histfilter.NewExternalHistoryFilter(filesystem.OSFileSystem{}, stager, executor, filterToolPathConstant)
	require.NoError(t, filterError)

	request := buildFilterRequest(t, sourceRepository, destinationRepository, "project/module_x", "project/module_z")
	result, historyError := filter.FilterHistory(context.Background(), request)
	require.NoError(t, historyError)

	expectedScratchPath := sourceRepository + ".filtered.beta"
	require.Equal(t, histfilter.FilterResult{ScratchPath: expectedScratchPath}, result)
	require.Equal(t, []string{sourceRepository}, stager.cloneSources)
	require.Equal(t, []string{expectedScratchPath}, stager.cloneTargets)
	require.Equal(t, []recordedCheckout{{repositoryPath: expectedScratchPath, branchName: sourceBranchValueConstant}}, stager.checkouts)
	require.Equal(t, []string{filterToolPathConstant}, executor.executablePaths)
	require.Len(t, executor.commandDetails, 1)
	require.Equal(t, []string{"project/module_x", "project/module_z"}, executor.commandDetails[0].Arguments)
	require.Equal(t, expectedScratchPath, executor.commandDetails[0].WorkingDirectory)
}

func TestFilterHistoryReusesExistingScratch(t *testing.T) {
	t.Parallel()

	rootDirectory := t.TempDir()
	sourceRepository := filepath.Join(rootDirectory, "alpha")
	destinationRepository := filepath.Join(rootDirectory, "beta")
	existingScratchPath := sourceRepository + ".filtered.beta"
	require.NoError(t, os.MkdirAll(existingScratchPath, scratchDirectoryPermission))

	stager := &recordingScratchStager{}
	executor := &recordingFilterExecutor{}
	filter, filterError := histfilter.NewExternalHistoryFilter(filesystem.OSFileSystem{}, stager, executor, filterToolPathConstant)
	require.NoError(t, filterError)

	request := buildFilterRequest(t, sourceRepository, destinationRepository, "project/module_x")
	result, historyError := filter.FilterHistory(context.Background(), request)
	require.NoError(t, historyError)
	require.Equal(t, histfilter.FilterResult{ScratchPath: existingScratchPath, Reused: true}, result)
	require.Empty(t, stager.cloneSources)
	require.Empty(t, executor.executablePaths)
}

func TestFilterHistoryWrapsStagingFailure(t *testing.T) {
	t.Parallel()

	rootDirectory := t.TempDir()
	sourceRepository := filepath.Join(rootDirectory, "alpha")
	destinationRepository := filepath.Join(rootDirectory, "beta")

	stager := &recordingScratchStager{cloneFailure: os.ErrPermission}
	executor := &recordingFilterExecutor{}
	filter, filterError := histfilter.NewExternalHistoryFilter(filesystem.OSFileSystem{}, stager, executor, filterToolPathConstant)
	require.NoError(t, filterError)

	request := buildFilterRequest(t, sourceRepository, destinationRepository, "project/module_x")
	_, historyError := filter.FilterHistory(context.Background(), request)
	require.Error(t, historyError)
	require.ErrorIs(t, historyError, os.ErrPermission)
	require.Contains(t, historyError.Error(), "stage scratch copy")
	require.Empty(t, executor.executablePaths)
}
