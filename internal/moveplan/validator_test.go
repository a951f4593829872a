package moveplan_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/celder/histmove/internal/filesystem"
	"github.com/celder/histmove/internal/moveplan"
	"github.com/celder/histmove/internal/shared"
)

const (
	repositoryDirectoryPermissions = 0o755
	mainBranchNameConstant         = "main"
	developBranchNameConstant      = "develop"
	detachedHeadOutputConstant     = "HEAD"
)

type stubRepositoryInspector struct {
	repositories map[string]bool
	branches     map[string]string
	branchCalls  map[string]int
}

var _ moveplan.RepositoryInspector = (*stubRepositoryInspector)(nil)

func (inspector *stubRepositoryInspector) CheckIsRepository(_ context.Context, repositoryPath string) (bool, error) {
	return inspector.repositories[repositoryPath], nil
}

func (inspector *stubRepositoryInspector) GetCurrentBranch(_ context.Context, repositoryPath string) (string, error) {
	if inspector.branchCalls == nil {
		inspector.branchCalls = make(map[string]int)
	}
	inspector.branchCalls[repositoryPath]++
	return inspector.branches[repositoryPath], nil
}

func createSourceDirectory(t *testing.T, rootDirectory string, pathSegments ...string) string {
	t.Helper()
	directoryPath := filepath.Join(append([]string{rootDirectory}, pathSegments...)...)
	require.NoError(t, os.MkdirAll(directoryPath, repositoryDirectoryPermissions))
	return directoryPath
}

func TestNewValidatorRequiresCollaborators(t *testing.T) {
	t.Parallel()

	inspector := &stubRepositoryInspector{}

	testCases := []struct {
		name          string
		fileSystem    shared.FileSystem
		inspector     moveplan.RepositoryInspector
		expectedError error
	}{
		{name: "missing_file_system", fileSystem: nil, inspector: inspector, expectedError: moveplan.ErrFileSystemNotConfigured},
		{name: "missing_inspector", fileSystem: filesystem.OSFileSystem{}, inspector: nil, expectedError: moveplan.ErrInspectorNotConfigured},
		{name: "complete_collaborators", fileSystem: filesystem.OSFileSystem{}, inspector: inspector},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			validator, validatorError := moveplan.NewValidator(testCase.fileSystem, testCase.inspector)
			if testCase.expectedError != nil {
				require.ErrorIs(t, validatorError, testCase.expectedError)
				return
			}
			require.NoError(t, validatorError)
			require.NotNil(t, validator)
		})
	}
}

func TestValidatorCapturesSourceBranchesOncePerRepository(t *testing.T) {
	t.Parallel()

	rootDirectory := t.TempDir()
	alphaRepository := createSourceDirectory(t, rootDirectory, "alpha")
	createSourceDirectory(t, rootDirectory, "alpha", "project", "module_x")
	deltaRepository := createSourceDirectory(t, rootDirectory, "delta")
	documentFilePath := filepath.Join(deltaRepository, "README.md")
	require.NoError(t, os.WriteFile(documentFilePath, []byte("delta\n"), mapFilePermissionsConstant))

	plan := parseMap(t, fmt.Sprintf(""+
		"%[1]s|project/module_x|%[3]s|module_x\n"+
		"%[1]s|project/module_x|%[4]s|imported/module_x\n"+
		"%[2]s|README.md|%[3]s|docs/README.md\n",
		alphaRepository, deltaRepository,
		filepath.Join(rootDirectory, "beta"), filepath.Join(rootDirectory, "gamma")))

	inspector := &stubRepositoryInspector{
		repositories: map[string]bool{alphaRepository: true, deltaRepository: true},
		branches:     map[string]string{alphaRepository: mainBranchNameConstant, deltaRepository: developBranchNameConstant},
	}

	validator, validatorError := moveplan.NewValidator(filesystem.OSFileSystem{}, inspector)
	require.NoError(t, validatorError)

	sourceBranches, validationError := validator.Validate(context.Background(), plan)
	require.NoError(t, validationError)
	require.Len(t, sourceBranches, 2)

	alphaPath, alphaPathError := shared.NewRepositoryPath(alphaRepository)
	require.NoError(t, alphaPathError)
	deltaPath, deltaPathError := shared.NewRepositoryPath(deltaRepository)
	require.NoError(t, deltaPathError)
	require.Equal(t, mainBranchNameConstant, sourceBranches[alphaPath].String())
	require.Equal(t, developBranchNameConstant, sourceBranches[deltaPath].String())
	require.Equal(t, 1, inspector.branchCalls[alphaRepository])
	require.Equal(t, 1, inspector.branchCalls[deltaRepository])
}

func TestValidatorAcceptsRepositoryRootSourcePath(t *testing.T) {
	t.Parallel()

	rootDirectory := t.TempDir()
	alphaRepository := createSourceDirectory(t, rootDirectory, "alpha")

	plan := parseMap(t, fmt.Sprintf("%s|.|%s|imported/alpha\n",
		alphaRepository, filepath.Join(rootDirectory, "beta")))

	inspector := &stubRepositoryInspector{
		repositories: map[string]bool{alphaRepository: true},
		branches:     map[string]string{alphaRepository: mainBranchNameConstant},
	}

	validator, validatorError := moveplan.NewValidator(filesystem.OSFileSystem{}, inspector)
	require.NoError(t, validatorError)

	sourceBranches, validationError := validator.Validate(context.Background(), plan)
	require.NoError(t, validationError)
	require.Len(t, sourceBranches, 1)
}

func TestValidatorAccumulatesPreconditionFailures(t *testing.T) {
	t.Parallel()

	rootDirectory := t.TempDir()
	missingRepository := filepath.Join(rootDirectory, "missing")
	plainDirectory := createSourceDirectory(t, rootDirectory, "plain")
	createSourceDirectory(t, rootDirectory, "plain", "project", "module_x")
	detachedRepository := createSourceDirectory(t, rootDirectory, "detached")
	createSourceDirectory(t, rootDirectory, "detached", "project", "module_x")
	incompleteRepository := createSourceDirectory(t, rootDirectory, "incomplete")
	destinationRepository := filepath.Join(rootDirectory, "target")

	plan := parseMap(t, fmt.Sprintf(""+
		"%[1]s|project/module_x|%[5]s|module_x\n"+
		"%[2]s|project/module_x|%[5]s|module_y\n"+
		"%[3]s|project/module_x|%[5]s|module_z\n"+
		"%[4]s|project/module_w|%[5]s|module_w\n",
		missingRepository, plainDirectory, detachedRepository, incompleteRepository, destinationRepository))

	inspector := &stubRepositoryInspector{
		repositories: map[string]bool{detachedRepository: true, incompleteRepository: true},
		branches:     map[string]string{detachedRepository: detachedHeadOutputConstant, incompleteRepository: mainBranchNameConstant},
	}

	validator, validatorError := moveplan.NewValidator(filesystem.OSFileSystem{}, inspector)
	require.NoError(t, validatorError)

	sourceBranches, validationError := validator.Validate(context.Background(), plan)
	require.Nil(t, sourceBranches)
	require.Error(t, validationError)

	validationMessage := validationError.Error()
	require.Contains(t, validationMessage, fmt.Sprintf("source repository %s does not exist", missingRepository))
	require.Contains(t, validationMessage, fmt.Sprintf("source repository %s is not a git repository", plainDirectory))
	require.Contains(t, validationMessage, fmt.Sprintf("source repository %s is not on a branch", detachedRepository))
	require.Contains(t, validationMessage, fmt.Sprintf("source path project/module_w does not exist in repository %s", incompleteRepository))
}
