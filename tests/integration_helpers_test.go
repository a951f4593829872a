package tests

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
)

const (
	goExecutableConstant              = "go"
	goRunSubcommandConstant           = "run"
	modulePackagePathConstant         = "."
	gitExecutableConstant             = "git"
	integrationCommandTimeoutValue    = 3 * time.Minute
	fixtureFilePermissionsValue       = 0o644
	fixtureDirectoryPermissionsValue  = 0o755
	executableFilePermissionsValue    = 0o755
	relocationMapRowTemplateConstant  = "%s|%s|%s|%s"
	relocationMapFileNameConstant     = "repo.map"
	filterStubFileNameConstant        = "filter-stub.sh"
	filterStubLogFileNameConstant     = "filter-invocations.log"
	filterStubLogVariableNameConstant = "HISTMOVE_TEST_FILTER_LOG"
	filterStubScriptConstant          = `#!/bin/sh
if [ -n "${HISTMOVE_TEST_FILTER_LOG}" ]; then
	printf '%s\n' "$@" >>"${HISTMOVE_TEST_FILTER_LOG}"
fi
exit 0
`
)

// runHistmoveCommand executes the histmove module from the repository root and
// returns the combined output alongside the run error.
func runHistmoveCommand(testInstance *testing.T, environmentOverrides map[string]string, arguments ...string) (string, error) {
	testInstance.Helper()

	executionContext, cancelExecution := context.WithTimeout(context.Background(), integrationCommandTimeoutValue)
	defer cancelExecution()

	commandArguments := append([]string{goRunSubcommandConstant, modulePackagePathConstant}, arguments...)
	command := exec.CommandContext(executionContext, goExecutableConstant, commandArguments...)
	command.Dir = repositoryRootDirectory(testInstance)

	environment := append([]string{}, os.Environ()...)
	for overrideKey, overrideValue := range environmentOverrides {
		environment = append(environment, overrideKey+"="+overrideValue)
	}
	command.Env = environment

	outputBytes, runError := command.CombinedOutput()
	return string(outputBytes), runError
}

func requireHistmoveSuccess(testInstance *testing.T, environmentOverrides map[string]string, arguments ...string) string {
	testInstance.Helper()
	outputText, runError := runHistmoveCommand(testInstance, environmentOverrides, arguments...)
	require.NoErrorf(testInstance, runError, "histmove run failed:\n%s", outputText)
	return outputText
}

func repositoryRootDirectory(testInstance *testing.T) string {
	testInstance.Helper()
	workingDirectory, workingDirectoryError := os.Getwd()
	require.NoError(testInstance, workingDirectoryError)
	return filepath.Dir(workingDirectory)
}

func runGitCommand(testInstance *testing.T, workingDirectory string, arguments ...string) string {
	testInstance.Helper()
	command := exec.Command(gitExecutableConstant, arguments...)
	command.Dir = workingDirectory
	outputBytes, runError := command.CombinedOutput()
	require.NoErrorf(testInstance, runError, "git %s failed:\n%s", strings.Join(arguments, " "), string(outputBytes))
	return string(outputBytes)
}

func initializeFixtureRepository(testInstance *testing.T, repositoryPath string, branchName string) {
	testInstance.Helper()
	require.NoError(testInstance, os.MkdirAll(repositoryPath, fixtureDirectoryPermissionsValue))
	runGitCommand(testInstance, repositoryPath, "init", "--initial-branch="+branchName)
}

// materializeArchive unpacks a txtar archive into the target directory,
// creating parent directories as needed.
func materializeArchive(testInstance *testing.T, targetDirectory string, archiveText string) {
	testInstance.Helper()
	archive := txtar.Parse([]byte(archiveText))
	for _, archiveFile := range archive.Files {
		destinationPath := filepath.Join(targetDirectory, filepath.FromSlash(archiveFile.Name))
		require.NoError(testInstance, os.MkdirAll(filepath.Dir(destinationPath), fixtureDirectoryPermissionsValue))
		require.NoError(testInstance, os.WriteFile(destinationPath, archiveFile.Data, fixtureFilePermissionsValue))
	}
}

func commitAllChanges(testInstance *testing.T, repositoryPath string, commitMessage string) {
	testInstance.Helper()
	runGitCommand(testInstance, repositoryPath, "add", "-A")
	runGitCommand(testInstance, repositoryPath, "commit", "-m", commitMessage)
}

func relocationMapRow(sourceRepository string, sourcePath string, destinationRepository string, destinationPath string) string {
	return fmt.Sprintf(relocationMapRowTemplateConstant, sourceRepository, sourcePath, destinationRepository, destinationPath)
}

func writeRelocationMap(testInstance *testing.T, mapFilePath string, mapRows ...string) {
	testInstance.Helper()
	mapContent := strings.Join(mapRows, "\n") + "\n"
	require.NoError(testInstance, os.WriteFile(mapFilePath, []byte(mapContent), fixtureFilePermissionsValue))
}

// writeFilterStub installs an executable stand-in for the history filter tool
// that records its arguments and leaves the scratch clone untouched.
func writeFilterStub(testInstance *testing.T, stubDirectory string) string {
	testInstance.Helper()
	stubPath := filepath.Join(stubDirectory, filterStubFileNameConstant)
	require.NoError(testInstance, os.WriteFile(stubPath, []byte(filterStubScriptConstant), executableFilePermissionsValue))
	return stubPath
}

func currentBranchName(testInstance *testing.T, repositoryPath string) string {
	testInstance.Helper()
	return strings.TrimSpace(runGitCommand(testInstance, repositoryPath, "rev-parse", "--abbrev-ref", "HEAD"))
}

func headCommitHash(testInstance *testing.T, repositoryPath string) string {
	testInstance.Helper()
	return strings.TrimSpace(runGitCommand(testInstance, repositoryPath, "rev-parse", "HEAD"))
}

func listCommitSubjects(testInstance *testing.T, repositoryPath string) []string {
	testInstance.Helper()
	return splitOutputLines(runGitCommand(testInstance, repositoryPath, "log", "--format=%s"))
}

func listPathCommitSubjects(testInstance *testing.T, repositoryPath string, trackedPath string) []string {
	testInstance.Helper()
	return splitOutputLines(runGitCommand(testInstance, repositoryPath, "log", "--format=%s", "--", trackedPath))
}

// listFullHistoryPathCommitSubjects disables history simplification, so
// commits touching a path that is absent at the tip still appear even across
// merge boundaries.
func listFullHistoryPathCommitSubjects(testInstance *testing.T, repositoryPath string, trackedPath string) []string {
	testInstance.Helper()
	return splitOutputLines(runGitCommand(testInstance, repositoryPath, "log", "--full-history", "--format=%s", "--", trackedPath))
}

func listTrackedFiles(testInstance *testing.T, repositoryPath string) []string {
	testInstance.Helper()
	return splitOutputLines(runGitCommand(testInstance, repositoryPath, "ls-files"))
}

func readCommitMessage(testInstance *testing.T, repositoryPath string, commitReference string) string {
	testInstance.Helper()
	return runGitCommand(testInstance, repositoryPath, "log", "-1", "--format=%B", commitReference)
}

func splitOutputLines(rawOutput string) []string {
	trimmedOutput := strings.TrimSpace(rawOutput)
	if len(trimmedOutput) == 0 {
		return nil
	}
	return strings.Split(trimmedOutput, "\n")
}
