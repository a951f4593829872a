package tests

import (
	"os"
	"path/filepath"
	"testing"
)

const (
	gitConfigDirectoryPatternConstant = "histmove-gitconfig-"
	gitConfigFileNameConstant         = "gitconfig"
	gitConfigFilePermissionsValue     = 0o644
	gitConfigGlobalVariableConstant   = "GIT_CONFIG_GLOBAL"
	gitConfigNoSystemVariableConstant = "GIT_CONFIG_NOSYSTEM"
	gitTerminalPromptVariableConstant = "GIT_TERMINAL_PROMPT"
	hermeticGitConfigurationConstant  = `[user]
	name = Histmove Integration
	email = histmove-integration@example.com
[init]
	defaultBranch = seed
[advice]
	detachedHead = false
`
)

// TestMain pins every git invocation, including the ones histmove itself
// spawns, to a throwaway global configuration so the suite never depends on
// the host's identity, default branch, or credential prompts.
func TestMain(testMain *testing.M) {
	configurationDirectory, directoryError := os.MkdirTemp("", gitConfigDirectoryPatternConstant)
	if directoryError != nil {
		os.Exit(1)
	}

	configurationPath := filepath.Join(configurationDirectory, gitConfigFileNameConstant)
	if writeError := os.WriteFile(configurationPath, []byte(hermeticGitConfigurationConstant), gitConfigFilePermissionsValue); writeError != nil {
		_ = os.RemoveAll(configurationDirectory)
		os.Exit(1)
	}

	_ = os.Setenv(gitConfigGlobalVariableConstant, configurationPath)
	_ = os.Setenv(gitConfigNoSystemVariableConstant, "1")
	_ = os.Setenv(gitTerminalPromptVariableConstant, "0")

	exitCode := testMain.Run()
	_ = os.RemoveAll(configurationDirectory)
	os.Exit(exitCode)
}
