package relocate

import (
	"strings"

	pathutils "github.com/celder/histmove/internal/utils/path"
)

const (
	// DefaultMapFileName is the relocation map consulted when no override is configured.
	DefaultMapFileName = "repo.map"
	// DefaultNewRepositoryBranch is the branch newly created repositories end on.
	DefaultNewRepositoryBranch = "master"
	// DefaultModifiedRepositoryBranch is the branch pre-existing repositories are edited on.
	DefaultModifiedRepositoryBranch = "work"
)

const (
	configurationMapFileKeyConstant        = "map_file"
	configurationNewBranchKeyConstant      = "new_repo_branch"
	configurationModifiedBranchKeyConstant = "modified_repo_branch"
	configurationFilterToolKeyConstant     = "filter_tool"
	configurationDryRunKeyConstant         = "dry_run"
)

var relocateConfigurationHomeExpander = pathutils.NewHomeExpander()

// CommandConfiguration captures persisted configuration for history relocation.
type CommandConfiguration struct {
	MapFilePath              string `mapstructure:"map_file"`
	NewRepositoryBranch      string `mapstructure:"new_repo_branch"`
	ModifiedRepositoryBranch string `mapstructure:"modified_repo_branch"`
	FilterToolName           string `mapstructure:"filter_tool"`
	DryRun                   bool   `mapstructure:"dry_run"`
}

// DefaultCommandConfiguration returns baseline configuration values for history relocation.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		MapFilePath:              DefaultMapFileName,
		NewRepositoryBranch:      DefaultNewRepositoryBranch,
		ModifiedRepositoryBranch: DefaultModifiedRepositoryBranch,
		FilterToolName:           "",
		DryRun:                   false,
	}
}

// DefaultConfigurationValues exposes the default relocation configuration using the provided root key.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultCommandConfiguration()
	return map[string]any{
		rootKey + "." + configurationMapFileKeyConstant:        defaults.MapFilePath,
		rootKey + "." + configurationNewBranchKeyConstant:      defaults.NewRepositoryBranch,
		rootKey + "." + configurationModifiedBranchKeyConstant: defaults.ModifiedRepositoryBranch,
		rootKey + "." + configurationFilterToolKeyConstant:     defaults.FilterToolName,
		rootKey + "." + configurationDryRunKeyConstant:         defaults.DryRun,
	}
}

// Sanitize trims configured values and expands home-relative paths.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.MapFilePath = relocateConfigurationHomeExpander.Expand(strings.TrimSpace(configuration.MapFilePath))
	sanitized.NewRepositoryBranch = strings.TrimSpace(configuration.NewRepositoryBranch)
	sanitized.ModifiedRepositoryBranch = strings.TrimSpace(configuration.ModifiedRepositoryBranch)
	sanitized.FilterToolName = relocateConfigurationHomeExpander.Expand(strings.TrimSpace(configuration.FilterToolName))
	return sanitized
}
