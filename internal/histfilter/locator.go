package histfilter

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/celder/histmove/internal/shared"
)

const (
	// DefaultToolName is the history filter executable resolved when no
	// override is configured.
	DefaultToolName = "filter_git_history.sh"
	// ToolsDirectoryEnvironmentVariable names the directory searched for the
	// filter tool after the system search path.
	ToolsDirectoryEnvironmentVariable = "OSLO_TOOLS"

	locatorFileSystemMissingMessage = "file system not configured"
	toolNotFoundTemplateConstant    = "history filter tool %q not found: install it on the search path or point %s at its directory"
	toolNotExecutableTemplate       = "history filter tool %q is not an executable file"
	executablePermissionMaskValue   = 0o111
)

// ErrFileSystemNotConfigured indicates the locator was constructed without a file system.
var ErrFileSystemNotConfigured = errors.New(locatorFileSystemMissingMessage)

// ToolLocator resolves the external history filter executable. Resolution is
// performed once, before any repository is touched, so a missing tool aborts
// the run without mutation.
type ToolLocator struct {
	fileSystem shared.FileSystem
}

// NewToolLocator validates collaborators and assembles a ToolLocator.
func NewToolLocator(fileSystem shared.FileSystem) (*ToolLocator, error) {
	if fileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	return &ToolLocator{fileSystem: fileSystem}, nil
}

// ResolveTool locates toolName and returns the executable path to invoke. A
// name carrying a path separator is honored as an explicit location; a bare
// name is searched on the system path first and in the directory named by
// OSLO_TOOLS second.
func (locator *ToolLocator) ResolveTool(toolName string) (string, error) {
	if filepath.Base(toolName) != toolName {
		return locator.confirmExecutable(toolName)
	}

	if resolvedPath, lookupError := exec.LookPath(toolName); lookupError == nil {
		return resolvedPath, nil
	}

	toolsDirectory := os.Getenv(ToolsDirectoryEnvironmentVariable)
	if len(toolsDirectory) > 0 {
		candidatePath := filepath.Join(toolsDirectory, toolName)
		if resolvedPath, confirmationError := locator.confirmExecutable(candidatePath); confirmationError == nil {
			return resolvedPath, nil
		}
	}

	return "", fmt.Errorf(toolNotFoundTemplateConstant, toolName, ToolsDirectoryEnvironmentVariable)
}

func (locator *ToolLocator) confirmExecutable(candidatePath string) (string, error) {
	candidateInfo, statError := locator.fileSystem.Stat(candidatePath)
	if statError != nil || candidateInfo.IsDir() || !isExecutableMode(candidateInfo.Mode()) {
		return "", fmt.Errorf(toolNotExecutableTemplate, candidatePath)
	}
	return candidatePath, nil
}

func isExecutableMode(fileMode fs.FileMode) bool {
	return fileMode.Perm()&executablePermissionMaskValue != 0
}
