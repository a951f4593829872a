package shared

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

const (
	repositoryPathLabelConstant       = "repository path"
	subdirectoryPathLabelConstant     = "subdirectory path"
	branchNameLabelConstant           = "branch name"
	remoteNameLabelConstant           = "remote name"
	emptyValueMessageTemplateConstant = "%s must not be empty"
	lineBreakMessageTemplateConstant  = "%s must not contain line breaks"
	whitespaceMessageTemplateConstant = "%s must not contain whitespace"
	absolutePathMessageConstant       = "subdirectory path must be relative to the repository root"
	parentTraversalMessageConstant    = "subdirectory path must not traverse outside the repository"
	lineBreakCharactersConstant       = "\n\r"
	repositoryRootPathConstant        = "."
	forwardSlashConstant              = "/"
	parentDirectorySegmentConstant    = ".."
	parentDirectoryPrefixConstant     = "../"
	whitespaceDetectionCutsetConstant = " \t"
	branchLeadingDashMessageTemplate  = "%s must not begin with a dash"
	leadingDashConstant               = "-"
)

// RepositoryPath identifies a repository working tree by the path recorded in the relocation map.
type RepositoryPath string

// NewRepositoryPath validates and normalizes a repository path value.
func NewRepositoryPath(raw string) (RepositoryPath, error) {
	if strings.ContainsAny(raw, lineBreakCharactersConstant) {
		return "", fmt.Errorf(lineBreakMessageTemplateConstant, repositoryPathLabelConstant)
	}
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", fmt.Errorf(emptyValueMessageTemplateConstant, repositoryPathLabelConstant)
	}
	return RepositoryPath(trimmed), nil
}

// String returns the repository path as written in the relocation map.
func (repositoryPath RepositoryPath) String() string {
	return string(repositoryPath)
}

// Base returns the final element of the repository path.
func (repositoryPath RepositoryPath) Base() string {
	return filepath.Base(string(repositoryPath))
}

// SubdirectoryPath identifies a location inside a repository relative to its root.
// The repository root itself is represented by ".".
type SubdirectoryPath string

// NewSubdirectoryPath validates and normalizes a repository-relative path value.
func NewSubdirectoryPath(raw string) (SubdirectoryPath, error) {
	if strings.ContainsAny(raw, lineBreakCharactersConstant) {
		return "", fmt.Errorf(lineBreakMessageTemplateConstant, subdirectoryPathLabelConstant)
	}
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", fmt.Errorf(emptyValueMessageTemplateConstant, subdirectoryPathLabelConstant)
	}
	if strings.HasPrefix(trimmed, forwardSlashConstant) {
		return "", errors.New(absolutePathMessageConstant)
	}
	cleaned := path.Clean(trimmed)
	if cleaned == parentDirectorySegmentConstant || strings.HasPrefix(cleaned, parentDirectoryPrefixConstant) {
		return "", errors.New(parentTraversalMessageConstant)
	}
	return SubdirectoryPath(cleaned), nil
}

// String returns the normalized repository-relative path.
func (subdirectoryPath SubdirectoryPath) String() string {
	return string(subdirectoryPath)
}

// IsRoot reports whether the path designates the repository root.
func (subdirectoryPath SubdirectoryPath) IsRoot() bool {
	return string(subdirectoryPath) == repositoryRootPathConstant
}

// Base returns the final element of the path, or "." for the repository root.
func (subdirectoryPath SubdirectoryPath) Base() string {
	return path.Base(string(subdirectoryPath))
}

// BranchName identifies a git branch.
type BranchName string

// NewBranchName validates a branch name value.
func NewBranchName(raw string) (BranchName, error) {
	if strings.ContainsAny(raw, lineBreakCharactersConstant) {
		return "", fmt.Errorf(lineBreakMessageTemplateConstant, branchNameLabelConstant)
	}
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", fmt.Errorf(emptyValueMessageTemplateConstant, branchNameLabelConstant)
	}
	if strings.ContainsAny(trimmed, whitespaceDetectionCutsetConstant) {
		return "", fmt.Errorf(whitespaceMessageTemplateConstant, branchNameLabelConstant)
	}
	if strings.HasPrefix(trimmed, leadingDashConstant) {
		return "", fmt.Errorf(branchLeadingDashMessageTemplate, branchNameLabelConstant)
	}
	return BranchName(trimmed), nil
}

// String returns the branch name value.
func (branchName BranchName) String() string {
	return string(branchName)
}

// RemoteName identifies a git remote.
type RemoteName string

// NewRemoteName validates a remote name value.
func NewRemoteName(raw string) (RemoteName, error) {
	if strings.ContainsAny(raw, lineBreakCharactersConstant) {
		return "", fmt.Errorf(lineBreakMessageTemplateConstant, remoteNameLabelConstant)
	}
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", fmt.Errorf(emptyValueMessageTemplateConstant, remoteNameLabelConstant)
	}
	if strings.ContainsAny(trimmed, whitespaceDetectionCutsetConstant) {
		return "", fmt.Errorf(whitespaceMessageTemplateConstant, remoteNameLabelConstant)
	}
	return RemoteName(trimmed), nil
}

// String returns the remote name value.
func (remoteName RemoteName) String() string {
	return string(remoteName)
}
