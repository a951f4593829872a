package relocate

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/celder/histmove/internal/shared"
)

const (
	gitDirectoryNameConstant          = ".git"
	hooksDirectoryNameConstant        = "hooks"
	commitMessageHookFileNameConstant = "commit-msg"
	hookDirectoryPermissionsValue     = 0o755
	hookFilePermissionsValue          = 0o755
	hookFileSystemMissingMessage      = "commit hook installer requires a file system"
	hookDirectoryErrorTemplate        = "unable to prepare hooks directory %s: %w"
	hookWriteErrorTemplateConstant    = "unable to install commit-msg hook %s: %w"

	commitMessageHookContentConstant = `#!/bin/sh
# Appends a Change-Id trailer when the commit message lacks one.
commit_message_file="$1"
if grep -q '^Change-Id: I' "$commit_message_file"; then
	exit 0
fi
change_hash=$(git hash-object --stdin <"$commit_message_file")
printf '\nChange-Id: I%s\n' "$change_hash" >>"$commit_message_file"
`
)

// ErrHookFileSystemNotConfigured indicates the installer was constructed without a file system.
var ErrHookFileSystemNotConfigured = errors.New(hookFileSystemMissingMessage)

// CommitHookInstaller places the Change-Id commit-message hook into
// repositories created by a relocation run, so manual commits made after the
// relocation keep carrying change identifiers.
type CommitHookInstaller struct {
	fileSystem shared.FileSystem
}

// NewCommitHookInstaller validates the file system collaborator and assembles the installer.
func NewCommitHookInstaller(fileSystem shared.FileSystem) (*CommitHookInstaller, error) {
	if fileSystem == nil {
		return nil, ErrHookFileSystemNotConfigured
	}
	return &CommitHookInstaller{fileSystem: fileSystem}, nil
}

// Install writes the commit-message hook and reports whether it did. A hook
// already present in the repository is left untouched, which lets an
// interrupted run resume without clobbering it.
func (installer *CommitHookInstaller) Install(repositoryPath string) (bool, error) {
	hooksDirectory := filepath.Join(repositoryPath, gitDirectoryNameConstant, hooksDirectoryNameConstant)
	hookPath := filepath.Join(hooksDirectory, commitMessageHookFileNameConstant)

	if _, statError := installer.fileSystem.Stat(hookPath); statError == nil {
		return false, nil
	}

	if directoryError := installer.fileSystem.MkdirAll(hooksDirectory, hookDirectoryPermissionsValue); directoryError != nil {
		return false, fmt.Errorf(hookDirectoryErrorTemplate, hooksDirectory, directoryError)
	}
	if writeError := installer.fileSystem.WriteFile(hookPath, []byte(commitMessageHookContentConstant), hookFilePermissionsValue); writeError != nil {
		return false, fmt.Errorf(hookWriteErrorTemplateConstant, hookPath, writeError)
	}
	return true, nil
}

// CommitMessageHookContent returns the script installed as the commit-msg hook.
func CommitMessageHookContent() string {
	return commitMessageHookContentConstant
}
