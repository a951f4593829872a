package metadata

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/celder/histmove/internal/moveplan"
	"github.com/celder/histmove/internal/shared"
)

const (
	packageDirectoryListFileNameConstant = "pkg_dirs"
	wheelListFileNameConstant            = "wheels.inc"
	wheelNameSuffixConstant              = "-wheels"
	updateListTemplateConstant           = "update %s in %s: %w"
	stageListTemplateConstant            = "stage %s in %s: %w"
)

// PackageDirectoryListFixer moves a renamed component's path line from the
// source repository's package-directory list to the destination's.
type PackageDirectoryListFixer struct {
	fileSystem shared.FileSystem
	stager     PathStager
}

// NewPackageDirectoryListFixer validates collaborators and assembles the fixer.
func NewPackageDirectoryListFixer(fileSystem shared.FileSystem, stager PathStager) (*PackageDirectoryListFixer, error) {
	if fileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	if stager == nil {
		return nil, ErrPathStagerNotConfigured
	}
	return &PackageDirectoryListFixer{fileSystem: fileSystem, stager: stager}, nil
}

// Apply moves the component's package-directory line and stages both list
// files. Requests that keep the component basename, and repositories without
// a package-directory list or without the expected line, are left untouched.
func (fixer *PackageDirectoryListFixer) Apply(executionContext context.Context, request moveplan.MoveRequest) error {
	if _, nameChanged := resolveComponentRename(request); !nameChanged {
		return nil
	}
	return moveListEntry(
		executionContext, fixer.fileSystem, fixer.stager,
		request.SourceRepository, request.DestinationRepository,
		packageDirectoryListFileNameConstant,
		request.SourcePath.String(), request.DestinationPath.String())
}

// WheelListFixer moves a renamed component's derived wheel-package line from
// the source repository's wheel list to the destination's.
type WheelListFixer struct {
	fileSystem shared.FileSystem
	stager     PathStager
}

// NewWheelListFixer validates collaborators and assembles the fixer.
func NewWheelListFixer(fileSystem shared.FileSystem, stager PathStager) (*WheelListFixer, error) {
	if fileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	if stager == nil {
		return nil, ErrPathStagerNotConfigured
	}
	return &WheelListFixer{fileSystem: fileSystem, stager: stager}, nil
}

// Apply moves the component's wheel-list line and stages both list files.
func (fixer *WheelListFixer) Apply(executionContext context.Context, request moveplan.MoveRequest) error {
	componentRename, nameChanged := resolveComponentRename(request)
	if !nameChanged {
		return nil
	}
	return moveListEntry(
		executionContext, fixer.fileSystem, fixer.stager,
		request.SourceRepository, request.DestinationRepository,
		wheelListFileNameConstant,
		componentRename.Previous+wheelNameSuffixConstant, componentRename.Relocated+wheelNameSuffixConstant)
}

// moveListEntry removes previousEntry from the source repository's copy of a
// line-list file and appends relocatedEntry to the destination's, staging
// both. The move is skipped entirely when the source list or the expected
// entry is absent.
func moveListEntry(executionContext context.Context, fileSystem shared.FileSystem, stager PathStager, sourceRepository shared.RepositoryPath, destinationRepository shared.RepositoryPath, listFileName string, previousEntry string, relocatedEntry string) error {
	sourceListPath := filepath.Join(sourceRepository.String(), listFileName)
	sourceLines, sourceListExists := readListLines(fileSystem, sourceListPath)
	if !sourceListExists {
		return nil
	}
	remainingLines, entryRemoved := removeListEntry(sourceLines, previousEntry)
	if !entryRemoved {
		return nil
	}
	if writeError := writeListLines(fileSystem, sourceListPath, remainingLines); writeError != nil {
		return fmt.Errorf(updateListTemplateConstant, listFileName, sourceRepository, writeError)
	}
	if stageError := stager.StagePath(executionContext, sourceRepository.String(), listFileName); stageError != nil {
		return fmt.Errorf(stageListTemplateConstant, listFileName, sourceRepository, stageError)
	}

	destinationListPath := filepath.Join(destinationRepository.String(), listFileName)
	destinationLines, _ := readListLines(fileSystem, destinationListPath)
	if !containsListEntry(destinationLines, relocatedEntry) {
		destinationLines = append(destinationLines, relocatedEntry)
	}
	if writeError := writeListLines(fileSystem, destinationListPath, destinationLines); writeError != nil {
		return fmt.Errorf(updateListTemplateConstant, listFileName, destinationRepository, writeError)
	}
	if stageError := stager.StagePath(executionContext, destinationRepository.String(), listFileName); stageError != nil {
		return fmt.Errorf(stageListTemplateConstant, listFileName, destinationRepository, stageError)
	}
	return nil
}

func removeListEntry(fileLines []string, removedEntry string) ([]string, bool) {
	var remainingLines []string
	entryRemoved := false
	for _, fileLine := range fileLines {
		if strings.TrimSpace(fileLine) == removedEntry {
			entryRemoved = true
			continue
		}
		remainingLines = append(remainingLines, fileLine)
	}
	return remainingLines, entryRemoved
}

func containsListEntry(fileLines []string, searchedEntry string) bool {
	for _, fileLine := range fileLines {
		if strings.TrimSpace(fileLine) == searchedEntry {
			return true
		}
	}
	return false
}
