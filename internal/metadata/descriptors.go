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
	packageInfoFileNameConstant     = "PKG-INFO"
	buildDataFileNameConstant       = "build_srpm.data"
	summaryFieldPrefixConstant      = "Summary:"
	aliasFieldPrefixConstant        = "Alias:"
	sourceDirectoryFieldConstant    = "SRC_DIR="
	tarballNameFieldConstant        = "TAR_NAME="
	copyListFieldConstant           = "COPY_LIST="
	rewriteDescriptorTemplate       = "rewrite %s: %w"
	stageDescriptorTemplateConstant = "stage %s in %s: %w"
)

var (
	packageInfoFieldPrefixes     = []string{specNameFieldPrefixConstant, summaryFieldPrefixConstant, aliasFieldPrefixConstant}
	buildDescriptorFieldPrefixes = []string{specNameFieldPrefixConstant, summaryFieldPrefixConstant}
	buildDataFieldPrefixes       = []string{sourceDirectoryFieldConstant, tarballNameFieldConstant, copyListFieldConstant}
)

// DescriptorFixer rewrites the name-bearing fields of a renamed component's
// own package descriptors at their relocated location.
type DescriptorFixer struct {
	fileSystem shared.FileSystem
	stager     PathStager
	scanner    *DescriptorScanner
}

// NewDescriptorFixer validates collaborators and assembles the fixer.
func NewDescriptorFixer(fileSystem shared.FileSystem, stager PathStager, scanner *DescriptorScanner) (*DescriptorFixer, error) {
	if fileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	if stager == nil {
		return nil, ErrPathStagerNotConfigured
	}
	if scanner == nil {
		return nil, ErrScannerNotConfigured
	}
	return &DescriptorFixer{fileSystem: fileSystem, stager: stager, scanner: scanner}, nil
}

// Apply rewrites the Name, Summary, and Alias fields of every package-info
// file and the Name and Summary fields of every build descriptor underneath
// the component's relocated path, staging each changed file.
func (fixer *DescriptorFixer) Apply(executionContext context.Context, request moveplan.MoveRequest) error {
	componentRename, nameChanged := resolveComponentRename(request)
	if !nameChanged {
		return nil
	}

	componentRoot := filepath.Join(request.DestinationRepository.String(), filepath.FromSlash(request.DestinationPath.String()))

	packageInfoPaths, _ := fixer.scanner.FindNamedFiles(componentRoot, packageInfoFileNameConstant)
	for _, packageInfoPath := range packageInfoPaths {
		if rewriteError := rewriteAndStage(executionContext, fixer.fileSystem, fixer.stager, request.DestinationRepository, packageInfoPath, packageInfoFieldPrefixes, componentRename); rewriteError != nil {
			return rewriteError
		}
	}

	descriptorPaths, _ := fixer.scanner.FindBuildDescriptors(componentRoot)
	for _, descriptorPath := range descriptorPaths {
		if rewriteError := rewriteAndStage(executionContext, fixer.fileSystem, fixer.stager, request.DestinationRepository, descriptorPath, buildDescriptorFieldPrefixes, componentRename); rewriteError != nil {
			return rewriteError
		}
	}
	return nil
}

// BuildDataFixer rewrites the source-tarball variable assignments embedding a
// renamed component's previous name in its build-data files.
type BuildDataFixer struct {
	fileSystem shared.FileSystem
	stager     PathStager
	scanner    *DescriptorScanner
}

// NewBuildDataFixer validates collaborators and assembles the fixer.
func NewBuildDataFixer(fileSystem shared.FileSystem, stager PathStager, scanner *DescriptorScanner) (*BuildDataFixer, error) {
	if fileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	if stager == nil {
		return nil, ErrPathStagerNotConfigured
	}
	if scanner == nil {
		return nil, ErrScannerNotConfigured
	}
	return &BuildDataFixer{fileSystem: fileSystem, stager: stager, scanner: scanner}, nil
}

// Apply rewrites the SRC_DIR, TAR_NAME, and COPY_LIST assignments of every
// build-data file underneath the component's relocated path, staging each
// changed file.
func (fixer *BuildDataFixer) Apply(executionContext context.Context, request moveplan.MoveRequest) error {
	componentRename, nameChanged := resolveComponentRename(request)
	if !nameChanged {
		return nil
	}

	componentRoot := filepath.Join(request.DestinationRepository.String(), filepath.FromSlash(request.DestinationPath.String()))
	buildDataPaths, _ := fixer.scanner.FindNamedFiles(componentRoot, buildDataFileNameConstant)
	for _, buildDataPath := range buildDataPaths {
		if rewriteError := rewriteAndStage(executionContext, fixer.fileSystem, fixer.stager, request.DestinationRepository, buildDataPath, buildDataFieldPrefixes, componentRename); rewriteError != nil {
			return rewriteError
		}
	}
	return nil
}

// rewriteAndStage rewrites the component name inside every line carrying one
// of the recognized field prefixes and stages the file when anything changed.
func rewriteAndStage(executionContext context.Context, fileSystem shared.FileSystem, stager PathStager, repository shared.RepositoryPath, filePath string, fieldPrefixes []string, componentRename NameRename) error {
	fileLines, fileExists := readListLines(fileSystem, filePath)
	if !fileExists {
		return nil
	}

	fileChanged := false
	for lineIndex, fileLine := range fileLines {
		if !hasAnyPrefix(strings.TrimSpace(fileLine), fieldPrefixes) {
			continue
		}
		rewrittenLine := strings.ReplaceAll(fileLine, componentRename.Previous, componentRename.Relocated)
		if rewrittenLine != fileLine {
			fileLines[lineIndex] = rewrittenLine
			fileChanged = true
		}
	}
	if !fileChanged {
		return nil
	}

	if writeError := writeListLines(fileSystem, filePath, fileLines); writeError != nil {
		return fmt.Errorf(rewriteDescriptorTemplate, filePath, writeError)
	}
	return stageRepositoryFile(executionContext, stager, repository, filePath)
}

// stageRepositoryFile stages filePath relative to its repository root.
func stageRepositoryFile(executionContext context.Context, stager PathStager, repository shared.RepositoryPath, filePath string) error {
	relativePath, relativeError := filepath.Rel(repository.String(), filePath)
	if relativeError != nil {
		relativePath = filePath
	}
	if stageError := stager.StagePath(executionContext, repository.String(), relativePath); stageError != nil {
		return fmt.Errorf(stageDescriptorTemplateConstant, relativePath, repository, stageError)
	}
	return nil
}

func hasAnyPrefix(candidateLine string, linePrefixes []string) bool {
	for _, linePrefix := range linePrefixes {
		if strings.HasPrefix(candidateLine, linePrefix) {
			return true
		}
	}
	return false
}
