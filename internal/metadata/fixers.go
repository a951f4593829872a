package metadata

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/celder/histmove/internal/moveplan"
	"github.com/celder/histmove/internal/shared"
)

const (
	fixerFileSystemMissingMessage = "file system not configured"
	fixerStagerMissingMessage     = "path stager not configured"
	fixerScannerMissingMessage    = "descriptor scanner not configured"

	metadataFilePermissionsValue = 0o644
	listLineSeparatorConstant    = "\n"
)

// Sentinel errors reported while constructing metadata fixers.
var (
	// ErrFileSystemNotConfigured indicates a fixer was constructed without a file system.
	ErrFileSystemNotConfigured = errors.New(fixerFileSystemMissingMessage)
	// ErrPathStagerNotConfigured indicates a fixer was constructed without a path stager.
	ErrPathStagerNotConfigured = errors.New(fixerStagerMissingMessage)
	// ErrScannerNotConfigured indicates a fixer was constructed without a descriptor scanner.
	ErrScannerNotConfigured = errors.New(fixerScannerMissingMessage)
)

// PathStager stages modified files in a repository's index without committing.
type PathStager interface {
	StagePath(executionContext context.Context, repositoryPath string, stagedPath string) error
}

// NameRename pairs a package name with the name replacing it.
type NameRename struct {
	Previous  string
	Relocated string
}

// PackageRename describes the component rename implied by one move request:
// the primary package name change plus the derived change for every declared
// subpackage.
type PackageRename struct {
	Primary     NameRename
	Subpackages []NameRename
}

// AllRenames returns the primary rename followed by the subpackage renames.
func (rename PackageRename) AllRenames() []NameRename {
	return append([]NameRename{rename.Primary}, rename.Subpackages...)
}

// resolveComponentRename extracts the basename change a move request implies.
// Moves that involve a repository root on either side carry no component name
// and moves that keep the basename need no metadata fixing at all.
func resolveComponentRename(request moveplan.MoveRequest) (NameRename, bool) {
	if request.SourcePath.IsRoot() || request.DestinationPath.IsRoot() {
		return NameRename{}, false
	}
	componentRename := NameRename{Previous: request.SourcePath.Base(), Relocated: request.DestinationPath.Base()}
	if componentRename.Previous == componentRename.Relocated {
		return NameRename{}, false
	}
	return componentRename, true
}

// BuildPackageRename resolves the full package rename for a move request by
// consulting the component's build descriptor at its relocated location. The
// descriptor whose declared name matches the previous component name wins;
// when none matches, the first descriptor found is used. Components without a
// descriptor rename only their primary name.
func BuildPackageRename(fileSystem shared.FileSystem, scanner *DescriptorScanner, request moveplan.MoveRequest) (PackageRename, bool) {
	componentRename, nameChanged := resolveComponentRename(request)
	if !nameChanged {
		return PackageRename{}, false
	}

	packageRename := PackageRename{Primary: componentRename}
	componentRoot := filepath.Join(request.DestinationRepository.String(), filepath.FromSlash(request.DestinationPath.String()))
	descriptorPaths, scanError := scanner.FindBuildDescriptors(componentRoot)
	if scanError != nil || len(descriptorPaths) == 0 {
		return packageRename, true
	}

	selectedDescriptor := parseFirstDescriptor(fileSystem, descriptorPaths, componentRename.Previous)
	for _, subpackageName := range selectedDescriptor.SubpackageNames {
		relocatedName := strings.ReplaceAll(subpackageName, componentRename.Previous, componentRename.Relocated)
		if relocatedName == subpackageName {
			continue
		}
		packageRename.Subpackages = append(packageRename.Subpackages, NameRename{Previous: subpackageName, Relocated: relocatedName})
	}
	return packageRename, true
}

func parseFirstDescriptor(fileSystem shared.FileSystem, descriptorPaths []string, preferredName string) SpecDescriptor {
	var firstDescriptor SpecDescriptor
	for descriptorIndex, descriptorPath := range descriptorPaths {
		descriptorContent, readError := fileSystem.ReadFile(descriptorPath)
		if readError != nil {
			continue
		}
		parsedDescriptor := ParseSpecDescriptor(string(descriptorContent))
		if descriptorIndex == 0 {
			firstDescriptor = parsedDescriptor
		}
		if parsedDescriptor.PackageName == preferredName {
			return parsedDescriptor
		}
	}
	return firstDescriptor
}

// readListLines loads a line-oriented metadata file. The second result
// reports whether the file exists; a missing file is the signal for a
// best-effort fixer to leave the repository untouched.
func readListLines(fileSystem shared.FileSystem, filePath string) ([]string, bool) {
	fileContent, readError := fileSystem.ReadFile(filePath)
	if readError != nil {
		return nil, false
	}
	trimmedContent := strings.TrimSuffix(string(fileContent), listLineSeparatorConstant)
	if len(trimmedContent) == 0 {
		return nil, true
	}
	return strings.Split(trimmedContent, listLineSeparatorConstant), true
}

// writeListLines persists a line-oriented metadata file with a trailing newline.
func writeListLines(fileSystem shared.FileSystem, filePath string, fileLines []string) error {
	if len(fileLines) == 0 {
		return fileSystem.WriteFile(filePath, []byte{}, metadataFilePermissionsValue)
	}
	fileContent := strings.Join(fileLines, listLineSeparatorConstant) + listLineSeparatorConstant
	return fileSystem.WriteFile(filePath, []byte(fileContent), metadataFilePermissionsValue)
}
