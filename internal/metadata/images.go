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
	isoImageListFileNameConstant   = "iso_image.inc"
	guestImageListFileNameConstant = "guest_image.inc"
	manifestCommentPrefixConstant  = "#"
)

var imageManifestFileNames = []string{isoImageListFileNameConstant, guestImageListFileNameConstant}

type movedManifestBlock struct {
	blockLines     []string
	relocatedEntry string
}

// ImageListFixer moves a renamed component's package entries between the
// source and destination image manifests. Each moved entry carries its
// header comment lines along, and the component's declared subpackages move
// with the primary package.
type ImageListFixer struct {
	fileSystem shared.FileSystem
	stager     PathStager
	scanner    *DescriptorScanner
}

// NewImageListFixer validates collaborators and assembles the fixer.
func NewImageListFixer(fileSystem shared.FileSystem, stager PathStager, scanner *DescriptorScanner) (*ImageListFixer, error) {
	if fileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	if stager == nil {
		return nil, ErrPathStagerNotConfigured
	}
	if scanner == nil {
		return nil, ErrScannerNotConfigured
	}
	return &ImageListFixer{fileSystem: fileSystem, stager: stager, scanner: scanner}, nil
}

// Apply moves the component's entries through every recognized image
// manifest and stages the touched files. Manifests without matching entries
// and requests without a basename change are left untouched.
func (fixer *ImageListFixer) Apply(executionContext context.Context, request moveplan.MoveRequest) error {
	packageRename, nameChanged := BuildPackageRename(fixer.fileSystem, fixer.scanner, request)
	if !nameChanged {
		return nil
	}

	for _, manifestFileName := range imageManifestFileNames {
		if manifestError := fixer.moveManifestEntries(executionContext, request, manifestFileName, packageRename); manifestError != nil {
			return manifestError
		}
	}
	return nil
}

func (fixer *ImageListFixer) moveManifestEntries(executionContext context.Context, request moveplan.MoveRequest, manifestFileName string, packageRename PackageRename) error {
	sourceManifestPath := filepath.Join(request.SourceRepository.String(), manifestFileName)
	sourceLines, sourceManifestExists := readListLines(fixer.fileSystem, sourceManifestPath)
	if !sourceManifestExists {
		return nil
	}

	remainingLines, movedBlocks := extractManifestBlocks(sourceLines, packageRename)
	if len(movedBlocks) == 0 {
		return nil
	}

	if writeError := writeListLines(fixer.fileSystem, sourceManifestPath, remainingLines); writeError != nil {
		return fmt.Errorf(updateListTemplateConstant, manifestFileName, request.SourceRepository, writeError)
	}
	if stageError := fixer.stager.StagePath(executionContext, request.SourceRepository.String(), manifestFileName); stageError != nil {
		return fmt.Errorf(stageListTemplateConstant, manifestFileName, request.SourceRepository, stageError)
	}

	destinationManifestPath := filepath.Join(request.DestinationRepository.String(), manifestFileName)
	destinationLines, _ := readListLines(fixer.fileSystem, destinationManifestPath)
	for _, movedBlock := range movedBlocks {
		if containsListEntry(destinationLines, movedBlock.relocatedEntry) {
			continue
		}
		destinationLines = append(destinationLines, movedBlock.blockLines...)
	}
	if writeError := writeListLines(fixer.fileSystem, destinationManifestPath, destinationLines); writeError != nil {
		return fmt.Errorf(updateListTemplateConstant, manifestFileName, request.DestinationRepository, writeError)
	}
	if stageError := fixer.stager.StagePath(executionContext, request.DestinationRepository.String(), manifestFileName); stageError != nil {
		return fmt.Errorf(stageListTemplateConstant, manifestFileName, request.DestinationRepository, stageError)
	}
	return nil
}

// extractManifestBlocks removes every manifest entry matching one of the
// component's package names together with the contiguous header comments that
// mention the component, and returns the remaining lines plus the moved
// blocks rewritten to the relocated names.
func extractManifestBlocks(manifestLines []string, packageRename PackageRename) ([]string, []movedManifestBlock) {
	relocatedByPrevious := make(map[string]string)
	for _, nameRename := range packageRename.AllRenames() {
		relocatedByPrevious[nameRename.Previous] = nameRename.Relocated
	}

	removedIndexes := make(map[int]struct{})
	var movedBlocks []movedManifestBlock

	for lineIndex, manifestLine := range manifestLines {
		entryName := strings.TrimSpace(manifestLine)
		relocatedName, entryMatches := relocatedByPrevious[entryName]
		if !entryMatches {
			continue
		}

		blockStart := lineIndex
		for blockStart > 0 && isComponentComment(manifestLines[blockStart-1], packageRename.Primary.Previous) {
			if _, alreadyRemoved := removedIndexes[blockStart-1]; alreadyRemoved {
				break
			}
			blockStart--
		}

		var blockLines []string
		for commentIndex := blockStart; commentIndex < lineIndex; commentIndex++ {
			removedIndexes[commentIndex] = struct{}{}
			blockLines = append(blockLines, strings.ReplaceAll(manifestLines[commentIndex], packageRename.Primary.Previous, packageRename.Primary.Relocated))
		}
		removedIndexes[lineIndex] = struct{}{}
		blockLines = append(blockLines, strings.Replace(manifestLine, entryName, relocatedName, 1))
		movedBlocks = append(movedBlocks, movedManifestBlock{blockLines: blockLines, relocatedEntry: relocatedName})
	}

	if len(movedBlocks) == 0 {
		return manifestLines, nil
	}

	var remainingLines []string
	for lineIndex, manifestLine := range manifestLines {
		if _, removed := removedIndexes[lineIndex]; removed {
			continue
		}
		remainingLines = append(remainingLines, manifestLine)
	}
	return remainingLines, movedBlocks
}

func isComponentComment(manifestLine string, componentName string) bool {
	trimmedLine := strings.TrimSpace(manifestLine)
	return strings.HasPrefix(trimmedLine, manifestCommentPrefixConstant) && strings.Contains(trimmedLine, componentName)
}
