package metadata

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/celder/histmove/internal/moveplan"
	"github.com/celder/histmove/internal/shared"
)

const (
	requiresFieldPrefixConstant       = "Requires:"
	buildRequiresFieldPrefixConstant  = "BuildRequires:"
	dependentCommitSubjectTemplate    = "Update dependencies after %s renamed to %s"
	dependentTrailerTemplateConstant  = "%s\n\nDepends-On: %s"
	committerMissingMessageConstant   = "dependency committer not configured"
	commitDependentsTemplateConstant  = "commit dependency fixes in %s: %w"
	packageNameRunesConstant          = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_.+"
)

// ErrCommitterNotConfigured indicates the dependent fixer was constructed without a committer.
var ErrCommitterNotConfigured = errors.New(committerMissingMessageConstant)

// DependencyCommitter stages and commits dependency fixes in repositories
// outside the move's own commit steps.
type DependencyCommitter interface {
	PathStager
	CreateCommit(executionContext context.Context, repositoryPath string, commitMessage string) error
}

// DependentDescriptorFixer rewrites Requires and BuildRequires references to
// a renamed component throughout every repository in the run. Repositories
// outside the moving pair are committed immediately, each commit linking back
// to the originating move through a dependency trailer; fixes inside the
// pair's own repositories stay staged and ride the pair's finalizing commits.
type DependentDescriptorFixer struct {
	fileSystem shared.FileSystem
	scanner    *DescriptorScanner
	committer  DependencyCommitter
}

// NewDependentDescriptorFixer validates collaborators and assembles the fixer.
func NewDependentDescriptorFixer(fileSystem shared.FileSystem, scanner *DescriptorScanner, committer DependencyCommitter) (*DependentDescriptorFixer, error) {
	if fileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	if scanner == nil {
		return nil, ErrScannerNotConfigured
	}
	if committer == nil {
		return nil, ErrCommitterNotConfigured
	}
	return &DependentDescriptorFixer{fileSystem: fileSystem, scanner: scanner, committer: committer}, nil
}

// Apply scans every build descriptor in the provided repositories, excluding
// the component's relocated subtree and its not-yet-deleted original, and
// rewrites dependency references to the component or any of its subpackages.
// Repositories outside the moving pair that received fixes are committed and
// returned in input order; linkageReference, when set, is carried in each
// commit's dependency trailer. Fixes in the pair's own repositories are
// staged only.
func (fixer *DependentDescriptorFixer) Apply(executionContext context.Context, repositories []shared.RepositoryPath, request moveplan.MoveRequest, linkageReference string) ([]shared.RepositoryPath, error) {
	packageRename, nameChanged := BuildPackageRename(fixer.fileSystem, fixer.scanner, request)
	if !nameChanged {
		return nil, nil
	}

	orderedRenames := packageRename.AllRenames()
	sort.SliceStable(orderedRenames, func(firstIndex int, secondIndex int) bool {
		return len(orderedRenames[firstIndex].Previous) > len(orderedRenames[secondIndex].Previous)
	})

	var committedRepositories []shared.RepositoryPath
	for _, repository := range repositories {
		repositoryChanged, repositoryError := fixer.rewriteRepositoryDependents(executionContext, repository, request, orderedRenames)
		if repositoryError != nil {
			return committedRepositories, repositoryError
		}
		if !repositoryChanged {
			continue
		}
		if repository == request.SourceRepository || repository == request.DestinationRepository {
			continue
		}

		commitMessage := fmt.Sprintf(dependentCommitSubjectTemplate, packageRename.Primary.Previous, packageRename.Primary.Relocated)
		if len(linkageReference) > 0 {
			commitMessage = fmt.Sprintf(dependentTrailerTemplateConstant, commitMessage, linkageReference)
		}
		if commitError := fixer.committer.CreateCommit(executionContext, repository.String(), commitMessage); commitError != nil {
			return committedRepositories, fmt.Errorf(commitDependentsTemplateConstant, repository, commitError)
		}
		committedRepositories = append(committedRepositories, repository)
	}
	return committedRepositories, nil
}

func (fixer *DependentDescriptorFixer) rewriteRepositoryDependents(executionContext context.Context, repository shared.RepositoryPath, request moveplan.MoveRequest, orderedRenames []NameRename) (bool, error) {
	var excludedSubtrees []string
	if repository == request.DestinationRepository && !request.DestinationPath.IsRoot() {
		excludedSubtrees = append(excludedSubtrees, filepath.Join(repository.String(), filepath.FromSlash(request.DestinationPath.String())))
	}
	if repository == request.SourceRepository && !request.SourcePath.IsRoot() {
		excludedSubtrees = append(excludedSubtrees, filepath.Join(repository.String(), filepath.FromSlash(request.SourcePath.String())))
	}

	descriptorPaths, scanError := fixer.scanner.FindBuildDescriptors(repository.String(), excludedSubtrees...)
	if scanError != nil {
		return false, scanError
	}

	repositoryChanged := false
	for _, descriptorPath := range descriptorPaths {
		descriptorChanged, rewriteError := fixer.rewriteDependencyFields(descriptorPath, orderedRenames)
		if rewriteError != nil {
			return repositoryChanged, rewriteError
		}
		if !descriptorChanged {
			continue
		}
		if stageError := stageRepositoryFile(executionContext, fixer.committer, repository, descriptorPath); stageError != nil {
			return repositoryChanged, stageError
		}
		repositoryChanged = true
	}
	return repositoryChanged, nil
}

func (fixer *DependentDescriptorFixer) rewriteDependencyFields(descriptorPath string, orderedRenames []NameRename) (bool, error) {
	descriptorLines, descriptorExists := readListLines(fixer.fileSystem, descriptorPath)
	if !descriptorExists {
		return false, nil
	}

	descriptorChanged := false
	for lineIndex, descriptorLine := range descriptorLines {
		trimmedLine := strings.TrimSpace(descriptorLine)
		if !strings.HasPrefix(trimmedLine, requiresFieldPrefixConstant) && !strings.HasPrefix(trimmedLine, buildRequiresFieldPrefixConstant) {
			continue
		}
		rewrittenLine := descriptorLine
		for _, nameRename := range orderedRenames {
			rewrittenLine = replaceNameToken(rewrittenLine, nameRename.Previous, nameRename.Relocated)
		}
		if rewrittenLine != descriptorLine {
			descriptorLines[lineIndex] = rewrittenLine
			descriptorChanged = true
		}
	}
	if !descriptorChanged {
		return false, nil
	}

	if writeError := writeListLines(fixer.fileSystem, descriptorPath, descriptorLines); writeError != nil {
		return false, fmt.Errorf(rewriteDescriptorTemplate, descriptorPath, writeError)
	}
	return true, nil
}

// replaceNameToken substitutes whole-token occurrences of previousName, so a
// package whose name merely contains the component name is never rewritten.
func replaceNameToken(fieldLine string, previousName string, relocatedName string) string {
	var rewrittenLine strings.Builder
	searchOffset := 0
	for {
		matchIndex := strings.Index(fieldLine[searchOffset:], previousName)
		if matchIndex < 0 {
			rewrittenLine.WriteString(fieldLine[searchOffset:])
			return rewrittenLine.String()
		}
		matchStart := searchOffset + matchIndex
		matchEnd := matchStart + len(previousName)
		rewrittenLine.WriteString(fieldLine[searchOffset:matchStart])
		if isTokenBoundary(fieldLine, matchStart-1) && isTokenBoundary(fieldLine, matchEnd) {
			rewrittenLine.WriteString(relocatedName)
		} else {
			rewrittenLine.WriteString(previousName)
		}
		searchOffset = matchEnd
	}
}

func isTokenBoundary(fieldLine string, byteIndex int) bool {
	if byteIndex < 0 || byteIndex >= len(fieldLine) {
		return true
	}
	return !strings.ContainsRune(packageNameRunesConstant, rune(fieldLine[byteIndex]))
}
