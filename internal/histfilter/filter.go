package histfilter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/celder/histmove/internal/execshell"
	"github.com/celder/histmove/internal/moveplan"
	"github.com/celder/histmove/internal/shared"
)

const (
	scratchPathTemplateConstant      = "%s.filtered.%s"
	staleBackupReferencesRelative    = ".git/refs/original"
	staleFilterStateRelativeConstant = ".git/filter-repo"

	stagerMissingMessageConstant      = "scratch stager not configured"
	gitExecutorMissingMessageConstant = "git executor not configured"
	toolPathMissingMessageConstant    = "history filter tool path not configured"
	stageScratchTemplateConstant      = "stage scratch copy %s: %w"
	cleanArtifactsTemplateConstant    = "remove stale filter artifacts in %s: %w"
	checkoutScratchTemplateConstant   = "checkout %s in scratch copy %s: %w"
	runFilterToolTemplateConstant     = "filter history of %s for %s: %w"
)

// Sentinel errors reported while constructing the external history filter.
var (
	// ErrScratchStagerNotConfigured indicates the filter was constructed without a scratch stager.
	ErrScratchStagerNotConfigured = errors.New(stagerMissingMessageConstant)
	// ErrGitExecutorNotConfigured indicates the filter was constructed without a git executor.
	ErrGitExecutorNotConfigured = errors.New(gitExecutorMissingMessageConstant)
	// ErrToolPathNotConfigured indicates the filter was constructed without a resolved tool path.
	ErrToolPathNotConfigured = errors.New(toolPathMissingMessageConstant)
)

// ScratchPath derives the on-disk location of the filtered scratch copy for
// one repository pair. The scratch sits beside the source repository, tagged
// with the destination's basename so one source feeding several destinations
// yields distinct copies.
func ScratchPath(pair moveplan.RepositoryPair) string {
	return fmt.Sprintf(scratchPathTemplateConstant, pair.SourceRepository.String(), pair.DestinationRepository.Base())
}

// FilterRequest describes one filtering job: the repository pair, the branch
// the source repository had checked out, and the path prefixes whose history
// the scratch copy must retain.
type FilterRequest struct {
	Pair         moveplan.RepositoryPair
	SourceBranch shared.BranchName
	PathPrefixes []shared.SubdirectoryPath
}

// FilterResult reports where the filtered scratch copy lives and whether an
// existing copy from a prior run was reused.
type FilterResult struct {
	ScratchPath string
	Reused      bool
}

// HistoryFilter produces a filtered copy of a source repository containing
// only the history touching a set of path prefixes.
type HistoryFilter interface {
	FilterHistory(executionContext context.Context, request FilterRequest) (FilterResult, error)
}

// ScratchStager exposes the repository operations needed to stage an isolated
// scratch copy for destructive filtering.
type ScratchStager interface {
	CloneRepository(executionContext context.Context, sourcePath string, targetPath string) error
	CheckoutBranch(executionContext context.Context, repositoryPath string, branchName string) error
}

// ExternalHistoryFilter implements HistoryFilter by delegating the filtering
// itself to an external executable run inside the scratch copy.
type ExternalHistoryFilter struct {
	fileSystem  shared.FileSystem
	stager      ScratchStager
	gitExecutor shared.GitExecutor
	toolPath    string
}

// NewExternalHistoryFilter validates collaborators and assembles an ExternalHistoryFilter.
func NewExternalHistoryFilter(fileSystem shared.FileSystem, stager ScratchStager, gitExecutor shared.GitExecutor, toolPath string) (*ExternalHistoryFilter, error) {
	if fileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	if stager == nil {
		return nil, ErrScratchStagerNotConfigured
	}
	if gitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	if len(toolPath) == 0 {
		return nil, ErrToolPathNotConfigured
	}
	return &ExternalHistoryFilter{fileSystem: fileSystem, stager: stager, gitExecutor: gitExecutor, toolPath: toolPath}, nil
}

// FilterHistory stages a scratch clone of the request's source repository,
// clears stale artifacts a previous interrupted filtering may have left,
// checks out the recorded source branch, and runs the external tool against
// the request's path prefixes. An already existing scratch copy is reused
// untouched so an interrupted run can resume without re-filtering.
func (filter *ExternalHistoryFilter) FilterHistory(executionContext context.Context, request FilterRequest) (FilterResult, error) {
	scratchPath := ScratchPath(request.Pair)
	if _, statError := filter.fileSystem.Stat(scratchPath); statError == nil {
		return FilterResult{ScratchPath: scratchPath, Reused: true}, nil
	}

	sourceRepository := request.Pair.SourceRepository.String()
	if cloneError := filter.stager.CloneRepository(executionContext, sourceRepository, scratchPath); cloneError != nil {
		return FilterResult{}, fmt.Errorf(stageScratchTemplateConstant, scratchPath, cloneError)
	}
	if cleanupError := filter.removeStaleArtifacts(scratchPath); cleanupError != nil {
		return FilterResult{}, cleanupError
	}
	if checkoutError := filter.stager.CheckoutBranch(executionContext, scratchPath, request.SourceBranch.String()); checkoutError != nil {
		return FilterResult{}, fmt.Errorf(checkoutScratchTemplateConstant, request.SourceBranch, scratchPath, checkoutError)
	}

	filterArguments := make([]string, 0, len(request.PathPrefixes))
	for _, pathPrefix := range request.PathPrefixes {
		filterArguments = append(filterArguments, pathPrefix.String())
	}
	commandDetails := execshell.CommandDetails{Arguments: filterArguments, WorkingDirectory: scratchPath}
	if _, executionError := filter.gitExecutor.ExecuteHistoryFilter(executionContext, filter.toolPath, commandDetails); executionError != nil {
		return FilterResult{}, fmt.Errorf(runFilterToolTemplateConstant, sourceRepository, request.Pair.DestinationRepository, executionError)
	}

	return FilterResult{ScratchPath: scratchPath}, nil
}

func (filter *ExternalHistoryFilter) removeStaleArtifacts(scratchPath string) error {
	staleArtifactPaths := []string{
		filepath.Join(scratchPath, filepath.FromSlash(staleBackupReferencesRelative)),
		filepath.Join(scratchPath, filepath.FromSlash(staleFilterStateRelativeConstant)),
	}
	for _, staleArtifactPath := range staleArtifactPaths {
		if removalError := filter.fileSystem.RemoveAll(staleArtifactPath); removalError != nil {
			return fmt.Errorf(cleanArtifactsTemplateConstant, scratchPath, removalError)
		}
	}
	return nil
}
