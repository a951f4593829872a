package moveplan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/celder/histmove/internal/shared"
)

const (
	inspectorNotConfiguredMessageConstant = "repository inspector not configured"
	missingSourceRepositoryTemplate       = "source repository %s does not exist"
	notARepositoryTemplateConstant        = "source repository %s is not a git repository"
	missingSourcePathTemplateConstant     = "source path %s does not exist in repository %s"
	detachedSourceRepositoryTemplate      = "source repository %s is not on a branch"
	detachedHeadReferenceConstant         = "HEAD"
)

// ErrInspectorNotConfigured indicates the validator was constructed without a repository inspector.
var ErrInspectorNotConfigured = errors.New(inspectorNotConfiguredMessageConstant)

// RepositoryInspector exposes the read-only repository probes validation relies on.
type RepositoryInspector interface {
	CheckIsRepository(executionContext context.Context, repositoryPath string) (bool, error)
	GetCurrentBranch(executionContext context.Context, repositoryPath string) (string, error)
}

// Validator checks plan preconditions before any repository is mutated.
type Validator struct {
	fileSystem shared.FileSystem
	inspector  RepositoryInspector
}

// NewValidator validates collaborators and assembles a Validator.
func NewValidator(fileSystem shared.FileSystem, inspector RepositoryInspector) (*Validator, error) {
	if fileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	if inspector == nil {
		return nil, ErrInspectorNotConfigured
	}
	return &Validator{fileSystem: fileSystem, inspector: inspector}, nil
}

// Validate confirms every source repository and source path referenced by the
// plan exists, and captures the branch each source repository currently has
// checked out. Problems are accumulated so the caller sees every unmet
// precondition at once; any problem aborts the run before mutation begins.
func (validator *Validator) Validate(executionContext context.Context, plan *Plan) (map[shared.RepositoryPath]shared.BranchName, error) {
	sourceBranches := make(map[shared.RepositoryPath]shared.BranchName)
	var preconditionErrors []error

	for _, group := range plan.Groups() {
		sourceRepository := group.Pair.SourceRepository

		repositoryInfo, statError := validator.fileSystem.Stat(sourceRepository.String())
		if statError != nil || !repositoryInfo.IsDir() {
			preconditionErrors = append(preconditionErrors, fmt.Errorf(missingSourceRepositoryTemplate, sourceRepository))
			continue
		}

		if _, branchCaptured := sourceBranches[sourceRepository]; !branchCaptured {
			branchName, captureError := validator.captureSourceBranch(executionContext, sourceRepository)
			if captureError != nil {
				preconditionErrors = append(preconditionErrors, captureError)
			} else {
				sourceBranches[sourceRepository] = branchName
			}
		}

		for _, mapping := range group.Mappings {
			if mapping.SourcePath.IsRoot() {
				continue
			}
			sourcePathOnDisk := filepath.Join(sourceRepository.String(), mapping.SourcePath.String())
			if _, pathStatError := validator.fileSystem.Stat(sourcePathOnDisk); pathStatError != nil {
				preconditionErrors = append(preconditionErrors, fmt.Errorf(missingSourcePathTemplateConstant, mapping.SourcePath, sourceRepository))
			}
		}
	}

	if len(preconditionErrors) > 0 {
		return nil, errors.Join(preconditionErrors...)
	}
	return sourceBranches, nil
}

func (validator *Validator) captureSourceBranch(executionContext context.Context, sourceRepository shared.RepositoryPath) (shared.BranchName, error) {
	isRepository, probeError := validator.inspector.CheckIsRepository(executionContext, sourceRepository.String())
	if probeError != nil {
		return "", probeError
	}
	if !isRepository {
		return "", fmt.Errorf(notARepositoryTemplateConstant, sourceRepository)
	}

	currentBranch, branchError := validator.inspector.GetCurrentBranch(executionContext, sourceRepository.String())
	if branchError != nil {
		return "", branchError
	}
	if len(currentBranch) == 0 || strings.EqualFold(currentBranch, detachedHeadReferenceConstant) {
		return "", fmt.Errorf(detachedSourceRepositoryTemplate, sourceRepository)
	}

	return shared.NewBranchName(currentBranch)
}
