package relocate

import (
	"context"
	"fmt"
)

const (
	committerCommitErrorTemplateConstant = "unable to commit in %s: %w"
	committerHeadErrorTemplateConstant   = "unable to resolve commit hash in %s: %w"
)

// changeRecordingCommitter decorates repository commits with Change-Id
// trailers and records every created commit in the run's change linkage.
type changeRecordingCommitter struct {
	repositoryManager   RepositoryManager
	identifierGenerator *ChangeIdentifierGenerator
	linkage             *ChangeLinkage
}

func newChangeRecordingCommitter(repositoryManager RepositoryManager, identifierGenerator *ChangeIdentifierGenerator, linkage *ChangeLinkage) *changeRecordingCommitter {
	return &changeRecordingCommitter{
		repositoryManager:   repositoryManager,
		identifierGenerator: identifierGenerator,
		linkage:             linkage,
	}
}

// StagePath delegates staging to the repository manager.
func (committer *changeRecordingCommitter) StagePath(executionContext context.Context, repositoryPath string, stagedPath string) error {
	return committer.repositoryManager.StagePath(executionContext, repositoryPath, stagedPath)
}

// CreateCommit commits staged changes under a freshly generated Change-Id.
func (committer *changeRecordingCommitter) CreateCommit(executionContext context.Context, repositoryPath string, commitMessage string) error {
	changeIdentifier, generationError := committer.identifierGenerator.Generate()
	if generationError != nil {
		return fmt.Errorf(identifierErrorTemplateConstant, generationError)
	}
	return committer.CreateLinkedCommit(executionContext, repositoryPath, commitMessage, changeIdentifier)
}

// CreateLinkedCommit commits staged changes under the provided Change-Id and
// records the resulting commit in the change linkage.
func (committer *changeRecordingCommitter) CreateLinkedCommit(executionContext context.Context, repositoryPath string, commitMessage string, changeIdentifier string) error {
	linkedMessage := AppendChangeIdentifierTrailer(commitMessage, changeIdentifier)
	if commitError := committer.repositoryManager.CreateCommit(executionContext, repositoryPath, linkedMessage); commitError != nil {
		return fmt.Errorf(committerCommitErrorTemplateConstant, repositoryPath, commitError)
	}
	headCommit, headError := committer.repositoryManager.ResolveHeadCommit(executionContext, repositoryPath)
	if headError != nil {
		return fmt.Errorf(committerHeadErrorTemplateConstant, repositoryPath, headError)
	}
	return committer.linkage.Record(ChangeRecord{
		RepositoryPath:   repositoryPath,
		CommitHash:       headCommit,
		ChangeIdentifier: changeIdentifier,
	})
}
