package metadata_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/celder/histmove/internal/filesystem"
	"github.com/celder/histmove/internal/metadata"
	"github.com/celder/histmove/internal/shared"
)

const linkageReferenceConstant = "I0123456789abcdef0123456789abcdef01234567"

func repositoryPathList(t *testing.T, repositoryPaths ...string) []shared.RepositoryPath {
	t.Helper()
	repositories := make([]shared.RepositoryPath, 0, len(repositoryPaths))
	for _, repositoryPath := range repositoryPaths {
		repository, repositoryError := shared.NewRepositoryPath(repositoryPath)
		require.NoError(t, repositoryError)
		repositories = append(repositories, repository)
	}
	return repositories
}

func TestDependentDescriptorFixerStagesPairAndCommitsThirdRepositories(t *testing.T) {
	t.Parallel()

	sourceRepository := t.TempDir()
	destinationRepository := t.TempDir()
	thirdRepository := t.TempDir()

	writeRepositoryFile(t, sourceRepository, "project/oldname/oldname.spec", "Name: oldname\nRequires: oldname-devel\n")
	writeRepositoryFile(t, sourceRepository, "other/consumer.spec", "Name: consumer\nRequires: oldname oldname-devel\n")
	writeRepositoryFile(t, destinationRepository, "imported/newname/packaging/oldname.spec", "Name: oldname\n%package devel\n")
	writeRepositoryFile(t, destinationRepository, "services/api.spec", "Name: api\nBuildRequires: oldname-devel\nRequires: oldname-extras\n")
	writeRepositoryFile(t, thirdRepository, "tools/builder.spec", "Name: builder\nRequires: libfoo, oldname >= 1.0\n")

	committer := &recordingCommitter{}
	fixer, fixerError := metadata.NewDependentDescriptorFixer(filesystem.OSFileSystem{}, metadata.NewDescriptorScanner(), committer)
	require.NoError(t, fixerError)

	request := newMoveRequest(t, sourceRepository, "project/oldname", destinationRepository, "imported/newname")
	repositories := repositoryPathList(t, sourceRepository, destinationRepository, thirdRepository)

	committedRepositories, applyError := fixer.Apply(context.Background(), repositories, request, linkageReferenceConstant)
	require.NoError(t, applyError)
	require.Equal(t, repositoryPathList(t, thirdRepository), committedRepositories)

	require.Equal(t, "Name: consumer\nRequires: newname newname-devel\n", readRepositoryFile(t, sourceRepository, "other/consumer.spec"))
	require.Equal(t, "Name: oldname\nRequires: oldname-devel\n", readRepositoryFile(t, sourceRepository, "project/oldname/oldname.spec"))
	require.Equal(t, "Name: api\nBuildRequires: newname-devel\nRequires: oldname-extras\n", readRepositoryFile(t, destinationRepository, "services/api.spec"))
	require.Equal(t, "Name: oldname\n%package devel\n", readRepositoryFile(t, destinationRepository, "imported/newname/packaging/oldname.spec"))
	require.Equal(t, "Name: builder\nRequires: libfoo, newname >= 1.0\n", readRepositoryFile(t, thirdRepository, "tools/builder.spec"))

	require.Len(t, committer.commits, 1)
	require.Equal(t, thirdRepository, committer.commits[0].repositoryPath)
	require.Contains(t, committer.commits[0].commitMessage, "Update dependencies after oldname renamed to newname")
	require.Contains(t, committer.commits[0].commitMessage, "Depends-On: "+linkageReferenceConstant)
	require.Equal(t, []recordedStage{
		{repositoryPath: sourceRepository, stagedPath: filepath.Join("other", "consumer.spec")},
		{repositoryPath: destinationRepository, stagedPath: filepath.Join("services", "api.spec")},
		{repositoryPath: thirdRepository, stagedPath: filepath.Join("tools", "builder.spec")},
	}, committer.stages)
}

func TestDependentDescriptorFixerSkipsWhenBasenameUnchanged(t *testing.T) {
	t.Parallel()

	sourceRepository := t.TempDir()
	writeRepositoryFile(t, sourceRepository, "other/consumer.spec", "Requires: module_x\n")

	committer := &recordingCommitter{}
	fixer, fixerError := metadata.NewDependentDescriptorFixer(filesystem.OSFileSystem{}, metadata.NewDescriptorScanner(), committer)
	require.NoError(t, fixerError)

	request := newMoveRequest(t, sourceRepository, "project/module_x", t.TempDir(), "source/module_x")
	committedRepositories, applyError := fixer.Apply(context.Background(), repositoryPathList(t, sourceRepository), request, linkageReferenceConstant)
	require.NoError(t, applyError)
	require.Empty(t, committedRepositories)
	require.Empty(t, committer.commits)
	require.Equal(t, "Requires: module_x\n", readRepositoryFile(t, sourceRepository, "other/consumer.spec"))
}

func TestDependentDescriptorFixerLeavesUntouchedRepositoriesUncommitted(t *testing.T) {
	t.Parallel()

	sourceRepository := t.TempDir()
	destinationRepository := t.TempDir()
	uninvolvedRepository := t.TempDir()
	writeRepositoryFile(t, destinationRepository, "imported/newname/packaging/oldname.spec", "Name: oldname\n")
	writeRepositoryFile(t, uninvolvedRepository, "tools/builder.spec", "Name: builder\nRequires: libfoo\n")

	committer := &recordingCommitter{}
	fixer, fixerError := metadata.NewDependentDescriptorFixer(filesystem.OSFileSystem{}, metadata.NewDescriptorScanner(), committer)
	require.NoError(t, fixerError)

	request := newMoveRequest(t, sourceRepository, "project/oldname", destinationRepository, "imported/newname")
	committedRepositories, applyError := fixer.Apply(context.Background(), repositoryPathList(t, sourceRepository, destinationRepository, uninvolvedRepository), request, linkageReferenceConstant)
	require.NoError(t, applyError)
	require.Empty(t, committedRepositories)
	require.Empty(t, committer.commits)
}

func TestDependentDescriptorFixerOmitsDependencyTrailerWithoutLinkage(t *testing.T) {
	t.Parallel()

	thirdRepository := t.TempDir()
	writeRepositoryFile(t, thirdRepository, "tools/builder.spec", "Name: builder\nRequires: oldname\n")

	committer := &recordingCommitter{}
	fixer, fixerError := metadata.NewDependentDescriptorFixer(filesystem.OSFileSystem{}, metadata.NewDescriptorScanner(), committer)
	require.NoError(t, fixerError)

	request := newMoveRequest(t, t.TempDir(), "project/oldname", t.TempDir(), "imported/newname")
	committedRepositories, applyError := fixer.Apply(context.Background(), repositoryPathList(t, thirdRepository), request, "")
	require.NoError(t, applyError)
	require.Equal(t, repositoryPathList(t, thirdRepository), committedRepositories)

	require.Len(t, committer.commits, 1)
	require.Equal(t, "Update dependencies after oldname renamed to newname", committer.commits[0].commitMessage)
	require.NotContains(t, committer.commits[0].commitMessage, "Depends-On")
}
