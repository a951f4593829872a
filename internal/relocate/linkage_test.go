package relocate_test

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/celder/histmove/internal/filesystem"
	"github.com/celder/histmove/internal/relocate"
)

const changeIdentifierPatternConstant = `^I[0-9a-f]{40}$`

var changeIdentifierPattern = regexp.MustCompile(changeIdentifierPatternConstant)

func TestChangeIdentifierGeneratorProducesGerritStyleIdentifiers(t *testing.T) {
	t.Parallel()

	generator := relocate.NewChangeIdentifierGenerator()

	firstIdentifier, firstError := generator.Generate()
	require.NoError(t, firstError)
	require.Regexp(t, changeIdentifierPattern, firstIdentifier)

	secondIdentifier, secondError := generator.Generate()
	require.NoError(t, secondError)
	require.Regexp(t, changeIdentifierPattern, secondIdentifier)
	require.NotEqual(t, firstIdentifier, secondIdentifier)
}

func TestChangeIdentifierGeneratorWithSeededSource(t *testing.T) {
	t.Parallel()

	seededBytes := bytes.Repeat([]byte{0xab}, 20)
	generator, generatorError := relocate.NewChangeIdentifierGeneratorWithSource(bytes.NewReader(seededBytes))
	require.NoError(t, generatorError)

	identifier, generateError := generator.Generate()
	require.NoError(t, generateError)
	require.Equal(t, "I"+"abababababababababababababababababababab", identifier)
}

func TestNewChangeIdentifierGeneratorWithSourceRequiresReader(t *testing.T) {
	t.Parallel()

	_, generatorError := relocate.NewChangeIdentifierGeneratorWithSource(nil)
	require.ErrorIs(t, generatorError, relocate.ErrRandomSourceNotConfigured)
}

func TestChangeIdentifierGeneratorReportsExhaustedRandomness(t *testing.T) {
	t.Parallel()

	generator, generatorError := relocate.NewChangeIdentifierGeneratorWithSource(bytes.NewReader([]byte{0x01, 0x02}))
	require.NoError(t, generatorError)

	_, generateError := generator.Generate()
	require.Error(t, generateError)
	require.Contains(t, generateError.Error(), "randomness")
}

func TestComposeCommitMessage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name                 string
		subject              string
		dependencyReferences []string
		changeIdentifier     string
		expectedMessage      string
	}{
		{
			name:            "bare_subject_without_trailers",
			subject:         "Add module_x from /repos/alpha",
			expectedMessage: "Add module_x from /repos/alpha",
		},
		{
			name:             "subject_with_change_identifier",
			subject:          "Merge filtered history",
			changeIdentifier: "Iaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			expectedMessage:  "Merge filtered history\n\nChange-Id: Iaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		},
		{
			name:                 "subject_with_dependencies",
			subject:              "Add module_x",
			dependencyReferences: []string{"commit-1", "commit-2"},
			expectedMessage:      "Add module_x\n\nDepends-On: commit-1\nDepends-On: commit-2",
		},
		{
			name:                 "dependencies_before_change_identifier",
			subject:              "Add module_x",
			dependencyReferences: []string{"commit-1"},
			changeIdentifier:     "Ibbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
			expectedMessage:      "Add module_x\n\nDepends-On: commit-1\nChange-Id: Ibbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		},
		{
			name:                 "blank_dependency_references_dropped",
			subject:              "Add module_x",
			dependencyReferences: []string{"", "  ", "commit-3"},
			expectedMessage:      "Add module_x\n\nDepends-On: commit-3",
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			composedMessage := relocate.ComposeCommitMessage(testCase.subject, testCase.dependencyReferences, testCase.changeIdentifier)
			require.Equal(t, testCase.expectedMessage, composedMessage)
		})
	}
}

func TestAppendChangeIdentifierTrailer(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name            string
		commitMessage   string
		expectedMessage string
	}{
		{
			name:            "subject_without_trailers_gains_block",
			commitMessage:   "Remove project/module_x relocated to /repos/beta",
			expectedMessage: "Remove project/module_x relocated to /repos/beta\n\nChange-Id: Icccc",
		},
		{
			name:            "existing_trailer_block_extended",
			commitMessage:   "Add module_x\n\nDepends-On: commit-1",
			expectedMessage: "Add module_x\n\nDepends-On: commit-1\nChange-Id: Icccc",
		},
		{
			name:            "trailing_newlines_trimmed",
			commitMessage:   "Add module_x\n\nDepends-On: commit-1\n",
			expectedMessage: "Add module_x\n\nDepends-On: commit-1\nChange-Id: Icccc",
		},
		{
			name:            "trailer_shaped_subject_still_gains_block",
			commitMessage:   "Fix: align wheel list",
			expectedMessage: "Fix: align wheel list\n\nChange-Id: Icccc",
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			appendedMessage := relocate.AppendChangeIdentifierTrailer(testCase.commitMessage, "Icccc")
			require.Equal(t, testCase.expectedMessage, appendedMessage)
		})
	}
}

func TestNewChangeLinkageValidation(t *testing.T) {
	t.Parallel()

	_, missingFileSystemError := relocate.NewChangeLinkage(nil, "/tmp/changes.log")
	require.ErrorIs(t, missingFileSystemError, relocate.ErrLinkageFileSystemNotConfigured)

	_, missingPathError := relocate.NewChangeLinkage(filesystem.OSFileSystem{}, "  ")
	require.ErrorIs(t, missingPathError, relocate.ErrLinkageFilePathNotConfigured)
}

func TestChangeLinkageRecordsAndPersists(t *testing.T) {
	t.Parallel()

	linkagePath := filepath.Join(t.TempDir(), "changes.log")
	linkage, linkageError := relocate.NewChangeLinkage(filesystem.OSFileSystem{}, linkagePath)
	require.NoError(t, linkageError)
	require.Equal(t, linkagePath, linkage.FilePath())

	firstRecord := relocate.ChangeRecord{RepositoryPath: "/repos/beta", CommitHash: "commit-1", ChangeIdentifier: "Iaaaa"}
	secondRecord := relocate.ChangeRecord{RepositoryPath: "/repos/alpha", CommitHash: "commit-2", ChangeIdentifier: ""}
	require.NoError(t, linkage.Record(firstRecord))
	require.NoError(t, linkage.Record(secondRecord))

	require.Equal(t, []relocate.ChangeRecord{firstRecord, secondRecord}, linkage.Records())
	require.Equal(t, []relocate.ChangeRecord{secondRecord}, linkage.RecordsForRepository("/repos/alpha"))
	require.Empty(t, linkage.RecordsForRepository("/repos/unrelated"))

	persistedContent, readError := os.ReadFile(linkagePath)
	require.NoError(t, readError)
	require.Equal(t, "/repos/beta\tcommit-1\tIaaaa\n/repos/alpha\tcommit-2\t\n", string(persistedContent))

	require.NoError(t, linkage.Remove())
	_, statError := os.Stat(linkagePath)
	require.True(t, os.IsNotExist(statError))
}
