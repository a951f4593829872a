package relocate

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/celder/histmove/internal/shared"
)

const (
	changeIdentifierPrefixConstant     = "I"
	changeIdentifierByteLengthConstant = 20
	changeIdentifierReadErrorTemplate  = "unable to read randomness for change identifier: %w"
	changeIdentifierTrailerKeyConstant = "Change-Id"
	dependencyTrailerKeyConstant       = "Depends-On"
	trailerLineTemplateConstant        = "%s: %s"
	trailerBlockSeparatorConstant      = "\n\n"
	trailerLineSeparatorConstant       = "\n"
	linkageFileSystemMissingMessage    = "change linkage requires a file system"
	linkageFilePathMissingMessage      = "change linkage requires a backing file path"
	linkageRandomSourceMissingMessage  = "change identifier generator requires a random source"
	linkageRecordLineTemplateConstant  = "%s\t%s\t%s\n"
	linkageWriteErrorTemplateConstant  = "unable to persist change linkage %s: %w"
	linkageFilePermissionsValue        = 0o644
	trailerLineExpressionConstant      = `^[A-Za-z][A-Za-z0-9-]*: \S`
)

var (
	// ErrLinkageFileSystemNotConfigured indicates a linkage was constructed without a file system.
	ErrLinkageFileSystemNotConfigured = errors.New(linkageFileSystemMissingMessage)
	// ErrLinkageFilePathNotConfigured indicates a linkage was constructed without a backing file path.
	ErrLinkageFilePathNotConfigured = errors.New(linkageFilePathMissingMessage)
	// ErrRandomSourceNotConfigured indicates an identifier generator was constructed without randomness.
	ErrRandomSourceNotConfigured = errors.New(linkageRandomSourceMissingMessage)
)

var trailerLineExpression = regexp.MustCompile(trailerLineExpressionConstant)

// ChangeIdentifierGenerator produces Gerrit-style change identifiers for the
// commits a relocation run creates.
type ChangeIdentifierGenerator struct {
	randomSource io.Reader
}

// NewChangeIdentifierGenerator returns a generator backed by crypto/rand.
func NewChangeIdentifierGenerator() *ChangeIdentifierGenerator {
	return &ChangeIdentifierGenerator{randomSource: rand.Reader}
}

// NewChangeIdentifierGeneratorWithSource returns a generator drawing randomness
// from the provided reader.
func NewChangeIdentifierGeneratorWithSource(randomSource io.Reader) (*ChangeIdentifierGenerator, error) {
	if randomSource == nil {
		return nil, ErrRandomSourceNotConfigured
	}
	return &ChangeIdentifierGenerator{randomSource: randomSource}, nil
}

// Generate returns a fresh identifier: the letter I followed by forty
// hexadecimal digits.
func (generator *ChangeIdentifierGenerator) Generate() (string, error) {
	randomBytes := make([]byte, changeIdentifierByteLengthConstant)
	if _, readError := io.ReadFull(generator.randomSource, randomBytes); readError != nil {
		return "", fmt.Errorf(changeIdentifierReadErrorTemplate, readError)
	}
	return changeIdentifierPrefixConstant + hex.EncodeToString(randomBytes), nil
}

// ComposeCommitMessage joins a commit subject with dependency and change
// identifier trailers in a single trailer block. Empty dependency references
// are dropped; a message without any trailer is the bare subject.
func ComposeCommitMessage(subject string, dependencyReferences []string, changeIdentifier string) string {
	trailerLines := make([]string, 0, len(dependencyReferences)+1)
	for _, dependencyReference := range dependencyReferences {
		trimmedReference := strings.TrimSpace(dependencyReference)
		if len(trimmedReference) == 0 {
			continue
		}
		trailerLines = append(trailerLines, fmt.Sprintf(trailerLineTemplateConstant, dependencyTrailerKeyConstant, trimmedReference))
	}
	if len(changeIdentifier) > 0 {
		trailerLines = append(trailerLines, fmt.Sprintf(trailerLineTemplateConstant, changeIdentifierTrailerKeyConstant, changeIdentifier))
	}
	if len(trailerLines) == 0 {
		return subject
	}
	return subject + trailerBlockSeparatorConstant + strings.Join(trailerLines, trailerLineSeparatorConstant)
}

// AppendChangeIdentifierTrailer adds a Change-Id trailer to a commit message,
// extending an existing trailing trailer block instead of opening a second
// one when the message already ends with trailers.
func AppendChangeIdentifierTrailer(commitMessage string, changeIdentifier string) string {
	trimmedMessage := strings.TrimRight(commitMessage, trailerLineSeparatorConstant)
	changeIdentifierLine := fmt.Sprintf(trailerLineTemplateConstant, changeIdentifierTrailerKeyConstant, changeIdentifier)
	messageLines := strings.Split(trimmedMessage, trailerLineSeparatorConstant)
	finalLine := messageLines[len(messageLines)-1]
	if len(messageLines) > 1 && trailerLineExpression.MatchString(finalLine) {
		return trimmedMessage + trailerLineSeparatorConstant + changeIdentifierLine
	}
	return trimmedMessage + trailerBlockSeparatorConstant + changeIdentifierLine
}

// ChangeRecord ties one commit created by the run to the change identifier
// embedded in its message. Adopted fast-forward commits carry an empty
// identifier because the run did not author their messages.
type ChangeRecord struct {
	RepositoryPath   string
	CommitHash       string
	ChangeIdentifier string
}

// ChangeLinkage accumulates change records in memory and mirrors them to a
// per-run file so an interrupted run leaves an inspectable trace. The file is
// removed when the run finishes.
type ChangeLinkage struct {
	fileSystem shared.FileSystem
	filePath   string
	records    []ChangeRecord
}

// NewChangeLinkage validates collaborators and assembles an empty linkage.
func NewChangeLinkage(fileSystem shared.FileSystem, filePath string) (*ChangeLinkage, error) {
	if fileSystem == nil {
		return nil, ErrLinkageFileSystemNotConfigured
	}
	if len(strings.TrimSpace(filePath)) == 0 {
		return nil, ErrLinkageFilePathNotConfigured
	}
	return &ChangeLinkage{fileSystem: fileSystem, filePath: filePath}, nil
}

// Record appends the change record and rewrites the backing file.
func (linkage *ChangeLinkage) Record(record ChangeRecord) error {
	linkage.records = append(linkage.records, record)

	var fileContent strings.Builder
	for _, recordedChange := range linkage.records {
		fileContent.WriteString(fmt.Sprintf(
			linkageRecordLineTemplateConstant,
			recordedChange.RepositoryPath,
			recordedChange.CommitHash,
			recordedChange.ChangeIdentifier,
		))
	}
	if writeError := linkage.fileSystem.WriteFile(linkage.filePath, []byte(fileContent.String()), linkageFilePermissionsValue); writeError != nil {
		return fmt.Errorf(linkageWriteErrorTemplateConstant, linkage.filePath, writeError)
	}
	return nil
}

// Records returns every recorded change in recording order.
func (linkage *ChangeLinkage) Records() []ChangeRecord {
	duplicatedRecords := make([]ChangeRecord, len(linkage.records))
	copy(duplicatedRecords, linkage.records)
	return duplicatedRecords
}

// RecordsForRepository returns the recorded changes belonging to one repository.
func (linkage *ChangeLinkage) RecordsForRepository(repositoryPath string) []ChangeRecord {
	var matchingRecords []ChangeRecord
	for _, recordedChange := range linkage.records {
		if recordedChange.RepositoryPath == repositoryPath {
			matchingRecords = append(matchingRecords, recordedChange)
		}
	}
	return matchingRecords
}

// FilePath returns the backing file location.
func (linkage *ChangeLinkage) FilePath() string {
	return linkage.filePath
}

// Remove deletes the backing file.
func (linkage *ChangeLinkage) Remove() error {
	return linkage.fileSystem.RemoveAll(linkage.filePath)
}
