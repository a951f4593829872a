package pathrewrite

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/celder/histmove/internal/moveplan"
	"github.com/celder/histmove/internal/shared"
)

const (
	generatorFileSystemMissingMessage    = "file system not configured"
	generatorHistoryListerMissingMessage = "history lister not configured"
	enumerateSourceHistoryTemplate       = "enumerate historical entries of %s: %w"
	packagingDirectoryNameConstant       = "packaging"
)

var (
	// ErrFileSystemNotConfigured indicates the generator was constructed without a file system.
	ErrFileSystemNotConfigured = errors.New(generatorFileSystemMissingMessage)
	// ErrHistoryListerNotConfigured indicates the generator was constructed without a history lister.
	ErrHistoryListerNotConfigured = errors.New(generatorHistoryListerMissingMessage)
)

// HistoryLister enumerates every path recorded anywhere in a repository's
// reachable history.
type HistoryLister interface {
	ListHistoricalPaths(executionContext context.Context, repositoryPath string) ([]string, error)
}

// RuleGenerator derives rewrite rules from move requests. Root relocations
// enumerate the source repository's history, so entries deleted in earlier
// commits are still covered; the self-named descriptor-directory probes
// inspect the source working tree.
type RuleGenerator struct {
	fileSystem    shared.FileSystem
	historyLister HistoryLister
}

// NewRuleGenerator validates collaborators and assembles a RuleGenerator.
func NewRuleGenerator(fileSystem shared.FileSystem, historyLister HistoryLister) (*RuleGenerator, error) {
	if fileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	if historyLister == nil {
		return nil, ErrHistoryListerNotConfigured
	}
	return &RuleGenerator{fileSystem: fileSystem, historyLister: historyLister}, nil
}

// BuildDestinationRules accumulates the rewrite rules for every request
// targeting one destination repository, preserving request order.
func (generator *RuleGenerator) BuildDestinationRules(executionContext context.Context, requests []moveplan.MoveRequest) (RuleSet, error) {
	var ruleSet RuleSet
	for _, request := range requests {
		primaryRules, refinementRules, generationError := generator.buildRequestRules(executionContext, request)
		if generationError != nil {
			return RuleSet{}, generationError
		}
		ruleSet.AddPrimary(primaryRules...)
		ruleSet.AddRefinement(refinementRules...)
	}
	return ruleSet, nil
}

func (generator *RuleGenerator) buildRequestRules(executionContext context.Context, request moveplan.MoveRequest) ([]Rule, []Rule, error) {
	sourcePath := request.SourcePath
	destinationPath := request.DestinationPath

	if sourcePath.IsRoot() {
		if destinationPath.IsRoot() {
			return nil, nil, nil
		}
		primaryRules, enumerationError := generator.buildRootRelocationRules(executionContext, request.SourceRepository, destinationPath)
		return primaryRules, nil, enumerationError
	}

	var primaryRules []Rule
	if destinationPath.IsRoot() {
		primaryRules = append(primaryRules, NewPrefixStripRule(sourcePath.String()))
	} else {
		primaryRules = append(primaryRules, NewPrefixSubstituteRule(sourcePath.String(), destinationPath.String()))
	}

	refinementRules := generator.buildSelfNamedRules(request)
	return primaryRules, refinementRules, nil
}

// buildRootRelocationRules covers a source repository whose entire content
// moves into a destination subdirectory. Top-level entries are enumerated
// from the source history rather than its working tree, so an entry that only
// ever existed in earlier commits is still relocated. Directories receive a
// prefix-insert rule; top-level files carry no prefix at all and need an
// exact-path rule each. A name recorded both as a file and as a directory
// yields both rule forms.
func (generator *RuleGenerator) buildRootRelocationRules(executionContext context.Context, sourceRepository shared.RepositoryPath, destinationPath shared.SubdirectoryPath) ([]Rule, error) {
	historicalPaths, listError := generator.historyLister.ListHistoricalPaths(executionContext, sourceRepository.String())
	if listError != nil {
		return nil, fmt.Errorf(enumerateSourceHistoryTemplate, sourceRepository, listError)
	}

	seenDirectoryEntries := make(map[string]bool)
	seenFileEntries := make(map[string]bool)
	var primaryRules []Rule
	for _, historicalPath := range historicalPaths {
		entryName, _, isNested := strings.Cut(historicalPath, pathSeparatorConstant)
		if len(entryName) == 0 {
			continue
		}
		if isNested {
			if seenDirectoryEntries[entryName] {
				continue
			}
			seenDirectoryEntries[entryName] = true
			primaryRules = append(primaryRules, NewPrefixInsertRule(entryName, destinationPath.String()))
			continue
		}
		if seenFileEntries[entryName] {
			continue
		}
		seenFileEntries[entryName] = true
		primaryRules = append(primaryRules, NewBasenameSubstituteRule(entryName, destinationPath.String()+pathSeparatorConstant+entryName))
	}
	return primaryRules, nil
}

// buildSelfNamedRules probes the three recognized descriptor-directory
// conventions in which a component nests a directory named after itself, and
// emits rules renaming those directories after the component's own rename.
// The probes inspect the source working tree; conventions that are not
// present on disk produce no rules.
func (generator *RuleGenerator) buildSelfNamedRules(request moveplan.MoveRequest) []Rule {
	if request.DestinationPath.IsRoot() {
		return nil
	}
	previousBasename := request.SourcePath.Base()
	relocatedBasename := request.DestinationPath.Base()
	if previousBasename == relocatedBasename {
		return nil
	}

	sourceOnDisk := filepath.Join(request.SourceRepository.String(), filepath.FromSlash(request.SourcePath.String()))
	destinationPrefix := request.DestinationPath.String()

	var refinementRules []Rule
	if generator.pathExists(filepath.Join(sourceOnDisk, previousBasename)) {
		refinementRules = append(refinementRules, NewPrefixSubstituteRule(
			path.Join(destinationPrefix, previousBasename),
			path.Join(destinationPrefix, relocatedBasename)))
	}
	if generator.pathExists(filepath.Join(sourceOnDisk, previousBasename, previousBasename)) {
		refinementRules = append(refinementRules, NewPrefixSubstituteRule(
			path.Join(destinationPrefix, relocatedBasename, previousBasename),
			path.Join(destinationPrefix, relocatedBasename, relocatedBasename)))
	}
	if generator.pathExists(filepath.Join(sourceOnDisk, packagingDirectoryNameConstant, previousBasename)) {
		refinementRules = append(refinementRules, NewPrefixSubstituteRule(
			path.Join(destinationPrefix, packagingDirectoryNameConstant, previousBasename),
			path.Join(destinationPrefix, packagingDirectoryNameConstant, relocatedBasename)))
	}
	return refinementRules
}

func (generator *RuleGenerator) pathExists(candidatePath string) bool {
	_, statError := generator.fileSystem.Stat(candidatePath)
	return statError == nil
}
