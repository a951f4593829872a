package relocate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/celder/histmove/internal/histfilter"
	"github.com/celder/histmove/internal/metadata"
	"github.com/celder/histmove/internal/moveplan"
	"github.com/celder/histmove/internal/pathrewrite"
	"github.com/celder/histmove/internal/shared"
)

const (
	scratchRemoteNameConstant            shared.RemoteName = "scratch"
	destinationDirectoryPermissionsValue                   = 0o755
	renameTableFilePermissionsValue      = 0o644
	linkageFileNameTemplateConstant      = "histmove-changes-%d.log"
	renameTableFileNameTemplateConstant  = "histmove-renames-%s-%d.tsv"
)

const (
	planParseErrorTemplateConstant       = "unable to load relocation plan: %w"
	planValidationErrorTemplateConstant  = "relocation plan validation failed: %w"
	toolResolutionErrorTemplateConstant  = "unable to resolve history filter tool: %w"
	linkageCreationErrorTemplateConstant = "unable to create change linkage: %w"
	filterCreationErrorTemplateConstant  = "unable to construct history filter: %w"
	dependentFixerCreationErrorTemplateConstant = "unable to construct dependent fixer: %w"
	identifierErrorTemplateConstant      = "unable to generate change identifier: %w"
	provisionErrorTemplateConstant       = "unable to provision destination %s: %w"
	filterErrorTemplateConstant          = "history filtering failed for %s: %w"
	mergeErrorTemplateConstant           = "unable to merge history into %s: %w"
	rewriteErrorTemplateConstant         = "unable to rewrite paths in %s: %w"
	metadataErrorTemplateConstant        = "metadata fixing failed for %s: %w"
	dependentErrorTemplateConstant       = "dependent descriptor fixing failed for %s: %w"
	finalizeErrorTemplateConstant        = "unable to finalize %s: %w"
	scratchMissingTemplateConstant       = "scratch copy %s missing for %s -> %s"
)

const (
	mergeCommitSubjectTemplateConstant    = "Merge filtered history of %s for %s"
	sourceCommitSubjectTemplateConstant   = "Update build metadata after relocating %s"
	additionCommitSubjectTemplateConstant = "Add %s"
	removalCommitSubjectTemplateConstant  = "Remove %s relocated to %s"
	relocationPairTemplateConstant        = "%s to %s"
	additionPairTemplateConstant          = "%s from %s"
	pathListSeparatorConstant             = ", "
)

const (
	createdRepositorySummaryTemplateConstant = "Created repository: %s\n"
	dryRunHeaderTemplateConstant             = "Relocation plan: %d move(s) across %d repository pair(s)\n"
	dryRunToolTemplateConstant               = "History filter tool: %s\n"
	dryRunGroupTemplateConstant              = "Group %s -> %s\n"
	dryRunIdentityGroupTemplateConstant      = "Group %s (in place)\n"
	dryRunMappingTemplateConstant            = "  move %s -> %s\n"
	dryRunDestinationTemplateConstant        = "Destination %s: %s\n"
	dryRunRuleTemplateConstant               = "  rewrite %s\n"
	dryRunRefinementTemplateConstant         = "  refine %s\n"
	provisioningIntentCreateConstant         = "create new repository"
	provisioningIntentReuseConstant          = "reuse existing repository"
)

const (
	ruleSubstituteDescriptionTemplate = "%s/ -> %s/"
	ruleStripDescriptionTemplate      = "%s/ -> ./"
	ruleInsertDescriptionTemplate     = "%s/ -> %s/%s/"
	ruleBasenameDescriptionTemplate   = "%s -> %s"
)

const (
	planLoadedMessageConstant           = "relocation plan loaded"
	toolResolvedMessageConstant         = "history filter tool resolved"
	destinationCreatedMessageConstant   = "destination repository created"
	destinationPreparedMessageConstant  = "destination repository prepared"
	historyFilteredMessageConstant      = "history filtered"
	historyMergedMessageConstant        = "filtered history merged"
	pathsRewrittenMessageConstant       = "historical paths rewritten"
	branchRenamedMessageConstant        = "destination branch renamed"
	dependentsUpdatedMessageConstant    = "dependent descriptors updated"
	relocationDoneMessageConstant       = "relocation completed"
	linkageRemovalFailedMessageConstant = "unable to remove change linkage file"
)

const (
	logFieldMapFileConstant       = "map_file"
	logFieldMoveCountConstant     = "moves"
	logFieldGroupCountConstant    = "groups"
	logFieldToolPathConstant      = "tool_path"
	logFieldRepositoryConstant    = "repository"
	logFieldSourceConstant        = "source"
	logFieldDestinationConstant   = "destination"
	logFieldScratchPathConstant   = "scratch_path"
	logFieldReusedConstant        = "reused"
	logFieldCommitConstant        = "commit"
	logFieldRenameCountConstant   = "renames"
	logFieldBranchConstant        = "branch"
	logFieldHookInstalledConstant = "hook_installed"
	logFieldComponentConstant     = "component"
	logFieldRepositoriesConstant  = "repositories"
	logFieldCreatedCountConstant  = "created_repositories"
)

const (
	serviceFileSystemMissingMessage        = "file system not configured"
	serviceParserMissingMessage            = "plan parser not configured"
	serviceValidatorMissingMessage         = "plan validator not configured"
	serviceToolLocatorMissingMessage       = "tool locator not configured"
	serviceRepositoryManagerMissingMessage = "repository manager not configured"
	serviceHookInstallerMissingMessage     = "hook installer not configured"
	serviceRuleGeneratorMissingMessage     = "rule generator not configured"
	serviceFilterProviderMissingMessage    = "history filter provider not configured"
	serviceFixerProviderMissingMessage     = "dependent fixer provider not configured"
	serviceReporterMissingMessage          = "reporter not configured"
)

var (
	// ErrFileSystemNotConfigured indicates the service was constructed without a file system.
	ErrFileSystemNotConfigured = errors.New(serviceFileSystemMissingMessage)
	// ErrParserNotConfigured indicates the service was constructed without a plan parser.
	ErrParserNotConfigured = errors.New(serviceParserMissingMessage)
	// ErrValidatorNotConfigured indicates the service was constructed without a plan validator.
	ErrValidatorNotConfigured = errors.New(serviceValidatorMissingMessage)
	// ErrToolLocatorNotConfigured indicates the service was constructed without a tool locator.
	ErrToolLocatorNotConfigured = errors.New(serviceToolLocatorMissingMessage)
	// ErrRepositoryManagerNotConfigured indicates the service was constructed without a repository manager.
	ErrRepositoryManagerNotConfigured = errors.New(serviceRepositoryManagerMissingMessage)
	// ErrHookInstallerNotConfigured indicates the service was constructed without a hook installer.
	ErrHookInstallerNotConfigured = errors.New(serviceHookInstallerMissingMessage)
	// ErrRuleGeneratorNotConfigured indicates the service was constructed without a rule generator.
	ErrRuleGeneratorNotConfigured = errors.New(serviceRuleGeneratorMissingMessage)
	// ErrHistoryFilterProviderNotConfigured indicates the service was constructed without a history filter provider.
	ErrHistoryFilterProviderNotConfigured = errors.New(serviceFilterProviderMissingMessage)
	// ErrDependentFixerProviderNotConfigured indicates the service was constructed without a dependent fixer provider.
	ErrDependentFixerProviderNotConfigured = errors.New(serviceFixerProviderMissingMessage)
	// ErrReporterNotConfigured indicates the service was constructed without a reporter.
	ErrReporterNotConfigured = errors.New(serviceReporterMissingMessage)
)

// ScratchMissingError reports an internal consistency failure: the scratch
// copy the merge stage expected to consume is gone.
type ScratchMissingError struct {
	Pair        moveplan.RepositoryPair
	ScratchPath string
}

// Error describes the missing scratch copy.
func (missingError ScratchMissingError) Error() string {
	return fmt.Sprintf(
		scratchMissingTemplateConstant,
		missingError.ScratchPath,
		missingError.Pair.SourceRepository,
		missingError.Pair.DestinationRepository,
	)
}

// PlanParser loads the relocation plan from a map file.
type PlanParser interface {
	Parse(mapFilePath string) (*moveplan.Plan, error)
}

// PlanValidator checks plan preconditions and captures each source
// repository's current branch before any repository is touched.
type PlanValidator interface {
	Validate(executionContext context.Context, plan *moveplan.Plan) (map[shared.RepositoryPath]shared.BranchName, error)
}

// ToolResolver locates the external history-filtering executable.
type ToolResolver interface {
	ResolveTool(toolName string) (string, error)
}

// HookInstaller installs the Change-Id commit-message hook into a repository.
type HookInstaller interface {
	Install(repositoryPath string) (bool, error)
}

// RewriteRuleGenerator derives the path-rewrite rules implied by a
// destination's move requests.
type RewriteRuleGenerator interface {
	BuildDestinationRules(executionContext context.Context, requests []moveplan.MoveRequest) (pathrewrite.RuleSet, error)
}

// RequestFixer patches one build-metadata dialect for a single move request.
type RequestFixer interface {
	Apply(executionContext context.Context, request moveplan.MoveRequest) error
}

// DependentFixer rewrites dependent build descriptors across the run's repositories.
type DependentFixer interface {
	Apply(executionContext context.Context, repositories []shared.RepositoryPath, request moveplan.MoveRequest, linkageReference string) ([]shared.RepositoryPath, error)
}

// RepositoryManager describes every git operation the relocation pipeline performs.
type RepositoryManager interface {
	InitializeRepository(executionContext context.Context, repositoryPath string) error
	CheckIsRepository(executionContext context.Context, repositoryPath string) (bool, error)
	HasCommits(executionContext context.Context, repositoryPath string) (bool, error)
	BranchExists(executionContext context.Context, repositoryPath string, branchName string) (bool, error)
	CheckoutBranch(executionContext context.Context, repositoryPath string, branchName string) error
	CreateBranch(executionContext context.Context, repositoryPath string, branchName string) error
	RenameCurrentBranch(executionContext context.Context, repositoryPath string, branchName string) error
	AddRemote(executionContext context.Context, repositoryPath string, remoteName string, remoteTarget string) error
	RemoveRemote(executionContext context.Context, repositoryPath string, remoteName string) error
	FetchRemoteBranch(executionContext context.Context, repositoryPath string, remoteName string, branchName string) error
	MergeFetchedHistory(executionContext context.Context, repositoryPath string, mergeMessage string, allowUnrelatedHistories bool) error
	ResolveHeadCommit(executionContext context.Context, repositoryPath string) (string, error)
	ListHistoricalPaths(executionContext context.Context, repositoryPath string) ([]string, error)
	RunIndexRewrite(executionContext context.Context, repositoryPath string, filterScript string, environment map[string]string) error
	ResetWorktree(executionContext context.Context, repositoryPath string) error
	StagePath(executionContext context.Context, repositoryPath string, stagedPath string) error
	RemovePaths(executionContext context.Context, repositoryPath string, removedPaths []string) error
	HasStagedChanges(executionContext context.Context, repositoryPath string) (bool, error)
	CreateCommit(executionContext context.Context, repositoryPath string, commitMessage string) error
}

// HistoryFilterProvider constructs the history filter once the external tool
// path is resolved.
type HistoryFilterProvider func(toolPath string) (histfilter.HistoryFilter, error)

// DependentFixerProvider constructs the dependent-descriptor fixer around the
// run's change-recording committer.
type DependentFixerProvider func(committer metadata.DependencyCommitter) (DependentFixer, error)

// RepositoryState captures what provisioning learned about one destination
// repository. IsNew marks repositories this run created; IsVirgin marks
// repositories without commits of their own, which adopt the first merged
// history wholesale.
type RepositoryState struct {
	IsNew    bool
	IsVirgin bool
}

// Options configures a relocation run.
type Options struct {
	MapFilePath              string
	NewRepositoryBranch      shared.BranchName
	ModifiedRepositoryBranch shared.BranchName
	FilterToolName           string
	DryRun                   bool
}

// ServiceDependencies describes the collaborators a relocation service requires.
type ServiceDependencies struct {
	Logger                 *zap.Logger
	FileSystem             shared.FileSystem
	Clock                  shared.Clock
	Reporter               shared.Reporter
	Parser                 PlanParser
	Validator              PlanValidator
	ToolLocator            ToolResolver
	RepositoryManager      RepositoryManager
	HookInstaller          HookInstaller
	RuleGenerator          RewriteRuleGenerator
	HistoryFilterProvider  HistoryFilterProvider
	RequestFixers          []RequestFixer
	DependentFixerProvider DependentFixerProvider
	IdentifierGenerator    *ChangeIdentifierGenerator
	TemporaryDirectory     string
}

// Service orchestrates the relocation pipeline. Stage order is mandatory:
// provision before filter, filter before merge, merge before rewrite, rewrite
// before metadata fixing, metadata fixing before final removal.
type Service struct {
	logger                 *zap.Logger
	fileSystem             shared.FileSystem
	clock                  shared.Clock
	reporter               shared.Reporter
	parser                 PlanParser
	validator              PlanValidator
	toolLocator            ToolResolver
	repositoryManager      RepositoryManager
	hookInstaller          HookInstaller
	ruleGenerator          RewriteRuleGenerator
	historyFilterProvider  HistoryFilterProvider
	requestFixers          []RequestFixer
	dependentFixerProvider DependentFixerProvider
	identifierGenerator    *ChangeIdentifierGenerator
	temporaryDirectory     string
}

// NewService validates the provided dependencies and assembles a Service.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.FileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	if dependencies.Reporter == nil {
		return nil, ErrReporterNotConfigured
	}
	if dependencies.Parser == nil {
		return nil, ErrParserNotConfigured
	}
	if dependencies.Validator == nil {
		return nil, ErrValidatorNotConfigured
	}
	if dependencies.ToolLocator == nil {
		return nil, ErrToolLocatorNotConfigured
	}
	if dependencies.RepositoryManager == nil {
		return nil, ErrRepositoryManagerNotConfigured
	}
	if dependencies.HookInstaller == nil {
		return nil, ErrHookInstallerNotConfigured
	}
	if dependencies.RuleGenerator == nil {
		return nil, ErrRuleGeneratorNotConfigured
	}
	if dependencies.HistoryFilterProvider == nil {
		return nil, ErrHistoryFilterProviderNotConfigured
	}
	if dependencies.DependentFixerProvider == nil {
		return nil, ErrDependentFixerProviderNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := dependencies.Clock
	if clock == nil {
		clock = shared.SystemClock{}
	}
	identifierGenerator := dependencies.IdentifierGenerator
	if identifierGenerator == nil {
		identifierGenerator = NewChangeIdentifierGenerator()
	}
	temporaryDirectory := dependencies.TemporaryDirectory
	if len(temporaryDirectory) == 0 {
		temporaryDirectory = os.TempDir()
	}

	return &Service{
		logger:                 logger,
		fileSystem:             dependencies.FileSystem,
		clock:                  clock,
		reporter:               dependencies.Reporter,
		parser:                 dependencies.Parser,
		validator:              dependencies.Validator,
		toolLocator:            dependencies.ToolLocator,
		repositoryManager:      dependencies.RepositoryManager,
		hookInstaller:          dependencies.HookInstaller,
		ruleGenerator:          dependencies.RuleGenerator,
		historyFilterProvider:  dependencies.HistoryFilterProvider,
		requestFixers:          dependencies.RequestFixers,
		dependentFixerProvider: dependencies.DependentFixerProvider,
		identifierGenerator:    identifierGenerator,
		temporaryDirectory:     temporaryDirectory,
	}, nil
}

// Execute runs one relocation described by the options. Dry runs stop after
// parsing, validation, and tool resolution, printing the plan instead of
// mutating repositories.
func (service *Service) Execute(executionContext context.Context, options Options) error {
	plan, parseError := service.parser.Parse(options.MapFilePath)
	if parseError != nil {
		return fmt.Errorf(planParseErrorTemplateConstant, parseError)
	}
	service.logger.Info(
		planLoadedMessageConstant,
		zap.String(logFieldMapFileConstant, options.MapFilePath),
		zap.Int(logFieldMoveCountConstant, len(plan.Requests())),
		zap.Int(logFieldGroupCountConstant, len(plan.Groups())),
	)

	sourceBranches, validationError := service.validator.Validate(executionContext, plan)
	if validationError != nil {
		return fmt.Errorf(planValidationErrorTemplateConstant, validationError)
	}

	toolPath := ""
	if planRequiresFiltering(plan) {
		toolName := options.FilterToolName
		if len(toolName) == 0 {
			toolName = histfilter.DefaultToolName
		}
		resolvedPath, toolError := service.toolLocator.ResolveTool(toolName)
		if toolError != nil {
			return fmt.Errorf(toolResolutionErrorTemplateConstant, toolError)
		}
		toolPath = resolvedPath
		service.logger.Info(toolResolvedMessageConstant, zap.String(logFieldToolPathConstant, toolPath))
	}

	if options.DryRun {
		return service.describePlan(executionContext, plan, toolPath)
	}

	linkage, linkageError := service.createLinkage()
	if linkageError != nil {
		return fmt.Errorf(linkageCreationErrorTemplateConstant, linkageError)
	}
	defer func() {
		if removeError := linkage.Remove(); removeError != nil {
			service.logger.Warn(linkageRemovalFailedMessageConstant, zap.Error(removeError))
		}
	}()

	committer := newChangeRecordingCommitter(service.repositoryManager, service.identifierGenerator, linkage)

	repositoryStates, provisionError := service.provisionDestinations(executionContext, plan, options)
	if provisionError != nil {
		return provisionError
	}

	destinationIdentifiers, identifierError := service.allocateDestinationIdentifiers(plan)
	if identifierError != nil {
		return identifierError
	}

	filterResults, filterError := service.filterGroups(executionContext, plan, sourceBranches, toolPath)
	if filterError != nil {
		return filterError
	}

	mergeRecords, mergeError := service.mergeDestinations(executionContext, plan, repositoryStates, filterResults, sourceBranches, linkage)
	if mergeError != nil {
		return mergeError
	}

	if rewriteError := service.rewriteDestinations(executionContext, plan, repositoryStates, options); rewriteError != nil {
		return rewriteError
	}

	if metadataError := service.applyMetadataFixers(executionContext, plan, destinationIdentifiers, committer); metadataError != nil {
		return metadataError
	}

	if finalizeError := service.finalizeCommits(executionContext, plan, mergeRecords, destinationIdentifiers, committer); finalizeError != nil {
		return finalizeError
	}

	service.reportSummary(plan, repositoryStates)
	return nil
}

func (service *Service) createLinkage() (*ChangeLinkage, error) {
	linkagePath := filepath.Join(
		service.temporaryDirectory,
		fmt.Sprintf(linkageFileNameTemplateConstant, service.clock.Now().UnixNano()),
	)
	return NewChangeLinkage(service.fileSystem, linkagePath)
}

func (service *Service) provisionDestinations(executionContext context.Context, plan *moveplan.Plan, options Options) (map[shared.RepositoryPath]*RepositoryState, error) {
	repositoryStates := make(map[shared.RepositoryPath]*RepositoryState, len(plan.Destinations()))
	for _, destination := range plan.Destinations() {
		destinationPath := destination.String()

		_, statError := service.fileSystem.Stat(destinationPath)
		directoryExists := statError == nil

		isRepository := false
		if directoryExists {
			repositoryCheck, checkError := service.repositoryManager.CheckIsRepository(executionContext, destinationPath)
			if checkError != nil {
				return nil, fmt.Errorf(provisionErrorTemplateConstant, destination, checkError)
			}
			isRepository = repositoryCheck
		}

		if !directoryExists || !isRepository {
			if !directoryExists {
				if directoryError := service.fileSystem.MkdirAll(destinationPath, destinationDirectoryPermissionsValue); directoryError != nil {
					return nil, fmt.Errorf(provisionErrorTemplateConstant, destination, directoryError)
				}
			}
			if initializeError := service.repositoryManager.InitializeRepository(executionContext, destinationPath); initializeError != nil {
				return nil, fmt.Errorf(provisionErrorTemplateConstant, destination, initializeError)
			}
			hookInstalled, hookError := service.hookInstaller.Install(destinationPath)
			if hookError != nil {
				return nil, fmt.Errorf(provisionErrorTemplateConstant, destination, hookError)
			}
			repositoryStates[destination] = &RepositoryState{IsNew: true, IsVirgin: true}
			service.logger.Info(
				destinationCreatedMessageConstant,
				zap.String(logFieldRepositoryConstant, destinationPath),
				zap.Bool(logFieldHookInstalledConstant, hookInstalled),
			)
			continue
		}

		hasCommits, commitsError := service.repositoryManager.HasCommits(executionContext, destinationPath)
		if commitsError != nil {
			return nil, fmt.Errorf(provisionErrorTemplateConstant, destination, commitsError)
		}
		repositoryStates[destination] = &RepositoryState{IsNew: false, IsVirgin: !hasCommits}
		if !hasCommits {
			service.logger.Info(destinationPreparedMessageConstant, zap.String(logFieldRepositoryConstant, destinationPath))
			continue
		}

		workingBranch := options.ModifiedRepositoryBranch.String()
		branchExists, branchError := service.repositoryManager.BranchExists(executionContext, destinationPath, workingBranch)
		if branchError != nil {
			return nil, fmt.Errorf(provisionErrorTemplateConstant, destination, branchError)
		}
		if branchExists {
			if checkoutError := service.repositoryManager.CheckoutBranch(executionContext, destinationPath, workingBranch); checkoutError != nil {
				return nil, fmt.Errorf(provisionErrorTemplateConstant, destination, checkoutError)
			}
		} else {
			if createError := service.repositoryManager.CreateBranch(executionContext, destinationPath, workingBranch); createError != nil {
				return nil, fmt.Errorf(provisionErrorTemplateConstant, destination, createError)
			}
		}
		service.logger.Info(
			destinationPreparedMessageConstant,
			zap.String(logFieldRepositoryConstant, destinationPath),
			zap.String(logFieldBranchConstant, workingBranch),
		)
	}
	return repositoryStates, nil
}

func (service *Service) allocateDestinationIdentifiers(plan *moveplan.Plan) (map[shared.RepositoryPath]string, error) {
	destinationIdentifiers := make(map[shared.RepositoryPath]string, len(plan.Destinations()))
	for _, destination := range plan.Destinations() {
		changeIdentifier, generationError := service.identifierGenerator.Generate()
		if generationError != nil {
			return nil, fmt.Errorf(identifierErrorTemplateConstant, generationError)
		}
		destinationIdentifiers[destination] = changeIdentifier
	}
	return destinationIdentifiers, nil
}

func (service *Service) filterGroups(executionContext context.Context, plan *moveplan.Plan, sourceBranches map[shared.RepositoryPath]shared.BranchName, toolPath string) (map[moveplan.RepositoryPair]histfilter.FilterResult, error) {
	filterResults := make(map[moveplan.RepositoryPair]histfilter.FilterResult)
	if len(toolPath) == 0 {
		return filterResults, nil
	}

	historyFilter, providerError := service.historyFilterProvider(toolPath)
	if providerError != nil {
		return nil, fmt.Errorf(filterCreationErrorTemplateConstant, providerError)
	}

	for _, group := range plan.Groups() {
		if group.Pair.IsIdentity() {
			continue
		}
		filterRequest := histfilter.FilterRequest{
			Pair:         group.Pair,
			SourceBranch: sourceBranches[group.Pair.SourceRepository],
			PathPrefixes: group.SourcePaths(),
		}
		filterResult, filterError := historyFilter.FilterHistory(executionContext, filterRequest)
		if filterError != nil {
			return nil, fmt.Errorf(filterErrorTemplateConstant, group.Pair.SourceRepository, filterError)
		}
		filterResults[group.Pair] = filterResult
		service.logger.Info(
			historyFilteredMessageConstant,
			zap.String(logFieldSourceConstant, group.Pair.SourceRepository.String()),
			zap.String(logFieldDestinationConstant, group.Pair.DestinationRepository.String()),
			zap.String(logFieldScratchPathConstant, filterResult.ScratchPath),
			zap.Bool(logFieldReusedConstant, filterResult.Reused),
		)
	}
	return filterResults, nil
}

func (service *Service) mergeDestinations(executionContext context.Context, plan *moveplan.Plan, repositoryStates map[shared.RepositoryPath]*RepositoryState, filterResults map[moveplan.RepositoryPair]histfilter.FilterResult, sourceBranches map[shared.RepositoryPath]shared.BranchName, linkage *ChangeLinkage) (map[shared.RepositoryPath][]string, error) {
	mergeRecords := make(map[shared.RepositoryPath][]string)
	for _, destination := range plan.Destinations() {
		destinationPath := destination.String()
		for _, group := range plan.Groups() {
			if group.Pair.DestinationRepository != destination || group.Pair.IsIdentity() {
				continue
			}
			filterResult, resultFound := filterResults[group.Pair]
			if !resultFound {
				continue
			}
			if _, statError := service.fileSystem.Stat(filterResult.ScratchPath); statError != nil {
				return nil, ScratchMissingError{Pair: group.Pair, ScratchPath: filterResult.ScratchPath}
			}

			if addError := service.repositoryManager.AddRemote(executionContext, destinationPath, scratchRemoteNameConstant.String(), filterResult.ScratchPath); addError != nil {
				return nil, fmt.Errorf(mergeErrorTemplateConstant, destination, addError)
			}
			sourceBranch := sourceBranches[group.Pair.SourceRepository]
			if fetchError := service.repositoryManager.FetchRemoteBranch(executionContext, destinationPath, scratchRemoteNameConstant.String(), sourceBranch.String()); fetchError != nil {
				return nil, fmt.Errorf(mergeErrorTemplateConstant, destination, fetchError)
			}

			repositoryState := repositoryStates[destination]
			mergeChangeIdentifier := ""
			mergeMessage := ""
			if !repositoryState.IsVirgin {
				generatedIdentifier, generationError := service.identifierGenerator.Generate()
				if generationError != nil {
					return nil, fmt.Errorf(identifierErrorTemplateConstant, generationError)
				}
				mergeChangeIdentifier = generatedIdentifier
				mergeSubject := fmt.Sprintf(
					mergeCommitSubjectTemplateConstant,
					group.Pair.SourceRepository,
					joinSubdirectoryPaths(group.SourcePaths()),
				)
				mergeMessage = ComposeCommitMessage(mergeSubject, nil, mergeChangeIdentifier)
			}
			if mergeError := service.repositoryManager.MergeFetchedHistory(executionContext, destinationPath, mergeMessage, !repositoryState.IsVirgin); mergeError != nil {
				return nil, fmt.Errorf(mergeErrorTemplateConstant, destination, mergeError)
			}
			headCommit, headError := service.repositoryManager.ResolveHeadCommit(executionContext, destinationPath)
			if headError != nil {
				return nil, fmt.Errorf(mergeErrorTemplateConstant, destination, headError)
			}
			if recordError := linkage.Record(ChangeRecord{RepositoryPath: destinationPath, CommitHash: headCommit, ChangeIdentifier: mergeChangeIdentifier}); recordError != nil {
				return nil, recordError
			}
			mergeRecords[destination] = append(mergeRecords[destination], headCommit)

			if removeError := service.repositoryManager.RemoveRemote(executionContext, destinationPath, scratchRemoteNameConstant.String()); removeError != nil {
				return nil, fmt.Errorf(mergeErrorTemplateConstant, destination, removeError)
			}
			if scratchRemovalError := service.fileSystem.RemoveAll(filterResult.ScratchPath); scratchRemovalError != nil {
				return nil, fmt.Errorf(mergeErrorTemplateConstant, destination, scratchRemovalError)
			}
			repositoryState.IsVirgin = false

			service.logger.Info(
				historyMergedMessageConstant,
				zap.String(logFieldDestinationConstant, destinationPath),
				zap.String(logFieldSourceConstant, group.Pair.SourceRepository.String()),
				zap.String(logFieldCommitConstant, headCommit),
			)
		}
	}
	return mergeRecords, nil
}

func (service *Service) rewriteDestinations(executionContext context.Context, plan *moveplan.Plan, repositoryStates map[shared.RepositoryPath]*RepositoryState, options Options) error {
	for _, destination := range plan.Destinations() {
		destinationPath := destination.String()

		ruleSet, rulesError := service.ruleGenerator.BuildDestinationRules(executionContext, plan.DestinationRequests(destination))
		if rulesError != nil {
			return fmt.Errorf(rewriteErrorTemplateConstant, destination, rulesError)
		}

		if !ruleSet.IsEmpty() {
			historicalPaths, listError := service.repositoryManager.ListHistoricalPaths(executionContext, destinationPath)
			if listError != nil {
				return fmt.Errorf(rewriteErrorTemplateConstant, destination, listError)
			}
			renameEntries := pathrewrite.BuildRenameEntries(ruleSet, historicalPaths)
			if len(renameEntries) > 0 {
				if applyError := service.applyIndexRewrite(executionContext, destination, renameEntries); applyError != nil {
					return applyError
				}
			}
			service.logger.Info(
				pathsRewrittenMessageConstant,
				zap.String(logFieldDestinationConstant, destinationPath),
				zap.Int(logFieldRenameCountConstant, len(renameEntries)),
			)
		}

		repositoryState := repositoryStates[destination]
		if repositoryState != nil && repositoryState.IsNew {
			newBranch := options.NewRepositoryBranch.String()
			if renameError := service.repositoryManager.RenameCurrentBranch(executionContext, destinationPath, newBranch); renameError != nil {
				return fmt.Errorf(rewriteErrorTemplateConstant, destination, renameError)
			}
			service.logger.Info(
				branchRenamedMessageConstant,
				zap.String(logFieldRepositoryConstant, destinationPath),
				zap.String(logFieldBranchConstant, newBranch),
			)
		}
	}
	return nil
}

func (service *Service) applyIndexRewrite(executionContext context.Context, destination shared.RepositoryPath, renameEntries []pathrewrite.RenameEntry) error {
	renameTablePath := filepath.Join(
		service.temporaryDirectory,
		fmt.Sprintf(renameTableFileNameTemplateConstant, destination.Base(), service.clock.Now().UnixNano()),
	)
	renameTableContent := pathrewrite.RenderRenameTable(renameEntries)
	if writeError := service.fileSystem.WriteFile(renameTablePath, []byte(renameTableContent), renameTableFilePermissionsValue); writeError != nil {
		return fmt.Errorf(rewriteErrorTemplateConstant, destination, writeError)
	}
	defer func() {
		_ = service.fileSystem.RemoveAll(renameTablePath)
	}()

	environment := map[string]string{pathrewrite.RenameTableEnvironmentVariable: renameTablePath}
	if rewriteError := service.repositoryManager.RunIndexRewrite(executionContext, destination.String(), pathrewrite.IndexFilterScript(), environment); rewriteError != nil {
		return fmt.Errorf(rewriteErrorTemplateConstant, destination, rewriteError)
	}
	if resetError := service.repositoryManager.ResetWorktree(executionContext, destination.String()); resetError != nil {
		return fmt.Errorf(rewriteErrorTemplateConstant, destination, resetError)
	}
	return nil
}

func (service *Service) applyMetadataFixers(executionContext context.Context, plan *moveplan.Plan, destinationIdentifiers map[shared.RepositoryPath]string, committer *changeRecordingCommitter) error {
	dependentFixer, providerError := service.dependentFixerProvider(committer)
	if providerError != nil {
		return fmt.Errorf(dependentFixerCreationErrorTemplateConstant, providerError)
	}

	// Every staging fixer runs before any dependent fix, so each destination's
	// staged state is settled when the dependency linkage is decided below.
	for _, request := range plan.Requests() {
		for _, requestFixer := range service.requestFixers {
			if fixError := requestFixer.Apply(executionContext, request); fixError != nil {
				return fmt.Errorf(metadataErrorTemplateConstant, request.SourcePath, fixError)
			}
		}
	}

	planRepositoryPaths := planRepositories(plan)
	for _, request := range plan.Requests() {
		// The destination's change identifier goes into dependency trailers
		// only when a destination commit will exist to carry it.
		destinationHasStaged, stagedError := service.repositoryManager.HasStagedChanges(executionContext, request.DestinationRepository.String())
		if stagedError != nil {
			return fmt.Errorf(dependentErrorTemplateConstant, request.SourcePath, stagedError)
		}
		linkageReference := ""
		if destinationHasStaged {
			linkageReference = destinationIdentifiers[request.DestinationRepository]
		}
		committedRepositories, dependentError := dependentFixer.Apply(executionContext, planRepositoryPaths, request, linkageReference)
		if dependentError != nil {
			return fmt.Errorf(dependentErrorTemplateConstant, request.SourcePath, dependentError)
		}
		if len(committedRepositories) > 0 {
			service.logger.Info(
				dependentsUpdatedMessageConstant,
				zap.String(logFieldComponentConstant, request.SourcePath.Base()),
				zap.Strings(logFieldRepositoriesConstant, repositoryPathStrings(committedRepositories)),
			)
		}
	}
	return nil
}

func (service *Service) finalizeCommits(executionContext context.Context, plan *moveplan.Plan, mergeRecords map[shared.RepositoryPath][]string, destinationIdentifiers map[shared.RepositoryPath]string, committer *changeRecordingCommitter) error {
	sourceMetadataIdentifiers := make(map[shared.RepositoryPath]string)
	for _, sourceRepository := range planSourceRepositories(plan) {
		hasStaged, stagedError := service.repositoryManager.HasStagedChanges(executionContext, sourceRepository.String())
		if stagedError != nil {
			return fmt.Errorf(finalizeErrorTemplateConstant, sourceRepository, stagedError)
		}
		if !hasStaged {
			continue
		}
		changeIdentifier, generationError := service.identifierGenerator.Generate()
		if generationError != nil {
			return fmt.Errorf(identifierErrorTemplateConstant, generationError)
		}
		subject := fmt.Sprintf(sourceCommitSubjectTemplateConstant, describeSourceRelocations(plan, sourceRepository))
		if commitError := committer.CreateLinkedCommit(executionContext, sourceRepository.String(), subject, changeIdentifier); commitError != nil {
			return fmt.Errorf(finalizeErrorTemplateConstant, sourceRepository, commitError)
		}
		sourceMetadataIdentifiers[sourceRepository] = changeIdentifier
	}

	for _, destination := range plan.Destinations() {
		hasStaged, stagedError := service.repositoryManager.HasStagedChanges(executionContext, destination.String())
		if stagedError != nil {
			return fmt.Errorf(finalizeErrorTemplateConstant, destination, stagedError)
		}
		if !hasStaged {
			continue
		}
		subject := fmt.Sprintf(additionCommitSubjectTemplateConstant, describeDestinationAdditions(plan, destination))
		commitMessage := ComposeCommitMessage(subject, mergeRecords[destination], "")
		if commitError := committer.CreateLinkedCommit(executionContext, destination.String(), commitMessage, destinationIdentifiers[destination]); commitError != nil {
			return fmt.Errorf(finalizeErrorTemplateConstant, destination, commitError)
		}
	}

	for _, group := range plan.Groups() {
		sourceRepositoryPath := group.Pair.SourceRepository.String()
		var removablePaths []string
		for _, mapping := range group.Mappings {
			absolutePath := filepath.Join(sourceRepositoryPath, filepath.FromSlash(mapping.SourcePath.String()))
			if _, statError := service.fileSystem.Stat(absolutePath); statError != nil {
				continue
			}
			removablePaths = append(removablePaths, mapping.SourcePath.String())
		}
		if len(removablePaths) == 0 {
			continue
		}
		if removeError := service.repositoryManager.RemovePaths(executionContext, sourceRepositoryPath, removablePaths); removeError != nil {
			return fmt.Errorf(finalizeErrorTemplateConstant, group.Pair.SourceRepository, removeError)
		}
		subject := fmt.Sprintf(
			removalCommitSubjectTemplateConstant,
			strings.Join(removablePaths, pathListSeparatorConstant),
			group.Pair.DestinationRepository,
		)
		var dependencyReferences []string
		if metadataIdentifier, identifierFound := sourceMetadataIdentifiers[group.Pair.SourceRepository]; identifierFound {
			dependencyReferences = append(dependencyReferences, metadataIdentifier)
		}
		commitMessage := ComposeCommitMessage(subject, dependencyReferences, "")
		changeIdentifier, generationError := service.identifierGenerator.Generate()
		if generationError != nil {
			return fmt.Errorf(identifierErrorTemplateConstant, generationError)
		}
		if commitError := committer.CreateLinkedCommit(executionContext, sourceRepositoryPath, commitMessage, changeIdentifier); commitError != nil {
			return fmt.Errorf(finalizeErrorTemplateConstant, group.Pair.SourceRepository, commitError)
		}
	}
	return nil
}

func (service *Service) reportSummary(plan *moveplan.Plan, repositoryStates map[shared.RepositoryPath]*RepositoryState) {
	createdCount := 0
	for _, destination := range plan.Destinations() {
		repositoryState := repositoryStates[destination]
		if repositoryState == nil || !repositoryState.IsNew {
			continue
		}
		service.reporter.Printf(createdRepositorySummaryTemplateConstant, destination.String())
		createdCount++
	}
	service.logger.Info(relocationDoneMessageConstant, zap.Int(logFieldCreatedCountConstant, createdCount))
}

func (service *Service) describePlan(executionContext context.Context, plan *moveplan.Plan, toolPath string) error {
	service.reporter.Printf(dryRunHeaderTemplateConstant, len(plan.Requests()), len(plan.Groups()))
	if len(toolPath) > 0 {
		service.reporter.Printf(dryRunToolTemplateConstant, toolPath)
	}

	for _, group := range plan.Groups() {
		if group.Pair.IsIdentity() {
			service.reporter.Printf(dryRunIdentityGroupTemplateConstant, group.Pair.SourceRepository)
		} else {
			service.reporter.Printf(dryRunGroupTemplateConstant, group.Pair.SourceRepository, group.Pair.DestinationRepository)
		}
		for _, mapping := range group.Mappings {
			service.reporter.Printf(dryRunMappingTemplateConstant, mapping.SourcePath, mapping.DestinationPath)
		}
	}

	for _, destination := range plan.Destinations() {
		provisioningIntent := provisioningIntentReuseConstant
		if _, statError := service.fileSystem.Stat(destination.String()); statError != nil {
			provisioningIntent = provisioningIntentCreateConstant
		}
		service.reporter.Printf(dryRunDestinationTemplateConstant, destination, provisioningIntent)

		ruleSet, rulesError := service.ruleGenerator.BuildDestinationRules(executionContext, plan.DestinationRequests(destination))
		if rulesError != nil {
			return fmt.Errorf(rewriteErrorTemplateConstant, destination, rulesError)
		}
		for _, rewriteRule := range ruleSet.PrimaryRules() {
			service.reporter.Printf(dryRunRuleTemplateConstant, describeRule(rewriteRule))
		}
		for _, rewriteRule := range ruleSet.RefinementRules() {
			service.reporter.Printf(dryRunRefinementTemplateConstant, describeRule(rewriteRule))
		}
	}
	return nil
}

func describeRule(rewriteRule pathrewrite.Rule) string {
	switch rewriteRule.Kind {
	case pathrewrite.RuleKindPrefixStrip:
		return fmt.Sprintf(ruleStripDescriptionTemplate, rewriteRule.SourcePattern)
	case pathrewrite.RuleKindPrefixInsert:
		return fmt.Sprintf(ruleInsertDescriptionTemplate, rewriteRule.SourcePattern, rewriteRule.TargetPattern, rewriteRule.SourcePattern)
	case pathrewrite.RuleKindBasenameSubstitute:
		return fmt.Sprintf(ruleBasenameDescriptionTemplate, rewriteRule.SourcePattern, rewriteRule.TargetPattern)
	default:
		return fmt.Sprintf(ruleSubstituteDescriptionTemplate, rewriteRule.SourcePattern, rewriteRule.TargetPattern)
	}
}

func planRequiresFiltering(plan *moveplan.Plan) bool {
	for _, group := range plan.Groups() {
		if !group.Pair.IsIdentity() {
			return true
		}
	}
	return false
}

func planRepositories(plan *moveplan.Plan) []shared.RepositoryPath {
	var orderedRepositories []shared.RepositoryPath
	seenRepositories := make(map[shared.RepositoryPath]bool)
	for _, request := range plan.Requests() {
		for _, repositoryPath := range []shared.RepositoryPath{request.SourceRepository, request.DestinationRepository} {
			if seenRepositories[repositoryPath] {
				continue
			}
			seenRepositories[repositoryPath] = true
			orderedRepositories = append(orderedRepositories, repositoryPath)
		}
	}
	return orderedRepositories
}

func planSourceRepositories(plan *moveplan.Plan) []shared.RepositoryPath {
	var orderedRepositories []shared.RepositoryPath
	seenRepositories := make(map[shared.RepositoryPath]bool)
	for _, group := range plan.Groups() {
		if seenRepositories[group.Pair.SourceRepository] {
			continue
		}
		seenRepositories[group.Pair.SourceRepository] = true
		orderedRepositories = append(orderedRepositories, group.Pair.SourceRepository)
	}
	return orderedRepositories
}

func describeSourceRelocations(plan *moveplan.Plan, sourceRepository shared.RepositoryPath) string {
	var relocationParts []string
	for _, request := range plan.Requests() {
		if request.SourceRepository != sourceRepository {
			continue
		}
		relocationParts = append(relocationParts, fmt.Sprintf(relocationPairTemplateConstant, request.SourcePath, request.DestinationRepository))
	}
	return strings.Join(relocationParts, pathListSeparatorConstant)
}

func describeDestinationAdditions(plan *moveplan.Plan, destination shared.RepositoryPath) string {
	var additionParts []string
	for _, request := range plan.DestinationRequests(destination) {
		additionParts = append(additionParts, fmt.Sprintf(additionPairTemplateConstant, request.DestinationPath, request.SourceRepository))
	}
	return strings.Join(additionParts, pathListSeparatorConstant)
}

func joinSubdirectoryPaths(subdirectoryPaths []shared.SubdirectoryPath) string {
	pathStrings := make([]string, 0, len(subdirectoryPaths))
	for _, subdirectoryPath := range subdirectoryPaths {
		pathStrings = append(pathStrings, subdirectoryPath.String())
	}
	return strings.Join(pathStrings, pathListSeparatorConstant)
}

func repositoryPathStrings(repositoryPaths []shared.RepositoryPath) []string {
	pathStrings := make([]string, 0, len(repositoryPaths))
	for _, repositoryPath := range repositoryPaths {
		pathStrings = append(pathStrings, repositoryPath.String())
	}
	return pathStrings
}
