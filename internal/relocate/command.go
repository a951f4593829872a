package relocate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/celder/histmove/internal/execshell"
	"github.com/celder/histmove/internal/filesystem"
	"github.com/celder/histmove/internal/gitrepo"
	"github.com/celder/histmove/internal/histfilter"
	"github.com/celder/histmove/internal/metadata"
	"github.com/celder/histmove/internal/moveplan"
	"github.com/celder/histmove/internal/pathrewrite"
	"github.com/celder/histmove/internal/shared"
	"github.com/celder/histmove/internal/ui"
	"github.com/celder/histmove/internal/utils"
	flagutils "github.com/celder/histmove/internal/utils/flags"
)

const (
	commandUseConstant              = "histmove"
	commandShortDescriptionConstant = "Relocate subdirectories between git repositories preserving history"
	commandLongDescriptionConstant  = "histmove reads a relocation map, filters each source repository's history down to the moved subdirectories, merges the filtered history into destination repositories, rewrites historical paths, patches build metadata, and removes the relocated content from its source."
)

const (
	mapFileFlagNameConstant             = "map-file"
	mapFileFlagShorthandConstant        = "M"
	mapFileFlagUsageConstant            = "Relocation map file describing the moves"
	newBranchFlagNameConstant           = "new-repo-branch"
	newBranchFlagShorthandConstant      = "n"
	newBranchFlagUsageConstant          = "Branch name for repositories created by the run"
	modifiedBranchFlagNameConstant      = "modified-repo-branch"
	modifiedBranchFlagShorthandConstant = "m"
	modifiedBranchFlagUsageConstant     = "Working branch for existing destination repositories"
	filterToolFlagNameConstant          = "filter-tool"
	filterToolFlagUsageConstant         = "History filter executable name or path"
	dryRunFlagNameConstant              = "dry-run"
	dryRunFlagUsageConstant             = "Print the relocation plan without modifying repositories"
)

const (
	relocationFailedTemplateConstant       = "relocation failed: %w"
	invalidBranchTemplateConstant          = "invalid %s: %w"
	executorCreationErrorTemplateConstant  = "unable to construct shell executor: %w"
	managerCreationErrorTemplateConstant   = "unable to construct repository manager: %w"
	parserCreationErrorTemplateConstant    = "unable to construct plan parser: %w"
	validatorCreationErrorTemplateConstant = "unable to construct plan validator: %w"
	locatorCreationErrorTemplateConstant   = "unable to construct tool locator: %w"
	generatorCreationErrorTemplateConstant = "unable to construct rule generator: %w"
	hookCreationErrorTemplateConstant      = "unable to construct hook installer: %w"
	fixerCreationErrorTemplateConstant     = "unable to construct metadata fixer: %w"
)

// RelocationExecutor executes relocation runs.
type RelocationExecutor interface {
	Execute(executionContext context.Context, options Options) error
}

// ServiceProvider constructs a relocation executor from dependencies.
type ServiceProvider func(dependencies ServiceDependencies) (RelocationExecutor, error)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

type commandOptions struct {
	debugLoggingEnabled      bool
	mapFilePath              string
	newRepositoryBranch      shared.BranchName
	modifiedRepositoryBranch shared.BranchName
	filterToolName           string
	dryRun                   bool
}

// CommandBuilder assembles the histmove Cobra command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	Executor                     shared.GitExecutor
	FileSystem                   shared.FileSystem
	Reporter                     shared.Reporter
	ServiceProvider              ServiceProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration
	TemporaryDirectory           string
}

// Build constructs the histmove command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runRelocate,
	}

	command.Flags().StringP(mapFileFlagNameConstant, mapFileFlagShorthandConstant, DefaultMapFileName, mapFileFlagUsageConstant)
	command.Flags().StringP(newBranchFlagNameConstant, newBranchFlagShorthandConstant, DefaultNewRepositoryBranch, newBranchFlagUsageConstant)
	command.Flags().StringP(modifiedBranchFlagNameConstant, modifiedBranchFlagShorthandConstant, DefaultModifiedRepositoryBranch, modifiedBranchFlagUsageConstant)
	command.Flags().String(filterToolFlagNameConstant, histfilter.DefaultToolName, filterToolFlagUsageConstant)
	flagutils.AddToggleFlag(command.Flags(), nil, dryRunFlagNameConstant, "", false, dryRunFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) runRelocate(command *cobra.Command, arguments []string) error {
	options, optionsError := builder.parseOptions(command)
	if optionsError != nil {
		return optionsError
	}

	logger := builder.resolveLogger(options.debugLoggingEnabled)

	executor, executorError := builder.resolveExecutor(logger)
	if executorError != nil {
		return executorError
	}

	repositoryManager, managerError := gitrepo.NewRepositoryManager(executor)
	if managerError != nil {
		return fmt.Errorf(managerCreationErrorTemplateConstant, managerError)
	}

	service, serviceError := builder.resolveService(logger, executor, repositoryManager)
	if serviceError != nil {
		return serviceError
	}

	executionError := service.Execute(command.Context(), Options{
		MapFilePath:              options.mapFilePath,
		NewRepositoryBranch:      options.newRepositoryBranch,
		ModifiedRepositoryBranch: options.modifiedRepositoryBranch,
		FilterToolName:           options.filterToolName,
		DryRun:                   options.dryRun,
	})
	if executionError != nil {
		if errors.Is(executionError, context.Canceled) || errors.Is(executionError, context.DeadlineExceeded) {
			return executionError
		}
		return fmt.Errorf(relocationFailedTemplateConstant, executionError)
	}

	return nil
}

func (builder *CommandBuilder) parseOptions(command *cobra.Command) (commandOptions, error) {
	configuration := builder.resolveConfiguration()

	debugEnabled := false
	if command != nil {
		contextAccessor := utils.NewCommandContextAccessor()
		if logLevel, available := contextAccessor.LogLevel(command.Context()); available {
			if strings.EqualFold(logLevel, string(utils.LogLevelDebug)) {
				debugEnabled = true
			}
		}
	}

	mapFilePath := configuration.MapFilePath
	newBranchValue := configuration.NewRepositoryBranch
	modifiedBranchValue := configuration.ModifiedRepositoryBranch
	filterToolName := configuration.FilterToolName
	dryRun := configuration.DryRun

	if command != nil {
		if command.Flags().Changed(mapFileFlagNameConstant) {
			flagValue, _ := command.Flags().GetString(mapFileFlagNameConstant)
			mapFilePath = strings.TrimSpace(flagValue)
		}
		if command.Flags().Changed(newBranchFlagNameConstant) {
			flagValue, _ := command.Flags().GetString(newBranchFlagNameConstant)
			newBranchValue = strings.TrimSpace(flagValue)
		}
		if command.Flags().Changed(modifiedBranchFlagNameConstant) {
			flagValue, _ := command.Flags().GetString(modifiedBranchFlagNameConstant)
			modifiedBranchValue = strings.TrimSpace(flagValue)
		}
		if command.Flags().Changed(filterToolFlagNameConstant) {
			flagValue, _ := command.Flags().GetString(filterToolFlagNameConstant)
			filterToolName = strings.TrimSpace(flagValue)
		}
		if command.Flags().Changed(dryRunFlagNameConstant) {
			flagValue, _ := command.Flags().GetBool(dryRunFlagNameConstant)
			dryRun = flagValue
		}
	}

	if len(mapFilePath) == 0 {
		mapFilePath = DefaultMapFileName
	}
	if len(newBranchValue) == 0 {
		newBranchValue = DefaultNewRepositoryBranch
	}
	if len(modifiedBranchValue) == 0 {
		modifiedBranchValue = DefaultModifiedRepositoryBranch
	}

	newRepositoryBranch, newBranchError := shared.NewBranchName(newBranchValue)
	if newBranchError != nil {
		return commandOptions{}, fmt.Errorf(invalidBranchTemplateConstant, newBranchFlagNameConstant, newBranchError)
	}
	modifiedRepositoryBranch, modifiedBranchError := shared.NewBranchName(modifiedBranchValue)
	if modifiedBranchError != nil {
		return commandOptions{}, fmt.Errorf(invalidBranchTemplateConstant, modifiedBranchFlagNameConstant, modifiedBranchError)
	}

	return commandOptions{
		debugLoggingEnabled:      debugEnabled,
		mapFilePath:              mapFilePath,
		newRepositoryBranch:      newRepositoryBranch,
		modifiedRepositoryBranch: modifiedRepositoryBranch,
		filterToolName:           filterToolName,
		dryRun:                   dryRun,
	}, nil
}

func (builder *CommandBuilder) resolveLogger(enableDebug bool) *zap.Logger {
	var logger *zap.Logger
	if builder.LoggerProvider != nil {
		logger = builder.LoggerProvider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if enableDebug {
		logger = logger.WithOptions(zap.IncreaseLevel(zapcore.DebugLevel))
	}
	return logger
}

func (builder *CommandBuilder) resolveExecutor(logger *zap.Logger) (shared.GitExecutor, error) {
	if builder.Executor != nil {
		return builder.Executor, nil
	}

	commandRunner := execshell.NewOSCommandRunner()
	shellExecutor, creationError := execshell.NewShellExecutor(logger, commandRunner)
	if creationError != nil {
		return nil, fmt.Errorf(executorCreationErrorTemplateConstant, creationError)
	}
	if builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider() {
		shellExecutor.SetCommandEventObserver(ui.NewConsoleCommandEventLogger(logger))
	}
	return shellExecutor, nil
}

func (builder *CommandBuilder) resolveFileSystem() shared.FileSystem {
	if builder.FileSystem != nil {
		return builder.FileSystem
	}
	return filesystem.OSFileSystem{}
}

func (builder *CommandBuilder) resolveReporter() shared.Reporter {
	if builder.Reporter != nil {
		return builder.Reporter
	}
	return shared.NewWriterReporter(os.Stdout)
}

func (builder *CommandBuilder) resolveService(logger *zap.Logger, executor shared.GitExecutor, repositoryManager *gitrepo.RepositoryManager) (RelocationExecutor, error) {
	fileSystem := builder.resolveFileSystem()

	parser, parserError := moveplan.NewParser(fileSystem)
	if parserError != nil {
		return nil, fmt.Errorf(parserCreationErrorTemplateConstant, parserError)
	}
	validator, validatorError := moveplan.NewValidator(fileSystem, repositoryManager)
	if validatorError != nil {
		return nil, fmt.Errorf(validatorCreationErrorTemplateConstant, validatorError)
	}
	toolLocator, locatorError := histfilter.NewToolLocator(fileSystem)
	if locatorError != nil {
		return nil, fmt.Errorf(locatorCreationErrorTemplateConstant, locatorError)
	}
	ruleGenerator, generatorError := pathrewrite.NewRuleGenerator(fileSystem, repositoryManager)
	if generatorError != nil {
		return nil, fmt.Errorf(generatorCreationErrorTemplateConstant, generatorError)
	}
	hookInstaller, hookError := NewCommitHookInstaller(fileSystem)
	if hookError != nil {
		return nil, fmt.Errorf(hookCreationErrorTemplateConstant, hookError)
	}

	descriptorScanner := metadata.NewDescriptorScanner()
	requestFixers, fixersError := buildRequestFixers(fileSystem, repositoryManager, descriptorScanner)
	if fixersError != nil {
		return nil, fixersError
	}

	dependencies := ServiceDependencies{
		Logger:            logger,
		FileSystem:        fileSystem,
		Reporter:          builder.resolveReporter(),
		Parser:            parser,
		Validator:         validator,
		ToolLocator:       toolLocator,
		RepositoryManager: repositoryManager,
		HookInstaller:     hookInstaller,
		RuleGenerator:     ruleGenerator,
		HistoryFilterProvider: func(toolPath string) (histfilter.HistoryFilter, error) {
			return histfilter.NewExternalHistoryFilter(fileSystem, repositoryManager, executor, toolPath)
		},
		RequestFixers: requestFixers,
		DependentFixerProvider: func(committer metadata.DependencyCommitter) (DependentFixer, error) {
			return metadata.NewDependentDescriptorFixer(fileSystem, descriptorScanner, committer)
		},
		TemporaryDirectory: builder.TemporaryDirectory,
	}

	if builder.ServiceProvider != nil {
		return builder.ServiceProvider(dependencies)
	}
	return NewService(dependencies)
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}

	provided := builder.ConfigurationProvider()
	return provided.Sanitize()
}

func buildRequestFixers(fileSystem shared.FileSystem, stager metadata.PathStager, descriptorScanner *metadata.DescriptorScanner) ([]RequestFixer, error) {
	packageListFixer, packageListError := metadata.NewPackageDirectoryListFixer(fileSystem, stager)
	if packageListError != nil {
		return nil, fmt.Errorf(fixerCreationErrorTemplateConstant, packageListError)
	}
	wheelListFixer, wheelListError := metadata.NewWheelListFixer(fileSystem, stager)
	if wheelListError != nil {
		return nil, fmt.Errorf(fixerCreationErrorTemplateConstant, wheelListError)
	}
	imageListFixer, imageListError := metadata.NewImageListFixer(fileSystem, stager, descriptorScanner)
	if imageListError != nil {
		return nil, fmt.Errorf(fixerCreationErrorTemplateConstant, imageListError)
	}
	descriptorFixer, descriptorError := metadata.NewDescriptorFixer(fileSystem, stager, descriptorScanner)
	if descriptorError != nil {
		return nil, fmt.Errorf(fixerCreationErrorTemplateConstant, descriptorError)
	}
	buildDataFixer, buildDataError := metadata.NewBuildDataFixer(fileSystem, stager, descriptorScanner)
	if buildDataError != nil {
		return nil, fmt.Errorf(fixerCreationErrorTemplateConstant, buildDataError)
	}
	return []RequestFixer{packageListFixer, wheelListFixer, imageListFixer, descriptorFixer, buildDataFixer}, nil
}
