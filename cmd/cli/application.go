package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/celder/histmove/internal/relocate"
	"github.com/celder/histmove/internal/utils"
	flagutils "github.com/celder/histmove/internal/utils/flags"
)

const (
	applicationNameConstant                     = "histmove"
	configFileFlagNameConstant                  = "config"
	configFileFlagUsageConstant                 = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                    = "log-level"
	logLevelFlagDescriptionConstant             = "Override the configured log level."
	logFormatFlagNameConstant                   = "log-format"
	logFormatFlagDescriptionConstant            = "Override the configured log format."
	commonConfigurationKeyConstant              = "common"
	commonLogLevelConfigKeyConstant             = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant            = commonConfigurationKeyConstant + ".log_format"
	environmentPrefixConstant                   = "HISTMOVE"
	configurationNameConstant                   = "config"
	configurationTypeConstant                   = "yaml"
	configurationInitializedMessageConstant     = "configuration initialized"
	configurationLogLevelFieldConstant          = "log_level"
	configurationLogFormatFieldConstant         = "log_format"
	configurationFileFieldConstant              = "config_file"
	configurationLoadErrorTemplateConstant      = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant         = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant             = "unable to flush logger: %w"
	configSearchPathEnvironmentVariableConstant = "HISTMOVE_CONFIG_SEARCH_PATH"
	defaultConfigurationSearchPathConstant      = "."
	toolsConfigurationKeyConstant               = "tools"
	relocateConfigurationKeyConstant            = toolsConfigurationKeyConstant + ".relocate"
	versionFlagArgumentConstant                 = "--version"
	versionOutputTemplateConstant               = "%s version: %s\n"
	developmentVersionConstant                  = "development"
)

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common ApplicationCommonConfiguration `mapstructure:"common"`
	Tools  ApplicationToolsConfiguration  `mapstructure:"tools"`
}

// ApplicationCommonConfiguration stores logging configuration shared across the application.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationToolsConfiguration holds per-tool configuration sections.
type ApplicationToolsConfiguration struct {
	Relocate relocate.CommandConfiguration `mapstructure:"relocate"`
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          *utils.LoggerFactory
	logger                 *zap.Logger
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	logLevelFlagValue      string
	logFormatFlagValue     string
	commandContextAccessor utils.CommandContextAccessor
	versionResolver        func(executionContext context.Context) string
	exitFunction           func(exitCode int)
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() (*Application, error) {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		configurationSearchPaths(),
	)
	embeddedConfiguration, embeddedConfigurationType := EmbeddedDefaultConfiguration()
	configurationLoader.SetEmbeddedConfiguration(embeddedConfiguration, embeddedConfigurationType)

	application := &Application{
		configurationLoader:    configurationLoader,
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
		versionResolver:        resolveBuildVersion,
		exitFunction:           os.Exit,
	}

	relocateBuilder := relocate.CommandBuilder{
		LoggerProvider: func() *zap.Logger {
			return application.logger
		},
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
		ConfigurationProvider: func() relocate.CommandConfiguration {
			return application.configuration.Tools.Relocate
		},
	}
	rootCommand, buildError := relocateBuilder.Build()
	if buildError != nil {
		return nil, buildError
	}

	rootCommand.PersistentPreRunE = func(command *cobra.Command, arguments []string) error {
		return application.initializeConfiguration(command)
	}
	rootCommand.SetContext(context.Background())
	rootCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	rootCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsage())
	rootCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsage())

	application.rootCommand = rootCommand

	return application, nil
}

// Execute parses command-line arguments and runs the root command, flushing the logger afterwards.
func (application *Application) Execute() error {
	arguments := flagutils.NormalizeToggleArguments(os.Args[1:])
	if containsVersionArgument(arguments) {
		fmt.Printf(versionOutputTemplateConstant, applicationNameConstant, application.versionResolver(application.rootCommand.Context()))
		application.exitFunction(0)
		return nil
	}

	application.rootCommand.SetArgs(arguments)
	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command.
func Execute() error {
	application, creationError := NewApplication()
	if creationError != nil {
		return creationError
	}
	return application.Execute()
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant: string(utils.LogFormatStructured),
	}
	for configurationKey, configurationValue := range relocate.DefaultConfigurationValues(relocateConfigurationKeyConstant) {
		defaultValues[configurationKey] = configurationValue
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	createdLogger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = createdLogger

	application.logger.Info(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)

	if command != nil {
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(
			command.Context(),
			application.configurationMetadata.ConfigFileUsed,
		)
		updatedContext = application.commandContextAccessor.WithLogLevel(
			updatedContext,
			application.configuration.Common.LogLevel,
		)
		command.SetContext(updatedContext)
		if rootCommand := command.Root(); rootCommand != nil {
			rootCommand.SetContext(updatedContext)
		}
	}

	return nil
}

func (application *Application) humanReadableLoggingEnabled() bool {
	logFormatValue := strings.TrimSpace(application.configuration.Common.LogFormat)
	return strings.EqualFold(logFormatValue, string(utils.LogFormatConsole))
}

func (application *Application) flushLogger() error {
	if syncError := application.syncLoggerInstance(application.logger); syncError != nil {
		return syncError
	}
	return nil
}

func (application *Application) syncLoggerInstance(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}

	syncError := logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}

func configurationSearchPaths() []string {
	searchPaths := []string{defaultConfigurationSearchPathConstant}
	if overridePath := strings.TrimSpace(os.Getenv(configSearchPathEnvironmentVariableConstant)); len(overridePath) > 0 {
		searchPaths = append([]string{overridePath}, searchPaths...)
	}
	return searchPaths
}

func logLevelFlagUsage() string {
	return flagutils.FormatChoiceUsage(
		string(utils.LogLevelInfo),
		[]string{string(utils.LogLevelDebug), string(utils.LogLevelInfo), string(utils.LogLevelWarn), string(utils.LogLevelError)},
		logLevelFlagDescriptionConstant,
	)
}

func logFormatFlagUsage() string {
	return flagutils.FormatChoiceUsage(
		string(utils.LogFormatStructured),
		[]string{string(utils.LogFormatStructured), string(utils.LogFormatConsole)},
		logFormatFlagDescriptionConstant,
	)
}

func containsVersionArgument(arguments []string) bool {
	for _, argumentValue := range arguments {
		if argumentValue == versionFlagArgumentConstant {
			return true
		}
	}
	return false
}

func resolveBuildVersion(executionContext context.Context) string {
	if buildInformation, available := debug.ReadBuildInfo(); available && len(buildInformation.Main.Version) > 0 {
		return buildInformation.Main.Version
	}
	return developmentVersionConstant
}
