package utils

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	environmentKeyPathSeparatorConstant        = "."
	environmentKeyWordSeparatorConstant        = "_"
	configurationReadErrorTemplateConstant     = "unable to read configuration: %w"
	configurationDecodeErrorTemplateConstant   = "unable to decode configuration: %w"
	embeddedConfigurationErrorTemplateConstant = "unable to merge embedded configuration: %w"
)

// ConfigurationLoader resolves configuration from embedded defaults, configuration
// files, and environment variables. Sources merge in ascending precedence:
// registered defaults, embedded configuration, discovered or explicit
// configuration files, then environment variables carrying the configured prefix.
type ConfigurationLoader struct {
	configurationName         string
	configurationType         string
	environmentPrefix         string
	searchPaths               []string
	embeddedConfiguration     []byte
	embeddedConfigurationType string
}

// LoadedConfiguration reports metadata about the resolved configuration.
type LoadedConfiguration struct {
	ConfigFileUsed string
}

// NewConfigurationLoader builds a loader that looks for configurationName files of
// configurationType inside searchPaths, in order.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	return &ConfigurationLoader{
		configurationName: configurationName,
		configurationType: configurationType,
		environmentPrefix: environmentPrefix,
		searchPaths:       append([]string(nil), searchPaths...),
	}
}

// SetEmbeddedConfiguration registers baked-in configuration content merged beneath
// configuration files and environment overrides.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationContent []byte, configurationType string) {
	if loader == nil {
		return
	}

	loader.embeddedConfigurationType = strings.TrimSpace(configurationType)
	if len(configurationContent) == 0 {
		loader.embeddedConfiguration = nil
		return
	}

	loader.embeddedConfiguration = append([]byte(nil), configurationContent...)
}

// LoadConfiguration fills targetConfiguration from every configured source and
// reports which configuration file, if any, was read. An explicit
// configurationFilePath bypasses the search paths entirely.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, targetConfiguration any) (LoadedConfiguration, error) {
	viperInstance := viper.New()
	viperInstance.SetConfigName(loader.configurationName)
	viperInstance.SetConfigType(loader.configurationType)

	embeddedError := loader.mergeEmbeddedConfiguration(viperInstance)
	if embeddedError != nil {
		return LoadedConfiguration{}, embeddedError
	}

	for _, configurationSearchPath := range loader.searchPaths {
		viperInstance.AddConfigPath(configurationSearchPath)
	}

	viperInstance.SetEnvPrefix(loader.environmentPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(environmentKeyPathSeparatorConstant, environmentKeyWordSeparatorConstant))
	viperInstance.AutomaticEnv()

	for configurationKey, configurationValue := range defaultValues {
		viperInstance.SetDefault(configurationKey, configurationValue)
	}

	if len(configurationFilePath) > 0 {
		viperInstance.SetConfigFile(configurationFilePath)
	}

	mergeError := viperInstance.MergeInConfig()
	if mergeError != nil {
		var configurationNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(mergeError, &configurationNotFoundError) {
			return LoadedConfiguration{}, fmt.Errorf(configurationReadErrorTemplateConstant, mergeError)
		}
	}

	decodeError := viperInstance.Unmarshal(targetConfiguration)
	if decodeError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationDecodeErrorTemplateConstant, decodeError)
	}

	return LoadedConfiguration{ConfigFileUsed: viperInstance.ConfigFileUsed()}, nil
}

// mergeEmbeddedConfiguration feeds the registered embedded content into
// viperInstance, honoring a dedicated embedded configuration type when one was
// supplied, and restores the loader configuration type afterwards.
func (loader *ConfigurationLoader) mergeEmbeddedConfiguration(viperInstance *viper.Viper) error {
	if len(loader.embeddedConfiguration) == 0 {
		return nil
	}

	if len(loader.embeddedConfigurationType) > 0 {
		viperInstance.SetConfigType(loader.embeddedConfigurationType)
	}

	mergeError := viperInstance.MergeConfig(bytes.NewReader(loader.embeddedConfiguration))
	viperInstance.SetConfigType(loader.configurationType)
	if mergeError != nil {
		return fmt.Errorf(embeddedConfigurationErrorTemplateConstant, mergeError)
	}

	return nil
}
