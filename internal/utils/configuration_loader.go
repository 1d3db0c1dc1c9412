package utils

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	configurationReadErrorTemplateConstant          = "failed to read configuration: %w"
	configurationUnmarshalErrorTemplateConstant     = "failed to parse configuration: %w"
	embeddedConfigurationMergeErrorTemplateConstant = "failed to merge embedded configuration: %w"
)

var environmentKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// ConfigurationLoader layers configuration sources with Viper. Precedence, lowest
// first: defaults, embedded configuration, the configuration file, then
// environment variables carrying the loader prefix.
type ConfigurationLoader struct {
	configurationName         string
	configurationType         string
	environmentPrefix         string
	searchPaths               []string
	embeddedConfiguration     []byte
	embeddedConfigurationType string
}

// LoadedConfiguration surfaces metadata about the resolved configuration.
type LoadedConfiguration struct {
	ConfigFileUsed string
}

// NewConfigurationLoader creates a loader that searches searchPaths for configurationName.configurationType.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	return &ConfigurationLoader{
		configurationName: configurationName,
		configurationType: configurationType,
		environmentPrefix: environmentPrefix,
		searchPaths:       append([]string(nil), searchPaths...),
	}
}

// SetEmbeddedConfiguration stores configuration data merged beneath user-provided files.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationData []byte, configurationType string) {
	if loader == nil {
		return
	}
	loader.embeddedConfiguration = append([]byte(nil), configurationData...)
	loader.embeddedConfigurationType = strings.TrimSpace(configurationType)
}

// LoadConfiguration populates targetConfiguration. An explicit configurationFilePath
// must exist; otherwise a missing configuration file is not an error.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, targetConfiguration any) (LoadedConfiguration, error) {
	viperInstance := viper.New()

	for defaultKey, defaultValue := range defaultValues {
		viperInstance.SetDefault(defaultKey, defaultValue)
	}

	if mergeError := loader.mergeEmbeddedConfiguration(viperInstance); mergeError != nil {
		return LoadedConfiguration{}, mergeError
	}

	viperInstance.SetConfigName(loader.configurationName)
	viperInstance.SetConfigType(loader.configurationType)
	for _, searchPath := range loader.searchPaths {
		viperInstance.AddConfigPath(searchPath)
	}
	if len(configurationFilePath) > 0 {
		viperInstance.SetConfigFile(configurationFilePath)
	}

	viperInstance.SetEnvPrefix(loader.environmentPrefix)
	viperInstance.SetEnvKeyReplacer(environmentKeyReplacer)
	viperInstance.AutomaticEnv()

	if readError := viperInstance.MergeInConfig(); readError != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(readError, &notFoundError) {
			return LoadedConfiguration{}, fmt.Errorf(configurationReadErrorTemplateConstant, readError)
		}
	}

	if unmarshalError := viperInstance.Unmarshal(targetConfiguration); unmarshalError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationUnmarshalErrorTemplateConstant, unmarshalError)
	}

	return LoadedConfiguration{ConfigFileUsed: viperInstance.ConfigFileUsed()}, nil
}

func (loader *ConfigurationLoader) mergeEmbeddedConfiguration(viperInstance *viper.Viper) error {
	if len(loader.embeddedConfiguration) == 0 {
		return nil
	}

	embeddedType := loader.embeddedConfigurationType
	if len(embeddedType) == 0 {
		embeddedType = loader.configurationType
	}

	viperInstance.SetConfigType(embeddedType)
	if mergeError := viperInstance.MergeConfig(bytes.NewReader(loader.embeddedConfiguration)); mergeError != nil {
		return fmt.Errorf(embeddedConfigurationMergeErrorTemplateConstant, mergeError)
	}
	return nil
}
