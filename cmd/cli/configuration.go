package cli

import (
	"os"
	"path/filepath"

	"github.com/temirov/cratemerge/internal/consolidate"
	"github.com/temirov/cratemerge/internal/utils"
)

const (
	environmentPrefixConstant           = "CRATEMERGE"
	configurationNameConstant           = "config"
	configurationTypeConstant           = "yaml"
	workingDirectorySearchPathConstant  = "."
	logLevelConfigurationKeyConstant    = "common.log_level"
	logFormatConfigurationKeyConstant   = "common.log_format"
	consolidateConfigurationKeyConstant = "tools.consolidate"
)

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common ApplicationCommonConfiguration `mapstructure:"common"`
	Tools  ApplicationToolsConfiguration  `mapstructure:"tools"`
}

// ApplicationCommonConfiguration stores logging configuration.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationToolsConfiguration holds configuration for the tools the CLI runs.
type ApplicationToolsConfiguration struct {
	Consolidate consolidate.CommandConfiguration `mapstructure:"consolidate"`
}

func newConfigurationLoader() *utils.ConfigurationLoader {
	loader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		configurationSearchPaths(),
	)
	loader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())
	return loader
}

// configurationSearchPaths lists the working directory first, then the per-user
// configuration directory when the platform reports one.
func configurationSearchPaths() []string {
	searchPaths := []string{workingDirectorySearchPathConstant}
	userConfigurationDirectory, directoryError := os.UserConfigDir()
	if directoryError != nil {
		return searchPaths
	}
	return append(searchPaths, filepath.Join(userConfigurationDirectory, applicationNameConstant))
}

func defaultConfigurationValues() map[string]any {
	defaultValues := consolidate.DefaultConfigurationValues(consolidateConfigurationKeyConstant)
	defaultValues[logLevelConfigurationKeyConstant] = string(utils.LogLevelInfo)
	defaultValues[logFormatConfigurationKeyConstant] = string(utils.LogFormatStructured)
	return defaultValues
}
