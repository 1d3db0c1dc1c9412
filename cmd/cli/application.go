package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/temirov/cratemerge/internal/consolidate"
	"github.com/temirov/cratemerge/internal/utils"
)

const (
	applicationNameConstant           = "cratemerge"
	applicationUseConstant            = applicationNameConstant + " [root...]"
	configurationFlagNameConstant     = "config"
	configurationFlagUsageConstant    = "Path to a configuration file; config.yaml is searched in the working and user configuration directories otherwise."
	logLevelFlagNameConstant          = "log-level"
	logLevelFlagUsageConstant         = "Diagnostic log level (debug, info, warn, error)."
	logFormatFlagNameConstant         = "log-format"
	logFormatFlagUsageConstant        = "Diagnostic log encoding (structured or console)."
	settingsResolvedMessageConstant   = "Settings resolved"
	logLevelLogFieldConstant          = "log_level"
	logFormatLogFieldConstant         = "log_format"
	configurationFileLogFieldConstant = "config_file"
	loadConfigurationErrorTemplate    = "unable to load configuration: %w"
	createLoggerErrorTemplate         = "unable to create logger: %w"
	flushLoggerErrorTemplate          = "unable to flush logger: %w"
)

// Errors that Sync reports for terminals and pipes.
var ignoredLoggerSyncErrors = []error{syscall.ENOTSUP, syscall.EINVAL, syscall.ENOTTY}

type persistentFlagValues struct {
	configurationFilePath string
	logLevel              string
	logFormat             string
}

// Application owns the root command together with the configuration and logger it initializes.
type Application struct {
	rootCommand         *cobra.Command
	configurationLoader *utils.ConfigurationLoader
	loggerFactory       *utils.LoggerFactory
	logger              *zap.Logger
	configuration       ApplicationConfiguration
	flagValues          persistentFlagValues
}

// NewApplication assembles a CLI application writing notices to standard output.
func NewApplication() *Application {
	return NewApplicationWithOutput(nil)
}

// NewApplicationWithOutput assembles a CLI application writing per-manifest notices to output.
// A nil output falls back to the command's standard output.
func NewApplicationWithOutput(output io.Writer) *Application {
	application := &Application{
		configurationLoader: newConfigurationLoader(),
		loggerFactory:       utils.NewLoggerFactory(),
		logger:              zap.NewNop(),
	}

	builder := consolidate.CommandBuilder{
		LoggerProvider: application.currentLogger,
		ConfigurationProvider: func() consolidate.CommandConfiguration {
			return application.configuration.Tools.Consolidate
		},
		Output:     output,
		CommandUse: applicationUseConstant,
	}

	rootCommand, _ := builder.Build()
	rootCommand.PersistentPreRunE = application.prepare
	rootCommand.SetContext(context.Background())

	persistentFlags := rootCommand.PersistentFlags()
	persistentFlags.StringVar(&application.flagValues.configurationFilePath, configurationFlagNameConstant, "", configurationFlagUsageConstant)
	persistentFlags.StringVar(&application.flagValues.logLevel, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	persistentFlags.StringVar(&application.flagValues.logFormat, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	application.rootCommand = rootCommand
	return application
}

// Execute builds a fresh application instance and runs it with os.Args.
func Execute() error {
	return NewApplication().Execute()
}

// Execute runs the root command and flushes the logger afterwards.
func (application *Application) Execute() error {
	executionError := application.rootCommand.Execute()
	syncError := syncLogger(application.logger)
	if executionError != nil {
		return executionError
	}
	if syncError != nil {
		return fmt.Errorf(flushLoggerErrorTemplate, syncError)
	}
	return nil
}

// ExecuteWithArguments runs the root command with the provided arguments instead of os.Args.
func (application *Application) ExecuteWithArguments(arguments []string) error {
	application.rootCommand.SetArgs(arguments)
	return application.Execute()
}

func (application *Application) currentLogger() *zap.Logger {
	return application.logger
}

// prepare loads configuration, applies flag overrides, and swaps in the configured logger.
func (application *Application) prepare(command *cobra.Command, _ []string) error {
	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(
		application.flagValues.configurationFilePath,
		defaultConfigurationValues(),
		&application.configuration,
	)
	if loadError != nil {
		return fmt.Errorf(loadConfigurationErrorTemplate, loadError)
	}

	commonConfiguration := &application.configuration.Common
	if flagChanged(command, logLevelFlagNameConstant) {
		commonConfiguration.LogLevel = application.flagValues.logLevel
	}
	if flagChanged(command, logFormatFlagNameConstant) {
		commonConfiguration.LogFormat = application.flagValues.logFormat
	}

	logger, loggerError := application.loggerFactory.CreateLogger(utils.LogLevel(commonConfiguration.LogLevel), utils.LogFormat(commonConfiguration.LogFormat))
	if loggerError != nil {
		return fmt.Errorf(createLoggerErrorTemplate, loggerError)
	}
	application.logger = logger

	logger.Debug(
		settingsResolvedMessageConstant,
		zap.String(logLevelLogFieldConstant, commonConfiguration.LogLevel),
		zap.String(logFormatLogFieldConstant, commonConfiguration.LogFormat),
		zap.String(configurationFileLogFieldConstant, loadedConfiguration.ConfigFileUsed),
	)

	command.SetContext(utils.NewCommandContextAccessor().WithConfigurationFilePath(command.Context(), loadedConfiguration.ConfigFileUsed))
	return nil
}

func flagChanged(command *cobra.Command, flagName string) bool {
	flagSets := []*pflag.FlagSet{command.PersistentFlags(), command.InheritedFlags()}
	if rootCommand := command.Root(); rootCommand != nil {
		flagSets = append(flagSets, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSets {
		if flagSet != nil && flagSet.Changed(flagName) {
			return true
		}
	}
	return false
}

func syncLogger(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}

	syncError := logger.Sync()
	if syncError == nil {
		return nil
	}
	for _, ignoredError := range ignoredLoggerSyncErrors {
		if errors.Is(syncError, ignoredError) {
			return nil
		}
	}
	return syncError
}
