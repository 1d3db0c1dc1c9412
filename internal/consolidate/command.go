package consolidate

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/cratemerge/internal/manifests/discovery"
	"github.com/temirov/cratemerge/internal/manifests/filesystem"
	"github.com/temirov/cratemerge/internal/utils"
	pathutils "github.com/temirov/cratemerge/internal/utils/path"
)

const (
	commandUseConstant                     = "consolidate [root...]"
	commandShortDescriptionConstant        = "Replace merged crate dependencies with the consolidated crate"
	commandLongDescriptionConstant         = "consolidate walks each workspace root, finds every Cargo.toml, and replaces dependencies on merged crates with a single workspace dependency on the consolidated crate. Manifests without merged crates are never rewritten."
	dryRunFlagNameConstant                 = "dry-run"
	dryRunFlagUsageConstant                = "Report manifests that would be updated without writing them"
	consolidationPlanErrorTemplateConstant = "invalid consolidation plan: %w"
	consolidationFailedTemplateConstant    = "dependency consolidation failed: %w"
	consolidationCompletedMessageConstant  = "Dependency consolidation completed"
	logFieldRootsConstant                  = "roots"
	logFieldManifestsConstant              = "manifests"
	logFieldUpdatedConstant                = "updated"
	logFieldFailedConstant                 = "failed"
	logFieldConfigurationFileConstant      = "config_file"
	logFieldConsolidatedPackageConstant    = "consolidated_package"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

type commandOptions struct {
	roots         []string
	configuration CommandConfiguration
	plan          ConsolidationPlan
}

// CommandBuilder assembles the consolidate Cobra command.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider func() CommandConfiguration
	ManifestDiscoverer    ManifestDiscoverer
	FileSystem            filesystem.FileSystem
	Output                io.Writer
	// CommandUse overrides the command usage line, for when the command serves as the application root.
	CommandUse string
}

// Build constructs the consolidate command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	commandUse := strings.TrimSpace(builder.CommandUse)
	if len(commandUse) == 0 {
		commandUse = commandUseConstant
	}

	command := &cobra.Command{
		Use:           commandUse,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE:          builder.run,
	}

	command.Flags().Bool(dryRunFlagNameConstant, false, dryRunFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	options, optionsError := builder.parseOptions(command, arguments)
	if optionsError != nil {
		return optionsError
	}

	logger := builder.resolveLogger()

	service, serviceError := NewService(ServiceDependencies{
		Logger:     logger,
		FileSystem: builder.FileSystem,
		Discoverer: builder.resolveManifestDiscoverer(options.configuration.ManifestName),
		Reporter:   NewWriterReporter(utils.NewFlushingWriter(builder.resolveOutput(command))),
		Plan:       options.plan,
		DryRun:     options.configuration.DryRun,
	})
	if serviceError != nil {
		return serviceError
	}

	summary, runError := service.Run(command.Context(), options.roots...)
	if runError != nil {
		return fmt.Errorf(consolidationFailedTemplateConstant, runError)
	}

	configurationFilePath, _ := utils.NewCommandContextAccessor().ConfigurationFilePath(command.Context())
	logger.Info(
		consolidationCompletedMessageConstant,
		zap.Strings(logFieldRootsConstant, options.roots),
		zap.String(logFieldConsolidatedPackageConstant, options.plan.ConsolidatedPackage()),
		zap.Int(logFieldManifestsConstant, len(summary.Results)),
		zap.Int(logFieldUpdatedConstant, summary.UpdatedCount()),
		zap.Int(logFieldFailedConstant, summary.FailedCount()),
		zap.Bool(dryRunFieldConstant, options.configuration.DryRun),
		zap.String(logFieldConfigurationFileConstant, configurationFilePath),
	)

	return nil
}

func (builder *CommandBuilder) parseOptions(command *cobra.Command, arguments []string) (commandOptions, error) {
	configuration := builder.resolveConfiguration()

	if command.Flags().Changed(dryRunFlagNameConstant) {
		dryRunValue, _ := command.Flags().GetBool(dryRunFlagNameConstant)
		configuration.DryRun = dryRunValue
	}

	roots := configuration.Roots
	if argumentRoots := pathutils.NewRootPathSanitizer().Sanitize(arguments); len(argumentRoots) > 0 {
		roots = argumentRoots
	}

	plan, planError := configuration.Plan()
	if planError != nil {
		return commandOptions{}, fmt.Errorf(consolidationPlanErrorTemplateConstant, planError)
	}

	return commandOptions{
		roots:         roots,
		configuration: configuration,
		plan:          plan,
	}, nil
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	var logger *zap.Logger
	if builder.LoggerProvider != nil {
		logger = builder.LoggerProvider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

func (builder *CommandBuilder) resolveManifestDiscoverer(manifestName string) ManifestDiscoverer {
	if builder.ManifestDiscoverer != nil {
		return builder.ManifestDiscoverer
	}
	return discovery.NewFilesystemManifestDiscoverer(manifestName)
}

func (builder *CommandBuilder) resolveOutput(command *cobra.Command) io.Writer {
	if builder.Output != nil {
		return builder.Output
	}
	return command.OutOrStdout()
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration().Sanitize()
	}
	return builder.ConfigurationProvider().Sanitize()
}
