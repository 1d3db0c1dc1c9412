package consolidate

import (
	"strings"

	"github.com/temirov/cratemerge/internal/manifests/discovery"
	pathutils "github.com/temirov/cratemerge/internal/utils/path"
)

const (
	rootsConfigurationKeyConstant               = "roots"
	manifestNameConfigurationKeyConstant        = "manifest_name"
	consolidatedPackageConfigurationKeyConstant = "consolidated_package"
	legacyPackagesConfigurationKeyConstant      = "legacy_packages"
	dryRunConfigurationKeyConstant              = "dry_run"
	configurationKeySeparatorConstant           = "."
)

var consolidateConfigurationRootSanitizer = pathutils.NewRootPathSanitizer()

// CommandConfiguration captures persisted configuration for dependency consolidation.
type CommandConfiguration struct {
	Roots               []string `mapstructure:"roots"`
	ManifestName        string   `mapstructure:"manifest_name"`
	ConsolidatedPackage string   `mapstructure:"consolidated_package"`
	LegacyPackages      []string `mapstructure:"legacy_packages"`
	DryRun              bool     `mapstructure:"dry_run"`
}

// DefaultCommandConfiguration returns the compiled-in consolidation settings.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		Roots:               []string{DefaultRootDirectory},
		ManifestName:        discovery.CargoManifestFileName,
		ConsolidatedPackage: DefaultConsolidatedPackage,
		LegacyPackages:      DefaultLegacyPackages(),
		DryRun:              false,
	}
}

// DefaultConfigurationValues returns the defaults keyed beneath prefix for Viper.
func DefaultConfigurationValues(prefix string) map[string]any {
	defaults := DefaultCommandConfiguration()
	return map[string]any{
		joinConfigurationKey(prefix, rootsConfigurationKeyConstant):               defaults.Roots,
		joinConfigurationKey(prefix, manifestNameConfigurationKeyConstant):        defaults.ManifestName,
		joinConfigurationKey(prefix, consolidatedPackageConfigurationKeyConstant): defaults.ConsolidatedPackage,
		joinConfigurationKey(prefix, legacyPackagesConfigurationKeyConstant):      defaults.LegacyPackages,
		joinConfigurationKey(prefix, dryRunConfigurationKeyConstant):              defaults.DryRun,
	}
}

// Sanitize trims configured values, fills blanks with defaults, and prunes nested roots.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	defaults := DefaultCommandConfiguration()
	sanitized := configuration

	sanitized.Roots = consolidateConfigurationRootSanitizer.Sanitize(configuration.Roots)
	if len(sanitized.Roots) == 0 {
		sanitized.Roots = defaults.Roots
	}

	sanitized.ManifestName = strings.TrimSpace(configuration.ManifestName)
	if len(sanitized.ManifestName) == 0 {
		sanitized.ManifestName = defaults.ManifestName
	}

	sanitized.ConsolidatedPackage = strings.TrimSpace(configuration.ConsolidatedPackage)
	if len(sanitized.ConsolidatedPackage) == 0 {
		sanitized.ConsolidatedPackage = defaults.ConsolidatedPackage
	}

	if len(configuration.LegacyPackages) == 0 {
		sanitized.LegacyPackages = defaults.LegacyPackages
	} else {
		sanitized.LegacyPackages = append([]string(nil), configuration.LegacyPackages...)
	}

	return sanitized
}

// Plan builds the consolidation plan described by the configuration.
func (configuration CommandConfiguration) Plan() (ConsolidationPlan, error) {
	return NewConsolidationPlan(configuration.LegacyPackages, configuration.ConsolidatedPackage)
}

func joinConfigurationKey(prefix string, key string) string {
	trimmedPrefix := strings.Trim(strings.TrimSpace(prefix), configurationKeySeparatorConstant)
	if len(trimmedPrefix) == 0 {
		return key
	}
	return trimmedPrefix + configurationKeySeparatorConstant + key
}
