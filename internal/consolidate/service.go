package consolidate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/temirov/cratemerge/internal/manifests/discovery"
	"github.com/temirov/cratemerge/internal/manifests/filesystem"
)

const (
	manifestPathFieldNameConstant           = "manifest"
	rootFieldNameConstant                   = "root"
	rewrittenTablesFieldConstant            = "rewritten_tables"
	manifestCountFieldConstant              = "manifest_count"
	dryRunFieldConstant                     = "dry_run"
	manifestRewrittenMessageConstant        = "Manifest rewritten"
	manifestDryRunMessageConstant           = "Manifest rewrite skipped by dry run"
	manifestUnchangedMessageConstant        = "Manifest references no legacy packages"
	manifestFailedMessageConstant           = "Manifest processing failed"
	targetTablesSkippedMessageConstant      = "Target-specific dependency tables are not rewritten"
	manifestsDiscoveredMessageConstant      = "Manifests discovered"
	consolidationPlanMissingMessageConstant = "consolidation plan not configured"
	readManifestErrorTemplateConstant       = "unable to read manifest: %w"
	parseManifestErrorTemplateConstant      = "unable to parse manifest: %w"
	parseManifestPositionTemplateConstant   = "unable to parse manifest at line %d column %d: %w"
	encodeManifestErrorTemplateConstant     = "unable to encode manifest: %w"
	statManifestErrorTemplateConstant       = "unable to stat manifest: %w"
	writeManifestErrorTemplateConstant      = "unable to write manifest: %w"
	defaultManifestPermissionsConstant      = fs.FileMode(0o644)
	manifestFilePermissionsMaskConstant     = fs.ModePerm
	manifestDiscoveryErrorTemplateConstant  = "manifest discovery failed: %w"
	manifestDiscoveryFailedMessageConstant  = "Manifest discovery failed"
	consolidationInterruptedMessageConstant = "Consolidation interrupted"
	consolidationRootsFieldNameConstant     = "roots"
	consolidationRootsRequiredValueConstant = "required"
)

// DefaultRootDirectory is the workspace directory scanned when no root is configured.
const DefaultRootDirectory = "crates"

var errConsolidationPlanMissing = errors.New(consolidationPlanMissingMessageConstant)

// InvalidInputError describes consolidation option validation failures.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf("%s: %s", inputError.FieldName, inputError.Message)
}

// ManifestDiscoverer locates manifests beneath a root directory.
type ManifestDiscoverer interface {
	DiscoverManifests(root string) ([]string, error)
}

// ServiceDependencies describes collaborators for consolidation.
type ServiceDependencies struct {
	Logger     *zap.Logger
	FileSystem filesystem.FileSystem
	Discoverer ManifestDiscoverer
	Reporter   Reporter
	Plan       ConsolidationPlan
	DryRun     bool
}

// ManifestResult captures the outcome of processing one manifest.
type ManifestResult struct {
	ManifestPath    string
	RewrittenTables []string
	Written         bool
	Error           error
}

// Updated reports whether any dependency table of the manifest was rewritten.
func (result ManifestResult) Updated() bool {
	return len(result.RewrittenTables) > 0
}

// Failed reports whether the manifest could not be processed.
func (result ManifestResult) Failed() bool {
	return result.Error != nil
}

// RunSummary collects manifest results in processing order.
type RunSummary struct {
	Results []ManifestResult
}

// UpdatedCount returns the number of manifests whose dependencies were rewritten.
func (summary RunSummary) UpdatedCount() int {
	count := 0
	for _, result := range summary.Results {
		if result.Updated() && !result.Failed() {
			count++
		}
	}
	return count
}

// FailedCount returns the number of manifests that could not be processed.
func (summary RunSummary) FailedCount() int {
	count := 0
	for _, result := range summary.Results {
		if result.Failed() {
			count++
		}
	}
	return count
}

// Service rewrites legacy dependencies across manifests.
type Service struct {
	logger     *zap.Logger
	fileSystem filesystem.FileSystem
	discoverer ManifestDiscoverer
	reporter   Reporter
	plan       ConsolidationPlan
	dryRun     bool
}

// NewService constructs a Service, filling unset collaborators with their defaults.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Plan.IsZero() {
		return nil, errConsolidationPlanMissing
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fileSystem := dependencies.FileSystem
	if fileSystem == nil {
		fileSystem = filesystem.OSFileSystem{}
	}

	discoverer := dependencies.Discoverer
	if discoverer == nil {
		discoverer = discovery.NewFilesystemManifestDiscoverer(discovery.CargoManifestFileName)
	}

	reporter := dependencies.Reporter
	if reporter == nil {
		reporter = NewWriterReporter(nil)
	}

	return &Service{
		logger:     logger,
		fileSystem: fileSystem,
		discoverer: discoverer,
		reporter:   reporter,
		plan:       dependencies.Plan,
		dryRun:     dependencies.DryRun,
	}, nil
}

// Run processes every manifest found under the provided roots. Discovery errors
// stop the run; per-manifest failures are recorded in the summary only.
func (service *Service) Run(executionContext context.Context, roots ...string) (RunSummary, error) {
	if len(roots) == 0 {
		return RunSummary{}, InvalidInputError{FieldName: consolidationRootsFieldNameConstant, Message: consolidationRootsRequiredValueConstant}
	}

	summary := RunSummary{}
	for _, root := range roots {
		manifestPaths, discoveryError := service.discoverer.DiscoverManifests(root)
		if discoveryError != nil {
			service.logger.Error(
				manifestDiscoveryFailedMessageConstant,
				zap.String(rootFieldNameConstant, root),
				zap.Error(discoveryError),
			)
			return summary, fmt.Errorf(manifestDiscoveryErrorTemplateConstant, discoveryError)
		}

		service.logger.Debug(
			manifestsDiscoveredMessageConstant,
			zap.String(rootFieldNameConstant, root),
			zap.Int(manifestCountFieldConstant, len(manifestPaths)),
		)

		for _, manifestPath := range manifestPaths {
			if contextError := contextErr(executionContext); contextError != nil {
				service.logger.Warn(consolidationInterruptedMessageConstant, zap.Error(contextError))
				return summary, contextError
			}
			summary.Results = append(summary.Results, service.ProcessManifest(manifestPath))
		}
	}

	return summary, nil
}

// ProcessManifest rewrites the legacy dependencies of a single manifest. Failures
// are reported, logged, and returned inside the result.
func (service *Service) ProcessManifest(manifestPath string) ManifestResult {
	result := ManifestResult{ManifestPath: manifestPath}

	rewrittenTables, written, processingError := service.rewriteManifest(manifestPath)
	if processingError != nil {
		result.Error = processingError
		service.reporter.ManifestFailed(manifestPath, processingError)
		service.logger.Warn(
			manifestFailedMessageConstant,
			zap.String(manifestPathFieldNameConstant, manifestPath),
			zap.Error(processingError),
		)
		return result
	}

	result.RewrittenTables = rewrittenTables
	result.Written = written
	return result
}

func (service *Service) rewriteManifest(manifestPath string) ([]string, bool, error) {
	manifestContent, readError := service.fileSystem.ReadFile(manifestPath)
	if readError != nil {
		return nil, false, fmt.Errorf(readManifestErrorTemplateConstant, readError)
	}

	document := ManifestDocument{}
	if decodeError := toml.Unmarshal(manifestContent, &document); decodeError != nil {
		return nil, false, describeDecodeError(decodeError)
	}

	rewrittenTables := service.plan.RewriteManifestDocument(document)

	if hasTargetSpecificTables(document) {
		service.logger.Debug(targetTablesSkippedMessageConstant, zap.String(manifestPathFieldNameConstant, manifestPath))
	}

	if len(rewrittenTables) == 0 {
		service.logger.Debug(manifestUnchangedMessageConstant, zap.String(manifestPathFieldNameConstant, manifestPath))
		return nil, false, nil
	}

	var encodedManifest bytes.Buffer
	encoder := toml.NewEncoder(&encodedManifest)
	encoder.SetIndentTables(false)
	if encodeError := encoder.Encode(document); encodeError != nil {
		return nil, false, fmt.Errorf(encodeManifestErrorTemplateConstant, encodeError)
	}

	service.reporter.ManifestUpdating(manifestPath)

	if service.dryRun {
		service.logger.Info(
			manifestDryRunMessageConstant,
			zap.String(manifestPathFieldNameConstant, manifestPath),
			zap.Strings(rewrittenTablesFieldConstant, rewrittenTables),
			zap.Bool(dryRunFieldConstant, true),
		)
		return rewrittenTables, false, nil
	}

	permissions, permissionsError := service.manifestPermissions(manifestPath)
	if permissionsError != nil {
		return nil, false, permissionsError
	}

	if writeError := service.fileSystem.WriteFile(manifestPath, encodedManifest.Bytes(), permissions); writeError != nil {
		return nil, false, fmt.Errorf(writeManifestErrorTemplateConstant, writeError)
	}

	service.logger.Info(
		manifestRewrittenMessageConstant,
		zap.String(manifestPathFieldNameConstant, filepath.Clean(manifestPath)),
		zap.Strings(rewrittenTablesFieldConstant, rewrittenTables),
	)

	return rewrittenTables, true, nil
}

func (service *Service) manifestPermissions(manifestPath string) (fs.FileMode, error) {
	fileInfo, statError := service.fileSystem.Stat(manifestPath)
	if statError != nil {
		return 0, fmt.Errorf(statManifestErrorTemplateConstant, statError)
	}
	permissions := fileInfo.Mode() & manifestFilePermissionsMaskConstant
	if permissions == 0 {
		return defaultManifestPermissionsConstant, nil
	}
	return permissions, nil
}

func describeDecodeError(decodeError error) error {
	var positionedError *toml.DecodeError
	if errors.As(decodeError, &positionedError) {
		row, column := positionedError.Position()
		return fmt.Errorf(parseManifestPositionTemplateConstant, row, column, decodeError)
	}
	return fmt.Errorf(parseManifestErrorTemplateConstant, decodeError)
}

func contextErr(executionContext context.Context) error {
	if executionContext == nil {
		return nil
	}
	return executionContext.Err()
}
