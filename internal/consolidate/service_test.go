package consolidate_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/cratemerge/internal/consolidate"
	"github.com/temirov/cratemerge/internal/manifests/discovery"
	"github.com/temirov/cratemerge/internal/manifests/filesystem"
)

const (
	cratesDirectoryNameConstant      = "crates"
	legacyCrateDirectoryConstant     = "paws_app"
	modernCrateDirectoryConstant     = "paws_server"
	brokenCrateDirectoryConstant     = "paws_broken"
	manifestPermissionsConstant      = 0o644
	restrictedPermissionsConstant    = 0o600
	directoryPermissionsConstant     = 0o755
	updatingLineTemplateConstant     = "Updating %s\n"
	errorLinePrefixTemplateConstant  = "Error processing %s: "
	legacyManifestContentConstant    = "[package]\nname = \"paws_app\"\nversion = \"0.1.0\"\n\n[dependencies]\npaws_fs = \"1.0\"\nserde = \"1.0\"\n"
	devLegacyManifestContentConstant = "[package]\nname = \"paws_app\"\n\n[dev-dependencies]\npaws_test_kit = { path = \"../paws_test_kit\" }\n"
	modernManifestContentConstant    = "[package]\nname = \"paws_server\"\n\n[dependencies]\nserde = \"1.0\"\n"
	packageOnlyManifestContent       = "[package]\nname = \"paws_empty\"\nversion = \"0.1.0\"\n"
	brokenManifestContentConstant    = "[package\nname = \"paws_broken\"\n"
	targetManifestContentConstant    = "[package]\nname = \"paws_app\"\n\n[target.'cfg(windows)'.dependencies]\npaws_fs = \"1.0\"\n"
	workspaceManifestContentConstant = "[package]\nname = \"paws_app\"\n\n[dependencies]\npaws_fs = \"1.0\"\npaws_common = \"0.1\"\n\n[dev-dependencies]\npaws_snaps = \"1.0\"\n"
	manifestRewrittenLogMessage      = "Manifest rewritten"
	manifestFailedLogMessage         = "Manifest processing failed"
	targetTablesSkippedLogMessage    = "Target-specific dependency tables are not rewritten"
	manifestDryRunLogMessage         = "Manifest rewrite skipped by dry run"
	missingRootDirectoryConstant     = "missing-root"
)

type recordingFileSystem struct {
	filesystem.OSFileSystem
	writtenPaths []string
}

func (recorder *recordingFileSystem) WriteFile(path string, data []byte, permissions fs.FileMode) error {
	recorder.writtenPaths = append(recorder.writtenPaths, path)
	return recorder.OSFileSystem.WriteFile(path, data, permissions)
}

type serviceFixture struct {
	service    *consolidate.Service
	fileSystem *recordingFileSystem
	output     *bytes.Buffer
	logs       *observer.ObservedLogs
}

func newServiceFixture(testInstance *testing.T, dryRun bool) serviceFixture {
	testInstance.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	output := &bytes.Buffer{}
	fileSystem := &recordingFileSystem{}

	service, serviceError := consolidate.NewService(consolidate.ServiceDependencies{
		Logger:     zap.New(core),
		FileSystem: fileSystem,
		Discoverer: discovery.NewFilesystemManifestDiscoverer(discovery.CargoManifestFileName),
		Reporter:   consolidate.NewWriterReporter(output),
		Plan:       consolidate.DefaultConsolidationPlan(),
		DryRun:     dryRun,
	})
	require.NoError(testInstance, serviceError)

	return serviceFixture{service: service, fileSystem: fileSystem, output: output, logs: logs}
}

func writeManifest(testInstance *testing.T, rootDirectory string, crateDirectory string, content string) string {
	testInstance.Helper()

	crateDirectoryPath := filepath.Join(rootDirectory, crateDirectory)
	require.NoError(testInstance, os.MkdirAll(crateDirectoryPath, directoryPermissionsConstant))

	manifestPath := filepath.Join(crateDirectoryPath, discovery.CargoManifestFileName)
	require.NoError(testInstance, os.WriteFile(manifestPath, []byte(content), manifestPermissionsConstant))
	return manifestPath
}

func decodeManifest(testInstance *testing.T, manifestPath string) map[string]any {
	testInstance.Helper()

	content, readError := os.ReadFile(manifestPath)
	require.NoError(testInstance, readError)

	document := map[string]any{}
	require.NoError(testInstance, toml.Unmarshal(content, &document))
	return document
}

func TestServiceProcessManifestRewritesLegacyDependencies(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, false)
	manifestPath := writeManifest(testInstance, testInstance.TempDir(), legacyCrateDirectoryConstant, legacyManifestContentConstant)

	result := fixture.service.ProcessManifest(manifestPath)
	require.NoError(testInstance, result.Error)
	require.True(testInstance, result.Updated())
	require.True(testInstance, result.Written)
	require.Equal(testInstance, []string{consolidate.DependenciesTableName}, result.RewrittenTables)
	require.Equal(testInstance, []string{manifestPath}, fixture.fileSystem.writtenPaths)
	require.Equal(testInstance, fmt.Sprintf(updatingLineTemplateConstant, manifestPath), fixture.output.String())

	document := decodeManifest(testInstance, manifestPath)
	require.Equal(testInstance, map[string]any{
		serdePackageNameConstant:              serdeVersionConstant,
		consolidate.DefaultConsolidatedPackage: map[string]any{workspaceAttributeKey: true},
	}, document[consolidate.DependenciesTableName])
	require.Equal(testInstance, map[string]any{"name": "paws_app", "version": "0.1.0"}, document["package"])

	require.Equal(testInstance, 1, fixture.logs.FilterMessage(manifestRewrittenLogMessage).Len())
}

func TestServiceProcessManifestRewritesBothDependencyTables(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, false)
	manifestPath := writeManifest(testInstance, testInstance.TempDir(), legacyCrateDirectoryConstant, workspaceManifestContentConstant)

	result := fixture.service.ProcessManifest(manifestPath)
	require.NoError(testInstance, result.Error)
	require.Equal(testInstance, []string{consolidate.DependenciesTableName, consolidate.DevDependenciesTableName}, result.RewrittenTables)

	document := decodeManifest(testInstance, manifestPath)
	expectedTable := map[string]any{consolidate.DefaultConsolidatedPackage: map[string]any{workspaceAttributeKey: true}}
	require.Equal(testInstance, expectedTable, document[consolidate.DependenciesTableName])
	require.Equal(testInstance, expectedTable, document[consolidate.DevDependenciesTableName])

	secondResult := fixture.service.ProcessManifest(manifestPath)
	require.NoError(testInstance, secondResult.Error)
	require.False(testInstance, secondResult.Updated())
	require.Len(testInstance, fixture.fileSystem.writtenPaths, 1)
}

func TestServiceProcessManifestRewritesDevDependencies(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, false)
	manifestPath := writeManifest(testInstance, testInstance.TempDir(), legacyCrateDirectoryConstant, devLegacyManifestContentConstant)

	result := fixture.service.ProcessManifest(manifestPath)
	require.NoError(testInstance, result.Error)
	require.Equal(testInstance, []string{consolidate.DevDependenciesTableName}, result.RewrittenTables)

	document := decodeManifest(testInstance, manifestPath)
	require.NotContains(testInstance, document, consolidate.DependenciesTableName)
	require.Equal(testInstance, map[string]any{
		consolidate.DefaultConsolidatedPackage: map[string]any{workspaceAttributeKey: true},
	}, document[consolidate.DevDependenciesTableName])
}

func TestServiceProcessManifestLeavesUnaffectedManifestsUntouched(testInstance *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "third_party_dependencies_only", content: modernManifestContentConstant},
		{name: "no_dependency_tables", content: packageOnlyManifestContent},
		{name: "target_specific_dependencies_only", content: targetManifestContentConstant},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fixture := newServiceFixture(testInstance, false)
			manifestPath := writeManifest(testInstance, testInstance.TempDir(), modernCrateDirectoryConstant, testCase.content)

			result := fixture.service.ProcessManifest(manifestPath)
			require.NoError(testInstance, result.Error)
			require.False(testInstance, result.Updated())
			require.False(testInstance, result.Written)
			require.Empty(testInstance, fixture.fileSystem.writtenPaths)
			require.Empty(testInstance, fixture.output.String())

			content, readError := os.ReadFile(manifestPath)
			require.NoError(testInstance, readError)
			require.Equal(testInstance, testCase.content, string(content))
		})
	}
}

func TestServiceProcessManifestLogsSkippedTargetTables(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, false)
	manifestPath := writeManifest(testInstance, testInstance.TempDir(), legacyCrateDirectoryConstant, targetManifestContentConstant)

	result := fixture.service.ProcessManifest(manifestPath)
	require.NoError(testInstance, result.Error)
	require.Equal(testInstance, 1, fixture.logs.FilterMessage(targetTablesSkippedLogMessage).Len())
}

func TestServiceProcessManifestReportsParseFailures(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, false)
	manifestPath := writeManifest(testInstance, testInstance.TempDir(), brokenCrateDirectoryConstant, brokenManifestContentConstant)

	result := fixture.service.ProcessManifest(manifestPath)
	require.Error(testInstance, result.Error)
	require.True(testInstance, result.Failed())
	require.Contains(testInstance, result.Error.Error(), "unable to parse manifest at line")
	require.Empty(testInstance, fixture.fileSystem.writtenPaths)
	require.Contains(testInstance, fixture.output.String(), fmt.Sprintf(errorLinePrefixTemplateConstant, manifestPath))

	failureLogs := fixture.logs.FilterMessage(manifestFailedLogMessage).All()
	require.Len(testInstance, failureLogs, 1)
	require.Equal(testInstance, zapcore.WarnLevel, failureLogs[0].Level)
	require.Equal(testInstance, manifestPath, failureLogs[0].ContextMap()["manifest"])
}

func TestServiceProcessManifestReportsReadFailures(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, false)
	manifestPath := filepath.Join(testInstance.TempDir(), discovery.CargoManifestFileName)

	result := fixture.service.ProcessManifest(manifestPath)
	require.Error(testInstance, result.Error)
	require.True(testInstance, errors.Is(result.Error, fs.ErrNotExist))
	require.Contains(testInstance, fixture.output.String(), fmt.Sprintf(errorLinePrefixTemplateConstant, manifestPath))
}

func TestServiceProcessManifestKeepsPermissions(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, false)
	manifestPath := writeManifest(testInstance, testInstance.TempDir(), legacyCrateDirectoryConstant, legacyManifestContentConstant)
	require.NoError(testInstance, os.Chmod(manifestPath, restrictedPermissionsConstant))

	result := fixture.service.ProcessManifest(manifestPath)
	require.NoError(testInstance, result.Error)

	fileInfo, statError := os.Stat(manifestPath)
	require.NoError(testInstance, statError)
	require.Equal(testInstance, fs.FileMode(restrictedPermissionsConstant), fileInfo.Mode().Perm())
}

func TestServiceProcessManifestDryRun(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, true)
	manifestPath := writeManifest(testInstance, testInstance.TempDir(), legacyCrateDirectoryConstant, legacyManifestContentConstant)

	result := fixture.service.ProcessManifest(manifestPath)
	require.NoError(testInstance, result.Error)
	require.True(testInstance, result.Updated())
	require.False(testInstance, result.Written)
	require.Empty(testInstance, fixture.fileSystem.writtenPaths)
	require.Equal(testInstance, fmt.Sprintf(updatingLineTemplateConstant, manifestPath), fixture.output.String())
	require.Equal(testInstance, 1, fixture.logs.FilterMessage(manifestDryRunLogMessage).Len())

	content, readError := os.ReadFile(manifestPath)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, legacyManifestContentConstant, string(content))
}

func TestServiceRunRewritesOnlyAffectedManifests(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, false)
	rootDirectory := filepath.Join(testInstance.TempDir(), cratesDirectoryNameConstant)
	legacyManifestPath := writeManifest(testInstance, rootDirectory, legacyCrateDirectoryConstant, legacyManifestContentConstant)
	modernManifestPath := writeManifest(testInstance, rootDirectory, modernCrateDirectoryConstant, modernManifestContentConstant)

	summary, runError := fixture.service.Run(context.Background(), rootDirectory)
	require.NoError(testInstance, runError)
	require.Len(testInstance, summary.Results, 2)
	require.Equal(testInstance, 1, summary.UpdatedCount())
	require.Equal(testInstance, 0, summary.FailedCount())
	require.Equal(testInstance, []string{legacyManifestPath}, fixture.fileSystem.writtenPaths)
	require.Equal(testInstance, fmt.Sprintf(updatingLineTemplateConstant, legacyManifestPath), fixture.output.String())

	modernContent, readError := os.ReadFile(modernManifestPath)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, modernManifestContentConstant, string(modernContent))
}

func TestServiceRunIsolatesManifestFailures(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, false)
	rootDirectory := filepath.Join(testInstance.TempDir(), cratesDirectoryNameConstant)
	legacyManifestPath := writeManifest(testInstance, rootDirectory, legacyCrateDirectoryConstant, legacyManifestContentConstant)
	brokenManifestPath := writeManifest(testInstance, rootDirectory, brokenCrateDirectoryConstant, brokenManifestContentConstant)

	summary, runError := fixture.service.Run(context.Background(), rootDirectory)
	require.NoError(testInstance, runError)
	require.Len(testInstance, summary.Results, 2)
	require.Equal(testInstance, 1, summary.UpdatedCount())
	require.Equal(testInstance, 1, summary.FailedCount())
	require.Equal(testInstance, []string{legacyManifestPath}, fixture.fileSystem.writtenPaths)

	output := fixture.output.String()
	require.Contains(testInstance, output, fmt.Sprintf(updatingLineTemplateConstant, legacyManifestPath))
	require.Contains(testInstance, output, fmt.Sprintf(errorLinePrefixTemplateConstant, brokenManifestPath))
}

func TestServiceRunReportsMissingRoot(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, false)
	missingRoot := filepath.Join(testInstance.TempDir(), missingRootDirectoryConstant)

	summary, runError := fixture.service.Run(context.Background(), missingRoot)
	require.Error(testInstance, runError)
	require.True(testInstance, errors.Is(runError, fs.ErrNotExist))
	require.Empty(testInstance, summary.Results)
}

func TestServiceRunRequiresRoots(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, false)

	_, runError := fixture.service.Run(context.Background())
	var inputError consolidate.InvalidInputError
	require.True(testInstance, errors.As(runError, &inputError))
}

func TestServiceRunStopsWhenContextCancelled(testInstance *testing.T) {
	fixture := newServiceFixture(testInstance, false)
	rootDirectory := filepath.Join(testInstance.TempDir(), cratesDirectoryNameConstant)
	writeManifest(testInstance, rootDirectory, legacyCrateDirectoryConstant, legacyManifestContentConstant)

	cancelledContext, cancel := context.WithCancel(context.Background())
	cancel()

	summary, runError := fixture.service.Run(cancelledContext, rootDirectory)
	require.ErrorIs(testInstance, runError, context.Canceled)
	require.Empty(testInstance, summary.Results)
	require.Empty(testInstance, fixture.fileSystem.writtenPaths)
}

func TestNewServiceRequiresPlan(testInstance *testing.T) {
	service, serviceError := consolidate.NewService(consolidate.ServiceDependencies{})
	require.Error(testInstance, serviceError)
	require.Nil(testInstance, service)
}
