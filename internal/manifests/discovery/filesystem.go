package discovery

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

const (
	// CargoManifestFileName is the canonical Cargo package manifest name.
	CargoManifestFileName = "Cargo.toml"

	manifestRootWalkErrorTemplateConstant = "unable to enumerate manifests under %s: %w"
)

// FilesystemManifestDiscoverer locates package manifests on disk.
type FilesystemManifestDiscoverer struct {
	manifestFileName string
}

// NewFilesystemManifestDiscoverer constructs a manifest discoverer backed by filepath.WalkDir.
// An empty manifest file name falls back to CargoManifestFileName.
func NewFilesystemManifestDiscoverer(manifestFileName string) *FilesystemManifestDiscoverer {
	trimmedFileName := strings.TrimSpace(manifestFileName)
	if len(trimmedFileName) == 0 {
		trimmedFileName = CargoManifestFileName
	}
	return &FilesystemManifestDiscoverer{manifestFileName: trimmedFileName}
}

// ManifestFileName reports the file name the discoverer matches.
func (discoverer *FilesystemManifestDiscoverer) ManifestFileName() string {
	return discoverer.manifestFileName
}

// DiscoverManifests walks root and returns every regular file whose name exactly
// matches the manifest file name, in lexical walk order. Enumeration errors,
// including a missing root, are returned to the caller.
func (discoverer *FilesystemManifestDiscoverer) DiscoverManifests(root string) ([]string, error) {
	var manifests []string

	walkError := filepath.WalkDir(root, func(path string, directoryEntry fs.DirEntry, walkError error) error {
		if walkError != nil {
			return walkError
		}

		if directoryEntry.IsDir() {
			return nil
		}

		if directoryEntry.Name() != discoverer.manifestFileName {
			return nil
		}

		manifests = append(manifests, path)
		return nil
	})
	if walkError != nil {
		return nil, fmt.Errorf(manifestRootWalkErrorTemplateConstant, root, walkError)
	}

	return manifests, nil
}
