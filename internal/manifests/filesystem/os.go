package filesystem

import (
	"io/fs"
	"os"
)

// FileSystem exposes the file primitives needed to rewrite manifests in place.
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, permissions fs.FileMode) error
}

// OSFileSystem implements FileSystem using the operating system primitives.
type OSFileSystem struct{}

// Stat retrieves file metadata.
func (OSFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// ReadFile reads file contents.
func (OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes data to a file with the supplied permissions.
func (OSFileSystem) WriteFile(path string, data []byte, permissions fs.FileMode) error {
	return os.WriteFile(path, data, permissions)
}
