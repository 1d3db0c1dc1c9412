package pathutils

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const tildeSymbolConstant = "~"

// HomeDirectoryProvider resolves the current user's home directory path.
type HomeDirectoryProvider func() (string, error)

// HomeExpander converts a leading "~" in configured roots to the user's home directory.
type HomeExpander struct {
	homeDirectoryProvider HomeDirectoryProvider
	resolveOnce           sync.Once
	homeDirectory         string
}

// NewHomeExpander constructs a HomeExpander using os.UserHomeDir.
func NewHomeExpander() *HomeExpander {
	return NewHomeExpanderWithProvider(nil)
}

// NewHomeExpanderWithProvider constructs a HomeExpander with a custom provider.
func NewHomeExpanderWithProvider(provider HomeDirectoryProvider) *HomeExpander {
	if provider == nil {
		provider = os.UserHomeDir
	}
	return &HomeExpander{homeDirectoryProvider: provider}
}

// Expand resolves "~", "~/..." and "~\..." prefixes. Other paths, including
// "~user" forms, are returned unchanged, as is any path when the home
// directory cannot be resolved.
func (expander *HomeExpander) Expand(candidatePath string) string {
	if expander == nil || !strings.HasPrefix(candidatePath, tildeSymbolConstant) {
		return candidatePath
	}

	remainder := strings.TrimPrefix(candidatePath, tildeSymbolConstant)
	if len(remainder) > 0 && remainder[0] != '/' && remainder[0] != os.PathSeparator {
		return candidatePath
	}

	homeDirectory := expander.resolveHomeDirectory()
	if len(homeDirectory) == 0 {
		return candidatePath
	}
	if len(remainder) == 0 {
		return homeDirectory
	}
	return filepath.Join(homeDirectory, remainder[1:])
}

func (expander *HomeExpander) resolveHomeDirectory() string {
	expander.resolveOnce.Do(func() {
		homeDirectory, lookupError := expander.homeDirectoryProvider()
		if lookupError == nil {
			expander.homeDirectory = homeDirectory
		}
	})
	return expander.homeDirectory
}
