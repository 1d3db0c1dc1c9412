package pathutils

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// RootPathSanitizer normalizes workspace root inputs so every manifest is visited once.
type RootPathSanitizer struct {
	homeExpander *HomeExpander
}

// NewRootPathSanitizer constructs a RootPathSanitizer using the operating system home lookup.
func NewRootPathSanitizer() *RootPathSanitizer {
	return NewRootPathSanitizerWithExpander(nil)
}

// NewRootPathSanitizerWithExpander constructs a RootPathSanitizer with the provided expander.
func NewRootPathSanitizerWithExpander(homeExpander *HomeExpander) *RootPathSanitizer {
	if homeExpander == nil {
		homeExpander = NewHomeExpander()
	}
	return &RootPathSanitizer{homeExpander: homeExpander}
}

// Sanitize trims whitespace, expands the user's home directory, cleans each path,
// and drops roots nested inside (or equal to) an earlier kept root. The relative
// order of kept roots matches the input. It returns nil when nothing remains.
func (sanitizer *RootPathSanitizer) Sanitize(candidateRoots []string) []string {
	expander := NewHomeExpander()
	if sanitizer != nil && sanitizer.homeExpander != nil {
		expander = sanitizer.homeExpander
	}

	cleanedRoots := make([]string, 0, len(candidateRoots))
	for _, candidateRoot := range candidateRoots {
		trimmedRoot := strings.TrimSpace(candidateRoot)
		if len(trimmedRoot) == 0 {
			continue
		}
		cleanedRoots = append(cleanedRoots, filepath.Clean(expander.Expand(trimmedRoot)))
	}

	if len(cleanedRoots) == 0 {
		return nil
	}

	return pruneNestedRoots(cleanedRoots)
}

type rootCandidate struct {
	originalIndex int
	value         string
	comparison    string
}

func pruneNestedRoots(roots []string) []string {
	candidates := make([]rootCandidate, 0, len(roots))
	for index, root := range roots {
		candidates = append(candidates, rootCandidate{
			originalIndex: index,
			value:         root,
			comparison:    comparisonPath(canonicalizePath(root)),
		})
	}

	// Shorter paths first so parents are kept before their descendants.
	sort.SliceStable(candidates, func(first int, second int) bool {
		return len(candidates[first].comparison) < len(candidates[second].comparison)
	})

	kept := make([]rootCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		nested := false
		for _, existing := range kept {
			if isNestedPath(existing.comparison, candidate.comparison) {
				nested = true
				break
			}
		}
		if !nested {
			kept = append(kept, candidate)
		}
	}

	sort.SliceStable(kept, func(first int, second int) bool {
		return kept[first].originalIndex < kept[second].originalIndex
	})

	pruned := make([]string, 0, len(kept))
	for _, candidate := range kept {
		pruned = append(pruned, candidate.value)
	}
	return pruned
}

func canonicalizePath(path string) string {
	absolutePath, absoluteError := filepath.Abs(path)
	if absoluteError != nil {
		return filepath.Clean(path)
	}
	return absolutePath
}

func comparisonPath(path string) string {
	if runtime.GOOS == "windows" {
		return strings.ToLower(path)
	}
	return path
}

func isNestedPath(parent string, candidate string) bool {
	if candidate == parent {
		return true
	}
	if len(candidate) <= len(parent) || !strings.HasPrefix(candidate, parent) {
		return false
	}
	if parent[len(parent)-1] == os.PathSeparator {
		return true
	}
	return candidate[len(parent)] == os.PathSeparator
}
