package metadata

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

const (
	gitMetadataDirectoryNameConstant = ".git"
	buildDescriptorSuffixConstant    = ".spec"
)

// DescriptorScanner locates metadata files on disk.
type DescriptorScanner struct{}

// NewDescriptorScanner constructs a scanner backed by filepath.WalkDir.
func NewDescriptorScanner() *DescriptorScanner {
	return &DescriptorScanner{}
}

// FindBuildDescriptors walks rootDirectory and returns every build descriptor
// file, skipping git metadata directories and the provided subtrees. Walk
// failures, including a missing root, yield an empty result because every
// consumer is a best-effort fixer.
func (scanner *DescriptorScanner) FindBuildDescriptors(rootDirectory string, excludedSubtrees ...string) ([]string, error) {
	return scanner.findFiles(rootDirectory, excludedSubtrees, func(fileName string) bool {
		return strings.HasSuffix(fileName, buildDescriptorSuffixConstant)
	})
}

// FindNamedFiles walks rootDirectory and returns every file bearing the exact
// provided name, skipping git metadata directories.
func (scanner *DescriptorScanner) FindNamedFiles(rootDirectory string, fileName string) ([]string, error) {
	return scanner.findFiles(rootDirectory, nil, func(candidateName string) bool {
		return candidateName == fileName
	})
}

func (scanner *DescriptorScanner) findFiles(rootDirectory string, excludedSubtrees []string, matchesName func(string) bool) ([]string, error) {
	excluded := make(map[string]struct{}, len(excludedSubtrees))
	for _, excludedSubtree := range excludedSubtrees {
		excluded[filepath.Clean(excludedSubtree)] = struct{}{}
	}

	var matchedFiles []string
	walkError := filepath.WalkDir(rootDirectory, func(path string, directoryEntry fs.DirEntry, walkError error) error {
		if walkError != nil {
			return nil
		}
		if directoryEntry.IsDir() {
			if directoryEntry.Name() == gitMetadataDirectoryNameConstant {
				return fs.SkipDir
			}
			if _, subtreeExcluded := excluded[filepath.Clean(path)]; subtreeExcluded {
				return fs.SkipDir
			}
			return nil
		}
		if matchesName(directoryEntry.Name()) {
			matchedFiles = append(matchedFiles, path)
		}
		return nil
	})
	if walkError != nil {
		return nil, walkError
	}

	sort.Strings(matchedFiles)
	return matchedFiles, nil
}
