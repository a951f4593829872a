package pathutils

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	homeShortcutConstant            = "~"
	homeShortcutSlashPrefixConstant = "~/"
)

// HomeDirectoryProvider resolves the current user's home directory path.
type HomeDirectoryProvider func() (string, error)

// HomeExpander rewrites leading home shortcuts into absolute paths.
//
// The home directory lookup happens once and is cached; paths are returned
// unchanged when the home directory cannot be determined.
type HomeExpander struct {
	provider      HomeDirectoryProvider
	homeDirectory string
	lookupError   error
	lookupOnce    sync.Once
}

// NewHomeExpander constructs a HomeExpander using the operating system lookup.
func NewHomeExpander() *HomeExpander {
	return NewHomeExpanderWithProvider(os.UserHomeDir)
}

// NewHomeExpanderWithProvider constructs a HomeExpander with a custom provider.
func NewHomeExpanderWithProvider(provider HomeDirectoryProvider) *HomeExpander {
	if provider == nil {
		provider = os.UserHomeDir
	}
	return &HomeExpander{provider: provider}
}

// Expand resolves a leading home shortcut to the user's home directory.
func (expander *HomeExpander) Expand(candidatePath string) string {
	if expander == nil || len(candidatePath) == 0 {
		return candidatePath
	}
	if !strings.HasPrefix(candidatePath, homeShortcutConstant) {
		return candidatePath
	}

	homeDirectory := expander.resolveHomeDirectory()
	if len(homeDirectory) == 0 {
		return candidatePath
	}

	if candidatePath == homeShortcutConstant {
		return homeDirectory
	}

	for _, shortcutPrefix := range homeShortcutPrefixes() {
		if strings.HasPrefix(candidatePath, shortcutPrefix) {
			return filepath.Join(homeDirectory, strings.TrimPrefix(candidatePath, shortcutPrefix))
		}
	}

	return candidatePath
}

func (expander *HomeExpander) resolveHomeDirectory() string {
	expander.lookupOnce.Do(func() {
		expander.homeDirectory, expander.lookupError = expander.provider()
	})
	if expander.lookupError != nil {
		return ""
	}
	return expander.homeDirectory
}

func homeShortcutPrefixes() []string {
	separatorPrefix := homeShortcutConstant + string(os.PathSeparator)
	if separatorPrefix == homeShortcutSlashPrefixConstant {
		return []string{homeShortcutSlashPrefixConstant}
	}
	return []string{homeShortcutSlashPrefixConstant, separatorPrefix}
}
