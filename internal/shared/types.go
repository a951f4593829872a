package shared

import (
	"context"
	"io/fs"
	"time"

	"github.com/celder/histmove/internal/execshell"
)

// Clock abstracts time acquisition for deterministic testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time source.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// FileSystem exposes filesystem operations required by relocation services.
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
	Abs(path string) (string, error)
	MkdirAll(path string, permissions fs.FileMode) error
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, permissions fs.FileMode) error
	RemoveAll(path string) error
}

// GitExecutor exposes the subset of shell execution used by relocation services.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
	ExecuteHistoryFilter(executionContext context.Context, executablePath string, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}
