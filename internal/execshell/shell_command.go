package execshell

// CommandName identifies the executable a shell command runs.
type CommandName string

// Supported executables.
const (
	// CommandGit identifies the git executable.
	CommandGit CommandName = "git"
)

// CommandDetails describes a single invocation of an executable.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
}

// ShellCommand combines an executable name with invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable outputs of a completed command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}
