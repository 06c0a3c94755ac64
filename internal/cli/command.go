package cli

import (
	stderrors "errors"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/wagiedev/sidecar-go/internal/config"
)

var (
	errEmptyCommand = stderrors.New("no command configured")
	errIsDirectory  = stderrors.New("path is a directory")
)

// Command represents the child process to execute.
type Command struct {
	// Path is the resolved executable.
	Path string

	// Args are the command line arguments, excluding the executable.
	Args []string

	// Env are the environment variables in KEY=VALUE form.
	Env []string

	// Dir is the working directory; empty means the current directory.
	Dir string
}

// BuildCommand constructs the launch description for the child.
func BuildCommand(path string, options *config.Options) *Command {
	return &Command{
		Path: path,
		Args: slices.Clone(options.Args),
		Env:  BuildEnvironment(options),
		Dir:  options.Cwd,
	}
}

// BuildEnvironment constructs the environment variables for the child process.
//
// The child inherits this process's environment, overlaid with Options.Env.
// If Options.CredentialVar is set, its value is copied from this process.
// Keys appear once; overlay values win.
func BuildEnvironment(options *config.Options) []string {
	overlay := make(map[string]string, len(options.Env)+1)

	if name := options.CredentialVar; name != "" {
		if value, ok := os.LookupEnv(name); ok && value != "" {
			overlay[name] = value
		} else if options.Logger != nil {
			options.Logger.Warn("Credential variable is not set", slog.String("name", name))
		}
	}

	for key, value := range options.Env {
		overlay[key] = value
	}

	base := os.Environ()
	env := make([]string, 0, len(base)+len(overlay))

	for _, kv := range base {
		key, _, _ := cut(kv)
		if _, replaced := overlay[key]; replaced {
			continue
		}

		env = append(env, kv)
	}

	for _, key := range slices.Sorted(maps.Keys(overlay)) {
		env = append(env, key+"="+overlay[key])
	}

	return env
}

// cut splits KEY=VALUE. The search starts at index 1 because Windows keeps
// per-drive variables whose names begin with '='.
func cut(kv string) (key, value string, ok bool) {
	for i := 1; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}

	return kv, "", false
}
