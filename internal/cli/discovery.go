package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/wagiedev/sidecar-go/internal/errors"
)

// Config holds configuration for executable discovery.
type Config struct {
	// Command is an executable path or a name searched in PATH.
	Command string

	// Cwd resolves relative command paths. If empty, the current directory is used.
	Cwd string

	// Logger is an optional logger for discovery operations.
	// If nil, a no-op logger is used.
	Logger *slog.Logger
}

// Discoverer locates the child executable.
type Discoverer interface {
	// Discover returns the path of the child executable or an *errors.SpawnError.
	Discover(ctx context.Context) (string, error)
}

// discoverer implements the Discoverer interface.
type discoverer struct {
	cfg *Config
	log *slog.Logger
}

// Compile-time verification that discoverer implements Discoverer.
var _ Discoverer = (*discoverer)(nil)

// NewDiscoverer creates a new discoverer with the given configuration.
func NewDiscoverer(cfg *Config) Discoverer {
	if cfg == nil {
		cfg = &Config{}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &discoverer{
		cfg: cfg,
		log: log,
	}
}

// Discover locates the child executable.
func (d *discoverer) Discover(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	command := d.cfg.Command
	if command == "" {
		return "", &errors.SpawnError{Err: errEmptyCommand}
	}

	d.log.Debug("Resolving child executable", "command", command)

	if hasPathSeparator(command) {
		path := command
		if !filepath.IsAbs(path) && d.cfg.Cwd != "" {
			path = filepath.Join(d.cfg.Cwd, path)
		}

		info, err := os.Stat(path)
		if err != nil {
			d.log.Debug("Explicit command path not found", "path", path)

			return "", &errors.SpawnError{Command: command, SearchedPaths: []string{path}}
		}

		if info.IsDir() {
			return "", &errors.SpawnError{Command: command, Err: errIsDirectory}
		}

		return path, nil
	}

	path, err := exec.LookPath(command)
	if err != nil {
		d.log.Warn("Child executable not found in PATH", "command", command)

		return "", &errors.SpawnError{Command: command, SearchedPaths: []string{"$PATH"}}
	}

	d.log.Debug("Found child executable", "path", path)

	return path, nil
}

func hasPathSeparator(command string) bool {
	return strings.ContainsRune(command, '/') || strings.ContainsRune(command, filepath.Separator)
}
