// Package cli resolves the child executable and builds its launch command.
//
// # Executable Discovery
//
// The Discoverer interface locates the configured child binary:
//
//	discoverer := cli.NewDiscoverer(&cli.Config{
//	    Command: "npx",
//	    Logger:  slog.Default(),
//	})
//	path, err := discoverer.Discover(ctx)
//
// A command containing a path separator is used as-is and must exist.
// A bare name is searched in the system PATH.
//
// # Command Building
//
// BuildCommand assembles the executable, arguments, working directory and
// environment for the child:
//
//	cmd := cli.BuildCommand(path, options)
//	env := cli.BuildEnvironment(options)
package cli
