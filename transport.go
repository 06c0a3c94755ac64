package sidecar

import "github.com/wagiedev/sidecar-go/internal/config"

// Transport defines the interface for communication with the child.
// Implement this to provide custom transports for testing, mocking,
// or alternative communication methods (e.g., a remote bridge).
//
// The default implementation spawns the configured command as a subprocess.
// Custom transports can be injected via WithTransport.
type Transport = config.Transport
