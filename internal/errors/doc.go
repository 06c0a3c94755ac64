// Package errors defines error types for the sidecar client.
//
// This package provides structured error types that wrap the different failure
// scenarios when driving a line-delimited JSON child process. All error types
// support unwrapping and can be checked using errors.Is, errors.As, and
// errors.AsType.
package errors
