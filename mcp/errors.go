package mcp

import (
	"errors"
	"fmt"
)

// ErrConnClosed is returned for any operation on a closed connection.
var ErrConnClosed = errors.New("mcp: connection closed")

// ConnErrorKind classifies why a connection could not be established.
type ConnErrorKind int

const (
	// KindSpawn means the server process could not be started or its
	// transport could not be established.
	KindSpawn ConnErrorKind = iota
	// KindHandshake means the server started but did not complete the
	// protocol handshake within the handshake timeout.
	KindHandshake
)

func (k ConnErrorKind) String() string {
	switch k {
	case KindSpawn:
		return "spawn"
	case KindHandshake:
		return "handshake"
	default:
		return "unknown"
	}
}

// ConnectionError means an MCP server connection could not be established.
type ConnectionError struct {
	Server string
	Kind   ConnErrorKind
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mcp server %q: %s failed: %v", e.Server, e.Kind, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ToolError means the server executed the tool and reported a failure
// result. The connection itself is still healthy.
type ToolError struct {
	Server  string
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("mcp tool %q on server %q failed: %s", e.Tool, e.Server, e.Message)
}

// TimeoutError means a request did not complete within its deadline. The
// request may be retried.
type TimeoutError struct {
	Server string
	Op     string
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("mcp server %q: %s timed out: %v", e.Server, e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Temporary marks the error as retryable.
func (e *TimeoutError) Temporary() bool { return true }
