// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management, request/response DTOs, and the
// conversions from store models to lightweight wire representations. Add new
// RPC endpoints through these types so the protocol stays compatible with
// existing command implementations.
package ipc
