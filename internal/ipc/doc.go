// Package ipc carries daemon control traffic over a JSON-RPC Unix socket,
// and includes both the server and the client the CLI dials.
//
// Socket lifecycle, request/response DTOs, and the conversions between
// download records and their wire form are defined here. The client wraps
// every call in a dial timeout so commands fail fast when no daemon is
// listening, and it implements the batch action contract from internal/api
// so multi-id cancel and import flows work against a live daemon unchanged.
//
// New RPC endpoints should reuse these types to keep the protocol stable for
// existing command implementations.
package ipc
