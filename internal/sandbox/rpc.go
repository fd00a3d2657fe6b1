package sandbox

import "encoding/json"

// rpcVersion is the JSON-RPC protocol version spoken by the runner daemon.
const rpcVersion = "2.0"

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope. Result stays raw so a
// malformed result shape fails per-call decoding rather than the whole parse.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is a JSON-RPC 2.0 error object as reported by the runner.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Wire parameter and result shapes for the runner daemon's methods.

type execParams struct {
	Payload   string `json:"payload"`
	SessionID string `json:"session_id,omitempty"`
}

type execResult struct {
	Output    string  `json:"output"`
	ElapsedMs float64 `json:"elapsed_ms"`
}

type sessionParams struct {
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
}

type sessionResult struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type outputParams struct {
	MaxBytes int `json:"max_bytes"`
}

type outputResult struct {
	Output string `json:"output"`
}
