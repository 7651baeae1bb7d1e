package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	jsonRPCVersion = "2.0"

	notificationPrefix = "notifications/"

	// ProtocolVersion is the MCP revision announced by initialize.
	ProtocolVersion = "2024-11-05"

	// maxLineSize bounds a single request line.
	maxLineSize = 4 << 20
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is one inbound JSON-RPC message. The jsonrpc member may be omitted.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the sender expects no response: an id-less
// message under notifications/. Any other id-less request is answered with a
// null id.
func (r *Request) IsNotification() bool {
	return r.ID == nil && strings.HasPrefix(r.Method, notificationPrefix)
}

// Response is one outbound JSON-RPC message. ID is written as null when the
// request id could not be read.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// callParams is the params object of tools/call.
type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func result(id json.RawMessage, v any) *Response {
	return &Response{JSONRPC: jsonRPCVersion, ID: id, Result: v}
}

func failure(id json.RawMessage, code int, format string, args ...any) *Response {
	return &Response{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: fmt.Sprintf(format, args...)},
	}
}
