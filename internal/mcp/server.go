// Package mcp serves the crate tools over newline-delimited JSON-RPC.
//
// Requests are handled strictly one at a time: a line is read, answered and
// flushed before the next one is read. Operation failures are reported as
// error-flagged tool results; only malformed requests and unknown methods or
// tools use the JSON-RPC error envelope.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/ippclub/crates-mcp/internal/errors"
	"github.com/ippclub/crates-mcp/internal/model"
	"github.com/ippclub/crates-mcp/internal/telemetry"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Journal receives one row per tool call.
type Journal interface {
	RecordToolCall(call *model.DBToolCall) error
}

// Option configures a Server.
type Option func(*Server)

// WithJournal records every tool call in j.
func WithJournal(j Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithRecorder traces and counts every tool call.
func WithRecorder(r *telemetry.Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithSessionID stamps journal rows and spans with id.
func WithSessionID(id string) Option {
	return func(s *Server) { s.sessionID = id }
}

type Server struct {
	name     string
	version  string
	registry *Registry
	logger   *zap.Logger

	journal   Journal
	recorder  *telemetry.Recorder
	sessionID string
	maxLine   int
}

func NewServer(name, version string, registry *Registry, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		name:     name,
		version:  version,
		registry: registry,
		logger:   logger,
		maxLine:  maxLineSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve answers requests read from r on w until r is exhausted or ctx is
// cancelled. A bad line never ends the session.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	br := bufio.NewReaderSize(r, 64*1024)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	s.logger.Info("serving MCP over stdio", zap.String("session_id", s.sessionID))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, tooLong, readErr := readLine(br, s.maxLine)
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("failed to read request: %w", readErr)
		}

		var resp *Response
		if tooLong {
			s.logger.Warn("request line too long", zap.Int("max", s.maxLine))
			resp = failure(nil, CodeParseError, "Parse error: request exceeds %d bytes", s.maxLine)
		} else {
			resp = s.handleLine(ctx, line)
		}

		if resp != nil {
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("failed to write response: %w", err)
			}
		}

		if readErr == io.EOF {
			s.logger.Info("input closed, ending session")
			return nil
		}
	}
}

// readLine reads up to and including the next newline. Lines longer than limit
// are drained and reported with tooLong set.
func readLine(br *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, rerr := br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if rerr == bufio.ErrBufferFull {
			continue
		}
		return line, tooLong, rerr
	}
}

func (s *Server) handleLine(ctx context.Context, line []byte) *Response {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	if !json.Valid(line) {
		s.logger.Warn("failed to parse request", zap.Int("bytes", len(line)))
		return failure(nil, CodeParseError, "Parse error")
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return failure(nil, CodeInvalidRequest, "Invalid Request: %v", err)
	}
	if (req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion) || req.Method == "" {
		return failure(req.ID, CodeInvalidRequest, "Invalid Request")
	}

	if req.IsNotification() {
		s.logger.Debug("received notification", zap.String("method", req.Method))
		return nil
	}

	s.logger.Debug("received request", zap.String("method", req.Method))
	switch req.Method {
	case "initialize":
		return result(req.ID, &mcp.InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities: &mcp.ServerCapabilities{
				Tools: &mcp.ToolCapabilities{},
			},
			ServerInfo: &mcp.Implementation{
				Name:    s.name,
				Version: s.version,
			},
		})
	case "ping":
		return result(req.ID, struct{}{})
	case "tools/list":
		return result(req.ID, &mcp.ListToolsResult{Tools: s.registry.Tools()})
	case "tools/call":
		return s.callTool(ctx, &req)
	default:
		return failure(req.ID, CodeMethodNotFound, "Method not found: %s", req.Method)
	}
}

func (s *Server) callTool(ctx context.Context, req *Request) *Response {
	if len(req.Params) == 0 {
		return failure(req.ID, CodeInvalidParams, "Invalid params: missing params")
	}
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return failure(req.ID, CodeInvalidParams, "Invalid params: %v", err)
	}
	if params.Name == "" {
		return failure(req.ID, CodeInvalidParams, "Invalid params: missing tool name")
	}
	if !s.registry.Has(params.Name) {
		return failure(req.ID, CodeMethodNotFound, "Unknown tool: %s", params.Name)
	}

	start := time.Now()
	ctx, end := s.recorder.StartToolCall(ctx, params.Name, s.sessionID)
	out, err := s.registry.Call(ctx, params.Name, params.Arguments)

	var text string
	if err == nil {
		var data []byte
		data, err = json.MarshalIndent(out, "", "  ")
		if err != nil {
			err = fmt.Errorf("failed to encode result: %w", err)
		}
		text = string(data)
	}

	kind := errors.Kind(err)
	end(kind)
	s.record(params.Name, kind, time.Since(start))

	if err != nil {
		s.logger.Warn("tool call failed",
			zap.String("tool", params.Name),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return result(req.ID, &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + err.Error()}},
			IsError: true,
		})
	}

	s.logger.Info("tool call completed",
		zap.String("tool", params.Name),
		zap.Duration("duration", time.Since(start)),
	)
	return result(req.ID, &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	})
}

func (s *Server) record(tool, kind string, elapsed time.Duration) {
	if s.journal == nil {
		return
	}

	outcome := "ok"
	if kind != "" {
		outcome = "error"
	}
	call := &model.DBToolCall{
		CallID:     ulid.Make().String(),
		SessionID:  s.sessionID,
		Tool:       tool,
		Outcome:    outcome,
		ErrorKind:  kind,
		DurationMS: elapsed.Milliseconds(),
	}
	if err := s.journal.RecordToolCall(call); err != nil {
		s.logger.Warn("failed to journal tool call", zap.String("tool", tool), zap.Error(err))
	}
}

// IsClosed reports whether err means the peer went away.
func IsClosed(err error) bool {
	return err == nil || stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrClosedPipe) || stderrors.Is(err, context.Canceled)
}
