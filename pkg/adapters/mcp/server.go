package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tuchang/junit5"
	"github.com/tuchang/junit5/pkg/domain"
	"github.com/tuchang/junit5/pkg/ports"
	"github.com/tuchang/junit5/pkg/uniqueid"
)

const planURI = "junit5://plan"

// Launcher is the part of junit5.Launcher exposed as MCP tools.
type Launcher interface {
	Discover(ctx context.Context, req junit5.DiscoveryRequest) (*junit5.Plan, error)
	Execute(ctx context.Context, plan *junit5.Plan, listeners ...ports.ExecutionListener) (*junit5.Run, error)
}

// Server wraps a Launcher and exposes it as an MCP Server.
type Server struct {
	launcher  Launcher
	results   ports.ResultStore
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the server.
type Option func(*Server)

// WithResults enables the get_run tool.
func WithResults(store ports.ResultStore) Option {
	return func(s *Server) {
		s.results = store
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(launcher Launcher, version string, opts ...Option) *Server {
	s := &Server{
		launcher:  launcher,
		logger:    slog.New(slog.NewJSONHandler(io.Discard, nil)),
		mcpServer: server.NewMCPServer("junit5-mcp", version),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	selection := []mcp.ToolOption{
		mcp.WithArray("selectors",
			mcp.WithStringItems(),
			mcp.Description(`Selectors such as "name:Calculator.adds", "id:[engine:dsl]/[container:C]", "file:x.suite.yaml" or "dir:tests". Empty selects everything.`),
		),
		mcp.WithArray("include_tags", mcp.WithStringItems(), mcp.Description("Only keep tests carrying one of these tags")),
		mcp.WithArray("exclude_tags", mcp.WithStringItems(), mcp.Description("Drop tests carrying one of these tags")),
	}

	s.mcpServer.AddTool(mcp.NewTool("discover",
		append([]mcp.ToolOption{mcp.WithDescription("Discover the test plan without executing it.")}, selection...)...,
	), s.handleDiscover)

	s.mcpServer.AddTool(mcp.NewTool("execute",
		append([]mcp.ToolOption{mcp.WithDescription("Discover and execute tests, returning the run summary.")}, selection...)...,
	), s.handleExecute)

	s.mcpServer.AddTool(mcp.NewTool("parse_unique_id",
		mcp.WithDescription("Parse a unique id into its [type:value] segments."),
		mcp.WithString("unique_id", mcp.Required(), mcp.Description("Unique id, e.g. [engine:dsl]/[container:C]/[test:t]")),
	), s.handleParseUniqueID)

	if s.results != nil {
		s.mcpServer.AddTool(mcp.NewTool("get_run",
			mcp.WithDescription("Get the stored results of a previous run."),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("Run id returned by execute")),
		), s.handleGetRun)
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(planURI, "Full test plan",
		mcp.WithMIMEType("application/json"),
	), s.readPlan)
}

func request(args mcp.CallToolRequest) (junit5.DiscoveryRequest, error) {
	return junit5.NewRequest(
		args.GetStringSlice("selectors", nil),
		args.GetStringSlice("include_tags", nil),
		args.GetStringSlice("exclude_tags", nil),
	)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleDiscover(ctx context.Context, args mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := request(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	plan, err := s.launcher.Discover(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("discovery failed: %v", err)), nil
	}
	return jsonResult(plan)
}

type executeResult struct {
	RunID    string   `json:"run_id"`
	Summary  any      `json:"summary"`
	Warnings []string `json:"warnings,omitempty"`
}

func (s *Server) handleExecute(ctx context.Context, args mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := request(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	plan, err := s.launcher.Discover(ctx, req)
	if err == nil {
		err = plan.Err()
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("discovery failed: %v", err)), nil
	}

	run, err := s.launcher.Execute(ctx, plan)
	if err != nil {
		s.logger.Error("MCP execute failed", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("execution failed: %v", err)), nil
	}
	out := executeResult{RunID: run.ID, Summary: run.Summary}
	for _, w := range plan.Warnings {
		out.Warnings = append(out.Warnings, w.String())
	}
	return jsonResult(out)
}

type segmentView struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (s *Server) handleParseUniqueID(_ context.Context, args mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := args.RequireString("unique_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := uniqueid.Parse(raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	segments := id.Segments()
	out := make([]segmentView, len(segments))
	for i, seg := range segments {
		out[i] = segmentView{Type: seg.Type, Value: seg.Value}
	}
	engine, _ := id.EngineID()
	return jsonResult(map[string]any{
		"unique_id": id.String(),
		"engine":    engine,
		"segments":  out,
	})
}

func (s *Server) handleGetRun(ctx context.Context, args mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := args.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	records, err := s.results.List(ctx, runID)
	if errors.Is(err, domain.ErrRunNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("run %q not found", runID)), nil
	}
	if err != nil {
		return nil, err
	}
	return jsonResult(records)
}

func (s *Server) readPlan(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	plan, err := s.launcher.Discover(ctx, junit5.DiscoveryRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to discover plan: %w", err)
	}
	data, err := json.Marshal(plan)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      planURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
