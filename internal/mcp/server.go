package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amankb/internal/config"
	"github.com/Aman-CERP/amankb/internal/index"
	"github.com/Aman-CERP/amankb/internal/registry"
	"github.com/Aman-CERP/amankb/internal/search"
	"github.com/Aman-CERP/amankb/internal/tracking"
	"github.com/Aman-CERP/amankb/pkg/version"
)

// ServerName is reported to clients during initialization.
const ServerName = "amankb"

// Backend is the knowledge service the tools call into.
type Backend interface {
	Index(ctx context.Context, target string, opts index.Options) ([]*index.Result, error)
	Refresh(ctx context.Context, target string, recursive bool) ([]*index.Result, error)
	Search(ctx context.Context, target, query string, opts search.Options) ([]search.Result, error)
	Tags(ctx context.Context, target string) ([]search.TagCount, error)
	Fields(ctx context.Context, target string) (map[string]search.FieldInfo, error)
	Drop(ctx context.Context, target string) ([]*index.DropResult, error)
	Indexes() ([]tracking.Summary, error)
	Knowledges() ([]registry.Status, error)
}

// Server is the MCP server for amankb.
type Server struct {
	mcp     *mcp.Server
	backend Backend
	config  *config.Config
	logger  *slog.Logger
}

// NewServer creates a new MCP server with every tool and resource
// registered.
func NewServer(backend Backend, cfg *config.Config) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		backend: backend,
		config:  cfg,
		logger:  slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.registerResources()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolIndex,
		Description: "Index a knowledge base or directory for semantic search. Only new and modified files are processed unless force_reindex is set.",
	}, s.indexHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolSearch,
		Description: "Semantic search over indexed notes, code and notebooks. Filter by tags (all must match) and metadata such as strategy, type or sharpe > 1.5. Without a directory every registered knowledge base is searched.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolListIndexes,
		Description: "List every indexed directory with its file count and last refresh time.",
	}, s.listIndexesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolRefresh,
		Description: "Pick up added, modified and deleted files in an indexed directory. Without a directory every index is refreshed.",
	}, s.refreshHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolTags,
		Description: "List the tags in a knowledge base with how many chunks carry each one.",
	}, s.tagsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolMetadataFields,
		Description: "Describe the filterable metadata fields of a knowledge base with example values.",
	}, s.fieldsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolDrop,
		Description: "Delete the index of a knowledge base or directory. Source files are not touched.",
	}, s.dropHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolKnowledges,
		Description: "List the registered knowledge bases and whether their directories are indexed.",
	}, s.knowledgesHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 8))
}

func (s *Server) indexHandler(ctx context.Context, _ *mcp.CallToolRequest, in IndexInput) (*mcp.CallToolResult, IndexOutput, error) {
	if in.Directory == "" {
		return nil, IndexOutput{}, NewInvalidParamsError("directory is required")
	}
	opts := index.Options{Recursive: boolOr(in.Recursive, true), Force: in.ForceReindex}
	results, err := s.backend.Index(ctx, in.Directory, opts)
	if err != nil {
		return nil, IndexOutput{}, s.fail(ToolIndex, err)
	}
	return nil, IndexOutput{Results: nonNil(results)}, nil
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	start := time.Now()
	opts := search.Options{
		Tags:      in.Tags,
		Metadata:  in.MetadataFilters,
		Limit:     in.Limit,
		Threshold: s.config.Search.Threshold,
	}
	if opts.Limit <= 0 {
		opts.Limit = s.config.Search.Limit
	}
	if in.Threshold != nil {
		opts.Threshold = *in.Threshold
	}

	results, err := s.backend.Search(ctx, in.Directory, in.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, s.fail(ToolSearch, err)
	}
	s.logger.Info("search_completed",
		slog.String("directory", in.Directory),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	results = nonNil(results)
	return nil, SearchOutput{Status: "success", Query: in.Query, Results: results, Total: len(results)}, nil
}

func (s *Server) listIndexesHandler(_ context.Context, _ *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, ListIndexesOutput, error) {
	indexes, err := s.backend.Indexes()
	if err != nil {
		return nil, ListIndexesOutput{}, s.fail(ToolListIndexes, err)
	}
	indexes = nonNil(indexes)
	return nil, ListIndexesOutput{Indexes: indexes, Total: len(indexes)}, nil
}

func (s *Server) refreshHandler(ctx context.Context, _ *mcp.CallToolRequest, in RefreshInput) (*mcp.CallToolResult, IndexOutput, error) {
	results, err := s.backend.Refresh(ctx, in.Directory, boolOr(in.Recursive, true))
	if err != nil {
		return nil, IndexOutput{}, s.fail(ToolRefresh, err)
	}
	return nil, IndexOutput{Results: nonNil(results)}, nil
}

func (s *Server) tagsHandler(ctx context.Context, _ *mcp.CallToolRequest, in DirectoryInput) (*mcp.CallToolResult, TagsOutput, error) {
	tags, err := s.backend.Tags(ctx, in.Directory)
	if err != nil {
		return nil, TagsOutput{}, s.fail(ToolTags, err)
	}
	tags = nonNil(tags)
	return nil, TagsOutput{Status: "success", Tags: tags, Total: len(tags)}, nil
}

func (s *Server) fieldsHandler(ctx context.Context, _ *mcp.CallToolRequest, in DirectoryInput) (*mcp.CallToolResult, FieldsOutput, error) {
	fields, err := s.backend.Fields(ctx, in.Directory)
	if err != nil {
		return nil, FieldsOutput{}, s.fail(ToolMetadataFields, err)
	}
	if fields == nil {
		fields = map[string]search.FieldInfo{}
	}
	return nil, FieldsOutput{Status: "success", Fields: fields}, nil
}

func (s *Server) dropHandler(ctx context.Context, _ *mcp.CallToolRequest, in DropInput) (*mcp.CallToolResult, DropOutput, error) {
	if in.Directory == "" {
		return nil, DropOutput{}, NewInvalidParamsError("directory is required")
	}
	results, err := s.backend.Drop(ctx, in.Directory)
	if err != nil {
		return nil, DropOutput{}, s.fail(ToolDrop, err)
	}
	return nil, DropOutput{Results: nonNil(results)}, nil
}

func (s *Server) knowledgesHandler(_ context.Context, _ *mcp.CallToolRequest, _ NoInput) (*mcp.CallToolResult, KnowledgesOutput, error) {
	kbs, err := s.backend.Knowledges()
	if err != nil {
		return nil, KnowledgesOutput{}, s.fail(ToolKnowledges, err)
	}
	kbs = nonNil(kbs)
	return nil, KnowledgesOutput{Knowledges: kbs, Total: len(kbs)}, nil
}

// fail logs a tool failure and maps it to an MCP error.
func (s *Server) fail(tool string, err error) error {
	mapped := MapError(err)
	s.logger.Warn("tool_failed",
		slog.String("tool", tool),
		slog.Int("code", mapped.Code),
		slog.String("error", err.Error()))
	return mapped
}

// Serve runs the server on the configured transport until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	transport := s.config.Server.Transport
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "", config.TransportStdio:
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	case config.TransportHTTP:
		return s.serveHTTP(ctx, s.config.Server.HTTPAddr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, http)", transport)
	}
}

// Handler returns the streamable HTTP handler serving this server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
}

func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("mcp_http_listening", slog.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	}
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
