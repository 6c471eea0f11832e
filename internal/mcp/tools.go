package mcp

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/logging"
	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/memory"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const collectionArg = "collection_name"

type storeInput struct {
	Information    string         `json:"information" jsonschema:"The information to store"`
	CollectionName string         `json:"collection_name" jsonschema:"The collection to store the information in"`
	Metadata       map[string]any `json:"metadata,omitempty" jsonschema:"Extra metadata stored with the information. Any field can later be matched with qdrant-find-by-metadata"`
}

type findInput struct {
	Query          string `json:"query" jsonschema:"What to search for"`
	CollectionName string `json:"collection_name" jsonschema:"The collection to search in"`
}

type findByMetadataInput struct {
	MetadataKey    string `json:"metadata_key" jsonschema:"The metadata field to match"`
	MetadataValue  string `json:"metadata_value" jsonschema:"The exact value the field must have"`
	CollectionName string `json:"collection_name" jsonschema:"The collection to search in"`
}

// registerTools registers the find tools and, unless read-only, the store
// tool.
func (s *Server) registerTools() error {
	if err := s.registerFindTools(); err != nil {
		return err
	}
	if s.config.ReadOnly {
		return nil
	}
	return s.registerStoreTool()
}

// inputSchema infers the schema for T. With a default collection the
// collection_name argument is dropped, so clients cannot override it.
func inputSchema[T any](defaultCollection string) (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, err
	}
	if defaultCollection != "" {
		delete(schema.Properties, collectionArg)
		schema.Required = slices.DeleteFunc(schema.Required, func(name string) bool {
			return name == collectionArg
		})
	}
	return schema, nil
}

func (s *Server) registerStoreTool() error {
	schema, err := inputSchema[storeInput](s.memory.DefaultCollection())
	if err != nil {
		return fmt.Errorf("%s schema: %w", ToolStore, err)
	}
	// Clients may send an explicit null for no metadata.
	if md := schema.Properties["metadata"]; md != nil {
		md.Type = ""
		md.Types = []string{"null", "object"}
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolStore,
		Description: s.config.StoreDescription,
		InputSchema: schema,
		Annotations: &mcp.ToolAnnotations{
			Title: "Store information",
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, args storeInput) (result *mcp.CallToolResult, _ any, err error) {
		ctx, finish := s.startTool(ctx, ToolStore)
		defer func() { finish(err) }()

		collection := s.collection(args.CollectionName)
		ctx = logging.WithCollection(ctx, collection)
		s.logger.Debug(ctx, "store tool called",
			zap.Int("information_length", len(args.Information)),
			zap.Int("metadata_fields", len(args.Metadata)))
		s.notify(ctx, req, fmt.Sprintf("Storing information %s in Qdrant", args.Information))

		if err := s.memory.Store(ctx, memory.Entry{
			Content:  args.Information,
			Metadata: args.Metadata,
		}, collection); err != nil {
			return nil, nil, err
		}
		return textResult(remembered(args.Information, collection)), nil, nil
	})

	s.toolRegistry.Register(&ToolMetadata{Name: ToolStore, Description: s.config.StoreDescription})
	return nil
}

func (s *Server) registerFindTools() error {
	readOnly := &mcp.ToolAnnotations{ReadOnlyHint: true}

	findSchema, err := inputSchema[findInput](s.memory.DefaultCollection())
	if err != nil {
		return fmt.Errorf("%s schema: %w", ToolFind, err)
	}
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolFind,
		Description: s.config.FindDescription,
		InputSchema: findSchema,
		Annotations: readOnly,
	}, func(ctx context.Context, req *mcp.CallToolRequest, args findInput) (result *mcp.CallToolResult, _ any, err error) {
		ctx, finish := s.startTool(ctx, ToolFind)
		defer func() { finish(err) }()

		collection := s.collection(args.CollectionName)
		ctx = logging.WithCollection(ctx, collection)
		s.notify(ctx, req, fmt.Sprintf("Finding results for query %s", args.Query))

		entries, err := s.memory.Search(ctx, args.Query, collection, s.config.SearchLimit)
		if err != nil {
			return nil, nil, err
		}
		s.metrics.RecordRetrieval(ctx, ToolFind, len(entries) > 0)
		if len(entries) == 0 {
			s.logger.Debug(ctx, "no results found")
			return textResult(noResultsForQuery(args.Query)), nil, nil
		}

		contents, err := entryContents(entries, s.config.OutputFormat)
		if err != nil {
			return nil, nil, err
		}
		s.logger.Debug(ctx, "results found", zap.Int("count", len(entries)))
		return &mcp.CallToolResult{Content: contents}, nil, nil
	})
	s.toolRegistry.Register(&ToolMetadata{Name: ToolFind, Description: s.config.FindDescription, ReadOnly: true})

	metadataSchema, err := inputSchema[findByMetadataInput](s.memory.DefaultCollection())
	if err != nil {
		return fmt.Errorf("%s schema: %w", ToolFindByMetadata, err)
	}
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolFindByMetadata,
		Description: s.config.FindByMetadataDescription,
		InputSchema: metadataSchema,
		Annotations: readOnly,
	}, func(ctx context.Context, req *mcp.CallToolRequest, args findByMetadataInput) (result *mcp.CallToolResult, _ any, err error) {
		ctx, finish := s.startTool(ctx, ToolFindByMetadata)
		defer func() { finish(err) }()

		collection := s.collection(args.CollectionName)
		ctx = logging.WithCollection(ctx, collection)
		s.notify(ctx, req, fmt.Sprintf("Finding results by metadata %s=%s", args.MetadataKey, args.MetadataValue))

		entries, err := s.memory.SearchByMetadata(ctx, args.MetadataKey, args.MetadataValue, collection, s.config.SearchLimit)
		if err != nil {
			return nil, nil, err
		}
		s.metrics.RecordRetrieval(ctx, ToolFindByMetadata, len(entries) > 0)
		if len(entries) == 0 {
			s.logger.Debug(ctx, "no results found", zap.String("metadata_key", args.MetadataKey))
			return textResult(noResultsForMetadata(args.MetadataKey, args.MetadataValue)), nil, nil
		}

		contents, err := entryContents(entries, s.config.OutputFormat)
		if err != nil {
			return nil, nil, err
		}
		return &mcp.CallToolResult{Content: contents}, nil, nil
	})
	s.toolRegistry.Register(&ToolMetadata{Name: ToolFindByMetadata, Description: s.config.FindByMetadataDescription, ReadOnly: true})

	return nil
}

// collection resolves the collection for a call. The schema hides the
// argument when a default exists, so the default always applies then.
func (s *Server) collection(requested string) string {
	if def := s.memory.DefaultCollection(); def != "" {
		return def
	}
	return requested
}

// startTool tags ctx with the tool name and starts the invocation metrics.
// The returned function records the outcome.
func (s *Server) startTool(ctx context.Context, tool string) (context.Context, func(error)) {
	ctx = logging.WithTool(ctx, tool)
	start := time.Now()
	s.metrics.IncrementActive(ctx, tool)

	return ctx, func(err error) {
		s.metrics.DecrementActive(ctx, tool)
		s.metrics.RecordInvocation(ctx, tool, time.Since(start), err)
		if err != nil {
			s.logger.Warn(ctx, "tool call failed", zap.Error(err))
		}
	}
}

// notify sends a debug log message to the client. Clients that have not set
// a log level receive nothing.
func (s *Server) notify(ctx context.Context, req *mcp.CallToolRequest, msg string) {
	if req == nil || req.Session == nil {
		return
	}
	if err := req.Session.Log(ctx, &mcp.LoggingMessageParams{
		Level:  "debug",
		Logger: s.config.Name,
		Data:   msg,
	}); err != nil {
		s.logger.Debug(ctx, "failed to send log notification", zap.Error(err))
	}
}
