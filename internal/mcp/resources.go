package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs.
const (
	ResourceKnowledges = "kb://knowledges"
	ResourceIndexes    = "kb://indexes"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "knowledges",
		URI:         ResourceKnowledges,
		Description: "Registered knowledge bases and the state of their directories",
		MIMEType:    "application/json",
	}, s.jsonResource(ResourceKnowledges, func() (any, error) {
		kbs, err := s.backend.Knowledges()
		return nonNil(kbs), err
	}))

	s.mcp.AddResource(&mcp.Resource{
		Name:        "indexes",
		URI:         ResourceIndexes,
		Description: "Indexed directories with file counts",
		MIMEType:    "application/json",
	}, s.jsonResource(ResourceIndexes, func() (any, error) {
		indexes, err := s.backend.Indexes()
		return nonNil(indexes), err
	}))
}

// jsonResource serves the value returned by load as indented JSON.
func (s *Server) jsonResource(uri string, load func() (any, error)) mcp.ResourceHandler {
	return func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		v, err := load()
		if err != nil {
			return nil, s.fail(uri, err)
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, MapError(err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			}},
		}, nil
	}
}
