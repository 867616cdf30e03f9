// Package mcpserver exposes the navigator's tool surface as MCP tools, each
// a thin wrapper forwarding to the matching navigator.Navigator method and
// returning its string (spec.md §4.9, §9's "tagged union of operations"
// note).
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"docmind/internal/navigator"
)

type inspectArgs struct{}

type examineArgs struct {
	ID    int64  `json:"id" jsonschema:"the summary node id to examine"`
	Query string `json:"query,omitempty" jsonschema:"a question to ask a leaf node's underlying text"`
}

type neighborArgs struct {
	CurrentID int64  `json:"current_id" jsonschema:"the node to move relative to"`
	Direction string `json:"direction" jsonschema:"one of next, prev, parent"`
}

type searchArgs struct {
	Query string `json:"query" jsonschema:"a substring to search summary text for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum rows to return, default 10"`
}

// New builds an MCP server exposing inspect_document_hierarchy,
// examine_summary_node, read_neighbor_node, and search_summaries over nav.
func New(nav *navigator.Navigator) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "docmind", Version: "0.1.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "inspect_document_hierarchy",
		Description: "List the roots of the document's summary tree.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ inspectArgs) (*mcp.CallToolResult, any, error) {
		return textResult(nav.InspectDocumentHierarchy(ctx)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "examine_summary_node",
		Description: "Examine a summary node: lists children for an internal node, or reads a leaf's underlying chunk when given a query.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args examineArgs) (*mcp.CallToolResult, any, error) {
		return textResult(nav.ExamineSummaryNode(ctx, args.ID, args.Query)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "read_neighbor_node",
		Description: "Read the text of a node's previous sibling, next sibling, or parent.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args neighborArgs) (*mcp.CallToolResult, any, error) {
		return textResult(nav.ReadNeighborNode(ctx, args.CurrentID, args.Direction)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_summaries",
		Description: "Case-sensitive substring search across all summary node text.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args searchArgs) (*mcp.CallToolResult, any, error) {
		return textResult(nav.SearchSummaries(ctx, args.Query, args.Limit)), nil, nil
	})

	return server
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
