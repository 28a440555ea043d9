// Package mcpserver exposes an R playground as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/caffeineduck/rplay"
	"github.com/caffeineduck/rplay/examples"
	"github.com/caffeineduck/rplay/playground"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const instructions = `Run R code in a persistent R session.

Variables defined by run_r stay available to later calls until reset_r.
Plots are returned as PNG images. Use list_examples for sample snippets.`

type handler struct {
	pg *playground.Playground
}

// NewServer creates an MCP server whose tools run code on pg. pg must be
// initialized by the caller.
func NewServer(pg *playground.Playground) *mcp.Server {
	h := &handler{pg: pg}

	s := mcp.NewServer(&mcp.Implementation{Name: "rplay", Version: rplay.Version}, &mcp.ServerOptions{
		Instructions: instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
	})

	mcp.AddTool(s, &mcp.Tool{
		Name: "run_r",
		Description: `Run R code and return its console output.

Provide either code or the name of a built-in example. Errors are reported in plain language
together with any output produced before the error.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "list_examples",
		Description: "List the built-in R example snippets.",
	}, h.listExamplesHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_variable",
		Description: "Return the value of a variable in the R session as JSON.",
	}, h.getVariableHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "reset_r",
		Description: "Remove every variable from the R session.",
	}, h.resetHandler)

	return s
}

type runParams struct {
	Code    string `json:"code,omitempty" jsonschema:"R code to run"`
	Example string `json:"example,omitempty" jsonschema:"name of a built-in example to run instead of code"`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	code := params.Code
	if params.Example != "" {
		ex, ok := examples.Get(params.Example)
		if !ok {
			return errorResult(fmt.Sprintf("unknown example %q", params.Example))
		}
		code = ex.Code
	}

	res := h.pg.Run(ctx, code)

	var content []mcp.Content
	if text := formatResult(res); text != "" {
		content = append(content, &mcp.TextContent{Text: text})
	}
	for _, img := range res.Images {
		content = append(content, &mcp.ImageContent{Data: img.Data, MIMEType: "image/" + img.Format})
	}
	if len(content) == 0 {
		content = append(content, &mcp.TextContent{Text: "(no output)"})
	}

	return &mcp.CallToolResult{Content: content, IsError: !res.Success}, nil, nil
}

func formatResult(res playground.Result) string {
	var b strings.Builder
	if res.Output != "" {
		b.WriteString(res.Output)
	}
	if !res.Success {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(res.Error)
	}
	if res.Truncated {
		b.WriteString("\n(output truncated)")
	}
	return b.String()
}

type listExamplesParams struct{}

func (h *handler) listExamplesHandler(ctx context.Context, req *mcp.CallToolRequest, _ listExamplesParams) (*mcp.CallToolResult, any, error) {
	list, err := examples.List()
	if err != nil {
		return errorResult(err.Error())
	}

	var b strings.Builder
	for _, ex := range list {
		fmt.Fprintf(&b, "%s: %s\n  %s\n", ex.Name, ex.Title, ex.Description)
	}
	return textResult(strings.TrimRight(b.String(), "\n"))
}

type getVariableParams struct {
	Name string `json:"name" jsonschema:"variable name"`
}

func (h *handler) getVariableHandler(ctx context.Context, req *mcp.CallToolRequest, params getVariableParams) (*mcp.CallToolResult, any, error) {
	if params.Name == "" {
		return errorResult("name is required")
	}
	v, err := h.pg.LoadVariable(ctx, params.Name)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to read %s: %v", params.Name, err))
	}
	if v == nil {
		return textResult(fmt.Sprintf("%s is not defined.", params.Name))
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(string(data))
}

type resetParams struct{}

func (h *handler) resetHandler(ctx context.Context, req *mcp.CallToolRequest, _ resetParams) (*mcp.CallToolResult, any, error) {
	if err := h.pg.Reset(ctx); err != nil {
		return errorResult(fmt.Sprintf("Reset failed: %v", err))
	}
	return textResult("R session reset.")
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
