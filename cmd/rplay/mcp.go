package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/caffeineduck/rplay/internal/mcpserver"
	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve an R session to MCP clients",
	Long: `Run a Model Context Protocol server backed by one persistent R session.

Tools:
  run_r          run code or a built-in example
  list_examples  list built-in examples
  get_variable   read a variable as JSON
  reset_r        remove all variables

The server speaks MCP over stdio by default, or streamable HTTP with --http.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().String("http", "", "Serve streamable HTTP on this address instead of stdio")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	httpAddr, _ := cmd.Flags().GetString("http")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	rt, err := newRuntime(cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	pg, err := rt.newPlayground(ctx)
	if err != nil {
		return err
	}
	defer pg.Close()

	server := mcpserver.NewServer(pg)

	if httpAddr != "" {
		return serveMCPHTTP(ctx, server, httpAddr, rt.logger)
	}
	return server.Run(ctx, &mcp.StdioTransport{})
}

func serveMCPHTTP(ctx context.Context, server *mcp.Server, addr string, logger *log.Logger) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logger.Info("mcp server listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
