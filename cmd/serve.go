package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xhad/recall/pkg/mcp"
	"github.com/xhad/recall/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the search API over HTTP and WebSocket",
	Long: `Starts the HTTP API:

  GET /api/search?q=...&org=...&limit=...&days=...
  GET /api/search/recent?q=...&days=...
  GET /api/search/hybrid?q=...
  GET /api/search/expand?chunk_ids=1,2,3
  GET /api/clusters?call_id=...&min_size=...
  GET /api/clusters/latest?call_id=...
  GET /health
  /ws  (WebSocket queries)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve search tools to AI assistants over MCP",
	Long: `Starts a Model Context Protocol server on stdio exposing search,
hybrid_search, expand_by_cluster, list_clusters and chunk_text.

Example client configuration:
  {
    "mcpServers": {
      "recall": {
        "command": "/path/to/recall",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd, mcpCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	searcher, err := current.searchEngine(ctx)
	if err != nil {
		return err
	}
	clusters, err := current.clusterEngine(ctx, false)
	if err != nil {
		return err
	}
	vs, err := current.openStore(ctx)
	if err != nil {
		return err
	}

	addr := current.config.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.NewServer(server.Config{
		Addr:           addr,
		AllowedOrigins: current.config.Server.AllowedOrigins,
	}, searcher, clusters, server.WithLogger(current.logger), server.WithHealthCheck(vs))

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", addr)
	return srv.ListenAndServe(ctx)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	searcher, err := current.searchEngine(ctx)
	if err != nil {
		return err
	}
	clusters, err := current.clusterEngine(ctx, false)
	if err != nil {
		return err
	}
	c, err := current.newChunker()
	if err != nil {
		return err
	}

	srv, err := mcp.NewServer(&mcp.Ports{Search: searcher, Clusters: clusters, Chunker: c}, current.logger)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
