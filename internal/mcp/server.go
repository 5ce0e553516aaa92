// Package mcp exposes credit analyses to MCP clients over Streamable HTTP.
package mcp

import (
	"log/slog"
	"net/http"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerName identifies this server to MCP clients.
const ServerName = "creditlens"

// NewServer creates the SDK server. Tools are registered by the caller to
// avoid an import cycle with mcp/tools.
func NewServer(version string) *sdkmcp.Server {
	return sdkmcp.NewServer(&sdkmcp.Implementation{Name: ServerName, Version: version}, nil)
}

// NewHandler serves the MCP endpoint on /mcp and on root.
//
// Stateless mode ignores stale session IDs after restarts instead of
// returning 404; every request gets a pre-initialized temporary session.
func NewHandler(server *sdkmcp.Server, logger *slog.Logger) http.Handler {
	sdkHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return server },
		&sdkmcp.StreamableHTTPOptions{Stateless: true},
	)

	mux := http.NewServeMux()
	mux.Handle("/mcp", sdkHandler)
	mux.Handle("/", sdkHandler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if logger != nil {
		logger.Debug("mcp handler ready", slog.String("server", ServerName))
	}
	return mux
}
