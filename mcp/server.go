// Package mcp implements a stdio MCP server that exposes the counter ledger
// to AI agents.
package mcp

import (
	"context"
	"io"

	"github.com/acctwatch/server/ledger"
	"github.com/acctwatch/server/mutator"
	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName    = "acctwatch"
	serverVersion = "1.0.0"
)

// Ledger is the subset of mutator.Client the tools need.
type Ledger interface {
	GetAccount(ctx context.Context, key ledger.Key) (ledger.Account, bool, error)
	Counter(ctx context.Context, key ledger.Key) (uint8, error)
	Increment(ctx context.Context, key ledger.Key) (mutator.Receipt, error)
	CloseAccount(ctx context.Context, key ledger.Key) (mutator.Receipt, error)
	Slot(ctx context.Context) (uint64, error)
}

var _ Ledger = (*mutator.Client)(nil)

type Server struct {
	ledger    Ledger
	mcpServer *server.MCPServer
}

func NewServer(l Ledger) *Server {
	s := &Server{ledger: l}
	s.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)
	s.registerTools()
	return s
}

// Serve runs the stdio loop on in and out until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}
