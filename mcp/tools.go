package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func pubkeyArg() mcp.ToolOption {
	return mcp.WithString("pubkey", mcp.Required(), mcp.Description("Account key"))
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("account_get",
				mcp.WithDescription("Get an account's owner, lamports and base64 data. Closed accounts are reported as not_found."),
				pubkeyArg(),
			),
			Handler: s.handleAccountGet,
		},
		{
			Tool: mcp.NewTool("counter_get",
				mcp.WithDescription("Get the current value of a counter account."),
				pubkeyArg(),
			),
			Handler: s.handleCounterGet,
		},
		{
			Tool: mcp.NewTool("counter_increment",
				mcp.WithDescription("Increment a counter account by one (saturates at 255). Returns once subscribers have been notified."),
				pubkeyArg(),
			),
			Handler: s.handleCounterIncrement,
		},
		{
			Tool: mcp.NewTool("counter_close",
				mcp.WithDescription("Close a counter account: its data is emptied, lamports go to the incinerator and ownership passes to the system program."),
				pubkeyArg(),
			),
			Handler: s.handleCounterClose,
		},
		{
			Tool: mcp.NewTool("slot_get",
				mcp.WithDescription("Get the ledger's current slot."),
			),
			Handler: s.handleSlotGet,
		},
	}
}

func (s *Server) registerTools() {
	for _, t := range s.tools() {
		s.mcpServer.AddTool(t.Tool, t.Handler)
	}
}
