package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/raaihank/piiwatch/internal/app"
	"github.com/raaihank/piiwatch/internal/scan"
	"github.com/raaihank/piiwatch/internal/server"
	"github.com/raaihank/piiwatch/internal/stats"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMCPCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve PII analysis tools over MCP on stdio",
		Long: "mcp exposes text analysis and URL, email and social scans as Model Context Protocol tools. " +
			"Requests arrive on stdin, responses go to stdout and logs to stderr.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			components, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := components.Close(closeCtx); err != nil {
					log.Warn("Failed to release components", zap.Error(err))
				}
			}()

			log.Info("MCP server ready on stdio")
			return mcpserver.ServeStdio(newMCPServer(&toolset{scans: components.Scans, stats: components.Stats}))
		},
	}
}

// toolset binds MCP tool calls to the scan manager
type toolset struct {
	scans *scan.Manager
	stats *stats.Recorder
}

func newMCPServer(t *toolset) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("piiwatch", server.Version, mcpserver.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("analyze_text",
		mcp.WithDescription("Detect PII in a piece of text"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to analyze")),
	), t.analyzeText)

	s.AddTool(mcp.NewTool("scan_url",
		mcp.WithDescription("Fetch a web page and detect PII in its content"),
		mcp.WithString("url", mcp.Required(), mcp.Description("Absolute http(s) URL")),
	), t.scanURL)

	s.AddTool(mcp.NewTool("scan_email",
		mcp.WithDescription("Search the web for pages mentioning an email address and detect PII on them"),
		mcp.WithString("email", mcp.Required(), mcp.Description("Email address")),
	), t.scanEmail)

	s.AddTool(mcp.NewTool("scan_social",
		mcp.WithDescription("Look up a social media handle and detect PII on its profile and related pages"),
		mcp.WithString("platform", mcp.Required(), mcp.Description("twitter, instagram, linkedin, github, facebook or tiktok")),
		mcp.WithString("handle", mcp.Required(), mcp.Description("Handle, with or without @")),
	), t.scanSocial)

	s.AddTool(mcp.NewTool("get_stats",
		mcp.WithDescription("Totals and risk distribution of recorded scans"),
	), t.getStats)

	return s
}

func (t *toolset) analyzeText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := stringArg(req, "text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(t.scans.AnalyzeText(ctx, text))
}

func (t *toolset) scanURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := stringArg(req, "url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := t.scans.ScanURL(ctx, rawURL)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (t *toolset) scanEmail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	email, err := stringArg(req, "email")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := t.scans.ScanEmail(ctx, email)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (t *toolset) scanSocial(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	platform, err := stringArg(req, "platform")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	handle, err := stringArg(req, "handle")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := t.scans.ScanSocial(ctx, platform, handle)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (t *toolset) getStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.stats.Snapshot(t.scans.Active(), 0))
}

func stringArg(req mcp.CallToolRequest, name string) (string, error) {
	v, ok := req.Params.Arguments[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("argument %q is required", name)
	}
	return v, nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
