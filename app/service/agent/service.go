package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"xiaoz/app/config"
	"xiaoz/app/service/reminder"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/do"
	"github.com/tmc/langchaingo/agents"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/tools"
)

const maxToolIterations = 5

var _ do.Shutdownable = (*Service)(nil)

type mcpClientWrapper struct {
	client client.MCPClient
	name   string
}

// Service gives the reply path tool access: reminder management tools plus
// whatever the configured MCP servers expose. Inert unless at least one MCP
// server is configured.
type Service struct {
	cfg         *config.Config
	reminderSvc *reminder.Service

	llm        *openai.LLM
	mcpClients []*mcpClientWrapper
	mcpTools   []tools.Tool
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	s := &Service{
		cfg:         cfg,
		reminderSvc: do.MustInvoke[*reminder.Service](di),
	}

	if len(cfg.MCP) == 0 {
		return s, nil
	}

	llm, err := openai.New(
		openai.WithToken(cfg.OpenAI.Reply.Token),
		openai.WithBaseURL(cfg.OpenAI.Reply.BaseURL),
		openai.WithModel(cfg.OpenAI.Reply.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent LLM: %w", err)
	}
	s.llm = llm

	if err = s.initializeMCPClients(); err != nil {
		return nil, err
	}

	return s, nil
}

// Enabled reports whether replies should go through the tool-calling agent.
func (s *Service) Enabled() bool {
	return s.llm != nil
}

// Answer runs the tool-calling agent over the rendered conversation
// context. The reminder tools are bound to the sender for this call only.
func (s *Service) Answer(ctx context.Context, sender, input string) (string, error) {
	allTools := append([]tools.Tool{}, s.mcpTools...)
	allTools = append(allTools, s.createReminderTools(sender)...)

	executor, err := agents.Initialize(
		s.llm,
		allTools,
		agents.ZeroShotReactDescription,
		agents.WithMaxIterations(maxToolIterations),
		agents.WithCallbacksHandler(LogCallbackHandler{}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to initialize agent: %w", err)
	}

	answer, err := chains.Run(ctx, executor, input)
	if err != nil {
		return "", fmt.Errorf("agent run failed: %w", err)
	}

	return answer, nil
}

func (s *Service) initializeMCPClients() error {
	for _, server := range s.cfg.MCP {
		mcpClient, err := client.NewStdioMCPClient(server.Command, nil, server.Args...)
		if err != nil {
			return fmt.Errorf("failed to create MCP client for %s: %w", server.Name, err)
		}

		serverTools, err := listServerTools(mcpClient, server.Name)
		if err != nil {
			return err
		}

		s.mcpClients = append(s.mcpClients, &mcpClientWrapper{
			client: mcpClient,
			name:   server.Name,
		})
		s.mcpTools = append(s.mcpTools, serverTools...)

		slog.Info("MCP server connected",
			"name", server.Name,
			"tools", len(serverTools),
		)
	}

	return nil
}

func (s *Service) Shutdown() error {
	for _, wrapper := range s.mcpClients {
		if err := wrapper.client.Close(); err != nil {
			slog.Warn("Failed to close MCP client",
				"name", wrapper.name,
				"error", err,
			)
		}
	}

	return nil
}

func listServerTools(mcpClient client.MCPClient, serverName string) ([]tools.Tool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "xiaoz",
		Version: "1.0.0",
	}

	if _, err := mcpClient.Initialize(ctx, initRequest); err != nil {
		return nil, fmt.Errorf("failed to initialize MCP client %s: %w", serverName, err)
	}

	toolsResponse, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools from %s: %w", serverName, err)
	}

	result := make([]tools.Tool, 0, len(toolsResponse.Tools))
	for _, mcpTool := range toolsResponse.Tools {
		result = append(result, &mcpToolAdapter{
			client: mcpClient,
			tool:   mcpTool,
			name:   fmt.Sprintf("%s_%s", serverName, mcpTool.Name),
		})
	}

	return result, nil
}
