// Package mcp exposes tendril conversations as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const agentsURI = "tendril://agents"

// Conversations is the conversation service the tools drive.
type Conversations interface {
	CreateConv(ctx context.Context, agentUID, title string) (*domain.Conversation, error)
	AddMessage(ctx context.Context, convID int64, text string) (*domain.Message, error)
	ListMessages(ctx context.Context, convID int64) ([]*domain.Message, error)
	ListSteps(ctx context.Context, convID int64) ([]*domain.Step, error)
}

// Agents lists the configured agents.
type Agents interface {
	List(ctx context.Context) ([]*domain.Agent, error)
}

// Driver advances a conversation until its pending traversal ends.
type Driver interface {
	Drain(ctx context.Context, convID int64) error
}

// SendMessageArgs are the arguments of the send_message tool.
type SendMessageArgs struct {
	ConvID   int64  `json:"conv_id,omitempty"`
	AgentUID string `json:"agent_uid,omitempty"`
	Text     string `json:"text"`
}

// SendMessageResult is the structured output of send_message.
type SendMessageResult struct {
	ConvID    int64  `json:"conv_id" jsonschema_description:"Conversation the message was added to"`
	MessageID int64  `json:"message_id" jsonschema_description:"Id of the user message"`
	Answer    string `json:"answer,omitempty" jsonschema_description:"Agent answer, when it is already available"`
	Pending   bool   `json:"pending" jsonschema_description:"True while the answer is still being produced"`
}

// Server exposes the conversation service as an MCP server.
type Server struct {
	convs     Conversations
	agents    Agents
	driver    Driver
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDriver makes send_message wait for the answer by draining the
// conversation in-process. Without a driver the answer is left to workers.
func WithDriver(d Driver) Option {
	return func(s *Server) {
		s.driver = d
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(convs Conversations, agents Agents, opts ...Option) *Server {
	s := &Server{
		convs:  convs,
		agents: agents,
		logger: logging.NewNop(),
		mcpServer: server.NewMCPServer("tendril-mcp", strings.TrimSpace(tendril.Version),
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	sendTool := mcp.NewTool("send_message",
		mcp.WithDescription("Send a message to an agent. Starts a new conversation when conv_id is omitted."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Message text")),
		mcp.WithNumber("conv_id", mcp.Description("Existing conversation id")),
		mcp.WithString("agent_uid", mcp.Description("Agent owning the new conversation (required without conv_id)")),
		mcp.WithOutputSchema[SendMessageResult](),
	)
	s.mcpServer.AddTool(sendTool, mcp.NewStructuredToolHandler(s.handleSendMessage))

	s.mcpServer.AddTool(mcp.NewTool("list_agents",
		mcp.WithDescription("List the agents messages can be sent to."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		agents, err := s.agents.List(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list agents failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(agents)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("inspect_steps",
		mcp.WithDescription("List the execution steps recorded for a conversation."),
		mcp.WithNumber("conv_id", mcp.Required(), mcp.Description("Conversation id")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		convID, err := request.RequireInt("conv_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		steps, err := s.convs.ListSteps(ctx, int64(convID))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("inspect steps failed: %v", err)), nil
		}
		jsonBytes, _ := json.Marshal(steps)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest, args SendMessageArgs) (SendMessageResult, error) {
	convID := args.ConvID
	if convID == 0 {
		if args.AgentUID == "" {
			return SendMessageResult{}, errors.New("agent_uid is required without conv_id")
		}
		conv, err := s.convs.CreateConv(ctx, args.AgentUID, "")
		if err != nil {
			return SendMessageResult{}, fmt.Errorf("create conversation failed: %w", err)
		}
		convID = conv.ID
	}

	msg, err := s.convs.AddMessage(ctx, convID, args.Text)
	if err != nil {
		return SendMessageResult{}, fmt.Errorf("send failed: %w", err)
	}
	res := SendMessageResult{ConvID: convID, MessageID: msg.ID, Pending: true}
	if s.driver == nil {
		return res, nil
	}

	if err := s.driver.Drain(ctx, convID); err != nil {
		s.logger.Warn("MCP send_message: traversal failed", "conv_id", convID, "err", err)
		return res, fmt.Errorf("traversal failed: %w", err)
	}
	msgs, err := s.convs.ListMessages(ctx, convID)
	if err != nil {
		return res, err
	}
	for _, m := range msgs {
		if m.OrigMsgID != nil && *m.OrigMsgID == msg.ID && m.AuthorKind == domain.AuthorAgent {
			res.Answer = m.Content
			res.Pending = false
		}
	}
	return res, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(agentsURI, "Configured agents",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		agents, err := s.agents.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list agents: %w", err)
		}
		jsonBytes, _ := json.Marshal(agents)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      agentsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
