package mcp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/paularlott/mcp"

	"github.com/martinsuchenak/gwconsole/internal/gateway"
	"github.com/martinsuchenak/gwconsole/internal/log"
	"github.com/martinsuchenak/gwconsole/internal/mgmt"
	"github.com/martinsuchenak/gwconsole/internal/model"
	"github.com/martinsuchenak/gwconsole/internal/session"
)

const serverVersion = "1.0.0"

// Server exposes the gateway console as MCP tools. Tools act with the
// console's current session.
type Server struct {
	mcpServer   *mcp.Server
	sessions    *session.Manager
	gateways    *gateway.Accessor
	cloner      *gateway.Cloner
	bearerToken string
}

// NewServer creates a new MCP server for the gateway console
func NewServer(sessions *session.Manager, gateways *gateway.Accessor, cloner *gateway.Cloner, bearerToken string) *Server {
	s := &Server{
		mcpServer:   mcp.NewServer("gwconsole", serverVersion),
		sessions:    sessions,
		gateways:    gateways,
		cloner:      cloner,
		bearerToken: bearerToken,
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.RegisterTool(
		mcp.NewTool("session_status", "Show whether the console is logged in to a management server, and as whom"),
		s.handleSessionStatus,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("gateway_list", "Fetch the current gateway list, optionally filtered by a case-insensitive match on name or IPv4 address",
			mcp.String("query", "Text to match against gateway name or IPv4 address"),
		),
		s.handleGatewayList,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("gateway_get", "Get the full configuration of one gateway",
			mcp.String("uid", "Gateway UID", mcp.Required()),
		),
		s.handleGatewayGet,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("gateway_clone", "Create a new gateway from an existing one with a new name and IPv4 address, then publish it",
			mcp.String("source_uid", "UID of the gateway to copy", mcp.Required()),
			mcp.String("name", "Name of the new gateway", mcp.Required()),
			mcp.String("ipv4_address", "IPv4 address of the new gateway", mcp.Required()),
			mcp.String("comment", "Comment for the new gateway (defaults to 'Clone of <source>')"),
		),
		s.handleGatewayClone,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("gateway_publish", "Publish pending changes. With uid, retries the publish of a clone that was created but not published",
			mcp.String("uid", "UID of a created but unpublished clone"),
		),
		s.handleGatewayPublish,
	)

	s.mcpServer.RegisterTool(
		mcp.NewTool("gateway_pending", "List clones that were created but never published"),
		s.handleGatewayPending,
	)
}

// HandleRequest handles MCP HTTP requests with optional bearer token authentication
func (s *Server) HandleRequest(w http.ResponseWriter, r *http.Request) {
	log.Debug("MCP request received", "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)

	if s.bearerToken != "" {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			log.Warn("MCP request missing Authorization header", "remote_addr", r.RemoteAddr)
			http.Error(w, "Unauthorized: Missing Authorization header", http.StatusUnauthorized)
			return
		}
		if !strings.HasPrefix(auth, "Bearer ") {
			log.Warn("MCP request invalid Authorization format", "remote_addr", r.RemoteAddr)
			http.Error(w, "Unauthorized: Invalid Authorization format", http.StatusUnauthorized)
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.bearerToken)) != 1 {
			log.Warn("MCP request invalid token", "remote_addr", r.RemoteAddr)
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}
	}

	s.mcpServer.HandleRequest(w, r)
}

func (s *Server) handleSessionStatus(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	st := s.sessions.Current().Status()
	if !st.Authenticated {
		return mcp.NewToolResponseText("Not logged in"), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("Logged in to %s as %s\n", st.ServerURL, st.Username))
	if st.Domain != "" {
		result.WriteString(fmt.Sprintf("Domain: %s\n", st.Domain))
	}
	if st.LoggedInAt != nil {
		result.WriteString(fmt.Sprintf("Since: %s\n", st.LoggedInAt.Format("2006-01-02 15:04:05 MST")))
	}
	return mcp.NewToolResponseText(result.String()), nil
}

func (s *Server) handleGatewayList(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	query := req.StringOr("query", "")
	log.Debug("MCP gateway list request", "query", query)

	snap, err := s.gateways.Refresh(ctx, s.sessions.Current())
	if err != nil && !errors.Is(err, gateway.ErrSuperseded) {
		return nil, toolError("failed to list gateways", err)
	}

	gateways := gateway.Filter(snap.Gateways, query)
	log.Info("MCP gateway list completed", "count", len(gateways), "total", len(snap.Gateways), "query", query)

	if len(gateways) == 0 {
		if query != "" {
			return mcp.NewToolResponseText(fmt.Sprintf("No gateways found matching: %s", query)), nil
		}
		return mcp.NewToolResponseText("No gateways found"), nil
	}

	var result strings.Builder
	if query != "" {
		result.WriteString(fmt.Sprintf("Found %d of %d gateways matching '%s':\n\n", len(gateways), len(snap.Gateways), query))
	} else {
		result.WriteString(fmt.Sprintf("Found %d gateways:\n\n", len(gateways)))
	}
	for i := range gateways {
		result.WriteString(formatGatewaySummary(&gateways[i]))
		result.WriteString("\n")
	}
	return mcp.NewToolResponseText(result.String()), nil
}

func (s *Server) handleGatewayGet(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	uid, err := req.String("uid")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("uid is required: " + err.Error())
	}

	gw, err := s.gateways.Get(ctx, s.sessions.Current(), uid)
	if err != nil {
		return nil, toolError("failed to get gateway", err)
	}
	return mcp.NewToolResponseText(formatGatewayDetail(gw)), nil
}

func (s *Server) handleGatewayClone(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	sourceUID, err := req.String("source_uid")
	if err != nil {
		return nil, mcp.NewToolErrorInvalidParams("source_uid is required: " + err.Error())
	}
	cloneReq := model.CloneRequest{
		Name:        req.StringOr("name", ""),
		IPv4Address: req.StringOr("ipv4_address", ""),
		Comment:     req.StringOr("comment", ""),
	}

	log.Debug("MCP gateway clone request", "source_uid", sourceUID, "name", cloneReq.Name)

	sess := s.sessions.Current()
	source, err := s.gateways.Get(ctx, sess, sourceUID)
	if err != nil {
		return nil, toolError("failed to read source gateway", err)
	}

	created, err := s.cloner.Clone(ctx, sess, source, cloneReq)
	if err != nil {
		return nil, toolError("clone failed", err)
	}

	log.Info("MCP gateway cloned", "source_uid", sourceUID, "uid", created.UID, "name", created.Name)
	return mcp.NewToolResponseText(fmt.Sprintf("Gateway %s created from %s and published (uid %s)", created.Name, source.Name, created.UID)), nil
}

func (s *Server) handleGatewayPublish(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	sess := s.sessions.Current()

	if uid := req.StringOr("uid", ""); uid != "" {
		rec, err := s.cloner.RetryPublish(ctx, sess, uid)
		if err != nil {
			return nil, toolError("publish failed", err)
		}
		return mcp.NewToolResponseText(fmt.Sprintf("Gateway %s (uid %s) is published", rec.Name, rec.UID)), nil
	}

	taskID, err := s.cloner.Publish(ctx, sess)
	if err != nil {
		return nil, toolError("publish failed", err)
	}
	return mcp.NewToolResponseText("Publish started, task " + taskID), nil
}

func (s *Server) handleGatewayPending(ctx context.Context, req *mcp.ToolRequest) (*mcp.ToolResponse, error) {
	recs, err := s.cloner.PendingPublish(s.sessions.Current())
	if err != nil {
		return nil, toolError("failed to list pending clones", err)
	}
	if len(recs) == 0 {
		return mcp.NewToolResponseText("No unpublished clones"), nil
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("%d unpublished clones:\n\n", len(recs)))
	for _, rec := range recs {
		result.WriteString(fmt.Sprintf("- %s (uid %s, %s) from %s: %s", rec.Name, rec.UID, rec.IPv4Address, rec.SourceName, rec.State))
		if rec.OtherSession {
			result.WriteString(" [created in another session]")
		}
		result.WriteString("\n")
	}
	return mcp.NewToolResponseText(result.String()), nil
}

// toolError turns a workflow error into a tool error. Input problems are
// reported as invalid params, everything else as internal errors.
func toolError(prefix string, err error) error {
	var valErr *mgmt.ValidationError
	if errors.As(err, &valErr) {
		return mcp.NewToolErrorInvalidParams(valErr.Error())
	}
	log.Warn("MCP tool failed", "error", err)
	return mcp.NewToolErrorInternal(prefix + ": " + err.Error())
}

func formatGatewaySummary(gw *model.Gateway) string {
	var result strings.Builder
	result.WriteString(fmt.Sprintf("Name: %s\n", gw.Name))
	result.WriteString(fmt.Sprintf("UID: %s\n", gw.UID))
	if gw.IPv4Address != "" {
		result.WriteString(fmt.Sprintf("IPv4: %s\n", gw.IPv4Address))
	}
	if gw.Version != "" {
		result.WriteString(fmt.Sprintf("Version: %s\n", gw.Version))
	}
	return result.String()
}

func formatGatewayDetail(gw *model.Gateway) string {
	var result strings.Builder
	result.WriteString(formatGatewaySummary(gw))
	if gw.OSName != "" {
		result.WriteString(fmt.Sprintf("OS: %s\n", gw.OSName))
	}
	if gw.Hardware != "" {
		result.WriteString(fmt.Sprintf("Hardware: %s\n", gw.Hardware))
	}
	if gw.SICState != "" {
		result.WriteString(fmt.Sprintf("SIC state: %s\n", gw.SICState))
	}
	if gw.Domain != nil && gw.Domain.Name != "" {
		result.WriteString(fmt.Sprintf("Domain: %s\n", gw.Domain.Name))
	}
	if len(gw.Interfaces) > 0 {
		result.WriteString("Interfaces:\n")
		for _, iface := range gw.Interfaces {
			addr := iface.IPv4Address
			if addr != "" && iface.IPv4MaskLength != "" {
				addr += "/" + iface.IPv4MaskLength
			}
			result.WriteString(fmt.Sprintf("  - %s %s\n", iface.Name, addr))
		}
	}
	return result.String()
}

// GetHTTPHandler returns the HTTP handler for the MCP server
func (s *Server) GetHTTPHandler() http.HandlerFunc {
	return s.HandleRequest
}

// LogStartup logs MCP server startup information
func (s *Server) LogStartup() {
	log.Info("MCP Server initialized", "version", serverVersion)
	if s.bearerToken != "" {
		log.Info("MCP authentication enabled", "type", "Bearer token")
	} else {
		log.Info("MCP authentication disabled")
	}
	tools := s.mcpServer.ListTools()
	log.Info("MCP tools registered", "count", len(tools))
	for _, tool := range tools {
		log.Debug("MCP tool registered", "name", tool.Name, "description", tool.Description)
	}
}
