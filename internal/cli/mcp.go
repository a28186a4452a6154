package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/colthorp/prospect/internal/auth"
	"github.com/colthorp/prospect/internal/core"
	"github.com/colthorp/prospect/internal/detect"
	"github.com/colthorp/prospect/internal/model"
	"github.com/colthorp/prospect/internal/search"
	"github.com/colthorp/prospect/internal/service"
)

// MCP Protocol types
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type MCPResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *MCPError `json:"error,omitempty"`
}

type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type MCPToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type MCPInitializeResult struct {
	ProtocolVersion string        `json:"protocolVersion"`
	ServerInfo      MCPServerInfo `json:"serverInfo"`
	Capabilities    any           `json:"capabilities"`
}

// SearchProspectsParams are the parameters for the search_prospects tool
type SearchProspectsParams struct {
	Location    string   `json:"location"`
	RadiusKm    float64  `json:"radius_km"`
	Types       []string `json:"types"`
	Price       string   `json:"price"`
	MinRating   *float64 `json:"min_rating"`
	MaxRating   *float64 `json:"max_rating"`
	CountOnly   bool     `json:"count_only"`
	AccessToken string   `json:"access_token"`
}

// DetectWebsiteParams are the parameters for the detect_website tool
type DetectWebsiteParams struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// JSON-RPC error codes
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// mcpServer answers MCP requests, one JSON-RPC message per line.
type mcpServer struct {
	svc      *service.Prospector
	detector detect.TechDetector
	token    string
	logger   *zap.Logger
	out      io.Writer
}

func newMCPServer(svc *service.Prospector, detector detect.TechDetector, token string, logger *zap.Logger) *mcpServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &mcpServer{svc: svc, detector: detector, token: token, logger: logger}
}

// Serve reads requests from in until EOF and writes responses to out.
func (s *mcpServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.out = out
	scanner := bufio.NewScanner(in)
	// Increase buffer size for large messages
	const maxCapacity = 10 * 1024 * 1024 // 10MB
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			// The ID is unknown, so no response is sent; a null id confuses clients.
			s.logger.Warn("mcp parse error", zap.Error(err))
			continue
		}

		s.handle(ctx, &req)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

func (s *mcpServer) handle(ctx context.Context, req *MCPRequest) {
	switch req.Method {
	case "initialize":
		s.sendResponse(req.ID, MCPInitializeResult{
			ProtocolVersion: "2024-11-05",
			ServerInfo:      MCPServerInfo{Name: "prospect", Version: core.Version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "initialized", "notifications/initialized":
		// Notifications don't get responses
	case "tools/list":
		s.sendResponse(req.ID, map[string]any{"tools": tools()})
	case "tools/call":
		s.handleToolsCall(ctx, req)
	default:
		// Notifications (no ID) are silently ignored
		if req.ID != nil {
			s.sendError(req.ID, codeMethodNotFound, "Method not found", req.Method)
		}
	}
}

func tools() []MCPToolInfo {
	return []MCPToolInfo{
		{
			Name: "search_prospects",
			Description: "Count or list independent restaurants around a location, with detected website technology and a 0-100 prospect fit score.\n\n" +
				"Results are cached; repeated searches with the same filters are answered without upstream calls.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"location":     map[string]any{"type": "string", "description": "ZIP code, address or \"lat,lng\""},
					"radius_km":    map[string]any{"type": "number", "description": "Search radius in kilometres", "default": core.DefaultRadiusKm},
					"types":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Place types such as restaurant or cafe"},
					"price":        map[string]any{"type": "string", "description": "Price tiers: $$, $$-$$$ or 1,2"},
					"min_rating":   map[string]any{"type": "number", "default": core.DefaultMinRating},
					"max_rating":   map[string]any{"type": "number", "default": core.DefaultMaxRating},
					"count_only":   map[string]any{"type": "boolean", "description": "Return counts and category breakdown only", "default": false},
					"access_token": map[string]any{"type": "string", "description": "Overrides the server's access token"},
				},
				"required": []string{"location"},
			},
		},
		{
			Name:        "detect_website",
			Description: "Detect the website platform, ordering, delivery, reservation, loyalty and POS systems of one restaurant website.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url":  map[string]any{"type": "string", "description": "Website URL"},
					"name": map[string]any{"type": "string", "description": "Business name, for chain detection"},
				},
				"required": []string{"url"},
			},
		},
		{
			Name:        "cache_stats",
			Description: "Report search cache hits, misses and tier sizes.",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		},
	}
}

func (s *mcpServer) handleToolsCall(ctx context.Context, req *MCPRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, codeInvalidParams, "Invalid params", err.Error())
		return
	}

	switch params.Name {
	case "search_prospects":
		s.searchProspects(ctx, req.ID, params.Arguments)
	case "detect_website":
		s.detectWebsite(ctx, req.ID, params.Arguments)
	case "cache_stats":
		s.sendToolResult(req.ID, s.svc.Stats(ctx))
	default:
		s.sendError(req.ID, codeInvalidParams, "Unknown tool", params.Name)
	}
}

func (s *mcpServer) searchProspects(ctx context.Context, id any, argsJSON json.RawMessage) {
	var args SearchProspectsParams
	if err := unmarshalArgs(argsJSON, &args); err != nil {
		s.sendToolError(id, fmt.Sprintf("Invalid arguments: %v", err))
		return
	}

	q := search.DefaultQuery(args.Location)
	if zip, err := core.ParseZIP(args.Location); err == nil {
		q.Location = zip
	}
	if args.RadiusKm > 0 {
		q.RadiusKm = args.RadiusKm
	}
	for _, t := range args.Types {
		q.Types = append(q.Types, core.ParseList(t)...)
	}
	if args.MinRating != nil {
		q.MinRating = *args.MinRating
	}
	if args.MaxRating != nil {
		q.MaxRating = *args.MaxRating
	}
	if args.CountOnly {
		q.Shape = model.ShapeCount
	}
	levels, err := core.ParsePriceLevels(args.Price)
	if err != nil {
		s.sendToolError(id, err.Error())
		return
	}
	q.PriceLevels = levels

	tok := s.token
	if args.AccessToken != "" {
		tok = args.AccessToken
	}

	resp, err := s.svc.Search(ctx, tok, q)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			s.sendToolError(id, "Authentication required: "+err.Error())
			return
		}
		s.logger.Warn("mcp search failed", zap.Error(err))
		s.sendToolError(id, err.Error())
		return
	}
	s.sendToolResult(id, resp)
}

func (s *mcpServer) detectWebsite(ctx context.Context, id any, argsJSON json.RawMessage) {
	var args DetectWebsiteParams
	if err := unmarshalArgs(argsJSON, &args); err != nil {
		s.sendToolError(id, fmt.Sprintf("Invalid arguments: %v", err))
		return
	}
	if args.URL == "" {
		s.sendToolError(id, "url is required")
		return
	}

	s.sendToolResult(id, map[string]any{
		"url":       args.URL,
		"techStack": s.detector.Detect(ctx, args.URL),
		"chain":     detect.DetectChain(args.Name, args.URL),
	})
}

// unmarshalArgs tolerates absent arguments.
func unmarshalArgs(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (s *mcpServer) send(resp MCPResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("mcp encode response", zap.Error(err))
		return
	}
	fmt.Fprintln(s.out, string(data))
}

func (s *mcpServer) sendResponse(id any, result any) {
	s.send(MCPResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *mcpServer) sendError(id any, code int, message, data string) {
	s.send(MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &MCPError{Code: code, Message: message, Data: data},
	})
}

func (s *mcpServer) sendToolResult(id any, result any) {
	s.sendResponse(id, map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": mustMarshal(result)},
		},
	})
}

func (s *mcpServer) sendToolError(id any, message string) {
	s.sendResponse(id, map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": message},
		},
		"isError": true,
	})
}

func mustMarshal(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(data)
}
