// Package mcp implements the Model Context Protocol server for the room
// marketplace.
//
// The MCP server exposes the marketplace client through MCP resources and
// tools, so MCP-compatible agents can inspect the auction grid, buy slots,
// place limit orders, and drive allocation searches.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	rooms "github.com/BntM/market-for-rooms"
)

// Server wraps the MCP server with the marketplace client and the
// orchestration engines built on it.
type Server struct {
	mcpServer *mcpserver.MCPServer
	client    *rooms.Client
	executor  *rooms.Executor
	orch      *rooms.Orchestrator
	logger    *slog.Logger

	mu  sync.Mutex
	job *rooms.JobHandle
}

// New creates and configures a new MCP server with all resources and tools.
// opts are forwarded to the executor and orchestrator (poll interval,
// deadline, logger).
func New(client *rooms.Client, logger *slog.Logger, opts ...rooms.Option) *Server {
	opts = append([]rooms.Option{rooms.WithLogger(logger)}, opts...)
	s := &Server{
		client:   client,
		executor: rooms.NewExecutor(client, opts...),
		orch:     rooms.NewOrchestrator(client, opts...),
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"rooms",
		rooms.Version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// rooms://market/grid: the current resource-by-time auction grid.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"rooms://market/grid",
			"Market Grid",
			mcplib.WithResourceDescription("Current resource-by-time grid of live auctions"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleMarketGrid,
	)

	// rooms://agents: all economic actors and their balances.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"rooms://agents",
			"Agents",
			mcplib.WithResourceDescription("All agents with current token balances"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleAgents,
	)
}

func (s *Server) registerTools() {
	// rooms_buy_slots: price a selection and execute the purchase protocol.
	s.mcpServer.AddTool(
		mcplib.NewTool("rooms_buy_slots",
			mcplib.WithDescription("Buy a set of time slots at their current auction prices. Best-effort: each slot is an independent purchase and a failure does not roll back the others."),
			mcplib.WithString("agent_id", mcplib.Description("Acting agent identifier"), mcplib.Required()),
			mcplib.WithString("slot_ids", mcplib.Description("Comma-separated time slot identifiers, purchased in order"), mcplib.Required()),
			mcplib.WithString("split_partner_id", mcplib.Description("Optional partner agent splitting the total cost 50/50")),
		),
		s.handleBuySlots,
	)

	// rooms_limit_order: standing buy order on one auction.
	s.mcpServer.AddTool(
		mcplib.NewTool("rooms_limit_order",
			mcplib.WithDescription("Create a standing order that buys automatically once the Dutch auction price decays to max_price or below"),
			mcplib.WithString("auction_id", mcplib.Description("Auction identifier"), mcplib.Required()),
			mcplib.WithString("agent_id", mcplib.Description("Acting agent identifier"), mcplib.Required()),
			mcplib.WithNumber("max_price", mcplib.Description("Highest acceptable price"), mcplib.Required()),
		),
		s.handleLimitOrder,
	)

	// rooms_cancel_limit_order: cancel a standing order.
	s.mcpServer.AddTool(
		mcplib.NewTool("rooms_cancel_limit_order",
			mcplib.WithDescription("Cancel a standing limit order"),
			mcplib.WithString("order_id", mcplib.Description("Limit order identifier"), mcplib.Required()),
		),
		s.handleCancelLimitOrder,
	)

	// rooms_run_search: submit a token-policy grid search.
	s.mcpServer.AddTool(
		mcplib.NewTool("rooms_run_search",
			mcplib.WithDescription("Start a grid search over token allocation policies. Returns a job id; poll with rooms_search_status."),
			mcplib.WithString("token_amounts", mcplib.Description("Comma-separated token amounts to sweep"), mcplib.Required()),
			mcplib.WithString("token_frequencies", mcplib.Description("Comma-separated token grant frequencies in days"), mcplib.Required()),
			mcplib.WithNumber("num_seeds", mcplib.Description("Simulation seeds per parameter pair, default 5")),
		),
		s.handleRunSearch,
	)

	// rooms_search_status: progress of the active search job.
	s.mcpServer.AddTool(
		mcplib.NewTool("rooms_search_status",
			mcplib.WithDescription("Report the state, progress, and result of the most recently submitted search job"),
		),
		s.handleSearchStatus,
	)

	// rooms_apply_best: apply a chosen policy to the live market.
	s.mcpServer.AddTool(
		mcplib.NewTool("rooms_apply_best",
			mcplib.WithDescription("Apply a token policy to the live marketplace"),
			mcplib.WithNumber("token_amount", mcplib.Description("Tokens granted per cycle"), mcplib.Required()),
			mcplib.WithNumber("token_frequency", mcplib.Description("Grant frequency in days"), mcplib.Required()),
		),
		s.handleApplyBest,
	)
}

func (s *Server) handleMarketGrid(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	snap, err := s.client.MarketView(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: market view: %w", err)
	}
	grid := rooms.Reconcile(snap.Resources, snap.Auctions)

	data, err := json.MarshalIndent(renderGrid(grid), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal grid: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "rooms://market/grid",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleAgents(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	agents, err := s.client.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: list agents: %w", err)
	}

	data, err := json.MarshalIndent(agents, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal agents: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "rooms://agents",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleBuySlots(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	agentID := request.GetString("agent_id", "")
	slotIDs := splitList(request.GetString("slot_ids", ""))
	if agentID == "" || len(slotIDs) == 0 {
		return errorResult("agent_id and slot_ids are required"), nil
	}

	// Re-fetch snapshots immediately before execution; a cached basket
	// price is not a quote.
	snap, err := s.client.MarketView(ctx, nil)
	if err != nil {
		return errorResult(fmt.Sprintf("market view failed: %v", err)), nil
	}
	bySlot := rooms.AuctionsBySlot(snap.Auctions)

	slotsByID := make(map[string]rooms.TimeSlot)
	for _, a := range snap.Auctions {
		if a.TimeSlot != nil {
			slotsByID[a.TimeSlot.ID] = *a.TimeSlot
		}
	}

	basket := rooms.NewBasket()
	for _, id := range slotIDs {
		slot, ok := slotsByID[id]
		if !ok {
			return errorResult(fmt.Sprintf("unknown slot: %s", id)), nil
		}
		basket.Toggle(slot)
	}

	var partner *rooms.Agent
	if pid := request.GetString("split_partner_id", ""); pid != "" {
		partner = &rooms.Agent{ID: pid}
	}

	priced := basket.Price(bySlot, partner)
	report, err := s.executor.Execute(ctx, priced, rooms.Agent{ID: agentID})
	if err != nil {
		return errorResult(fmt.Sprintf("execution rejected: %v", err)), nil
	}

	type itemResult struct {
		SlotID string  `json:"slot_id"`
		Price  float64 `json:"price,omitempty"`
		BidID  string  `json:"bid_id,omitempty"`
		Error  string  `json:"error,omitempty"`
	}
	items := make([]itemResult, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		ir := itemResult{SlotID: o.Item.Slot.ID, Price: o.Item.Price}
		if o.Bid != nil {
			ir.BidID = o.Bid.ID
		}
		if o.Err != nil {
			ir.Error = o.Err.Error()
		}
		items = append(items, ir)
	}

	resultData, _ := json.MarshalIndent(map[string]any{
		"succeeded":     report.Succeeded,
		"failed":        report.Failed,
		"total":         priced.Total,
		"share":         priced.Share,
		"partner_share": priced.PartnerShare,
		"items":         items,
	}, "", "  ")

	return textResult(string(resultData)), nil
}

func (s *Server) handleLimitOrder(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	auctionID := request.GetString("auction_id", "")
	agentID := request.GetString("agent_id", "")
	maxPrice := request.GetFloat("max_price", 0)
	if auctionID == "" || agentID == "" || maxPrice <= 0 {
		return errorResult("auction_id, agent_id, and a positive max_price are required"), nil
	}

	order, err := s.client.CreateLimitOrder(ctx, auctionID, rooms.LimitOrderRequest{
		AgentID:  agentID,
		MaxPrice: maxPrice,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("limit order failed: %v", err)), nil
	}

	resultData, _ := json.Marshal(map[string]any{
		"order_id": order.ID,
		"status":   order.Status,
	})
	return textResult(string(resultData)), nil
}

func (s *Server) handleCancelLimitOrder(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	orderID := request.GetString("order_id", "")
	if orderID == "" {
		return errorResult("order_id is required"), nil
	}

	if err := s.client.CancelLimitOrder(ctx, orderID); err != nil {
		return errorResult(fmt.Sprintf("cancel failed: %v", err)), nil
	}
	return textResult(`{"status":"cancelled"}`), nil
}

func (s *Server) handleRunSearch(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	amounts, err := parseFloats(request.GetString("token_amounts", ""))
	if err != nil {
		return errorResult(fmt.Sprintf("token_amounts: %v", err)), nil
	}
	frequencies, err := parseInts(request.GetString("token_frequencies", ""))
	if err != nil {
		return errorResult(fmt.Sprintf("token_frequencies: %v", err)), nil
	}
	numSeeds := request.GetInt("num_seeds", 5)

	// The poll loop must outlive this tool call; it is bound to the
	// server's lifetime, not the request's.
	handle, err := s.orch.Submit(context.WithoutCancel(ctx), rooms.GridSearchRequest{
		TokenAmounts:     amounts,
		TokenFrequencies: frequencies,
		NumSeeds:         numSeeds,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("submit failed: %v", err)), nil
	}

	s.mu.Lock()
	s.job = handle
	s.mu.Unlock()

	resultData, _ := json.Marshal(map[string]any{
		"job_id": handle.JobID(),
		"state":  handle.State(),
	})
	return textResult(string(resultData)), nil
}

func (s *Server) handleSearchStatus(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	s.mu.Lock()
	handle := s.job
	s.mu.Unlock()
	if handle == nil {
		return errorResult("no search job has been submitted"), nil
	}

	status := map[string]any{
		"job_id":   handle.JobID(),
		"state":    handle.State(),
		"progress": handle.Progress(),
	}
	if result := handle.Result(); result != nil {
		status["result"] = result
	}
	if err := handle.Err(); err != nil {
		status["error"] = err.Error()
	}

	resultData, _ := json.MarshalIndent(status, "", "  ")
	return textResult(string(resultData)), nil
}

func (s *Server) handleApplyBest(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	amount := request.GetFloat("token_amount", 0)
	frequency := request.GetInt("token_frequency", 0)
	if amount <= 0 || frequency <= 0 {
		return errorResult("token_amount and token_frequency must be positive"), nil
	}

	err := s.client.ApplyBest(ctx, rooms.ApplyBestRequest{
		TokenAmount:    amount,
		TokenFrequency: frequency,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("apply failed: %v", err)), nil
	}
	return textResult(`{"status":"applied"}`), nil
}

// ---------------------------------------------------------------------------
// Rendering and argument parsing
// ---------------------------------------------------------------------------

type gridCellView struct {
	SlotID       string  `json:"slot_id,omitempty"`
	SlotStatus   string  `json:"slot_status,omitempty"`
	AuctionID    string  `json:"auction_id,omitempty"`
	Status       string  `json:"auction_status,omitempty"`
	CurrentPrice float64 `json:"current_price,omitempty"`
}

type gridRowView struct {
	ResourceID   string         `json:"resource_id"`
	ResourceName string         `json:"resource_name"`
	Cells        []gridCellView `json:"cells"`
}

type gridView struct {
	Times []string      `json:"times"`
	Rows  []gridRowView `json:"rows"`
	Empty bool          `json:"empty"`
}

func renderGrid(grid rooms.Grid) gridView {
	view := gridView{Empty: grid.Empty()}
	for _, t := range grid.Times {
		view.Times = append(view.Times, t.Format("2006-01-02T15:04:05Z07:00"))
	}
	for _, row := range grid.Rows {
		rv := gridRowView{ResourceID: row.Resource.ID, ResourceName: row.Resource.Name}
		for _, cell := range row.Cells {
			var cv gridCellView
			if cell.Present() {
				cv.SlotID = cell.Slot.ID
				cv.SlotStatus = string(cell.Slot.Status)
				cv.AuctionID = cell.Auction.ID
				cv.Status = string(cell.Auction.Status)
				cv.CurrentPrice = cell.Auction.CurrentPrice
			}
			rv.Cells = append(rv.Cells, cv)
		}
		view.Rows = append(view.Rows, rv)
	}
	return view
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseFloats(s string) ([]float64, error) {
	parts := splitList(s)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", p)
		}
		out = append(out, f)
	}
	return out, nil
}

func parseInts(s string) ([]int, error) {
	parts := splitList(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
