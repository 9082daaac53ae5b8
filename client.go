package rooms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Version is the client library version, sent in the User-Agent header.
const Version = "0.1.0"

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the marketplace server
	// (e.g. "http://localhost:8000"). The "/api" prefix is appended here.
	BaseURL string

	// APIKey is an optional bearer token for fronted deployments. The
	// marketplace itself is unauthenticated.
	APIKey string

	// HTTPClient is an optional custom HTTP client. If nil, a default
	// client with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the room marketplace API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL   string
	apiKey    string
	client    *http.Client
	sessionID uuid.UUID
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rooms: BaseURL is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/") + "/api"

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		client:    httpClient,
		sessionID: uuid.New(),
	}, nil
}

// SessionID returns the identifier sent with every request from this client
// instance, for correlating server-side logs with one interactive session.
func (c *Client) SessionID() uuid.UUID {
	return c.sessionID
}

// ListResources returns bookable resources, optionally filtered to one
// location tag. An empty location returns everything.
func (c *Client) ListResources(ctx context.Context, location string) ([]Resource, error) {
	path := "/resources/"
	if location != "" {
		path += "?location=" + url.QueryEscape(location)
	}
	var resp []Resource
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListAuctions returns auction snapshots with their denormalized time slots,
// optionally filtered. Nil opts returns everything.
func (c *Client) ListAuctions(ctx context.Context, opts *ListAuctionsOptions) ([]AuctionSnapshot, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Status != "" {
			params.Set("status", string(opts.Status))
		}
		if opts.ResourceID != "" {
			params.Set("resource_id", opts.ResourceID)
		}
		if !opts.StartDate.IsZero() {
			params.Set("start_date", opts.StartDate.Format(time.RFC3339))
		}
		if !opts.EndDate.IsZero() {
			params.Set("end_date", opts.EndDate.Format(time.RFC3339))
		}
	}

	path := "/auctions/"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp []AuctionSnapshot
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListAgents returns all economic actors known to the marketplace.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var resp []Agent
	if err := c.get(ctx, "/agents/", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetAgent returns one agent, including its current token balance. The
// balance is a cache the moment it arrives; re-fetch after any purchase.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	var resp Agent
	if err := c.get(ctx, "/agents/"+agentID, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PlaceBid attempts a purchase on an auction at the client's last-seen
// price. The server re-validates against its live price and balance and
// rejects with a reason when either has moved.
func (c *Client) PlaceBid(ctx context.Context, auctionID string, req BidRequest) (*Bid, error) {
	var resp Bid
	if err := c.post(ctx, "/auctions/"+auctionID+"/bid", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateLimitOrder creates a standing buy order on an auction.
func (c *Client) CreateLimitOrder(ctx context.Context, auctionID string, req LimitOrderRequest) (*LimitOrder, error) {
	var resp LimitOrder
	if err := c.post(ctx, "/auctions/"+auctionID+"/limit-order", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelLimitOrder cancels a standing order. Returns nil on success
// (204 No Content).
func (c *Client) CancelLimitOrder(ctx context.Context, orderID string) error {
	return c.doDelete(ctx, "/auctions/limit-orders/"+orderID, nil)
}

// ---------------------------------------------------------------------------
// Simulation / allocation search
// ---------------------------------------------------------------------------

// SubmitGridSearch starts a server-side grid search over token policies and
// returns the job identifier to poll. Parameter lists must be non-empty.
func (c *Client) SubmitGridSearch(ctx context.Context, req GridSearchRequest) (string, error) {
	if len(req.TokenAmounts) == 0 || len(req.TokenFrequencies) == 0 {
		return "", ErrNoParameters
	}
	var resp submitResponse
	if err := c.post(ctx, "/pz-simulation/run", req, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

// JobStatus polls a submitted grid search job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*ServerJobStatus, error) {
	var resp ServerJobStatus
	if err := c.get(ctx, "/pz-simulation/status/"+jobID, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunSimulation runs a single simulation synchronously with fixed
// parameters, without the grid search machinery.
func (c *Client) RunSimulation(ctx context.Context, cfg SimulationConfig) (*SimulationResult, error) {
	var resp SimulationResult
	if err := c.post(ctx, "/pz-simulation/single", cfg, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ApplyBest applies a chosen token policy to the live marketplace. One-shot,
// not polled.
func (c *Client) ApplyBest(ctx context.Context, req ApplyBestRequest) error {
	return c.post(ctx, "/pz-simulation/apply-best", req, nil)
}

// ---------------------------------------------------------------------------
// Aggregate fetch
// ---------------------------------------------------------------------------

// MarketView fetches resources, auctions, and agents in parallel and returns
// them as one snapshot. Any single failure fails the whole fetch; partial
// market state is worse than no market state for grid building.
func (c *Client) MarketView(ctx context.Context, opts *ListAuctionsOptions) (*MarketSnapshot, error) {
	var snap MarketSnapshot
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		resources, err := c.ListResources(ctx, "")
		if err != nil {
			return err
		}
		snap.Resources = resources
		return nil
	})
	g.Go(func() error {
		auctions, err := c.ListAuctions(ctx, opts)
		if err != nil {
			return err
		}
		snap.Auctions = auctions
		return nil
	})
	g.Go(func() error {
		agents, err := c.ListAgents(ctx)
		if err != nil {
			return err
		}
		snap.Agents = agents
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// errorEnvelope is the server's error response shape.
type errorEnvelope struct {
	Detail string `json:"detail"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("rooms: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("rooms: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("rooms: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) doDelete(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("rooms: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	req.Header.Set("User-Agent", "rooms-go/"+Version)
	req.Header.Set("X-Rooms-Session", c.sessionID.String())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("rooms: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("rooms: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	// 204 No Content has nothing to decode.
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return fmt.Errorf("rooms: decode response: %w", err)
	}
	return nil
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Detail != "" {
		apiErr.Message = envelope.Detail
	} else if len(body) > 0 {
		apiErr.Message = string(body)
	} else {
		apiErr.Message = http.StatusText(statusCode)
	}

	return apiErr
}
