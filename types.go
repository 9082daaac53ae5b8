package rooms

import (
	"encoding/json"
	"time"
)

// SlotStatus is the lifecycle state of a time slot.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotInAuction SlotStatus = "in_auction"
	SlotBooked    SlotStatus = "booked"
)

// AuctionStatus is the lifecycle state of a Dutch auction.
type AuctionStatus string

const (
	AuctionPending   AuctionStatus = "pending"
	AuctionActive    AuctionStatus = "active"
	AuctionCompleted AuctionStatus = "completed"
	AuctionExpired   AuctionStatus = "expired"
)

// Resource is a bookable physical unit (a room).
type Resource struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	ResourceType string         `json:"resource_type"`
	Location     string         `json:"location"`
	Capacity     int            `json:"capacity"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	IsActive     bool           `json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
}

// TimeSlot is a fixed [StartTime, EndTime) interval on exactly one resource.
type TimeSlot struct {
	ID             string     `json:"id"`
	ResourceID     string     `json:"resource_id"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	Status         SlotStatus `json:"status"`
	BookedAgentIDs []string   `json:"booked_agent_ids,omitempty"`
}

// AuctionSnapshot is a point-in-time view of one auction. The server is the
// sole source of truth; CurrentPrice may already be stale when observed.
type AuctionSnapshot struct {
	ID              string        `json:"id"`
	TimeSlotID      string        `json:"time_slot_id"`
	AuctionType     string        `json:"auction_type"`
	Status          AuctionStatus `json:"status"`
	StartPrice      float64       `json:"start_price"`
	CurrentPrice    float64       `json:"current_price"`
	MinPrice        float64       `json:"min_price"`
	PriceStep       float64       `json:"price_step"`
	TickIntervalSec float64       `json:"tick_interval_sec"`
	CreatedAt       time.Time     `json:"created_at"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`

	// TimeSlot is the denormalized slot the auction is bound to. The list
	// endpoint always populates it; it is what the grid join runs on.
	TimeSlot *TimeSlot `json:"time_slot,omitempty"`
}

// Active reports whether the auction is currently accepting purchases.
func (a *AuctionSnapshot) Active() bool {
	return a != nil && a.Status == AuctionActive
}

// Agent is an economic actor holding a token balance.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	TokenBalance float64   `json:"token_balance"`
	IsActive     bool      `json:"is_active"`
	MaxBookings  int       `json:"max_bookings"`
	CreatedAt    time.Time `json:"created_at"`
}

// Bid is the record of an accepted purchase attempt.
type Bid struct {
	ID         string    `json:"id"`
	AuctionID  string    `json:"auction_id"`
	AgentID    string    `json:"agent_id"`
	Amount     float64   `json:"amount"`
	IsGroupBid bool      `json:"is_group_bid"`
	Status     string    `json:"status"`
	PlacedAt   time.Time `json:"placed_at"`
}

// LimitOrder is a standing instruction to buy when the price decays to
// MaxPrice or below.
type LimitOrder struct {
	ID         string     `json:"id"`
	AgentID    string     `json:"agent_id"`
	TimeSlotID string     `json:"time_slot_id"`
	MaxPrice   float64    `json:"max_price"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	BidID      *string    `json:"bid_id,omitempty"`
}

// ---------------------------------------------------------------------------
// Request types
// ---------------------------------------------------------------------------

// ListAuctionsOptions are optional filters for ListAuctions.
type ListAuctionsOptions struct {
	Status     AuctionStatus
	ResourceID string
	StartDate  time.Time
	EndDate    time.Time
}

// BidRequest places a purchase at the client's last-seen price. The server
// re-validates against its live price and may reject.
type BidRequest struct {
	AgentID        string  `json:"agent_id"`
	Amount         float64 `json:"amount"`
	SplitPartnerID *string `json:"split_partner_id,omitempty"`
}

// LimitOrderRequest creates a standing order on an auction.
type LimitOrderRequest struct {
	AgentID  string  `json:"agent_id"`
	MaxPrice float64 `json:"max_price"`
}

// ---------------------------------------------------------------------------
// Simulation / allocation search
// ---------------------------------------------------------------------------

// AgentProfile parameterizes one population segment in a simulation.
type AgentProfile struct {
	Name                   string    `json:"name"`
	Share                  float64   `json:"share"`
	UrgencyRange           []float64 `json:"urgency_range,omitempty"`
	BudgetSensitivityRange []float64 `json:"budget_sensitivity_range,omitempty"`
	BaseValueRange         []float64 `json:"base_value_range,omitempty"`
}

// SimulationConfig holds the fixed parameters of a marketplace simulation.
type SimulationConfig struct {
	NumAgents          int            `json:"num_agents"`
	NumRooms           int            `json:"num_rooms"`
	SlotsPerRoomPerDay int            `json:"slots_per_room_per_day"`
	MaxDays            int            `json:"max_days"`
	AuctionStartPrice  float64        `json:"auction_start_price"`
	AuctionMinPrice    float64        `json:"auction_min_price"`
	AuctionPriceStep   float64        `json:"auction_price_step"`
	MaxTicks           int            `json:"max_ticks"`
	HighDemandDays     [][]int        `json:"high_demand_days,omitempty"`
	TokenAmount        float64        `json:"token_amount"`
	TokenFrequency     int            `json:"token_frequency"`
	AgentProfiles      []AgentProfile `json:"agent_profiles,omitempty"`
}

// GridSearchRequest sweeps token policy parameters over repeated simulations.
type GridSearchRequest struct {
	Config           SimulationConfig `json:"config"`
	TokenAmounts     []float64        `json:"token_amounts"`
	TokenFrequencies []int            `json:"token_frequencies"`
	NumSeeds         int              `json:"num_seeds"`
}

// SimulationMetrics summarizes one simulation run.
type SimulationMetrics struct {
	AvgSatisfaction     float64 `json:"avg_satisfaction"`
	PreferenceMatchRate float64 `json:"preference_match_rate"`
	AvgConsumerSurplus  float64 `json:"avg_consumer_surplus"`
	AccessRate          float64 `json:"access_rate"`
	UtilizationRate     float64 `json:"utilization_rate"`
	PriceVolatility     float64 `json:"price_volatility"`
	GiniCoefficient     float64 `json:"gini_coefficient"`
	SupplyDemandRatio   float64 `json:"supply_demand_ratio"`
	UnmetDemand         float64 `json:"unmet_demand"`
	StabilityScore      float64 `json:"stability_score"`
}

// SimulationResult is the response of a single (non-search) simulation run.
type SimulationResult struct {
	Metrics     SimulationMetrics             `json:"metrics"`
	DailyDetail map[string]map[string]float64 `json:"daily_detail"`
}

// GridSearchCell is one evaluated (token_amount, token_frequency) point.
type GridSearchCell struct {
	TokenAmount         float64 `json:"token_amount"`
	TokenFrequency      int     `json:"token_frequency"`
	StabilityScore      float64 `json:"stability_score"`
	AvgSatisfaction     float64 `json:"avg_satisfaction"`
	PreferenceMatchRate float64 `json:"preference_match_rate"`
	AccessRate          float64 `json:"access_rate"`
	UtilizationRate     float64 `json:"utilization_rate"`
	PriceVolatility     float64 `json:"price_volatility"`
	GiniCoefficient     float64 `json:"gini_coefficient"`
	SupplyDemandRatio   float64 `json:"supply_demand_ratio"`
	UnmetDemand         float64 `json:"unmet_demand"`
}

// GridSearchResult is the terminal payload of a completed search job.
type GridSearchResult struct {
	Best       *GridSearchCell               `json:"best,omitempty"`
	BestDaily  map[string]map[string]float64 `json:"best_daily,omitempty"`
	AllResults []GridSearchCell              `json:"all_results,omitempty"`
	Heatmap    map[string]json.RawMessage    `json:"heatmap,omitempty"`
}

// ApplyBestRequest applies a chosen parameter pair to the live marketplace.
type ApplyBestRequest struct {
	TokenAmount    float64 `json:"token_amount"`
	TokenFrequency int     `json:"token_frequency"`
}

// ServerJobStatus is the server's view of a submitted job, as returned by
// the status endpoint.
type ServerJobStatus struct {
	JobID    string            `json:"job_id"`
	Status   string            `json:"status"`
	Progress float64           `json:"progress"`
	Result   *GridSearchResult `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Server-reported job status strings.
const (
	jobStatusQueued    = "queued"
	jobStatusRunning   = "running"
	jobStatusCompleted = "completed"
	jobStatusFailed    = "failed"
)

type submitResponse struct {
	JobID string `json:"job_id"`
}

// MarketSnapshot bundles the three collections the grid is built from,
// fetched in parallel from a single instant's perspective.
type MarketSnapshot struct {
	Resources []Resource
	Auctions  []AuctionSnapshot
	Agents    []Agent
}
