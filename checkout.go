package rooms

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BntM/market-for-rooms/internal/telemetry"
)

// Purchaser places one purchase attempt against the marketplace.
// *Client satisfies it.
type Purchaser interface {
	PlaceBid(ctx context.Context, auctionID string, req BidRequest) (*Bid, error)
}

// RefreshFunc re-fetches authoritative state after an execution attempt.
type RefreshFunc func(ctx context.Context) error

// ErrAuctionNotActive marks a line item whose auction was not live at
// pricing time. It is recorded per item before any request is sent for it.
var ErrAuctionNotActive = errors.New("rooms: auction is not active")

// ItemOutcome is the result of one item's purchase attempt.
type ItemOutcome struct {
	Item PricedItem

	// Bid is the accepted purchase, set only on success.
	Bid *Bid

	// Err is nil on success. Remote rejections are *Error values carrying
	// the server's reason verbatim; unpriceable items carry
	// ErrAuctionNotActive without a request having been made.
	Err error
}

// Succeeded reports whether this item was purchased.
func (o ItemOutcome) Succeeded() bool {
	return o.Err == nil
}

// ExecutionReport is the full accounting of one basket execution. Outcomes
// appear in the exact order items were supplied; nothing is hidden or
// collapsed.
type ExecutionReport struct {
	Outcomes  []ItemOutcome
	Succeeded int
	Failed    int
}

// PartialFailure reports whether some but not all items failed.
func (r *ExecutionReport) PartialFailure() bool {
	return r.Succeeded > 0 && r.Failed > 0
}

// Executor drives the best-effort multi-item purchase protocol. Items are
// executed strictly sequentially in basket order, each as an independent
// purchase at its last-seen price; a failure never aborts the remaining
// items, and no compensation is attempted for items already bought. The
// server's live price and balance checks are the only conflict detection.
type Executor struct {
	purchaser Purchaser
	refresh   RefreshFunc
	logger    *slog.Logger
	purchases metric.Int64Counter
}

// NewExecutor returns an Executor that purchases through p.
func NewExecutor(p Purchaser, opts ...Option) *Executor {
	o := resolveOptions(opts)

	meter := telemetry.Meter("rooms.checkout")
	purchases, err := meter.Int64Counter("rooms.purchases",
		metric.WithDescription("Slot purchase attempts by outcome"))
	if err != nil {
		o.logger.Warn("checkout: create purchases counter", "error", err)
	}

	return &Executor{
		purchaser: p,
		refresh:   o.refresh,
		logger:    o.logger,
		purchases: purchases,
	}
}

// Execute attempts to buy every item in the priced basket on behalf of
// agent. It returns ErrEmptyBasket or ErrNothingPriceable without touching
// the network; any other return is a complete report, even when every item
// failed. After the attempts the configured refresh hook runs regardless of
// the outcome mix.
func (e *Executor) Execute(ctx context.Context, priced PricedBasket, agent Agent) (*ExecutionReport, error) {
	if len(priced.Items) == 0 {
		return nil, ErrEmptyBasket
	}
	if len(priced.Priceable()) == 0 {
		return nil, ErrNothingPriceable
	}

	var splitPartnerID *string
	if priced.SplitPartnerID != "" {
		id := priced.SplitPartnerID
		splitPartnerID = &id
	}

	report := &ExecutionReport{Outcomes: make([]ItemOutcome, 0, len(priced.Items))}
	for _, item := range priced.Items {
		outcome := ItemOutcome{Item: item}

		if item.Unpriceable {
			outcome.Err = ErrAuctionNotActive
		} else {
			bid, err := e.purchaser.PlaceBid(ctx, item.Auction.ID, BidRequest{
				AgentID:        agent.ID,
				Amount:         item.Price,
				SplitPartnerID: splitPartnerID,
			})
			outcome.Bid = bid
			outcome.Err = err
		}

		if outcome.Succeeded() {
			report.Succeeded++
			e.count(ctx, "succeeded")
		} else {
			report.Failed++
			e.count(ctx, "failed")
			e.logger.Info("checkout: item purchase failed",
				"slot_id", item.Slot.ID,
				"agent_id", agent.ID,
				"error", outcome.Err)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	e.logger.Info("checkout: execution finished",
		"agent_id", agent.ID,
		"succeeded", report.Succeeded,
		"failed", report.Failed)

	if e.refresh != nil {
		if err := e.refresh(ctx); err != nil {
			e.logger.Warn("checkout: post-execution refresh failed", "error", err)
		}
	}

	return report, nil
}

func (e *Executor) count(ctx context.Context, outcome string) {
	if e.purchases == nil {
		return
	}
	e.purchases.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
