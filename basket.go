package rooms

// Basket is the ephemeral, client-owned set of selected slots pending a
// purchase attempt. Selection order is preserved; it becomes the execution
// order. A Basket is scoped to one interactive session and is not safe for
// concurrent use.
type Basket struct {
	slots []TimeSlot
}

// NewBasket returns an empty basket.
func NewBasket() *Basket {
	return &Basket{}
}

// Toggle selects the slot if absent and deselects it if present, keyed by
// slot identifier. Toggling twice restores the basket. No capacity limit is
// enforced here; the server is authoritative.
func (b *Basket) Toggle(slot TimeSlot) {
	for i, s := range b.slots {
		if s.ID == slot.ID {
			b.slots = append(b.slots[:i], b.slots[i+1:]...)
			return
		}
	}
	b.slots = append(b.slots, slot)
}

// Contains reports whether the slot is currently selected.
func (b *Basket) Contains(slotID string) bool {
	for _, s := range b.slots {
		if s.ID == slotID {
			return true
		}
	}
	return false
}

// Slots returns the selected slots in selection order.
func (b *Basket) Slots() []TimeSlot {
	out := make([]TimeSlot, len(b.slots))
	copy(out, b.slots)
	return out
}

// Len returns the number of selected slots.
func (b *Basket) Len() int {
	return len(b.slots)
}

// Clear deselects everything, e.g. after an execution attempt or an
// external reset.
func (b *Basket) Clear() {
	b.slots = nil
}

// PricedItem pairs a selected slot with the auction bound to it at pricing
// time. Unpriceable items (no auction, or auction not active) are kept in
// the basket so the caller can warn before execution instead of silently
// dropping them.
type PricedItem struct {
	Slot        TimeSlot
	Auction     *AuctionSnapshot
	Price       float64
	Unpriceable bool
}

// PricedBasket is a deterministic pricing of a basket against one set of
// auction snapshots. It is stale the moment any bound auction's price moves
// server-side; treat it as a display estimate, never as a quote.
type PricedBasket struct {
	Items []PricedItem

	// Total is the sum of current prices over priceable items.
	Total float64

	// Share is the acting agent's share of Total. With a split partner
	// both parties pay Total / 2 regardless of individual item prices;
	// without one, Share == Total.
	Share float64

	// PartnerShare is the partner's share, zero when there is no partner.
	PartnerShare float64

	// SplitPartnerID is set when the basket is cost-split.
	SplitPartnerID string
}

// Priceable returns the items with a live price, in basket order.
func (p PricedBasket) Priceable() []PricedItem {
	var out []PricedItem
	for _, item := range p.Items {
		if !item.Unpriceable {
			out = append(out, item)
		}
	}
	return out
}

// Price derives line items for every selected slot from the supplied
// snapshots, keyed by time-slot identifier. splitPartner may be nil.
func (b *Basket) Price(bySlot map[string]*AuctionSnapshot, splitPartner *Agent) PricedBasket {
	priced := PricedBasket{Items: make([]PricedItem, 0, len(b.slots))}

	for _, slot := range b.slots {
		auction := bySlot[slot.ID]
		item := PricedItem{Slot: slot, Auction: auction}
		if auction.Active() {
			item.Price = auction.CurrentPrice
			priced.Total += auction.CurrentPrice
		} else {
			item.Unpriceable = true
		}
		priced.Items = append(priced.Items, item)
	}

	if splitPartner != nil {
		priced.Share = priced.Total / 2
		priced.PartnerShare = priced.Total / 2
		priced.SplitPartnerID = splitPartner.ID
	} else {
		priced.Share = priced.Total
	}
	return priced
}

// AuctionsBySlot indexes snapshots by their time-slot identifier, keeping
// the last snapshot seen per slot. Convenience for feeding Basket.Price
// straight from a ListAuctions result.
func AuctionsBySlot(snapshots []AuctionSnapshot) map[string]*AuctionSnapshot {
	bySlot := make(map[string]*AuctionSnapshot, len(snapshots))
	for i := range snapshots {
		snap := snapshots[i]
		bySlot[snap.TimeSlotID] = &snap
	}
	return bySlot
}
