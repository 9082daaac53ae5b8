package rooms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasketToggleIsSymmetricDifference(t *testing.T) {
	b := NewBasket()
	slot := testSlot("s1", "r1", gridEpoch)

	b.Toggle(slot)
	assert.True(t, b.Contains("s1"))
	assert.Equal(t, 1, b.Len())

	b.Toggle(slot)
	assert.False(t, b.Contains("s1"))
	assert.Equal(t, 0, b.Len())
}

func TestBasketPreservesSelectionOrder(t *testing.T) {
	b := NewBasket()
	b.Toggle(testSlot("s3", "r1", gridEpoch.Add(2*time.Hour)))
	b.Toggle(testSlot("s1", "r1", gridEpoch))
	b.Toggle(testSlot("s2", "r1", gridEpoch.Add(time.Hour)))

	slots := b.Slots()
	require.Len(t, slots, 3)
	assert.Equal(t, "s3", slots[0].ID)
	assert.Equal(t, "s1", slots[1].ID)
	assert.Equal(t, "s2", slots[2].ID)

	// Deselecting from the middle keeps the rest in order.
	b.Toggle(testSlot("s1", "r1", gridEpoch))
	slots = b.Slots()
	require.Len(t, slots, 2)
	assert.Equal(t, "s3", slots[0].ID)
	assert.Equal(t, "s2", slots[1].ID)
}

func TestBasketClear(t *testing.T) {
	b := NewBasket()
	b.Toggle(testSlot("s1", "r1", gridEpoch))
	b.Toggle(testSlot("s2", "r1", gridEpoch.Add(time.Hour)))

	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.False(t, b.Contains("s1"))
}

func TestPriceFiltersInactiveAuctions(t *testing.T) {
	active := testSlot("s1", "r1", gridEpoch)
	completed := testSlot("s2", "r1", gridEpoch.Add(time.Hour))

	b := NewBasket()
	b.Toggle(active)
	b.Toggle(completed)

	liveAuction := testAuction("a1", active, AuctionActive, 42.0)
	doneAuction := testAuction("a2", completed, AuctionCompleted, 30.0)
	bySlot := map[string]*AuctionSnapshot{
		"s1": &liveAuction,
		"s2": &doneAuction,
	}

	priced := b.Price(bySlot, nil)

	require.Len(t, priced.Items, 2)
	assert.Equal(t, 42.0, priced.Total)
	assert.False(t, priced.Items[0].Unpriceable)
	assert.Equal(t, 42.0, priced.Items[0].Price)
	assert.True(t, priced.Items[1].Unpriceable)
	require.Len(t, priced.Priceable(), 1)
	assert.Equal(t, "s1", priced.Priceable()[0].Slot.ID)
}

func TestPriceMarksMissingAuctionUnpriceable(t *testing.T) {
	b := NewBasket()
	b.Toggle(testSlot("s1", "r1", gridEpoch))

	priced := b.Price(map[string]*AuctionSnapshot{}, nil)

	require.Len(t, priced.Items, 1)
	assert.True(t, priced.Items[0].Unpriceable)
	assert.Nil(t, priced.Items[0].Auction)
	assert.Equal(t, 0.0, priced.Total)
}

func TestPriceSplitsTotalEvenly(t *testing.T) {
	s1 := testSlot("s1", "r1", gridEpoch)
	s2 := testSlot("s2", "r1", gridEpoch.Add(time.Hour))
	b := NewBasket()
	b.Toggle(s1)
	b.Toggle(s2)

	a1 := testAuction("a1", s1, AuctionActive, 20.0)
	a2 := testAuction("a2", s2, AuctionActive, 30.0)
	bySlot := map[string]*AuctionSnapshot{"s1": &a1, "s2": &a2}

	partner := Agent{ID: "agent-2", Name: "Partner"}
	priced := b.Price(bySlot, &partner)

	// One global 50/50 split of the total, not itemized shares.
	assert.Equal(t, 50.0, priced.Total)
	assert.Equal(t, 25.0, priced.Share)
	assert.Equal(t, 25.0, priced.PartnerShare)
	assert.Equal(t, "agent-2", priced.SplitPartnerID)

	solo := b.Price(bySlot, nil)
	assert.Equal(t, 50.0, solo.Share)
	assert.Equal(t, 0.0, solo.PartnerShare)
	assert.Empty(t, solo.SplitPartnerID)
}

func TestAuctionsBySlotKeepsLastSnapshot(t *testing.T) {
	slot := testSlot("s1", "r1", gridEpoch)
	stale := testAuction("a1", slot, AuctionActive, 90)
	fresh := testAuction("a1", slot, AuctionActive, 85)

	bySlot := AuctionsBySlot([]AuctionSnapshot{stale, fresh})

	require.Contains(t, bySlot, "s1")
	assert.Equal(t, 85.0, bySlot["s1"].CurrentPrice)
}
