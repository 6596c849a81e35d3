package marketplace

import (
	"strconv"

	"github.com/gagliardetto/solana-go"

	"nftmarket/core/types"
)

const (
	EventTypeMarketplaceInitialized = "marketplace.initialized"
	EventTypeListingCreated         = "marketplace.listing.created"
	EventTypeListingDelisted        = "marketplace.listing.delisted"
	EventTypeListingPurchased       = "marketplace.listing.purchased"
)

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// NewInitializedEvent returns the payload emitted when a marketplace is
// created.
func NewInitializedEvent(addr, treasury solana.PublicKey, m *Marketplace) *types.Event {
	attrs := map[string]string{
		"marketplace": addr.String(),
		"treasury":    treasury.String(),
	}
	if m != nil {
		attrs["admin"] = m.Admin.String()
		attrs["name"] = m.Name
		attrs["feeBps"] = strconv.FormatUint(uint64(m.FeeBps), 10)
	}
	return &types.Event{Type: EventTypeMarketplaceInitialized, Attributes: attrs}
}

// NewListingCreatedEvent returns the payload emitted when an asset enters
// escrow.
func NewListingCreatedEvent(marketplace, listingAddr, vault, collection solana.PublicKey, l *Listing) *types.Event {
	evt := newListingEvent(EventTypeListingCreated, marketplace, listingAddr, l)
	evt.Attributes["vault"] = vault.String()
	evt.Attributes["collection"] = collection.String()
	return evt
}

// NewDelistedEvent returns the payload emitted when a maker withdraws a
// listing.
func NewDelistedEvent(marketplace, listingAddr solana.PublicKey, l *Listing) *types.Event {
	return newListingEvent(EventTypeListingDelisted, marketplace, listingAddr, l)
}

// NewPurchasedEvent returns the payload emitted when a listing is sold.
func NewPurchasedEvent(listingAddr solana.PublicKey, sale *Sale) *types.Event {
	if sale == nil {
		return &types.Event{Type: EventTypeListingPurchased, Attributes: map[string]string{}}
	}
	evt := newListingEvent(EventTypeListingPurchased, sale.Marketplace, listingAddr, sale.Listing)
	evt.Attributes["buyer"] = sale.Buyer.String()
	evt.Attributes["treasury"] = sale.Treasury.String()
	evt.Attributes["fee"] = strconv.FormatUint(sale.Fee, 10)
	evt.Attributes["sellerAmount"] = strconv.FormatUint(sale.SellerAmount, 10)
	return evt
}

func newListingEvent(eventType string, marketplace, listingAddr solana.PublicKey, l *Listing) *types.Event {
	attrs := map[string]string{
		"marketplace": marketplace.String(),
		"listing":     listingAddr.String(),
	}
	if l != nil {
		attrs["maker"] = l.Maker.String()
		attrs["asset"] = l.Asset.String()
		attrs["price"] = strconv.FormatUint(l.Price, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
