package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lako-services/lako-web/internal/efaktura"
)

// MaxItems caps the item history; the least recently used entries fall off.
const MaxItems = 50

const (
	sellerKey = "seller"
	buyersKey = "buyers"
	itemsKey  = "items"
)

// BuyerEntry is what is remembered about a buyer, keyed by PIB.
type BuyerEntry struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
}

// ItemEntry is a previously invoiced item.
type ItemEntry struct {
	Description string           `json:"description"`
	Unit        efaktura.Unit    `json:"unit"`
	UnitPrice   efaktura.Number  `json:"unitPrice"`
	VATRate     efaktura.VATRate `json:"vatRate"`
}

// History reads and writes one profile's studio history.
type History struct {
	store  Store
	scope  string
	logger *slog.Logger
}

// New returns the history for scope (a profile id, or "local" for the CLI).
func New(store Store, scope string, logger *slog.Logger) *History {
	if logger == nil {
		logger = slog.Default()
	}
	return &History{store: store, scope: scope, logger: logger}
}

func (h *History) key(name string) string {
	return "efaktura:" + h.scope + ":" + name
}

// load decodes key into target. Missing keys leave target untouched;
// undecodable values are logged and treated as missing.
func (h *History) load(ctx context.Context, name string, target any) error {
	data, err := h.store.Get(ctx, h.key(name))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.logger.Warn("discarding unreadable history", slog.String("key", h.key(name)), slog.Any("error", err))
	}
	return nil
}

func (h *History) save(ctx context.Context, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("history: encode %s: %w", name, err)
	}
	return h.store.Set(ctx, h.key(name), data)
}

// Seller returns the saved seller profile, or nil.
func (h *History) Seller(ctx context.Context) (*efaktura.SellerData, error) {
	var seller *efaktura.SellerData
	if err := h.load(ctx, sellerKey, &seller); err != nil {
		return nil, err
	}
	return seller, nil
}

// SaveSeller stores the single current seller. Profiles without PIB and
// name are ignored.
func (h *History) SaveSeller(ctx context.Context, seller efaktura.SellerData) (bool, error) {
	if seller.PIB == "" && strings.TrimSpace(seller.Name) == "" {
		return false, nil
	}
	if err := h.save(ctx, sellerKey, seller); err != nil {
		return false, err
	}
	return true, nil
}

// Buyers returns every remembered buyer keyed by PIB.
func (h *History) Buyers(ctx context.Context) (map[string]BuyerEntry, error) {
	buyers := make(map[string]BuyerEntry)
	if err := h.load(ctx, buyersKey, &buyers); err != nil {
		return nil, err
	}
	if buyers == nil {
		buyers = make(map[string]BuyerEntry)
	}
	return buyers, nil
}

// LookupBuyer finds a buyer by PIB.
func (h *History) LookupBuyer(ctx context.Context, pib string) (BuyerEntry, bool, error) {
	buyers, err := h.Buyers(ctx)
	if err != nil {
		return BuyerEntry{}, false, err
	}
	entry, ok := buyers[pib]
	return entry, ok, nil
}

// RememberBuyer stores a buyer with a valid PIB and a name.
func (h *History) RememberBuyer(ctx context.Context, buyer efaktura.BuyerData) (bool, error) {
	if !efaktura.ValidPIB(buyer.PIB) || strings.TrimSpace(buyer.Name) == "" {
		return false, nil
	}
	buyers, err := h.Buyers(ctx)
	if err != nil {
		return false, err
	}
	buyers[buyer.PIB] = BuyerEntry{Name: buyer.Name, Address: buyer.Address, City: buyer.City}
	if err := h.save(ctx, buyersKey, buyers); err != nil {
		return false, err
	}
	return true, nil
}

// Items returns the item history, most recently used first.
func (h *History) Items(ctx context.Context) ([]ItemEntry, error) {
	var items []ItemEntry
	if err := h.load(ctx, itemsKey, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// RememberItems moves every described item to the front of the history,
// replacing an entry with the same description, and trims to MaxItems.
func (h *History) RememberItems(ctx context.Context, items []efaktura.InvoiceItem) (int, error) {
	history, err := h.Items(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, item := range items {
		desc := strings.TrimSpace(item.Description)
		if desc == "" {
			continue
		}
		entry := ItemEntry{Description: desc, Unit: item.Unit, UnitPrice: item.UnitPrice, VATRate: item.VATRate}
		next := make([]ItemEntry, 0, len(history)+1)
		next = append(next, entry)
		for _, existing := range history {
			if existing.Description != desc {
				next = append(next, existing)
			}
		}
		history = next
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if len(history) > MaxItems {
		history = history[:MaxItems]
	}
	if err := h.save(ctx, itemsKey, history); err != nil {
		return 0, err
	}
	return added, nil
}

// Remember records the buyer and items of a successfully generated invoice.
func (h *History) Remember(ctx context.Context, inv efaktura.InvoiceData) error {
	if _, err := h.RememberBuyer(ctx, inv.Buyer); err != nil {
		return fmt.Errorf("history: remember buyer: %w", err)
	}
	if _, err := h.RememberItems(ctx, inv.Items); err != nil {
		return fmt.Errorf("history: remember items: %w", err)
	}
	return nil
}

// Autofill completes an invoice from history: the saved seller when the
// invoice has none, buyer details for a known PIB with a blank name, and
// unit/price/VAT for items whose description matches a remembered item and
// whose price is still zero.
func (h *History) Autofill(ctx context.Context, inv efaktura.InvoiceData) (efaktura.InvoiceData, error) {
	if inv.Seller.PIB == "" && strings.TrimSpace(inv.Seller.Name) == "" {
		seller, err := h.Seller(ctx)
		if err != nil {
			return inv, err
		}
		if seller != nil {
			inv.Seller = *seller
		}
	}

	if efaktura.ValidPIB(inv.Buyer.PIB) && strings.TrimSpace(inv.Buyer.Name) == "" {
		entry, ok, err := h.LookupBuyer(ctx, inv.Buyer.PIB)
		if err != nil {
			return inv, err
		}
		if ok {
			inv.Buyer.Name = entry.Name
			inv.Buyer.Address = entry.Address
			inv.Buyer.City = entry.City
		}
	}

	known, err := h.Items(ctx)
	if err != nil {
		return inv, err
	}
	if len(known) == 0 {
		return inv, nil
	}
	byDesc := make(map[string]ItemEntry, len(known))
	for _, k := range known {
		byDesc[k.Description] = k
	}
	items := make([]efaktura.InvoiceItem, len(inv.Items))
	for i, item := range inv.Items {
		if k, ok := byDesc[strings.TrimSpace(item.Description)]; ok && item.UnitPrice.IsZero() {
			item.Unit = k.Unit
			item.UnitPrice = k.UnitPrice
			item.VATRate = k.VATRate
		}
		items[i] = item
	}
	inv.Items = items
	return inv, nil
}
