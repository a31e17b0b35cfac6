package cart

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/money"
)

// Line is one cart entry. Identity is the product plus variant signature.
type Line struct {
	ProductID     string          `json:"productId"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
	Variant       Variant         `json:"variant"`
	Image         string          `json:"image,omitempty"`
	VendorID      string          `json:"vendorId"`
	VendorName    string          `json:"vendorName"`
	StockQuantity int             `json:"stockQuantity"`
}

func (l Line) key() lineKey {
	return lineKey{productID: l.ProductID, signature: l.Variant.Signature()}
}

// Subtotal is price times quantity.
func (l Line) Subtotal() decimal.Decimal {
	return money.Line(l.Price, l.Quantity)
}

func (l Line) clone() Line {
	out := l
	out.Variant = l.Variant.clone()
	return out
}

type lineKey struct {
	productID string
	signature string
}

// Warning reports a stock or availability adjustment.
type Warning struct {
	Type      enums.CartWarningType `json:"type"`
	ProductID string                `json:"productId"`
	Variant   string                `json:"variant,omitempty"`
	Requested int                   `json:"requested"`
	Applied   int                   `json:"applied"`
	Message   string                `json:"message"`
}

// Result describes the outcome of one mutation.
type Result struct {
	Line     *Line     `json:"line,omitempty"`
	Changed  bool      `json:"changed"`
	Rejected bool      `json:"rejected"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// VendorGroup is a derived per-vendor view of the cart.
type VendorGroup struct {
	VendorID   string          `json:"vendorId"`
	VendorName string          `json:"vendorName"`
	Items      []Line          `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// Cart is the in-memory aggregate. It is not safe for concurrent use.
type Cart struct {
	lines []Line
}

func New() *Cart {
	return &Cart{}
}

// Add merges item into the cart, clamping the combined quantity to stock.
func (c *Cart) Add(item Line) Result {
	k := item.key()
	if item.StockQuantity <= 0 {
		return Result{Rejected: true, Warnings: []Warning{{
			Type:      enums.CartWarningTypeOutOfStock,
			ProductID: item.ProductID,
			Variant:   k.signature,
			Requested: item.Quantity,
			Message:   fmt.Sprintf("%s is out of stock", displayName(item)),
		}}}
	}

	idx := c.index(k)
	existing := 0
	if idx >= 0 {
		existing = c.lines[idx].Quantity
	}
	requested := existing + item.Quantity
	if requested <= 0 {
		return Result{}
	}

	applied, warnings := clampToStock(item, requested, item.StockQuantity)
	line := item.clone()
	line.Price = money.Round(line.Price)
	line.Quantity = applied
	if idx >= 0 {
		c.lines[idx] = line
	} else {
		c.lines = append(c.lines, line)
	}
	out := line.clone()
	return Result{Line: &out, Changed: applied != existing, Warnings: warnings}
}

// Remove deletes the matching line. Absent lines are a no-op.
func (c *Cart) Remove(productID string, variant Variant) Result {
	idx := c.index(lineKey{productID: productID, signature: variant.Signature()})
	if idx < 0 {
		return Result{}
	}
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
	return Result{Changed: true}
}

// UpdateQuantity sets an absolute quantity. Zero or less removes the line.
// liveStock replaces the stored stock ceiling when non-negative.
func (c *Cart) UpdateQuantity(productID string, quantity int, variant Variant, liveStock int) Result {
	k := lineKey{productID: productID, signature: variant.Signature()}
	idx := c.index(k)
	if idx < 0 {
		return Result{Rejected: true, Warnings: []Warning{{
			Type:      enums.CartWarningTypeNotFound,
			ProductID: productID,
			Variant:   k.signature,
			Requested: quantity,
			Message:   "item is not in the cart",
		}}}
	}
	if quantity <= 0 {
		return c.Remove(productID, variant)
	}

	line := c.lines[idx]
	if liveStock >= 0 {
		line.StockQuantity = liveStock
	}
	if line.StockQuantity <= 0 {
		c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
		return Result{Changed: true, Warnings: []Warning{{
			Type:      enums.CartWarningTypeOutOfStock,
			ProductID: productID,
			Variant:   k.signature,
			Requested: quantity,
			Message:   fmt.Sprintf("%s is out of stock and was removed", displayName(line)),
		}}}
	}

	previous := line.Quantity
	applied, warnings := clampToStock(line, quantity, line.StockQuantity)
	line.Quantity = applied
	c.lines[idx] = line
	out := line.clone()
	return Result{Line: &out, Changed: applied != previous, Warnings: warnings}
}

// Total is the merchandise total. It is the sum of the vendor group
// subtotals so the two views never disagree.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, g := range c.ItemsByVendor() {
		total = total.Add(g.Subtotal)
	}
	return total
}

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []Line {
	out := make([]Line, 0, len(c.lines))
	for _, l := range c.lines {
		out = append(out, l.clone())
	}
	return out
}

// ItemsByVendor partitions the lines by vendor in first-seen order.
func (c *Cart) ItemsByVendor() []VendorGroup {
	var groups []VendorGroup
	position := map[string]int{}
	for _, l := range c.lines {
		i, ok := position[l.VendorID]
		if !ok {
			i = len(groups)
			position[l.VendorID] = i
			groups = append(groups, VendorGroup{VendorID: l.VendorID, VendorName: l.VendorName, Subtotal: decimal.Zero})
		}
		groups[i].Items = append(groups[i].Items, l.clone())
		groups[i].Subtotal = groups[i].Subtotal.Add(l.Subtotal())
	}
	for i := range groups {
		groups[i].Subtotal = money.Round(groups[i].Subtotal)
	}
	return groups
}

func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) Len() int {
	return len(c.lines)
}

// Snapshot returns the persisted form of the cart.
func (c *Cart) Snapshot() []Line {
	return c.Items()
}

// Restore replaces the cart contents, merging duplicate identities and
// dropping lines with no quantity.
func (c *Cart) Restore(lines []Line) {
	c.lines = nil
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if idx := c.index(l.key()); idx >= 0 {
			c.lines[idx].Quantity += l.Quantity
			continue
		}
		restored := l.clone()
		restored.Price = money.Round(restored.Price)
		c.lines = append(c.lines, restored)
	}
}

func (c *Cart) index(k lineKey) int {
	for i, l := range c.lines {
		if l.key() == k {
			return i
		}
	}
	return -1
}

func clampToStock(line Line, requested, stock int) (int, []Warning) {
	if requested <= stock {
		return requested, nil
	}
	return stock, []Warning{{
		Type:      enums.CartWarningTypeLimitedStock,
		ProductID: line.ProductID,
		Variant:   line.Variant.Signature(),
		Requested: requested,
		Applied:   stock,
		Message:   fmt.Sprintf("only %d of %s available", stock, displayName(line)),
	}}
}

func displayName(l Line) string {
	if l.Name != "" {
		return l.Name
	}
	return l.ProductID
}

// Reprice updates the unit price of a line, reporting whether it moved.
// Prices are kept at two places.
func (c *Cart) Reprice(productID string, variant Variant, price decimal.Decimal) bool {
	price = money.Round(price)
	idx := c.index(lineKey{productID: productID, signature: variant.Signature()})
	if idx < 0 || c.lines[idx].Price.Equal(price) {
		return false
	}
	c.lines[idx].Price = price
	return true
}

// ReplaceDetails refreshes display fields that come from the catalog.
func (c *Cart) ReplaceDetails(productID string, variant Variant, name, image, vendorName string) {
	idx := c.index(lineKey{productID: productID, signature: variant.Signature()})
	if idx < 0 {
		return
	}
	if name != "" {
		c.lines[idx].Name = name
	}
	if image != "" {
		c.lines[idx].Image = image
	}
	if vendorName != "" {
		c.lines[idx].VendorName = vendorName
	}
}
