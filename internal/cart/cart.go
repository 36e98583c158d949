package cart

import (
	"errors"
	"fmt"
	"time"

	"pickandplay/internal/order"

	"github.com/shopspring/decimal"
)

var ErrInvalidItem = errors.New("invalid cart item")

type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Cart struct {
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Cart) Empty() bool {
	return len(c.Items) == 0
}

// Add merges quantities for a product already in the cart. The latest unit
// price wins.
func (c *Cart) Add(item Item) error {
	if item.ProductID == "" || item.Quantity <= 0 || item.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: product %q quantity %d", ErrInvalidItem, item.ProductID, item.Quantity)
	}
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID {
			c.Items[i].Quantity += item.Quantity
			c.Items[i].UnitPrice = item.UnitPrice
			if item.Name != "" {
				c.Items[i].Name = item.Name
			}
			c.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	c.Items = append(c.Items, item)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (c Cart) LineItems() []order.LineItem {
	items := make([]order.LineItem, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, order.LineItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return items
}

func (c Cart) Total() decimal.Decimal {
	return order.Total(c.LineItems())
}
