package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartSnapshotItem is one priced line frozen at checkout time.
type CartSnapshotItem struct {
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Addons     Addons          `json:"addons,omitempty"`
}

// CartSnapshot freezes the cart and computed invoice of an online checkout
// so the order can be materialized once payment is captured.
type CartSnapshot struct {
	Items              []CartSnapshotItem `json:"items"`
	Invoice            InvoiceBreakout    `json:"invoice"`
	VendorPayoutAmount decimal.Decimal    `json:"vendor_payout_amount"`
}

func (s CartSnapshot) Value() (driver.Value, error) {
	buf, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *CartSnapshot) Scan(value interface{}) error {
	if value == nil {
		*s = CartSnapshot{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported cart snapshot type %T", value)
	}
	return json.Unmarshal(data, s)
}
