package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Addon is one add-on selected for a menu item at ordering time.
type Addon struct {
	ID    uuid.UUID       `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Addons is the snapshot of add-ons stored with a cart item or order line item.
type Addons []Addon

// Total sums the add-on prices for a single unit.
func (a Addons) Total() decimal.Decimal {
	total := decimal.Zero
	for _, addon := range a {
		total = total.Add(addon.Price)
	}
	return total
}

func (a Addons) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	buf, err := json.Marshal([]Addon(a))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (a *Addons) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported addons type %T", value)
	}
	var out []Addon
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*a = out
	return nil
}
