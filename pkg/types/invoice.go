package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// InvoiceBreakout is the customer-facing price breakdown persisted as JSONB.
type InvoiceBreakout struct {
	ItemsTotal       decimal.Decimal `json:"items_total"`
	AddonsTotal      decimal.Decimal `json:"addons_total"`
	PackagingCharges decimal.Decimal `json:"packaging_charges"`
	DeliveryCharges  decimal.Decimal `json:"delivery_charges"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	Commission       decimal.Decimal `json:"commission"`
	Total            decimal.Decimal `json:"total"`
}

// Value marshals the breakout into JSON for Postgres.
func (i InvoiceBreakout) Value() (driver.Value, error) {
	buf, err := json.Marshal(i)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Scan decodes JSONB into the breakout.
func (i *InvoiceBreakout) Scan(value interface{}) error {
	if value == nil {
		*i = InvoiceBreakout{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported invoice breakout type %T", value)
	}
	return json.Unmarshal(data, i)
}
