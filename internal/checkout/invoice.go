package checkout

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

// Pricing holds the deployment-wide charges applied on top of the cart.
type Pricing struct {
	Currency    string
	TaxRate     decimal.Decimal
	DeliveryFee decimal.Decimal
}

// PricingFrom parses the order pricing settings.
func PricingFrom(cfg config.OrdersConfig) (Pricing, error) {
	taxRate, err := decimal.NewFromString(strings.TrimSpace(cfg.TaxRate))
	if err != nil {
		return Pricing{}, fmt.Errorf("parsing tax rate: %w", err)
	}
	fee, err := decimal.NewFromString(strings.TrimSpace(cfg.DeliveryFee))
	if err != nil {
		return Pricing{}, fmt.Errorf("parsing delivery fee: %w", err)
	}
	if taxRate.IsNegative() || fee.IsNegative() {
		return Pricing{}, fmt.Errorf("tax rate and delivery fee must be non-negative")
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "inr"
	}
	return Pricing{Currency: currency, TaxRate: taxRate, DeliveryFee: fee}, nil
}

// Quote freezes the cart into a priced snapshot. Tax applies to food and
// packaging; commission is taken from food only.
func Quote(items []models.CartItem, vendor *models.Vendor, pricing Pricing) (types.CartSnapshot, error) {
	if len(items) == 0 {
		return types.CartSnapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if vendor == nil {
		return types.CartSnapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "vendor is required")
	}

	snapshot := types.CartSnapshot{Items: make([]types.CartSnapshotItem, 0, len(items))}
	itemsTotal := decimal.Zero
	addonsTotal := decimal.Zero
	for _, item := range items {
		if item.VendorID != vendor.ID {
			return types.CartSnapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "cart contains items from more than one vendor")
		}
		if !item.Available {
			return types.CartSnapshot{}, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is no longer available", item.Name).
				WithDetails(map[string]any{"menu_item_id": item.MenuItemID})
		}
		if item.Quantity <= 0 {
			return types.CartSnapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "cart item quantity must be positive")
		}
		qty := decimal.NewFromInt(int64(item.Quantity))
		itemsTotal = itemsTotal.Add(item.UnitPrice.Mul(qty))
		addonsTotal = addonsTotal.Add(item.Addons.Total().Mul(qty))
		snapshot.Items = append(snapshot.Items, types.CartSnapshotItem{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Addons:     item.Addons,
		})
	}

	food := itemsTotal.Add(addonsTotal)
	packaging := vendor.PackagingCharge
	tax := food.Add(packaging).Mul(pricing.TaxRate).Round(2)
	commission := food.Mul(vendor.CommissionRate).Round(2)
	total := food.Add(packaging).Add(tax).Add(pricing.DeliveryFee)

	snapshot.Invoice = types.InvoiceBreakout{
		ItemsTotal:       itemsTotal,
		AddonsTotal:      addonsTotal,
		PackagingCharges: packaging,
		DeliveryCharges:  pricing.DeliveryFee,
		TaxAmount:        tax,
		TaxRate:          pricing.TaxRate,
		Commission:       commission,
		Total:            total,
	}
	snapshot.VendorPayoutAmount = food.Add(packaging).Sub(commission)
	return snapshot, nil
}

// orderFromSnapshot materializes the order row and its line items.
func orderFromSnapshot(snapshot types.CartSnapshot, currency string) *models.Order {
	inv := snapshot.Invoice
	order := &models.Order{
		Currency:           currency,
		ItemsTotal:         inv.ItemsTotal.Add(inv.AddonsTotal),
		DeliveryCharges:    inv.DeliveryCharges,
		TotalAmount:        inv.Total,
		VendorPayoutAmount: snapshot.VendorPayoutAmount,
		InvoiceBreakout:    inv,
		Items:              make([]models.OrderLineItem, 0, len(snapshot.Items)),
	}
	for _, item := range snapshot.Items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		addons := item.Addons.Total().Mul(qty)
		order.Items = append(order.Items, models.OrderLineItem{
			MenuItemID:  item.MenuItemID,
			Name:        item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Addons:      item.Addons,
			AddonsTotal: addons,
			TotalPrice:  item.UnitPrice.Mul(qty).Add(addons),
		})
	}
	return order
}
