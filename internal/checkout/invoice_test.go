package checkout

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

func testVendor() *models.Vendor {
	return &models.Vendor{
		ID:              uuid.New(),
		Name:            "Udupi Corner",
		IsOpen:          true,
		CommissionRate:  decimal.RequireFromString("0.20"),
		PackagingCharge: decimal.RequireFromString("10"),
	}
}

func testPricing() Pricing {
	return Pricing{
		Currency:    "inr",
		TaxRate:     decimal.RequireFromString("0.05"),
		DeliveryFee: decimal.RequireFromString("30"),
	}
}

func TestQuoteBreakdown(t *testing.T) {
	vendor := testVendor()
	items := []models.CartItem{
		{
			VendorID:   vendor.ID,
			MenuItemID: uuid.New(),
			Name:       "Masala Dosa",
			Quantity:   2,
			UnitPrice:  decimal.RequireFromString("80"),
			Addons:     types.Addons{{ID: uuid.New(), Name: "Ghee", Price: decimal.RequireFromString("10")}},
			Available:  true,
		},
		{
			VendorID:   vendor.ID,
			MenuItemID: uuid.New(),
			Name:       "Filter Coffee",
			Quantity:   1,
			UnitPrice:  decimal.RequireFromString("30"),
			Available:  true,
		},
	}

	snapshot, err := Quote(items, vendor, testPricing())
	require.NoError(t, err)
	require.Len(t, snapshot.Items, 2)

	inv := snapshot.Invoice
	require.True(t, inv.ItemsTotal.Equal(decimal.RequireFromString("190")), inv.ItemsTotal.String())
	require.True(t, inv.AddonsTotal.Equal(decimal.RequireFromString("20")))
	// food 210 + packaging 10 = 220; tax 11
	require.True(t, inv.TaxAmount.Equal(decimal.RequireFromString("11")), inv.TaxAmount.String())
	require.True(t, inv.Commission.Equal(decimal.RequireFromString("42")), inv.Commission.String())
	require.True(t, inv.Total.Equal(decimal.RequireFromString("261")), inv.Total.String())
	require.True(t, snapshot.VendorPayoutAmount.Equal(decimal.RequireFromString("178")))
}

func TestQuoteRejectsBadCarts(t *testing.T) {
	vendor := testVendor()
	ok := models.CartItem{VendorID: vendor.ID, Name: "Idli", Quantity: 1, UnitPrice: decimal.RequireFromString("40"), Available: true}

	cases := map[string][]models.CartItem{
		"empty":        nil,
		"mixed vendor": {ok, {VendorID: uuid.New(), Name: "Biryani", Quantity: 1, UnitPrice: decimal.RequireFromString("200"), Available: true}},
		"unavailable":  {{VendorID: vendor.ID, Name: "Pongal", Quantity: 1, UnitPrice: decimal.RequireFromString("60")}},
		"zero qty":     {{VendorID: vendor.ID, Name: "Idli", Quantity: 0, UnitPrice: decimal.RequireFromString("40"), Available: true}},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Quote(items, vendor, testPricing())
			require.Error(t, err)
			require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
		})
	}
}

func TestOrderFromSnapshotLineTotals(t *testing.T) {
	vendor := testVendor()
	snapshot, err := Quote([]models.CartItem{{
		VendorID:  vendor.ID,
		Name:      "Vada",
		Quantity:  3,
		UnitPrice: decimal.RequireFromString("20"),
		Addons:    types.Addons{{ID: uuid.New(), Name: "Sambar", Price: decimal.RequireFromString("5")}},
		Available: true,
	}}, vendor, testPricing())
	require.NoError(t, err)

	order := orderFromSnapshot(snapshot, "inr")
	require.Len(t, order.Items, 1)
	require.True(t, order.Items[0].AddonsTotal.Equal(decimal.RequireFromString("15")))
	require.True(t, order.Items[0].TotalPrice.Equal(decimal.RequireFromString("75")))
	require.True(t, order.ItemsTotal.Equal(decimal.RequireFromString("75")))
	require.True(t, order.TotalAmount.Equal(snapshot.Invoice.Total))
	require.Equal(t, "inr", order.Currency)
}

func TestPricingFromConfig(t *testing.T) {
	p, err := PricingFrom(config.OrdersConfig{Currency: " INR ", TaxRate: "0.05", DeliveryFee: "30"})
	require.NoError(t, err)
	require.Equal(t, "inr", p.Currency)
	require.True(t, p.DeliveryFee.Equal(decimal.NewFromInt(30)))

	_, err = PricingFrom(config.OrdersConfig{TaxRate: "-1", DeliveryFee: "0"})
	require.Error(t, err)
	_, err = PricingFrom(config.OrdersConfig{TaxRate: "abc", DeliveryFee: "0"})
	require.Error(t, err)
}
