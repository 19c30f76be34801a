package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/types"
)

func setupCatalogTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	stmts := []string{
		`CREATE TABLE vendors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_open BOOLEAN NOT NULL DEFAULT 1,
			commission_rate NUMERIC NOT NULL DEFAULT 0,
			packaging_charge NUMERIC NOT NULL DEFAULT 0,
			latitude REAL,
			longitude REAL,
			address TEXT,
			updated_at DATETIME
		)`,
		`CREATE TABLE cart_items (
			id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			vendor_id TEXT NOT NULL,
			menu_item_id TEXT NOT NULL,
			name TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			unit_price NUMERIC NOT NULL,
			addons TEXT NOT NULL DEFAULT '[]',
			available BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME
		)`,
		`CREATE TABLE cancellation_reasons (
			id TEXT PRIMARY KEY,
			user_type TEXT NOT NULL,
			reason TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME
		)`,
	}
	for _, stmt := range stmts {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func TestActiveCartOrdersByCreation(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	customerID := uuid.New()
	vendorID := uuid.New()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	for i, name := range []string{"Dosa", "Vada"} {
		require.NoError(t, db.Create(&models.CartItem{
			ID:         uuid.New(),
			CustomerID: customerID,
			VendorID:   vendorID,
			MenuItemID: uuid.New(),
			Name:       name,
			Quantity:   1,
			UnitPrice:  decimal.RequireFromString("50"),
			Addons:     types.Addons{{ID: uuid.New(), Name: "Chutney", Price: decimal.RequireFromString("10")}},
			Available:  true,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}).Error)
	}
	require.NoError(t, db.Create(&models.CartItem{
		ID: uuid.New(), CustomerID: uuid.New(), VendorID: vendorID, MenuItemID: uuid.New(),
		Name: "Other", Quantity: 1, UnitPrice: decimal.RequireFromString("1"), Available: true, CreatedAt: base,
	}).Error)

	items, err := repo.ActiveCart(context.Background(), customerID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Dosa", items[0].Name)
	assert.Equal(t, "Vada", items[1].Name)
	assert.True(t, decimal.RequireFromString("10").Equal(items[0].Addons.Total()))
}

func TestFindVendor(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	vendor := &models.Vendor{
		ID:              uuid.New(),
		Name:            "Dosa Corner",
		IsOpen:          true,
		CommissionRate:  decimal.RequireFromString("0.2"),
		PackagingCharge: decimal.RequireFromString("15"),
	}
	require.NoError(t, db.Create(vendor).Error)

	found, err := repo.FindVendor(context.Background(), vendor.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dosa Corner", found.Name)

	_, err = repo.FindVendor(context.Background(), uuid.New())
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestFindCancellationReasonChecksActor(t *testing.T) {
	db := setupCatalogTestDB(t)
	repo := NewRepository(db)
	reason := &models.CancellationReason{ID: uuid.New(), UserType: enums.ActorCustomer, Reason: "Ordered by mistake", IsActive: true}
	inactive := &models.CancellationReason{ID: uuid.New(), UserType: enums.ActorCustomer, Reason: "Old", IsActive: true}
	require.NoError(t, db.Create(reason).Error)
	require.NoError(t, db.Create(inactive).Error)
	require.NoError(t, db.Model(inactive).Update("is_active", false).Error)

	found, err := repo.FindCancellationReason(context.Background(), reason.ID, enums.ActorCustomer)
	require.NoError(t, err)
	assert.Equal(t, "Ordered by mistake", found.Reason)

	_, err = repo.FindCancellationReason(context.Background(), reason.ID, enums.ActorVendor)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = repo.FindCancellationReason(context.Background(), inactive.ID, enums.ActorCustomer)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	list, err := repo.ListCancellationReasons(context.Background(), enums.ActorCustomer)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
