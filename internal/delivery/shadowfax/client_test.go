package shadowfax

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderflow-backend/internal/delivery"
	"github.com/angelmondragon/orderflow-backend/pkg/db/models"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/retry"
)

func testOrder() *models.Order {
	return &models.Order{
		ID:              uuid.MustParse("6c1f7a52-3a1e-4f0e-9b55-0d6a5f0c2a11"),
		CustomerID:      uuid.New(),
		VendorID:        uuid.New(),
		PaymentMethod:   enums.PaymentMethodPayOnDelivery,
		DeliveryService: enums.DeliveryServiceShadowfax,
		TotalAmount:     decimal.RequireFromString("175.00"),
		Items: []models.OrderLineItem{
			{Name: "Masala Dosa", Quantity: 2, TotalPrice: decimal.RequireFromString("120.00")},
		},
	}
}

func TestDispatchOrderRequest(t *testing.T) {
	lat, lng := 12.97, 77.59
	addr := "12 MG Road"
	var captured map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/order/create/", r.URL.Path)
		assert.Equal(t, "Token sfx-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sfx_order_id": 98765, "pickup_eta": 12}`))
	}))
	defer srv.Close()

	client, err := NewClient("sfx-token", WithBaseURL(srv.URL))
	require.NoError(t, err)

	receipt, err := client.DispatchOrder(context.Background(), delivery.DispatchRequest{
		Order:  testOrder(),
		Vendor: &models.Vendor{Name: "Dosa Corner", Latitude: &lat, Longitude: &lng, Address: &addr},
	})
	require.NoError(t, err)
	assert.Equal(t, "98765", receipt.DeliveryOrderID)
	require.NotNil(t, receipt.PickupETAMinutes)
	assert.Equal(t, 12, *receipt.PickupETAMinutes)

	details := captured["order_details"].(map[string]any)
	assert.Equal(t, "6c1f7a52-3a1e-4f0e-9b55-0d6a5f0c2a11", details["client_order_id"])
	assert.Equal(t, false, details["paid"])
	assert.Equal(t, "175.00", details["cod_amount"])
	pickup := captured["pickup_details"].(map[string]any)
	assert.Equal(t, "Dosa Corner", pickup["name"])
	assert.Equal(t, "12 MG Road", pickup["address"])
	assert.Len(t, captured["order_items"], 1)
}

func TestDispatchOrderErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		permanent bool
	}{
		{name: "bad request", status: http.StatusBadRequest, permanent: true},
		{name: "rate limited", status: http.StatusTooManyRequests, permanent: false},
		{name: "server error", status: http.StatusBadGateway, permanent: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()

			client, err := NewClient("sfx-token", WithBaseURL(srv.URL))
			require.NoError(t, err)

			_, err = client.DispatchOrder(context.Background(), delivery.DispatchRequest{Order: testOrder()})
			require.Error(t, err)
			assert.Equal(t, tc.permanent, retry.IsPermanent(err))
			require.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
		})
	}
}

func TestCancelAtProviderRequest(t *testing.T) {
	var captured cancelOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/order/cancel/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient("sfx-token", WithBaseURL(srv.URL))
	require.NoError(t, err)

	order := testOrder()
	jobID := "98765"
	order.DeliveryOrderID = &jobID
	require.NoError(t, client.CancelAtProvider(context.Background(), order, "customer cancelled"))
	assert.Equal(t, "98765", captured.SFXOrderID)
	assert.Equal(t, order.ID.String(), captured.ClientOrderID)
	assert.Equal(t, "customer cancelled", captured.CancelReason)
}

func TestCancelAtProviderWithoutJob(t *testing.T) {
	client, err := NewClient("sfx-token")
	require.NoError(t, err)

	err = client.CancelAtProvider(context.Background(), testOrder(), "x")
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient("  ")
	require.ErrorIs(t, err, errTokenRequired)
}

func TestNormalizeStatusEvent(t *testing.T) {
	client, err := NewClient("sfx-token")
	require.NoError(t, err)

	body := []byte(`{"sfx_order_id":"98765","client_order_id":"6c1f7a52-3a1e-4f0e-9b55-0d6a5f0c2a11","order_status":"ARRIVED_CUSTOMER_DOORSTEP","status_update_time":"2026-03-02 17:45:00","drop_eta":3,"rider_latitude":12.9,"rider_longitude":77.6}`)
	evt, err := client.NormalizeEvent(context.Background(), delivery.EventKindStatus, body)
	require.NoError(t, err)

	assert.Equal(t, enums.DeliveryServiceShadowfax, evt.Provider)
	assert.Equal(t, "98765", evt.DeliveryOrderID)
	assert.Equal(t, enums.DeliveryStatusArrivedAtDoorstep, evt.ReportedStatus)
	assert.Equal(t, time.Date(2026, 3, 2, 12, 15, 0, 0, time.UTC), evt.EventTimestamp)
	require.NotNil(t, evt.DropETAMinutes)
	assert.Equal(t, 3, *evt.DropETAMinutes)
	assert.True(t, evt.HasLocation())
	assert.JSONEq(t, string(body), string(evt.Raw))
}

func TestNormalizeStatusMapping(t *testing.T) {
	client, err := NewClient("sfx-token")
	require.NoError(t, err)

	for raw, want := range statusMap {
		body := []byte(`{"sfx_order_id":1,"order_status":"` + raw + `","status_update_time":"2026-03-02T12:00:00Z"}`)
		evt, err := client.NormalizeEvent(context.Background(), delivery.EventKindStatus, body)
		require.NoError(t, err, raw)
		assert.Equal(t, want, evt.ReportedStatus, raw)
	}

	_, err = client.NormalizeEvent(context.Background(), delivery.EventKindStatus, []byte(`{"sfx_order_id":1,"order_status":"RTO_INITIATED"}`))
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestNormalizeLocationEvent(t *testing.T) {
	fixed := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	client, err := NewClient("sfx-token", WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	evt, err := client.NormalizeEvent(context.Background(), delivery.EventKindLocation,
		[]byte(`{"client_order_id":"6c1f7a52-3a1e-4f0e-9b55-0d6a5f0c2a11","rider_latitude":12.91,"rider_longitude":77.61,"location_accuracy":8.5}`))
	require.NoError(t, err)
	assert.True(t, evt.IsLocationOnly())
	assert.Empty(t, evt.DeliveryOrderID)
	assert.Equal(t, fixed, evt.EventTimestamp)
	require.NotNil(t, evt.RiderLocationAccuracy)
	assert.InDelta(t, 8.5, *evt.RiderLocationAccuracy, 0.0001)
}

func TestNormalizeLocationPingKeyedByOrderID(t *testing.T) {
	fixed := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	client, err := NewClient("sfx-token", WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	cases := []struct {
		name       string
		orderID    string
		wantJob    string
		wantClient string
	}{
		{"shadowfax job id", `98765`, "98765", ""},
		{"our order id", `"6c1f7a52-3a1e-4f0e-9b55-0d6a5f0c2a11"`, "", "6c1f7a52-3a1e-4f0e-9b55-0d6a5f0c2a11"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := `{"order_id":` + tc.orderID + `,"rider_latitude":12.9,"rider_longitude":77.6,"location_accuracy":4,"pickup_eta":3,"drop_eta":12,"time":"2026-03-01 10:00:00"}`
			evt, err := client.NormalizeEvent(context.Background(), delivery.EventKindLocation, []byte(body))
			require.NoError(t, err)
			assert.Equal(t, tc.wantJob, evt.DeliveryOrderID)
			assert.Equal(t, tc.wantClient, evt.ClientOrderID)
			assert.Equal(t, time.Date(2026, 3, 1, 4, 30, 0, 0, time.UTC), evt.EventTimestamp)
			require.NotNil(t, evt.PickupETAMinutes)
			assert.Equal(t, 3, *evt.PickupETAMinutes)
			require.NotNil(t, evt.DropETAMinutes)
			assert.Equal(t, 12, *evt.DropETAMinutes)
		})
	}
}

func TestNormalizeStatusFallsBackToTimeField(t *testing.T) {
	client, err := NewClient("sfx-token")
	require.NoError(t, err)

	evt, err := client.NormalizeEvent(context.Background(), delivery.EventKindStatus,
		[]byte(`{"sfx_order_id":"98765","order_status":"DELIVERED","return_skus":["sku-9"],"time":"2026-03-02T18:00:00"}`))
	require.NoError(t, err)
	assert.Equal(t, enums.DeliveryStatusDelivered, evt.ReportedStatus)
	assert.Equal(t, time.Date(2026, 3, 2, 12, 30, 0, 0, time.UTC), evt.EventTimestamp)
	assert.Equal(t, []string{"sku-9"}, evt.ReturnSKUs)
}

func TestNormalizeRejectsUncorrelatedCallbacks(t *testing.T) {
	client, err := NewClient("sfx-token")
	require.NoError(t, err)

	_, err = client.NormalizeEvent(context.Background(), delivery.EventKindStatus, []byte(`{"order_status":"ALLOTTED"}`))
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = client.NormalizeEvent(context.Background(), delivery.EventKindStatus, []byte(`not-json`))
	require.Error(t, err)
}
