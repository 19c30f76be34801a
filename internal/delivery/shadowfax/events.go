package shadowfax

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderflow-backend/internal/delivery"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Shadowfax posts naive timestamps in IST.
var (
	ist              = time.FixedZone("IST", 5*3600+1800)
	timestampLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}
)

var statusMap = map[string]enums.DeliveryStatus{
	"ALLOTTED":                  enums.DeliveryStatusAllotted,
	"ARRIVED":                   enums.DeliveryStatusArrived,
	"DISPATCHED":                enums.DeliveryStatusDispatched,
	"ARRIVED_CUSTOMER_DOORSTEP": enums.DeliveryStatusArrivedAtDoorstep,
	"DELIVERED":                 enums.DeliveryStatusDelivered,
	"CANCELLED":                 enums.DeliveryStatusCancelled,
}

// flexibleID accepts ids sent either as JSON numbers or strings.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

type callback struct {
	SFXOrderID       flexibleID `json:"sfx_order_id"`
	ClientOrderID    string     `json:"client_order_id"`
	OrderID          flexibleID `json:"order_id"`
	OrderStatus      string     `json:"order_status"`
	StatusUpdateTime string     `json:"status_update_time"`
	Time             string     `json:"time"`
	UpdatedAt        string     `json:"updated_at"`
	RiderLatitude    *float64   `json:"rider_latitude"`
	RiderLongitude   *float64   `json:"rider_longitude"`
	LocationAccuracy *float64   `json:"location_accuracy"`
	PickupETA        *int       `json:"pickup_eta"`
	DropETA          *int       `json:"drop_eta"`
	ReturnSKUs       []string   `json:"return_skus"`
}

// NormalizeEvent maps a Shadowfax status or location callback onto the
// canonical delivery event. Unknown statuses are validation errors.
func (c *Client) NormalizeEvent(_ context.Context, kind delivery.EventKind, body []byte) (*orders.DeliveryStatusEvent, error) {
	var cb callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shadowfax callback payload")
	}
	deliveryOrderID, clientOrderID := cb.correlation()
	if deliveryOrderID == "" && clientOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shadowfax callback missing sfx_order_id, client_order_id and order_id")
	}

	evt := &orders.DeliveryStatusEvent{
		Provider:              enums.DeliveryServiceShadowfax,
		DeliveryOrderID:       deliveryOrderID,
		ClientOrderID:         clientOrderID,
		RiderLatitude:         cb.RiderLatitude,
		RiderLongitude:        cb.RiderLongitude,
		RiderLocationAccuracy: cb.LocationAccuracy,
		PickupETAMinutes:      cb.PickupETA,
		DropETAMinutes:        cb.DropETA,
		ReturnSKUs:            cb.ReturnSKUs,
		Raw:                   json.RawMessage(append([]byte(nil), body...)),
	}

	rawTime := firstNonBlank(cb.Time, cb.StatusUpdateTime, cb.UpdatedAt)
	if kind == delivery.EventKindStatus {
		status, ok := statusMap[strings.ToUpper(strings.TrimSpace(cb.OrderStatus))]
		if !ok {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported shadowfax status %q", cb.OrderStatus)
		}
		evt.ReportedStatus = status
		rawTime = firstNonBlank(cb.StatusUpdateTime, cb.Time, cb.UpdatedAt)
	}

	ts, err := c.parseTimestamp(rawTime)
	if err != nil {
		return nil, err
	}
	evt.EventTimestamp = ts
	return evt, nil
}

// correlation splits the callback's identifiers into the Shadowfax job id and
// our own order id. Location pings only carry order_id, which may be either.
func (cb callback) correlation() (deliveryOrderID, clientOrderID string) {
	deliveryOrderID = string(cb.SFXOrderID)
	clientOrderID = strings.TrimSpace(cb.ClientOrderID)
	if ref := string(cb.OrderID); ref != "" {
		if _, err := uuid.Parse(ref); err == nil {
			if clientOrderID == "" {
				clientOrderID = ref
			}
		} else if deliveryOrderID == "" {
			deliveryOrderID = ref
		}
	}
	return deliveryOrderID, clientOrderID
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func (c *Client) parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return c.now().UTC(), nil
	}
	for _, layout := range timestampLayouts {
		var (
			ts  time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			ts, err = time.Parse(layout, raw)
		} else {
			ts, err = time.ParseInLocation(layout, raw, ist)
		}
		if err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid shadowfax timestamp %q", raw)
}
