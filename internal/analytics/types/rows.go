package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	pkgbigquery "github.com/angelmondragon/orderflow-backend/pkg/bigquery"
)

// OrderLifecycleRow mirrors the order_lifecycle_events BigQuery schema. Every
// order event becomes one row; the status columns are the snapshot after the
// transition. Money is stored in minor units.
type OrderLifecycleRow struct {
	EventID             string             `bigquery:"event_id"`
	EventType           string             `bigquery:"event_type"`
	OccurredAt          time.Time          `bigquery:"occurred_at"`
	OrderID             string             `bigquery:"order_id"`
	CustomerID          string             `bigquery:"customer_id"`
	VendorID            string             `bigquery:"vendor_id"`
	OrderVersion        int64              `bigquery:"order_version"`
	OrderStatus         string             `bigquery:"order_status"`
	AcceptanceStatus    string             `bigquery:"acceptance_status"`
	DeliveryStatus      string             `bigquery:"delivery_status"`
	PaymentStatus       string             `bigquery:"payment_status"`
	RefundStatus        string             `bigquery:"refund_status"`
	DeliveryService     *string            `bigquery:"delivery_service"`
	Currency            string             `bigquery:"currency"`
	TotalMinor          int64              `bigquery:"total_minor"`
	Action              *string            `bigquery:"action"`
	Actor               *string            `bigquery:"actor"`
	ActorUserID         *string            `bigquery:"actor_user_id"`
	CancelledBy         *string            `bigquery:"cancelled_by"`
	Reason              *string            `bigquery:"reason"`
	PaymentMethod       *string            `bigquery:"payment_method"`
	VendorPayoutMinor   *int64             `bigquery:"vendor_payout_minor"`
	RefundCustomerMinor *int64             `bigquery:"refund_customer_minor"`
	RefundDeliveryMinor *int64             `bigquery:"refund_delivery_minor"`
	DeliveryOrderID     *string            `bigquery:"delivery_order_id"`
	DispatchAttempts    *int64             `bigquery:"dispatch_attempts"`
	Rating              *int64             `bigquery:"rating"`
	Payload             cbigquery.NullJSON `bigquery:"payload"`
}

// LifecycleTable describes the order_lifecycle_events table so the BigQuery
// client can create it when it is missing.
func LifecycleTable(name string) pkgbigquery.TableSpec {
	return pkgbigquery.TableSpec{
		Name:           name,
		Schema:         lifecycleSchema(),
		PartitionField: "occurred_at",
		ClusterBy:      []string{"vendor_id", "event_type"},
	}
}

func lifecycleSchema() cbigquery.Schema {
	required := func(name string, t cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: t, Required: true}
	}
	nullable := func(name string, t cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: t}
	}
	return cbigquery.Schema{
		required("event_id", cbigquery.StringFieldType),
		required("event_type", cbigquery.StringFieldType),
		required("occurred_at", cbigquery.TimestampFieldType),
		required("order_id", cbigquery.StringFieldType),
		required("customer_id", cbigquery.StringFieldType),
		required("vendor_id", cbigquery.StringFieldType),
		required("order_version", cbigquery.IntegerFieldType),
		required("order_status", cbigquery.StringFieldType),
		required("acceptance_status", cbigquery.StringFieldType),
		required("delivery_status", cbigquery.StringFieldType),
		required("payment_status", cbigquery.StringFieldType),
		required("refund_status", cbigquery.StringFieldType),
		nullable("delivery_service", cbigquery.StringFieldType),
		required("currency", cbigquery.StringFieldType),
		required("total_minor", cbigquery.IntegerFieldType),
		nullable("action", cbigquery.StringFieldType),
		nullable("actor", cbigquery.StringFieldType),
		nullable("actor_user_id", cbigquery.StringFieldType),
		nullable("cancelled_by", cbigquery.StringFieldType),
		nullable("reason", cbigquery.StringFieldType),
		nullable("payment_method", cbigquery.StringFieldType),
		nullable("vendor_payout_minor", cbigquery.IntegerFieldType),
		nullable("refund_customer_minor", cbigquery.IntegerFieldType),
		nullable("refund_delivery_minor", cbigquery.IntegerFieldType),
		nullable("delivery_order_id", cbigquery.StringFieldType),
		nullable("dispatch_attempts", cbigquery.IntegerFieldType),
		nullable("rating", cbigquery.IntegerFieldType),
		nullable("payload", cbigquery.JSONFieldType),
	}
}
