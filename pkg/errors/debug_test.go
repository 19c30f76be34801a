package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpExtractsPostgresDetails(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{name: "pgx", err: &pgconn.PgError{Code: PGUniqueViolation, ConstraintName: "ux_orders_payment_id", TableName: "orders"}},
		{name: "pq", err: &pq.Error{Code: PGUniqueViolation, Constraint: "ux_orders_payment_id", Table: "orders"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Dump(Wrap(CodeInternal, fmt.Errorf("insert order: %w", tc.err), "place order"))
			if d.PG == nil || d.PG.Constraint != "ux_orders_payment_id" || d.PG.Table != "orders" {
				t.Fatalf("unexpected pg details %+v", d.PG)
			}
			if d.Code != CodeInternal {
				t.Fatalf("expected internal code, got %s", d.Code)
			}
			if len(d.Chain) < 2 {
				t.Fatalf("expected wrapped chain, got %v", d.Chain)
			}
		})
	}
}

func TestDumpMarksSerializationFailuresRetryable(t *testing.T) {
	d := Dump(fmt.Errorf("update order: %w", &pgconn.PgError{Code: PGSerializationFailure}))
	if !d.Retryable {
		t.Fatal("expected serialization failure to be retryable")
	}
	if d.Fields()["pg_code"] != PGSerializationFailure {
		t.Fatalf("expected pg_code field, got %v", d.Fields()["pg_code"])
	}
}

func TestDumpWithoutPostgresError(t *testing.T) {
	d := Dump(New(CodeValidation, "bad rating"))
	if d.PG != nil || d.Retryable {
		t.Fatalf("unexpected dump %+v", d)
	}
	if _, ok := d.Fields()["pg_code"]; ok {
		t.Fatal("pg fields should be omitted")
	}
}
