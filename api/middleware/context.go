package middleware

import "context"

// identity is what Auth learned about the caller. Controllers read it
// through the accessors below.
type identity struct {
	userID   string
	role     string
	vendorID string
}

type identityKey struct{}

func identityFrom(ctx context.Context) identity {
	if ctx == nil {
		return identity{}
	}
	id, _ := ctx.Value(identityKey{}).(identity)
	return id
}

func withIdentity(ctx context.Context, update func(*identity)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id := identityFrom(ctx)
	update(&id)
	return context.WithValue(ctx, identityKey{}, id)
}

func UserIDFromContext(ctx context.Context) string { return identityFrom(ctx).userID }

func RoleFromContext(ctx context.Context) string { return identityFrom(ctx).role }

// VendorIDFromContext returns the restaurant a vendor operator is scoped to.
func VendorIDFromContext(ctx context.Context) string { return identityFrom(ctx).vendorID }

func WithUserID(ctx context.Context, userID string) context.Context {
	return withIdentity(ctx, func(id *identity) { id.userID = userID })
}

func WithRole(ctx context.Context, role string) context.Context {
	return withIdentity(ctx, func(id *identity) { id.role = role })
}

func WithVendorID(ctx context.Context, vendorID string) context.Context {
	return withIdentity(ctx, func(id *identity) { id.vendorID = vendorID })
}
