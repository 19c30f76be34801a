package delivery

import (
	"fmt"
	"sort"

	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
)

// Registry resolves providers by delivery service.
type Registry struct {
	providers map[enums.DeliveryService]Provider
}

// NewRegistry indexes the given providers. Registering two providers for the
// same service is a configuration error.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[enums.DeliveryService]Provider, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		svc := p.Service()
		if !svc.IsValid() {
			return nil, fmt.Errorf("provider reports unknown delivery service %q", svc)
		}
		if _, exists := r.providers[svc]; exists {
			return nil, fmt.Errorf("duplicate provider for delivery service %q", svc)
		}
		r.providers[svc] = p
	}
	return r, nil
}

// Get returns the provider for the service.
func (r *Registry) Get(service enums.DeliveryService) (Provider, error) {
	if r != nil {
		if p, ok := r.providers[service]; ok {
			return p, nil
		}
	}
	return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "delivery service %q is not configured", service)
}

// Services lists registered services in a stable order.
func (r *Registry) Services() []enums.DeliveryService {
	if r == nil {
		return nil
	}
	out := make([]enums.DeliveryService, 0, len(r.providers))
	for svc := range r.providers {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
