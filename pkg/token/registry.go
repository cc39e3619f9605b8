package token

import (
	sserr "github.com/StricklySoft/stricklysoft-tokens/pkg/errors"
	"github.com/StricklySoft/stricklysoft-tokens/pkg/tenant"
)

// Registry maps token shapes to providers. It is built once and never
// modified, so it is safe to share.
type Registry struct {
	providers map[tenant.Shape]Provider
}

// NewRegistry indexes providers by shape. A later provider for the same
// shape replaces an earlier one.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[tenant.Shape]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Shape()] = p
	}
	return r
}

// Provider returns the provider for shape, or a
// [sserr.CodeProviderNotFound] error.
func (r *Registry) Provider(shape tenant.Shape) (Provider, error) {
	p, ok := r.providers[shape]
	if !ok {
		return nil, sserr.Newf(sserr.CodeProviderNotFound,
			"token: no provider registered for shape %q", shape).
			WithDetail("token_shape", string(shape))
	}
	return p, nil
}
