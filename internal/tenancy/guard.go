// Package tenancy is the authorization chokepoint preventing cross-tenant
// access. Every component calls Authorize before touching a resource.
package tenancy

import "github.com/orvio-ai/be-order-verification/internal/errors"

// Authorize permits an action only when the actor's tenant matches the
// resource's tenant. Pure, no side effects. Empty tenants never match.
func Authorize(actorTenant, resourceTenant string) error {
	if actorTenant == "" || resourceTenant == "" {
		return errors.Unauthorized("tenant is required")
	}
	if actorTenant != resourceTenant {
		return errors.Unauthorized("resource belongs to a different tenant")
	}
	return nil
}
