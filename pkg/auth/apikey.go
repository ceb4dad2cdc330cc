package auth

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	vferr "github.com/Veriflow/veriflow-gateway/pkg/errors"
)

// APIKeyPrefix is the fixed prefix of every gateway-issued API key.
// Keys without it are rejected before any store lookup.
const APIKeyPrefix = "vfk_"

// APIKeyResolver authenticates API keys and resolves them to an
// identity scoped to the key's tenant. Keys are stored hashed; the raw
// key never reaches the store layer.
type APIKeyResolver struct {
	keys    APIKeyStore
	roles   UserRoleStore
	tenants TenantDirectory
	tracer  trace.Tracer
	metrics *Metrics
}

// NewAPIKeyResolver builds a resolver over the given stores.
func NewAPIKeyResolver(keys APIKeyStore, roles UserRoleStore, tenants TenantDirectory, metrics *Metrics) *APIKeyResolver {
	return &APIKeyResolver{
		keys:    keys,
		roles:   roles,
		tenants: tenants,
		tracer:  otel.Tracer(tracerName),
		metrics: metrics,
	}
}

// Resolve authenticates a raw API key and returns the identity it
// grants. suppliedTenant is the tenant the request asked for (header,
// query, or route segment), or "" when the request named none.
//
// An API key is permanently bound to the tenant it was created under.
// A request that supplies a different tenant is rejected unless the
// key's creator is a system administrator; this holds even when the
// creator legitimately belongs to the other tenant, closing the
// cross-tenant reference hole that key reuse would otherwise open.
// Tenant administrators fall back to the key's own tenant when the
// request names none.
func (r *APIKeyResolver) Resolve(ctx context.Context, rawKey, suppliedTenant string) (*AuthenticatedIdentity, error) {
	ctx, span := r.tracer.Start(ctx, "auth.APIKeyResolver.Resolve")
	defer span.End()

	if !strings.HasPrefix(rawKey, APIKeyPrefix) {
		return nil, r.fail(span, vferr.New(vferr.CodeAuthInvalidKey, "key does not carry the expected prefix"))
	}

	record, err := r.keys.FindByHash(ctx, TokenHash(rawKey))
	if err != nil {
		return nil, r.fail(span, vferr.Wrap(err, vferr.CodeUnavailableProvider, "api key lookup failed"))
	}
	if record == nil {
		return nil, r.fail(span, vferr.New(vferr.CodeAuthInvalidKey, "key is not recognized"))
	}
	span.SetAttributes(attribute.String("auth.api_key_id", record.ID))

	tenant, err := r.tenants.Lookup(ctx, record.TenantID)
	if err != nil {
		return nil, r.fail(span, vferr.Wrap(err, vferr.CodeUnavailableProvider, "tenant lookup failed"))
	}
	if tenant == nil || !tenant.Enabled {
		return nil, r.fail(span, vferr.New(vferr.CodeAuthUnknownTenant, "tenant is unknown or disabled").
			WithDetail("tenant_id", record.TenantID))
	}

	roles, err := r.roles.RolesForUser(ctx, record.CreatedBy)
	if err != nil {
		return nil, r.fail(span, vferr.Wrap(err, vferr.CodeUnavailableProvider, "role lookup failed"))
	}
	isSysAdmin := roles.Has(RoleSysAdmin)

	if suppliedTenant != "" && suppliedTenant != record.TenantID && !isSysAdmin {
		return nil, r.fail(span, vferr.New(vferr.CodeAuthzTenantMismatch, "key is not valid for the requested tenant").
			WithDetail("key_tenant", record.TenantID).
			WithDetail("supplied_tenant", suppliedTenant))
	}
	if !isSysAdmin && !roles.Has(RoleTenantAdmin) {
		return nil, r.fail(span, vferr.New(vferr.CodeAuthzInsufficientRole, "key creator lacks an administrative role"))
	}

	finalTenant := record.TenantID
	if isSysAdmin && suppliedTenant != "" {
		finalTenant = suppliedTenant
	}

	identity := &AuthenticatedIdentity{
		UserID:              record.CreatedBy,
		UserType:            UserTypeAPIKey,
		Roles:               roles.Clone(),
		AuthorizedTenantIDs: NewStringSet(finalTenant),
		DefaultTenantID:     finalTenant,
		Credential:          Secret(rawKey),
	}
	span.SetAttributes(
		attribute.String("auth.user_id", record.CreatedBy),
		attribute.String("auth.tenant_id", finalTenant),
	)
	if r.metrics != nil {
		r.metrics.Validation("apikey", true)
	}
	return identity, nil
}

func (r *APIKeyResolver) fail(span trace.Span, err *vferr.Error) *vferr.Error {
	finishSpan(span, err)
	if r.metrics != nil {
		r.metrics.Validation("apikey", false)
	}
	return err
}
