package auth

import (
	"context"
	"sync"
)

// In-memory store fakes shared across this package's tests.

type fakeRevocations struct {
	mu      sync.Mutex
	revoked map[string]bool
	err     error
}

func newFakeRevocations() *fakeRevocations {
	return &fakeRevocations{revoked: make(map[string]bool)}
}

func (f *fakeRevocations) IsRevoked(_ context.Context, thumbprint string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[thumbprint], nil
}

func (f *fakeRevocations) Revoke(thumbprint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[thumbprint] = true
}

type fakeTenants struct {
	mu      sync.Mutex
	tenants map[string]*TenantConfig
	err     error
}

func newFakeTenants(ids ...string) *fakeTenants {
	f := &fakeTenants{tenants: make(map[string]*TenantConfig)}
	for _, id := range ids {
		f.tenants[id] = &TenantConfig{ID: id, Enabled: true}
	}
	return f
}

func (f *fakeTenants) Lookup(_ context.Context, tenantID string) (*TenantConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.tenants[tenantID], nil
}

func (f *fakeTenants) disable(tenantID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tc, ok := f.tenants[tenantID]; ok {
		tc.Enabled = false
	}
}

type fakeKeyStore struct {
	mu     sync.Mutex
	byHash map[string]*APIKeyRecord
	err    error
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{byHash: make(map[string]*APIKeyRecord)}
}

func (f *fakeKeyStore) FindByHash(_ context.Context, keyHash string) (*APIKeyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.byHash[keyHash], nil
}

func (f *fakeKeyStore) add(rawKey string, record *APIKeyRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record.KeyHash = TokenHash(rawKey)
	f.byHash[record.KeyHash] = record
}

type fakeRoleStore struct {
	mu      sync.Mutex
	roles   map[string]StringSet
	tenants map[string][]string
	err     error
}

func newFakeRoleStore() *fakeRoleStore {
	return &fakeRoleStore{
		roles:   make(map[string]StringSet),
		tenants: make(map[string][]string),
	}
}

func (f *fakeRoleStore) RolesForUser(_ context.Context, userID string) (StringSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if roles, ok := f.roles[userID]; ok {
		return roles.Clone(), nil
	}
	return NewStringSet(), nil
}

func (f *fakeRoleStore) TenantsForUser(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.tenants[userID]...), nil
}

func (f *fakeRoleStore) grant(userID string, roles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[userID] = NewStringSet(roles...)
}

func (f *fakeRoleStore) member(userID string, tenantIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants[userID] = tenantIDs
}
