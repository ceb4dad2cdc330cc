// Package testutil provides shared test helpers for the Veriflow
// gateway: coded-error assertions, environment and config-file
// scaffolding, a throwaway PKI for certificate tests, and JWT/JWKS
// fixtures for provider tests.
//
// All helpers accept [testing.TB] for compatibility with both tests and
// benchmarks. Functions that halt the test on failure use [require]
// from testify; functions that record failures without stopping use
// [assert]. Every helper calls t.Helper() so failure messages report
// the caller's file and line.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vferr "github.com/Veriflow/veriflow-gateway/pkg/errors"
)

// RequireNoError halts the test immediately if err is non-nil.
func RequireNoError(t testing.TB, err error, msgAndArgs ...any) {
	t.Helper()
	require.NoError(t, err, msgAndArgs...)
}

// RequireError halts the test immediately if err is nil.
func RequireError(t testing.TB, err error, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
}

// RequireErrorCode halts the test if err is nil, is not a *vferr.Error,
// or does not carry the expected error code. This is the primary helper
// for validating authentication failure modes.
//
// Example:
//
//	_, err := validator.Validate(ctx, der)
//	testutil.RequireErrorCode(t, err, vferr.CodeAuthRevoked)
func RequireErrorCode(t testing.TB, err error, code vferr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	coded, ok := vferr.AsError(err)
	require.True(t, ok, "expected *vferr.Error, got %T: %v", err, err)
	require.Equal(t, code, coded.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		coded.Code, code, coded.Message)
}

// AssertErrorCode records a test failure (without halting) if err is
// nil, is not a *vferr.Error, or does not carry the expected error
// code. Use this in table-driven tests to check all rows.
func AssertErrorCode(t testing.TB, err error, code vferr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	coded, ok := vferr.AsError(err)
	if !assert.True(t, ok, "expected *vferr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, coded.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		coded.Code, code, coded.Message)
}

// TempConfigFile creates a temporary file with the given content and
// extension (e.g., ".yaml", ".json") inside t.TempDir(), cleaned up
// when the test finishes. Mode 0600.
func TempConfigFile(t testing.TB, content, ext string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config"+ext)
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err, "failed to write temp config file %s", path)
	return path
}

// TempFile creates a temporary file with the given name and content
// inside t.TempDir(), cleaned up when the test finishes.
func TempFile(t testing.TB, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err, "failed to write temp file %s", path)
	return path
}

// SetEnv sets an environment variable and registers a cleanup that
// restores the original value (or unsets it) when the test completes.
//
// Safe for parallel tests only when each test sets a unique variable.
func SetEnv(t testing.TB, key, value string) {
	t.Helper()
	prev, existed := os.LookupEnv(key)
	err := os.Setenv(key, value)
	require.NoError(t, err, "failed to set env var %s", key)
	t.Cleanup(func() {
		if existed {
			_ = os.Setenv(key, prev)
		} else {
			_ = os.Unsetenv(key)
		}
	})
}

// UnsetEnv unsets an environment variable and registers a cleanup that
// restores the original value when the test completes.
func UnsetEnv(t testing.TB, key string) {
	t.Helper()
	prev, existed := os.LookupEnv(key)
	err := os.Unsetenv(key)
	require.NoError(t, err, "failed to unset env var %s", key)
	t.Cleanup(func() {
		if existed {
			_ = os.Setenv(key, prev)
		}
	})
}

// AssertJSONNotContains marshals v to JSON and asserts the result does
// not contain the unexpected substring. Used to verify that secrets
// and credentials are redacted from every serialization surface.
func AssertJSONNotContains(t testing.TB, v any, unexpected string) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err, "json.Marshal failed")
	assert.NotContains(t, string(data), unexpected,
		"expected JSON to NOT contain %q, got: %s", unexpected, string(data))
}
