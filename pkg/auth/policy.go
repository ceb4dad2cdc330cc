package auth

import (
	vferr "github.com/Veriflow/veriflow-gateway/pkg/errors"
)

// AuthState represents where a request sits in the authentication
// pipeline. States form a small finite state machine with validated
// transitions defined by [ValidAuthTransition].
//
// The flow for an accepted request is:
//
//	Unauthenticated → Authenticating → Authorized
//
// A request may be rejected from either intermediate state:
//
//	Unauthenticated → Rejected    (no credential presented)
//	Authenticating  → Rejected    (validation or policy failure)
//
// Rejected and Authorized are terminal for the request's lifetime.
type AuthState string

const (
	// AuthStateUnauthenticated is the initial state of every request
	// before the middleware has looked at it.
	AuthStateUnauthenticated AuthState = "unauthenticated"

	// AuthStateAuthenticating indicates a credential was extracted and
	// is being validated.
	AuthStateAuthenticating AuthState = "authenticating"

	// AuthStateAuthorized indicates validation and policy evaluation
	// both succeeded; the request carries a sealed tenant context.
	AuthStateAuthorized AuthState = "authorized"

	// AuthStateRejected indicates the request was refused. The coded
	// error recorded alongside the transition says why; the response
	// body never does.
	AuthStateRejected AuthState = "rejected"
)

// String returns the string representation of the state.
func (s AuthState) String() string {
	return string(s)
}

// Valid reports whether the state is one of the recognized pipeline
// states. The zero value ("") is not valid.
func (s AuthState) Valid() bool {
	switch s {
	case AuthStateUnauthenticated, AuthStateAuthenticating,
		AuthStateAuthorized, AuthStateRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state ends the pipeline for this
// request.
func (s AuthState) IsTerminal() bool {
	return s == AuthStateAuthorized || s == AuthStateRejected
}

var validAuthTransitions = map[AuthState][]AuthState{
	AuthStateUnauthenticated: {AuthStateAuthenticating, AuthStateRejected},
	AuthStateAuthenticating:  {AuthStateAuthorized, AuthStateRejected},
}

// ValidAuthTransition reports whether moving from state from to state
// to is allowed. Same-state transitions are always rejected.
func ValidAuthTransition(from, to AuthState) bool {
	if from == to {
		return false
	}
	for _, t := range validAuthTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ---

// Requirement is one per-route authorization rule, evaluated against
// the sealed TenantContext after authentication succeeds. Requirements
// compose: a route passes only when every attached requirement passes.
type Requirement interface {
	// Check returns nil when the context satisfies the requirement, or
	// a coded authorization error.
	Check(tc *TenantContext) *vferr.Error
}

// RequirementFunc adapts a plain function to the Requirement
// interface.
type RequirementFunc func(tc *TenantContext) *vferr.Error

// Check implements Requirement.
func (f RequirementFunc) Check(tc *TenantContext) *vferr.Error {
	return f(tc)
}

// RequireTenant requires the request to have resolved to a non-empty
// tenant. Routes that operate on tenant-scoped data declare this so
// that a tokened user with no tenant membership cannot reach them.
func RequireTenant() Requirement {
	return RequirementFunc(func(tc *TenantContext) *vferr.Error {
		if tc.TenantID == "" {
			return vferr.New(vferr.CodeAuthzTenantMismatch, "request resolved to no tenant")
		}
		return nil
	})
}

// RequireRole requires the caller to hold the named role. SysAdmins
// pass every role requirement.
func RequireRole(role string) Requirement {
	return RequirementFunc(func(tc *TenantContext) *vferr.Error {
		if tc.IsSysAdmin() || tc.HasRole(role) {
			return nil
		}
		return vferr.New(vferr.CodeAuthzInsufficientRole, "caller lacks a required role").
			WithDetail("required_role", role)
	})
}

// RequireAnyRole requires the caller to hold at least one of the named
// roles. SysAdmins pass unconditionally.
func RequireAnyRole(roles ...string) Requirement {
	return RequirementFunc(func(tc *TenantContext) *vferr.Error {
		if tc.IsSysAdmin() {
			return nil
		}
		for _, role := range roles {
			if tc.HasRole(role) {
				return nil
			}
		}
		return vferr.New(vferr.CodeAuthzInsufficientRole, "caller lacks all acceptable roles")
	})
}

// RequireUserType requires the caller to have authenticated with the
// given credential kind. Used to fence agent-only endpoints off from
// interactive users and vice versa.
func RequireUserType(t UserType) Requirement {
	return RequirementFunc(func(tc *TenantContext) *vferr.Error {
		if tc.UserType == t {
			return nil
		}
		return vferr.New(vferr.CodeAuthzInsufficientRole, "credential kind is not accepted on this route").
			WithDetail("required_user_type", t.String())
	})
}

// PolicyEvaluator evaluates an ordered requirement list against a
// sealed tenant context. Evaluation is fail-fast: the first failing
// requirement's error is returned and later requirements are not
// consulted.
type PolicyEvaluator struct {
	requirements []Requirement
}

// NewPolicyEvaluator builds an evaluator over the given requirements.
// An empty list is valid and always passes.
func NewPolicyEvaluator(requirements ...Requirement) *PolicyEvaluator {
	return &PolicyEvaluator{requirements: requirements}
}

// Evaluate checks every requirement in order. The context must be
// sealed; evaluating an unsealed context is a contract violation, as
// it means a validator handed out a context it was still mutating.
func (e *PolicyEvaluator) Evaluate(tc *TenantContext) *vferr.Error {
	if tc == nil || !tc.Sealed() {
		return vferr.Contract("policy evaluation requires a sealed tenant context")
	}
	for _, req := range e.requirements {
		if err := req.Check(tc); err != nil {
			return err
		}
	}
	return nil
}
