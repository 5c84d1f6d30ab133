package services

import "github.com/sqlgate/sqlgate/pkg/errors"

// PolicyGate decides whether a classified statement may execute. Read-only
// and read/write deployments use the same gate with different authorization
// wiring rather than duplicated logic.
type PolicyGate struct{}

// NewPolicyGate creates a policy gate.
func NewPolicyGate() *PolicyGate {
	return &PolicyGate{}
}

// Authorize allows or rejects execution of a statement of the given kind.
// The authorization context is consulted at the moment of the call; results
// are never cached across invocations.
func (g *PolicyGate) Authorize(kind StatementKind, auth AuthorizationContext) error {
	switch kind {
	case KindRead:
		return nil
	case KindWrite:
		if auth == nil || !auth.CanWrite() {
			return errors.ErrAuthenticationRequired
		}
		return nil
	case KindForbidden:
		return errors.ErrDangerousOperation
	default:
		return errors.ErrUnsupportedStatement
	}
}
