// Package services contains the gateway's validation and execution logic.
package services

import (
	"context"

	"github.com/sqlgate/sqlgate/pkg/models"
)

// Gateway validates and executes candidate SQL.
type Gateway interface {
	// Execute runs raw candidate SQL under the given authorization context.
	// It returns one StatementResult per executed statement, in input order.
	// The first failure aborts the remaining statements and is returned as
	// the sole outcome.
	Execute(ctx context.Context, rawSQL string, auth AuthorizationContext) ([]models.StatementResult, error)
}

// AuthorizationContext is the caller's write capability. The gateway reads it
// fresh at every policy decision and never caches the answer across calls.
type AuthorizationContext interface {
	CanWrite() bool
}

// AuthorizerFunc adapts a function to an AuthorizationContext.
type AuthorizerFunc func() bool

// CanWrite implements AuthorizationContext.
func (f AuthorizerFunc) CanWrite() bool { return f() }

// ReadOnly is the authorization context wired into read-only deployments.
var ReadOnly AuthorizationContext = AuthorizerFunc(func() bool { return false })

// Classifier decides what kind of statement a SQL text is. The keyword
// implementation can be swapped for a grammar-aware one without touching the
// policy gate or the executor.
type Classifier interface {
	Classify(sql string) StatementKind
}

// Translator converts a free-text question about the schema into a candidate
// SQL string. Implementations are untrusted string producers; their output
// goes through the full gateway pipeline like any other input.
type Translator interface {
	Translate(ctx context.Context, question, schema string) (string, error)
}
