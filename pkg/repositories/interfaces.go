// Package repositories defines interfaces for data access operations.
package repositories

import (
	"context"

	"github.com/sqlgate/sqlgate/pkg/models"
)

// QueryExecutor runs validated SQL against the relational data source.
type QueryExecutor interface {
	// ExecuteQuery runs a read statement on a scoped connection and
	// materializes every row eagerly.
	ExecuteQuery(ctx context.Context, query string) (*models.TableResult, error)
	// ExecuteWrite runs a write statement inside its own transaction and
	// commits before returning the number of affected rows.
	ExecuteWrite(ctx context.Context, statement string) (int64, error)
}

// SchemaRepository produces the schema descriptor consumed by the
// translation collaborator. The gateway itself never reads it.
type SchemaRepository interface {
	// DescribeSchema renders the permitted tables and their columns as
	// prompt text.
	DescribeSchema(ctx context.Context) (string, error)
}
