// Package sqldb implements repositories over database/sql. It is engine
// neutral: DuckDB, SQLite, and Postgres drivers all plug in through the pool.
package sqldb

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sqlgate/sqlgate/pkg/errors"
	"github.com/sqlgate/sqlgate/pkg/infrastructure/pool"
	"github.com/sqlgate/sqlgate/pkg/models"
	"github.com/sqlgate/sqlgate/pkg/repositories"
)

// queryExecutor implements repositories.QueryExecutor.
type queryExecutor struct {
	pool   pool.ConnectionPool
	logger zerolog.Logger
}

// NewQueryExecutor creates a query executor backed by the given pool.
func NewQueryExecutor(p pool.ConnectionPool, logger zerolog.Logger) repositories.QueryExecutor {
	return &queryExecutor{pool: p, logger: logger}
}

// ExecuteQuery runs a read statement on a scoped connection, materializing
// every row before the connection is released.
func (r *queryExecutor) ExecuteQuery(ctx context.Context, query string) (*models.TableResult, error) {
	r.logger.Debug().Str("query", query).Msg("Executing query")

	conn, err := r.pool.DB().Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConnectionFailed, "failed to acquire connection")
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Execution(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		// Some drivers report no metadata for zero-column results.
		columns = []string{}
	}

	result := &models.TableResult{
		Columns: columns,
		Rows:    make([][]interface{}, 0),
	}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		scanTargets := make([]interface{}, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, errors.Execution(err)
		}
		for i, v := range values {
			// Drivers hand back raw bytes for text columns; normalize so
			// downstream renderers see strings.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Execution(err)
	}

	r.logger.Debug().Int("rows", len(result.Rows)).Msg("Query results materialized")
	return result, nil
}

// ExecuteWrite runs a write statement inside its own transaction and commits
// before returning. A failed statement rolls back; statements committed by
// earlier calls are unaffected.
func (r *queryExecutor) ExecuteWrite(ctx context.Context, statement string) (int64, error) {
	r.logger.Debug().Str("statement", statement).Msg("Executing write")

	tx, err := r.pool.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeConnectionFailed, "failed to begin transaction")
	}

	res, err := tx.ExecContext(ctx, statement)
	if err != nil {
		_ = tx.Rollback()
		return 0, errors.Execution(err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Execution(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		// Not every driver reports affected rows; the acknowledgment does
		// not depend on it.
		affected = 0
	}

	r.logger.Debug().Int64("rows_affected", affected).Msg("Write committed")
	return affected, nil
}

var _ repositories.QueryExecutor = (*queryExecutor)(nil)
