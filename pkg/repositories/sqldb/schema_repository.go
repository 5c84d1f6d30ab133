package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sqlgate/sqlgate/pkg/errors"
	"github.com/sqlgate/sqlgate/pkg/infrastructure/pool"
	"github.com/sqlgate/sqlgate/pkg/repositories"
)

// schemaRepository implements repositories.SchemaRepository.
type schemaRepository struct {
	pool   pool.ConnectionPool
	driver string
	logger zerolog.Logger
}

// NewSchemaRepository creates a schema repository. The driver name selects
// the introspection dialect: SQLite has no information_schema, everything
// else is expected to provide one.
func NewSchemaRepository(p pool.ConnectionPool, driver string, logger zerolog.Logger) repositories.SchemaRepository {
	return &schemaRepository{pool: p, driver: driver, logger: logger}
}

// DescribeSchema renders every user table with its columns as prompt text:
//
//	Table students: id (INTEGER), name (TEXT), gpa (REAL)
func (r *schemaRepository) DescribeSchema(ctx context.Context) (string, error) {
	r.logger.Debug().Str("driver", r.driver).Msg("Describing schema")

	var query string
	switch r.driver {
	case "sqlite":
		query = `
			SELECT m.name AS table_name, p.name AS column_name, p.type AS data_type
			FROM sqlite_master m
			JOIN pragma_table_info(m.name) p
			WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
			ORDER BY m.name, p.cid`
	default:
		query = `
			SELECT table_name, column_name, data_type
			FROM information_schema.columns
			WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
			ORDER BY table_name, ordinal_position`
	}

	rows, err := r.pool.DB().QueryContext(ctx, query)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeQueryFailed, "schema introspection failed")
	}
	defer rows.Close()

	tables := make(map[string][]string)
	order := make([]string, 0)
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return "", errors.Wrap(err, errors.CodeQueryFailed, "schema introspection scan failed")
		}
		if _, seen := tables[table]; !seen {
			order = append(order, table)
		}
		tables[table] = append(tables[table], fmt.Sprintf("%s (%s)", column, dataType))
	}
	if err := rows.Err(); err != nil {
		return "", errors.Wrap(err, errors.CodeQueryFailed, "schema introspection failed")
	}

	var b strings.Builder
	for _, table := range order {
		fmt.Fprintf(&b, "Table %s: %s\n", table, strings.Join(tables[table], ", "))
	}
	return b.String(), nil
}

var _ repositories.SchemaRepository = (*schemaRepository)(nil)
