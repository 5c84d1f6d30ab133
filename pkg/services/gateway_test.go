package services

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlgate/sqlgate/pkg/errors"
	"github.com/sqlgate/sqlgate/pkg/infrastructure/pool"
	"github.com/sqlgate/sqlgate/pkg/models"
	"github.com/sqlgate/sqlgate/pkg/repositories/sqldb"
)

// fakeExecutor records every statement that reaches the data source so tests
// can assert that rejected input causes no database contact at all.
type fakeExecutor struct {
	queries []string
	writes  []string

	queryErr error
	writeErr error
	table    *models.TableResult
	affected int64
}

func (f *fakeExecutor) ExecuteQuery(ctx context.Context, query string) (*models.TableResult, error) {
	f.queries = append(f.queries, query)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.table != nil {
		return f.table, nil
	}
	return &models.TableResult{Columns: []string{}, Rows: [][]interface{}{}}, nil
}

func (f *fakeExecutor) ExecuteWrite(ctx context.Context, statement string) (int64, error) {
	f.writes = append(f.writes, statement)
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.affected, nil
}

func (f *fakeExecutor) contacts() int {
	return len(f.queries) + len(f.writes)
}

var writer = AuthorizerFunc(func() bool { return true })

func newTestGateway(executor *fakeExecutor, cfg GatewayConfig) Gateway {
	return NewGateway(executor, cfg, zerolog.Nop(), nil)
}

func TestGateway_ReadGetsRowCap(t *testing.T) {
	executor := &fakeExecutor{
		table: &models.TableResult{
			Columns: []string{"id", "gpa"},
			Rows:    [][]interface{}{{int64(1), 3.8}},
		},
	}
	gateway := newTestGateway(executor, GatewayConfig{})

	results, err := gateway.Execute(context.Background(), "SELECT id, gpa FROM students", ReadOnly)
	require.NoError(t, err)

	require.Len(t, executor.queries, 1)
	assert.Equal(t, "SELECT id, gpa FROM students LIMIT 100", executor.queries[0])

	require.Len(t, results, 1)
	require.True(t, results[0].IsTable())
	assert.Equal(t, []string{"id", "gpa"}, results[0].Table.Columns)
}

// Reads are pure with respect to gateway state: the same statement submitted
// twice against an unchanged data source produces the same executed SQL and
// the same {columns, rows} shape both times.
func TestGateway_ReadIsIdempotent(t *testing.T) {
	executor := &fakeExecutor{
		table: &models.TableResult{
			Columns: []string{"id", "name"},
			Rows:    [][]interface{}{{int64(1), "Ana"}, {int64(2), "Ben"}},
		},
	}
	gateway := newTestGateway(executor, GatewayConfig{})

	first, err := gateway.Execute(context.Background(), "SELECT id, name FROM students", ReadOnly)
	require.NoError(t, err)
	second, err := gateway.Execute(context.Background(), "SELECT id, name FROM students", ReadOnly)
	require.NoError(t, err)

	require.Len(t, executor.queries, 2)
	assert.Equal(t, executor.queries[0], executor.queries[1], "both submissions execute identical SQL")

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Table.Columns, second[0].Table.Columns)
	assert.Equal(t, first[0].Table.Rows, second[0].Table.Rows)
}

func TestGateway_AggregateSkipsRowCap(t *testing.T) {
	executor := &fakeExecutor{}
	gateway := newTestGateway(executor, GatewayConfig{})

	_, err := gateway.Execute(context.Background(), "SELECT COUNT(*) FROM students", ReadOnly)
	require.NoError(t, err)

	require.Len(t, executor.queries, 1)
	assert.Equal(t, "SELECT COUNT(*) FROM students", executor.queries[0])
}

func TestGateway_ExplicitLimitPreserved(t *testing.T) {
	executor := &fakeExecutor{}
	gateway := newTestGateway(executor, GatewayConfig{DefaultRowCap: 10})

	_, err := gateway.Execute(context.Background(), "SELECT * FROM students LIMIT 3", ReadOnly)
	require.NoError(t, err)

	require.Len(t, executor.queries, 1)
	assert.Equal(t, "SELECT * FROM students LIMIT 3", executor.queries[0])
}

func TestGateway_StrictModeRejectsBatch(t *testing.T) {
	executor := &fakeExecutor{}
	gateway := newTestGateway(executor, GatewayConfig{AllowBatch: false})

	_, err := gateway.Execute(context.Background(), "SELECT 1; SELECT 2", ReadOnly)
	assert.ErrorIs(t, err, errors.ErrMultipleStatements)
	assert.Zero(t, executor.contacts(), "rejected input must not touch the data source")
}

func TestGateway_ForbiddenKeywordIsFatal(t *testing.T) {
	executor := &fakeExecutor{}
	gateway := newTestGateway(executor, GatewayConfig{})

	_, err := gateway.Execute(context.Background(), "DROP TABLE students", writer)
	assert.ErrorIs(t, err, errors.ErrDangerousOperation)
	assert.Zero(t, executor.contacts())
}

// A forbidden keyword anywhere in a batch rejects the whole request before
// any statement runs, including the clean ones ahead of it.
func TestGateway_ForbiddenAnywhereInBatchRejectsAll(t *testing.T) {
	executor := &fakeExecutor{}
	gateway := newTestGateway(executor, GatewayConfig{AllowBatch: true, AllowWrites: true})

	_, err := gateway.Execute(context.Background(),
		"INSERT INTO students (name) VALUES ('Ana'); DROP TABLE students", writer)
	assert.ErrorIs(t, err, errors.ErrDangerousOperation)
	assert.Zero(t, executor.contacts(), "no statement may run once the batch carries a forbidden keyword")
}

func TestGateway_WriteWithoutAuthorization(t *testing.T) {
	executor := &fakeExecutor{}
	gateway := newTestGateway(executor, GatewayConfig{AllowWrites: true})

	_, err := gateway.Execute(context.Background(), "UPDATE students SET gpa = 4.0 WHERE id = 1", ReadOnly)
	assert.ErrorIs(t, err, errors.ErrAuthenticationRequired)
	assert.Zero(t, executor.contacts())
}

func TestGateway_WriteAcknowledgment(t *testing.T) {
	executor := &fakeExecutor{affected: 1}
	gateway := newTestGateway(executor, GatewayConfig{AllowWrites: true})

	results, err := gateway.Execute(context.Background(), "UPDATE students SET gpa = 4.0 WHERE id = 1", writer)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.False(t, results[0].IsTable())
	assert.Equal(t, "UPDATE operation completed successfully", results[0].Ack)
}

// When the write path is disabled, even a write-capable caller is treated as
// read-only.
func TestGateway_DisabledWritePathOverridesCaller(t *testing.T) {
	executor := &fakeExecutor{}
	gateway := newTestGateway(executor, GatewayConfig{AllowWrites: false})

	_, err := gateway.Execute(context.Background(), "DELETE FROM students WHERE id = 1", writer)
	assert.ErrorIs(t, err, errors.ErrAuthenticationRequired)
	assert.Zero(t, executor.contacts())
}

func TestGateway_InvalidStatement(t *testing.T) {
	executor := &fakeExecutor{}
	gateway := newTestGateway(executor, GatewayConfig{})

	_, err := gateway.Execute(context.Background(), "show me all the students", ReadOnly)
	assert.ErrorIs(t, err, errors.ErrUnsupportedStatement)
	assert.Zero(t, executor.contacts())
}

func TestGateway_EmptyInput(t *testing.T) {
	executor := &fakeExecutor{}
	gateway := newTestGateway(executor, GatewayConfig{})

	_, err := gateway.Execute(context.Background(), "   ", ReadOnly)
	assert.ErrorIs(t, err, errors.ErrEmptyStatement)
	assert.Zero(t, executor.contacts())
}

// Execution failures fail fast: the erroring statement aborts the rest of the
// batch and the driver's error text survives verbatim.
func TestGateway_FailFastKeepsDriverText(t *testing.T) {
	executor := &fakeExecutor{queryErr: errors.Execution(fmt.Errorf("no such table: missing"))}
	gateway := newTestGateway(executor, GatewayConfig{AllowBatch: true})

	_, err := gateway.Execute(context.Background(), "SELECT * FROM missing; SELECT 1", ReadOnly)
	require.Error(t, err)
	assert.Equal(t, "no such table: missing", errors.GetMessage(err))
	assert.Equal(t, "ERROR: no such table: missing", errors.UserMessage(err))
	assert.Len(t, executor.queries, 1, "the failing statement aborts the remainder of the batch")
}

// End to end against database/sql: the first write in a batch commits and
// stays committed even though the second write fails and rolls back.
func TestGateway_BatchFailureLeavesEarlierCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET gpa = 4.0 WHERE id = 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET gpa = 'x' WHERE id = 2")).
		WillReturnError(fmt.Errorf("datatype mismatch"))
	mock.ExpectRollback()

	executor := sqldb.NewQueryExecutor(pool.NewWithDB(db, zerolog.Nop()), zerolog.Nop())
	gateway := NewGateway(executor, GatewayConfig{AllowBatch: true, AllowWrites: true}, zerolog.Nop(), nil)

	_, err = gateway.Execute(context.Background(),
		"UPDATE students SET gpa = 4.0 WHERE id = 1; UPDATE students SET gpa = 'x' WHERE id = 2", writer)
	require.Error(t, err)
	assert.Equal(t, "datatype mismatch", errors.GetMessage(err))

	assert.NoError(t, mock.ExpectationsWereMet(), "first statement committed, second rolled back, nothing else ran")
}

func TestGateway_BatchReturnsResultsInOrder(t *testing.T) {
	executor := &fakeExecutor{affected: 1}
	gateway := newTestGateway(executor, GatewayConfig{AllowBatch: true, AllowWrites: true})

	results, err := gateway.Execute(context.Background(),
		"INSERT INTO t VALUES (1); SELECT * FROM t; DELETE FROM t WHERE id = 1", writer)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "INSERT operation completed successfully", results[0].Ack)
	assert.True(t, results[1].IsTable())
	assert.Equal(t, "DELETE operation completed successfully", results[2].Ack)
}

func TestWriteAck(t *testing.T) {
	tests := []struct {
		statement string
		expected  string
	}{
		{"INSERT INTO t VALUES (1)", "INSERT operation completed successfully"},
		{"update t set x = 1", "UPDATE operation completed successfully"},
		{"DELETE FROM t", "DELETE operation completed successfully"},
		{"CREATE TABLE t (id INTEGER)", "CREATE operation completed successfully"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, WriteAck(tt.statement))
	}
}
