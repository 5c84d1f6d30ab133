package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlgate/sqlgate/pkg/infrastructure/pool"
	"github.com/sqlgate/sqlgate/pkg/repositories"
	"github.com/sqlgate/sqlgate/pkg/repositories/sqldb"
	"github.com/sqlgate/sqlgate/pkg/services"
)

type fakeTranslator struct {
	sql string
	err error
}

func (f *fakeTranslator) Translate(ctx context.Context, question, schema string) (string, error) {
	return f.sql, f.err
}

type fakeSchema struct {
	schema string
}

func (f *fakeSchema) DescribeSchema(ctx context.Context) (string, error) {
	return f.schema, nil
}

type testStack struct {
	handler  http.Handler
	mock     sqlmock.Sqlmock
	sessions *SessionManager
	cleanup  func()
}

func newTestStack(t *testing.T, allowWrites bool, translator services.Translator) *testStack {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	p := pool.NewWithDB(db, zerolog.Nop())
	executor := sqldb.NewQueryExecutor(p, zerolog.Nop())
	gateway := services.NewGateway(executor, services.GatewayConfig{
		AllowWrites: allowWrites,
	}, zerolog.Nop(), nil)

	sessions := NewSessionManager("test-secret", time.Minute)

	var schema repositories.SchemaRepository
	if translator != nil {
		schema = &fakeSchema{schema: "Table students: id (INTEGER), name (TEXT)\n"}
	}

	srv := New(gateway, translator, schema, sessions, p, Options{
		Users: map[string]string{"admin": "secret"},
	}, zerolog.Nop(), nil)

	return &testStack{
		handler:  srv.Handler(),
		mock:     mock,
		sessions: sessions,
		cleanup:  func() { db.Close() },
	}
}

func (s *testStack) post(t *testing.T, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testStack) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := s.post(t, "/v1/login", "", loginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["token"])
	return body["token"]
}

func decodeQueryResponse(t *testing.T, rec *httptest.ResponseRecorder) queryResponse {
	t.Helper()
	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestServer_Query_Read(t *testing.T) {
	stack := newTestStack(t, false, nil)
	defer stack.cleanup()

	stack.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM students LIMIT 100")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Ana"))

	rec := stack.post(t, "/v1/query", "", queryRequest{SQL: "SELECT id, name FROM students"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeQueryResponse(t, rec)
	require.NotNil(t, resp.Result)
	require.NotNil(t, resp.Result.Table)
	assert.Equal(t, []string{"id", "name"}, resp.Result.Table.Columns)
	require.Len(t, resp.Result.Table.Rows, 1)
	assert.Empty(t, resp.Error)

	assert.NoError(t, stack.mock.ExpectationsWereMet())
}

func TestServer_Query_DangerousOperation(t *testing.T) {
	stack := newTestStack(t, false, nil)
	defer stack.cleanup()

	rec := stack.post(t, "/v1/query", "", queryRequest{SQL: "DROP TABLE students"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	resp := decodeQueryResponse(t, rec)
	assert.Equal(t, "ERROR: Dangerous operations (DROP, TRUNCATE, EXEC) are not allowed for security reasons.", resp.Error)

	assert.NoError(t, stack.mock.ExpectationsWereMet(), "rejected input must not touch the database")
}

func TestServer_Query_MultipleStatements(t *testing.T) {
	stack := newTestStack(t, false, nil)
	defer stack.cleanup()

	rec := stack.post(t, "/v1/query", "", queryRequest{SQL: "SELECT 1; SELECT 2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeQueryResponse(t, rec)
	assert.Equal(t, "ERROR: Multiple statements are not allowed.", resp.Error)
}

func TestServer_Query_WriteWithoutToken(t *testing.T) {
	stack := newTestStack(t, true, nil)
	defer stack.cleanup()

	rec := stack.post(t, "/v1/query", "", queryRequest{SQL: "UPDATE students SET gpa = 4.0 WHERE id = 1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	resp := decodeQueryResponse(t, rec)
	assert.Equal(t, "ERROR: Write operations require authentication. Please authenticate first.", resp.Error)

	assert.NoError(t, stack.mock.ExpectationsWereMet())
}

func TestServer_Query_DriverErrorVerbatim(t *testing.T) {
	stack := newTestStack(t, false, nil)
	defer stack.cleanup()

	stack.mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM missing LIMIT 100")).
		WillReturnError(fmt.Errorf("no such table: missing"))

	rec := stack.post(t, "/v1/query", "", queryRequest{SQL: "SELECT * FROM missing"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeQueryResponse(t, rec)
	assert.Equal(t, "ERROR: no such table: missing", resp.Error)
}

func TestServer_LoginAndWrite(t *testing.T) {
	stack := newTestStack(t, true, nil)
	defer stack.cleanup()

	token := stack.login(t, "admin", "secret")

	stack.mock.ExpectBegin()
	stack.mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET gpa = 4.0 WHERE id = 1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	stack.mock.ExpectCommit()

	rec := stack.post(t, "/v1/query", token, queryRequest{SQL: "UPDATE students SET gpa = 4.0 WHERE id = 1"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeQueryResponse(t, rec)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "UPDATE operation completed successfully", resp.Result.Ack)

	assert.NoError(t, stack.mock.ExpectationsWereMet())
}

func TestServer_LoginInvalidCredentials(t *testing.T) {
	stack := newTestStack(t, true, nil)
	defer stack.cleanup()

	rec := stack.post(t, "/v1/login", "", loginRequest{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	resp := decodeQueryResponse(t, rec)
	assert.Equal(t, "ERROR: invalid credentials", resp.Error)
}

func TestServer_LogoutRevokesSession(t *testing.T) {
	stack := newTestStack(t, true, nil)
	defer stack.cleanup()

	token := stack.login(t, "admin", "secret")

	rec := stack.post(t, "/v1/logout", token, struct{}{})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = stack.post(t, "/v1/query", token, queryRequest{SQL: "DELETE FROM students WHERE id = 1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.NoError(t, stack.mock.ExpectationsWereMet())
}

func TestServer_Ask(t *testing.T) {
	stack := newTestStack(t, false, &fakeTranslator{sql: "SELECT name FROM students"})
	defer stack.cleanup()

	stack.mock.ExpectQuery(regexp.QuoteMeta("SELECT name FROM students LIMIT 100")).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Ana"))

	rec := stack.post(t, "/v1/ask", "", askRequest{Question: "who are the students?"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeQueryResponse(t, rec)
	assert.Equal(t, "SELECT name FROM students", resp.SQL)
	require.NotNil(t, resp.Result)
	require.NotNil(t, resp.Result.Table)
	assert.Equal(t, []string{"name"}, resp.Result.Table.Columns)

	assert.NoError(t, stack.mock.ExpectationsWereMet())
}

// Translated SQL is untrusted: a model that emits a forbidden statement is
// rejected exactly like a user who typed it.
func TestServer_Ask_TranslatedSQLIsGated(t *testing.T) {
	stack := newTestStack(t, false, &fakeTranslator{sql: "DROP TABLE students"})
	defer stack.cleanup()

	rec := stack.post(t, "/v1/ask", "", askRequest{Question: "clean up the students table"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	resp := decodeQueryResponse(t, rec)
	assert.Equal(t, "ERROR: Dangerous operations (DROP, TRUNCATE, EXEC) are not allowed for security reasons.", resp.Error)

	assert.NoError(t, stack.mock.ExpectationsWereMet())
}

func TestServer_Ask_EmptyQuestion(t *testing.T) {
	stack := newTestStack(t, false, &fakeTranslator{sql: "SELECT 1"})
	defer stack.cleanup()

	rec := stack.post(t, "/v1/ask", "", askRequest{Question: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Ask_Unconfigured(t *testing.T) {
	stack := newTestStack(t, false, nil)
	defer stack.cleanup()

	rec := stack.post(t, "/v1/ask", "", askRequest{Question: "anything"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Health(t *testing.T) {
	stack := newTestStack(t, false, nil)
	defer stack.cleanup()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	stack.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{"well formed", "Bearer abc123", "abc123"},
		{"extra whitespace", "  Bearer   abc123  ", "abc123"},
		{"missing prefix", "abc123", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/query", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.expected, bearerToken(req))
		})
	}
}
