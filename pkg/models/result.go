// Package models provides data structures shared across the gateway.
package models

// TableResult is the tabular result shape consumed by every downstream
// presentation layer. Each row has exactly len(Columns) values, aligned
// positionally with Columns; column order matches the declared SELECT order.
type TableResult struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// StatementResult is the outcome of one executed statement: either a tabular
// result for reads or an acknowledgment string for writes.
type StatementResult struct {
	Table *TableResult `json:"table,omitempty"`
	Ack   string       `json:"ack,omitempty"`
}

// IsTable reports whether the result carries tabular data.
func (r StatementResult) IsTable() bool {
	return r.Table != nil
}
