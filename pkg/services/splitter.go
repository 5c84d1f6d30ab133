package services

import (
	"strings"

	"github.com/sqlgate/sqlgate/pkg/errors"
)

// CandidateStatement is a single trimmed SQL fragment extracted from raw input.
type CandidateStatement struct {
	Text     string
	Position int
}

// Splitter turns raw input into candidate statements. In strict mode any
// separator inside the trimmed body rejects the whole input before anything
// executes; in batch mode statements run sequentially.
type Splitter struct {
	allowBatch bool
}

// NewSplitter creates a splitter. allowBatch selects multi-statement mode.
func NewSplitter(allowBatch bool) *Splitter {
	return &Splitter{allowBatch: allowBatch}
}

// Split extracts candidate statements from raw input. Trailing separators are
// stripped first, so "SELECT 1;" behaves identically to "SELECT 1".
func (s *Splitter) Split(raw string) ([]CandidateStatement, error) {
	body := strings.TrimSpace(raw)
	body = strings.TrimSpace(strings.TrimRight(body, ";"))
	if body == "" {
		return nil, errors.ErrEmptyStatement
	}

	if !s.allowBatch {
		if strings.Contains(body, ";") {
			return nil, errors.ErrMultipleStatements
		}
		return []CandidateStatement{{Text: body, Position: 0}}, nil
	}

	pieces := strings.Split(body, ";")
	statements := make([]CandidateStatement, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		statements = append(statements, CandidateStatement{
			Text:     piece,
			Position: len(statements),
		})
	}
	if len(statements) == 0 {
		return nil, errors.ErrEmptyStatement
	}
	return statements, nil
}
