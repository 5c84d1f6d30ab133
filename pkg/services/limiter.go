package services

import (
	"fmt"
	"regexp"
)

// DefaultRowCap is the documented default row bound for uncapped reads.
const DefaultRowCap = 100

// LimitInjector appends a row-bound clause to read statements that carry
// neither an explicit LIMIT nor an aggregate indicator. It is a textual
// append after classification, not a query-plan rewrite.
type LimitInjector struct {
	cap       int
	explicit  *regexp.Regexp
	aggregate *regexp.Regexp
}

// NewLimitInjector creates a limit injector with the given row cap. A
// non-positive cap falls back to DefaultRowCap.
func NewLimitInjector(rowCap int) *LimitInjector {
	if rowCap <= 0 {
		rowCap = DefaultRowCap
	}
	return &LimitInjector{
		cap:       rowCap,
		explicit:  regexp.MustCompile(`(?i)\blimit\s+\d+\b`),
		aggregate: regexp.MustCompile(`(?i)\bcount\(|\bgroup\s+by\b|\bsum\(|\bavg\(|\bmax\(|\bmin\(`),
	}
}

// Cap returns the configured row cap.
func (l *LimitInjector) Cap() int { return l.cap }

// Inject returns the statement with a LIMIT clause appended unless the
// statement already bounds its own result set.
func (l *LimitInjector) Inject(sql string) string {
	if l.explicit.MatchString(sql) || l.aggregate.MatchString(sql) {
		return sql
	}
	return fmt.Sprintf("%s LIMIT %d", sql, l.cap)
}
