package services

import "regexp"

// StatementKind is the gateway's classification of a candidate statement.
type StatementKind int

const (
	KindRead      StatementKind = iota // leading SELECT
	KindWrite                          // INSERT, UPDATE, DELETE, CREATE, ALTER, REPLACE
	KindForbidden                      // DROP, TRUNCATE, EXEC, EXECUTE
	KindInvalid                        // anything else
)

// String returns the string representation of the statement kind.
func (k StatementKind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindForbidden:
		return "forbidden"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// keywordClassifier classifies statements by word-boundary keyword matching.
// This deliberately trades grammar awareness for an auditable rule set: an
// identifier that merely contains a keyword substring never matches, while a
// keyword used as a bare identifier is rejected.
type keywordClassifier struct {
	forbidden     *regexp.Regexp
	write         *regexp.Regexp
	leadingSelect *regexp.Regexp
}

// NewKeywordClassifier creates the gateway's default classifier.
func NewKeywordClassifier() Classifier {
	return &keywordClassifier{
		forbidden:     regexp.MustCompile(`(?i)\b(DROP|TRUNCATE|EXEC|EXECUTE)\b`),
		write:         regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|CREATE|ALTER|REPLACE)\b`),
		leadingSelect: regexp.MustCompile(`(?is)^\s*SELECT\b`),
	}
}

// Classify determines the kind of a SQL statement. The forbidden check runs
// first and dominates every other rule.
func (c *keywordClassifier) Classify(sql string) StatementKind {
	switch {
	case c.forbidden.MatchString(sql):
		return KindForbidden
	case c.write.MatchString(sql):
		return KindWrite
	case c.leadingSelect.MatchString(sql):
		return KindRead
	default:
		return KindInvalid
	}
}
