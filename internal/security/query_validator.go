// Package security holds the text guards that sit in front of a connection:
// a read-only query check for untrusted query text and a markup sanitizer
// for values headed to HTML output.
package security

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMultipleQueries  = errors.New("multi-statement queries are not allowed")
	ErrNotSelect        = errors.New("only SELECT queries are allowed")
	ErrForbiddenKeyword = errors.New("forbidden keyword detected")
	ErrSystemTable      = errors.New("access to system table blocked")
)

var forbiddenKeywords = []string{
	"DELETE", "DROP", "INSERT", "UPDATE", "ALTER", "TRUNCATE", "GRANT", "REVOKE",
	"CREATE", "REPLACE", "CALL", "DO", "HANDLER", "LOAD", "UNION",
	"USER(", "VERSION(", "DATABASE(", "LOAD_FILE(", "@@VERSION", "@@HOSTNAME",
}

var systemTables = []string{
	"INFORMATION_SCHEMA", "MYSQL", "PERFORMANCE_SCHEMA", "SYS", "PG_CATALOG", "SQLITE_MASTER",
}

// ValidateQuery accepts only single SELECT statements that stay away from
// data-modifying keywords and system schemas. It is a lexical check meant for
// query text supplied by remote callers (the agent, the CLI -readonly flag);
// it does not parse SQL.
func ValidateQuery(query string) error {
	q := strings.TrimSpace(query)
	qUpper := strings.ToUpper(q)

	if !strings.HasPrefix(qUpper, "SELECT") {
		return ErrNotSelect
	}

	if strings.Contains(q, ";") {
		return ErrMultipleQueries
	}

	for _, word := range forbiddenKeywords {
		if containsWord(qUpper, word) {
			return fmt.Errorf("%w: %s", ErrForbiddenKeyword, word)
		}
	}

	for _, table := range systemTables {
		if containsWord(qUpper, table) {
			return fmt.Errorf("%w: %s", ErrSystemTable, table)
		}
	}

	return nil
}

// containsWord reports whether word occurs in s delimited by SQL boundaries,
// so DELETE matches but IS_DELETED does not. s must already be upper case.
func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i == -1 {
			return false
		}
		start := idx + i
		end := start + len(word)

		isStartValid := start == 0 || isBoundary(s[start-1])
		isEndValid := end == len(s) || isBoundary(s[end]) || strings.HasSuffix(word, "(")

		if isStartValid && isEndValid {
			return true
		}

		idx = start + 1
	}
}

func isBoundary(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' ||
		b == '(' || b == ')' || b == ',' || b == '=' ||
		b == '<' || b == '>' || b == '`' || b == '.' ||
		b == '"' || b == '[' || b == ']'
}
