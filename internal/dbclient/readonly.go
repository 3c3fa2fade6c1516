package dbclient

import (
	"encoding/json"
	"strings"
	"unicode"

	"etlpipe/internal/domain"
)

// ── Read-only classification ───────────────────────────────
// Callers that must not modify data (the MCP query tool) accept a statement
// only when it is provably a read. Anything the classifier cannot place is
// treated as a write.

var readVerbs = map[string]bool{
	"SELECT": true, "WITH": true, "SHOW": true, "DESCRIBE": true,
	"EXPLAIN": true, "PRAGMA": true, "VALUES": true,
}

// writeWords may not appear anywhere in a read-only statement, so a CTE or
// EXPLAIN cannot wrap a data-modifying statement.
var writeWords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "UPSERT": true,
	"DROP": true, "ALTER": true, "CREATE": true, "TRUNCATE": true, "INTO": true,
	"ATTACH": true, "DETACH": true, "VACUUM": true, "REINDEX": true,
	"GRANT": true, "REVOKE": true, "CALL": true, "EXEC": true, "EXECUTE": true,
	"COPY": true, "LOCK": true, "SET": true,
}

// ReadOnlyQuery reports whether query only reads data on a connection of
// the given driver.
func ReadOnlyQuery(driver domain.DatabaseDriver, query string) bool {
	if driver == domain.DatabaseDriverMongoDB {
		return readOnlyMongo(query)
	}
	return readOnlySQL(query)
}

func readOnlySQL(query string) bool {
	stmt := strings.TrimSpace(stripSQL(query))
	stmt = strings.TrimRight(stmt, "; \t\r\n")
	// One statement only.
	if stmt == "" || strings.Contains(stmt, ";") {
		return false
	}
	words := sqlWords(stmt)
	if len(words) == 0 || !readVerbs[words[0]] {
		return false
	}
	if words[0] == "PRAGMA" && strings.Contains(stmt, "=") {
		return false
	}
	for _, w := range words[1:] {
		if writeWords[w] {
			return false
		}
	}
	return true
}

// isReadQuery routes a statement to a cursor or to Exec by its leading verb.
func isReadQuery(query string) bool {
	words := sqlWords(stripSQL(query))
	return len(words) > 0 && readVerbs[words[0]]
}

// stripSQL removes comments and blanks out quoted strings and identifiers,
// leaving a placeholder so word boundaries survive.
func stripSQL(query string) string {
	var b strings.Builder
	rs := []rune(query)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '-' && i+1 < len(rs) && rs[i+1] == '-':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
			b.WriteRune(' ')
		case r == '/' && i+1 < len(rs) && rs[i+1] == '*':
			i += 2
			for i < len(rs) && !(rs[i] == '*' && i+1 < len(rs) && rs[i+1] == '/') {
				i++
			}
			i++ // closing slash
			b.WriteRune(' ')
		case r == '\'' || r == '"' || r == '`':
			quote := r
			i++
			for i < len(rs) {
				if rs[i] == quote {
					// A doubled quote is an escaped quote.
					if i+1 < len(rs) && rs[i+1] == quote {
						i += 2
						continue
					}
					break
				}
				i++
			}
			b.WriteString(" ? ")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sqlWords(stmt string) []string {
	fields := strings.FieldsFunc(stmt, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for i, f := range fields {
		fields[i] = strings.ToUpper(f)
	}
	return fields
}

// readOnlyMongo accepts find and aggregations without $out or $merge stages.
func readOnlyMongo(query string) bool {
	var mq mongoQuery
	if err := json.Unmarshal([]byte(query), &mq); err != nil {
		return false
	}
	switch mq.Operation {
	case "", "find":
		return true
	case "aggregate":
		for _, stage := range mq.Pipeline {
			m, ok := stage.(map[string]any)
			if !ok {
				return false
			}
			if _, ok := m["$out"]; ok {
				return false
			}
			if _, ok := m["$merge"]; ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}
