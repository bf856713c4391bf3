package emitter

import "strings"

// quoteIdent quotes an identifier with backticks only when it isn't a bare
// word or a schema-qualified dotted name (db.table) — the common case stays
// unquoted so schema-qualified table names (spec §4.5's "must survive
// intact") pass through untouched. Aliases, CTE names in FROM/JOIN items and
// alias-qualified column names go through it; table names in FROM/JOIN items and column references with no
// alias are emitted verbatim without it. No other code in emitter.go or
// expr.go adds backtick quoting.
func quoteIdent(s string) string {
	if s == "" {
		return s
	}
	if isBareIdentPath(s) {
		return s
	}
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func isBareIdentPath(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if part == "" || !isBareIdent(part) {
			return false
		}
	}
	return true
}

func isBareIdent(s string) bool {
	for i, r := range s {
		isAlpha := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isAlpha {
			return false
		}
		if !isAlpha && !isDigit {
			return false
		}
	}
	return s != ""
}
