package executor

import (
	"strings"
	"unicode"

	"github.com/dmitriimaksimovdevelop/dbprobe/internal/model"
)

// readKeywords may start a statement in the read-only sandbox.
var readKeywords = map[string]bool{
	"select":  true,
	"with":    true,
	"values":  true,
	"table":   true,
	"show":    true,
	"explain": true,
}

// writeKeywords may not appear anywhere in a sandboxed statement.
var writeKeywords = map[string]bool{
	"insert":   true,
	"update":   true,
	"delete":   true,
	"merge":    true,
	"truncate": true,
	"drop":     true,
	"alter":    true,
	"create":   true,
	"grant":    true,
	"revoke":   true,
	"copy":     true,
	"vacuum":   true,
	"reindex":  true,
	"cluster":  true,
	"lock":     true,
	"call":     true,
	"do":       true,
	"refresh":  true,
	"comment":  true,
	"into":     true,
	"set":      true,
	"reset":    true,
	"listen":   true,
	"notify":   true,
	"prepare":  true,
	"execute":  true,
	"discard":  true,
}

// deniedFunctions have side effects that a read-only transaction does not stop.
var deniedFunctions = map[string]bool{
	"pg_terminate_backend": true,
	"pg_cancel_backend":    true,
	"pg_reload_conf":       true,
	"pg_rotate_logfile":    true,
	"pg_read_file":         true,
	"pg_read_binary_file":  true,
	"pg_ls_dir":            true,
	"pg_stat_file":         true,
	"lo_import":            true,
	"lo_export":            true,
	"set_config":           true,
	"dblink":               true,
	"dblink_exec":          true,
	"pg_advisory_lock":     true,
	"pg_notify":            true,
}

// Statement is a query that passed the sandbox gate.
type Statement struct {
	Text     string
	Keyword  string
	ReadOnly bool
}

// CheckStatement validates query for the execute-query path. It always
// requires exactly one statement; unless allowWrites is set it also requires
// the statement to be a read. Violations are InvalidParameterError on "query".
func CheckStatement(query string, allowWrites bool) (*Statement, error) {
	stmts, err := splitStatements(query)
	if err != nil {
		return nil, err
	}
	if len(stmts) == 0 {
		return nil, model.InvalidParameter("query", "query is empty")
	}
	if len(stmts) > 1 {
		return nil, model.InvalidParameter("query", "only a single statement is allowed, got %d", len(stmts))
	}

	tokens := stmts[0]
	first := tokens[0]
	readOnly := readKeywords[first] && !containsWrite(tokens)
	if first == "explain" {
		readOnly = readOnly && explainedIsRead(tokens[1:])
	}

	if !allowWrites {
		if !readKeywords[first] {
			return nil, model.InvalidParameter("query", "statement %q is not permitted in the read-only sandbox", strings.ToUpper(first))
		}
		if kw := firstWrite(tokens); kw != "" {
			return nil, model.InvalidParameter("query", "keyword %q is not permitted in the read-only sandbox", strings.ToUpper(kw))
		}
		if !readOnly {
			return nil, model.InvalidParameter("query", "EXPLAIN target is not a read statement")
		}
		if fn := firstDeniedFunction(tokens); fn != "" {
			return nil, model.InvalidParameter("query", "function %s is not permitted in the read-only sandbox", fn)
		}
	}

	return &Statement{
		Text:     strings.TrimRight(strings.TrimSpace(query), "; \t\r\n"),
		Keyword:  first,
		ReadOnly: readOnly,
	}, nil
}

func containsWrite(tokens []string) bool {
	return firstWrite(tokens) != ""
}

func firstWrite(tokens []string) string {
	for _, t := range tokens {
		if writeKeywords[t] {
			return t
		}
	}
	return ""
}

func firstDeniedFunction(tokens []string) string {
	for _, t := range tokens {
		if deniedFunctions[t] {
			return t
		}
	}
	return ""
}

// explainedIsRead finds the statement keyword after EXPLAIN options.
func explainedIsRead(tokens []string) bool {
	for _, t := range tokens {
		if readKeywords[t] && t != "explain" {
			return true
		}
		if writeKeywords[t] {
			return false
		}
	}
	return false
}

// splitStatements tokenizes query into top-level statements, each a list of
// lower-cased bare words. Comments, string literals, quoted identifiers and
// dollar-quoted bodies are dropped, so keywords inside them never count.
func splitStatements(query string) ([][]string, error) {
	var (
		stmts   [][]string
		current []string
		word    strings.Builder
	)
	flushWord := func() {
		if word.Len() > 0 {
			current = append(current, strings.ToLower(word.String()))
			word.Reset()
		}
	}
	flushStmt := func() {
		flushWord()
		if len(current) > 0 {
			stmts = append(stmts, current)
		}
		current = nil
	}

	rs := []rune(query)
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		switch {
		case c == '-' && i+1 < len(rs) && rs[i+1] == '-':
			flushWord()
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(rs) && rs[i+1] == '*':
			flushWord()
			depth := 0
			for ; i < len(rs); i++ {
				if rs[i] == '/' && i+1 < len(rs) && rs[i+1] == '*' {
					depth++
					i++
				} else if rs[i] == '*' && i+1 < len(rs) && rs[i+1] == '/' {
					depth--
					i++
					if depth == 0 {
						break
					}
				}
			}
			if depth != 0 {
				return nil, model.InvalidParameter("query", "unterminated block comment")
			}
		case c == '\'':
			// E'...' strings honour backslash escapes.
			escapes := word.Len() == 1 && (word.String() == "e" || word.String() == "E")
			if escapes {
				word.Reset()
			}
			flushWord()
			end, ok := skipQuoted(rs, i, '\'', escapes)
			if !ok {
				return nil, model.InvalidParameter("query", "unterminated string literal")
			}
			i = end
		case c == '"':
			flushWord()
			end, ok := skipQuoted(rs, i, '"', false)
			if !ok {
				return nil, model.InvalidParameter("query", "unterminated quoted identifier")
			}
			i = end
		case c == '$' && word.Len() == 0:
			if end, ok := skipDollarQuoted(rs, i); ok {
				i = end
				continue
			}
			// positional parameter such as $1
			for i+1 < len(rs) && unicode.IsDigit(rs[i+1]) {
				i++
			}
		case c == ';':
			flushStmt()
		case c == '_' || unicode.IsLetter(c) || (word.Len() > 0 && (unicode.IsDigit(c) || c == '$')):
			word.WriteRune(c)
		default:
			flushWord()
		}
	}
	flushStmt()
	return stmts, nil
}

// skipQuoted returns the index of the closing quote that starts at rs[start].
// A doubled quote is an escaped quote.
func skipQuoted(rs []rune, start int, quote rune, backslash bool) (int, bool) {
	for i := start + 1; i < len(rs); i++ {
		if backslash && rs[i] == '\\' {
			i++
			continue
		}
		if rs[i] == quote {
			if i+1 < len(rs) && rs[i+1] == quote {
				i++
				continue
			}
			return i, true
		}
	}
	return 0, false
}

// skipDollarQuoted handles $tag$ ... $tag$ bodies. ok is false when rs[start]
// does not open a dollar quote.
func skipDollarQuoted(rs []rune, start int) (int, bool) {
	j := start + 1
	for j < len(rs) && (rs[j] == '_' || unicode.IsLetter(rs[j]) || (j > start+1 && unicode.IsDigit(rs[j]))) {
		j++
	}
	if j >= len(rs) || rs[j] != '$' {
		return 0, false
	}
	tag := string(rs[start : j+1])
	rest := string(rs[j+1:])
	idx := strings.Index(rest, tag)
	if idx < 0 {
		return 0, false
	}
	return j + 1 + len([]rune(rest[:idx])) + len([]rune(tag)) - 1, true
}
