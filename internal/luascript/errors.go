package luascript

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ServerError wraps a script failure reported by a Conn (a real server's
// ResponseError, or the in-process emulator's own error) with a snippet
// of the offending line, grounded on RedisConnection.get_dynamic_script's
// error-annotation step (original_source/src/redipy/redis/conn.py): Redis
// reports "user_script:N: <message>" and the raw message alone is nearly
// useless once a script runs to more than a couple of lines.
type ServerError struct {
	Err    error
	Script string
}

func (e *ServerError) Error() string {
	snippet := annotate(e.Script, e.Err.Error())
	if snippet == "" {
		return fmt.Sprintf("luascript: server error: %v", e.Err)
	}
	return fmt.Sprintf("luascript: server error: %v\n%s", e.Err, snippet)
}

func (e *ServerError) Unwrap() error { return e.Err }

var userScriptLine = regexp.MustCompile(`user_script:(\d+):`)

// annotate extracts the 1-based line number Redis embeds in its error
// text and renders a few lines of context around it. Returns "" if the
// message carries no line reference.
func annotate(script, message string) string {
	m := userScriptLine.FindStringSubmatch(message)
	if m == nil {
		return ""
	}
	line, err := strconv.Atoi(m[1])
	if err != nil || line < 1 {
		return ""
	}
	lines := strings.Split(script, "\n")
	lo := line - 3
	if lo < 1 {
		lo = 1
	}
	hi := line + 2
	if hi > len(lines) {
		hi = len(lines)
	}
	var b strings.Builder
	for i := lo; i <= hi; i++ {
		marker := "  "
		if i == line {
			marker = "->"
		}
		fmt.Fprintf(&b, "%s %4d | %s\n", marker, i, lines[i-1])
	}
	return strings.TrimRight(b.String(), "\n")
}
