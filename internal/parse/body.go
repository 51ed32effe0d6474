package parse

import (
	"fmt"
	"go/parser"
	"go/token"
	"regexp"
	"strings"
)

// ExtractionError reports a model response with no recoverable function body.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("no usable function body in response: %s", e.Reason)
}

var fenceRe = regexp.MustCompile("(?s)```(?:go|golang)?\\s*\n(.*?)```")

// ExtractBody recovers a body for funcName from free-form generator text.
// A fenced code block is preferred over the raw response; the last top-level
// definition matching funcName wins and everything after its signature is
// taken as body. When no signature is present, the whole remainder is
// re-indented from its first non-blank line. The result is truncated from the
// end and re-parsed until it parses cleanly, so a returned body never carries
// a trailing unparseable tail.
func ExtractBody(response, funcName string) (string, error) {
	if strings.TrimSpace(response) == "" {
		return "", &ExtractionError{Reason: "empty response"}
	}

	code := response
	if m := fenceRe.FindStringSubmatch(response); m != nil {
		code = m[1]
	}

	lines := strings.Split(code, "\n")
	sigRe := regexp.MustCompile(`^\s*func\s+` + regexp.QuoteMeta(funcName) + `\s*\(`)
	last := -1
	for i, line := range lines {
		if sigRe.MatchString(line) {
			last = i
		}
	}

	var body string
	if last >= 0 {
		body = strings.Join(lines[last+1:], "\n")
	} else {
		body = reindent(lines)
	}

	body = trimBody(body)
	if strings.TrimSpace(body) == "" {
		return "", &ExtractionError{Reason: "nothing parseable survived truncation"}
	}
	return body, nil
}

// trimBody drops lines from the end until the remainder, wrapped in a probe
// function, parses as Go. Returns "" when nothing survives.
func trimBody(body string) string {
	lines := strings.Split(strings.Trim(body, "\n"), "\n")
	for n := len(lines); n > 0; n-- {
		candidate := strings.Join(lines[:n], "\n")
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		probe := "package probe\n\nfunc probe() {\n" + candidate + "\n}\n"
		if _, err := parser.ParseFile(token.NewFileSet(), "probe.go", probe, 0); err == nil {
			return strings.Trim(candidate, "\n")
		}
	}
	return ""
}

// reindent shifts a bare statement list to the canonical one-tab body
// indentation, inferred from the first non-blank line.
func reindent(lines []string) string {
	prefix := ""
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			prefix = line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			break
		}
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			out[i] = line
			continue
		}
		out[i] = "\t" + strings.TrimPrefix(line, prefix)
	}
	return strings.Join(out, "\n")
}
