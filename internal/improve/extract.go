package improve

import "strings"

// ExtractJSON pulls the first balanced JSON object or array out of free-form
// agent output. Brace counting skips string literals so embedded braces in
// values do not unbalance the scan. Returns "" when no balanced value is
// found.
func ExtractJSON(output string) string {
	start := strings.IndexAny(output, "{[")
	if start < 0 {
		return ""
	}

	open := output[start]
	var closing byte = '}'
	if open == '[' {
		closing = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(output); i++ {
		ch := output[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == closing:
			depth--
			if depth == 0 {
				return output[start : i+1]
			}
		}
	}
	return ""
}
