package errors

import (
	"errors"
	"strings"
	"unicode"
)

// FormatUserError turns a wrapped error chain into a single human-readable
// line: the most meaningful operation, capitalized, followed by the root
// cause. Redundant "failed to ..." layers that repeat an operation already
// seen are collapsed so the user never reads the same step twice.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var ops []string
	rootCause := ""

	for cur := err; cur != nil; {
		var op string
		if e, ok := cur.(*Error); ok {
			op = e.Op
		} else if inner := errors.Unwrap(cur); inner != nil {
			// fmt.Errorf wrapping: the prefix before the wrapped message
			// is the operation description.
			s := cur.Error()
			innerStr := inner.Error()
			if strings.HasSuffix(s, innerStr) {
				op = strings.TrimSuffix(strings.TrimSuffix(s, innerStr), ": ")
			}
		}

		if cleaned := cleanOperation(op); cleaned != "" && !isRedundantMessage(cleaned, ops) {
			ops = append(ops, cleaned)
		}

		next := errors.Unwrap(cur)
		if next == nil {
			if e, ok := cur.(*Error); ok {
				rootCause = e.Message
			} else {
				rootCause = cur.Error()
			}
			break
		}
		cur = next
	}

	if len(ops) == 0 {
		return rootCause
	}
	return capitalizeFirst(findBestOperation(ops)) + " failed: " + rootCause
}

// cleanOperation strips failure boilerplate ("failed to", trailing "failed",
// "error:" prefixes) from an operation description.
func cleanOperation(op string) string {
	s := strings.TrimSpace(op)
	s = strings.TrimSuffix(s, " failed")
	for _, prefix := range []string{"failed to ", "failed: ", "error: ", "error "} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	return strings.TrimSpace(s)
}

// isRedundantMessage reports whether msg describes an operation already in ops.
func isRedundantMessage(msg string, ops []string) bool {
	cleaned := cleanOperation(msg)
	if cleaned == "" {
		return true
	}
	for _, op := range ops {
		if cleanOperation(op) == cleaned {
			return true
		}
	}
	return false
}

// findBestOperation picks the most presentable operation: the one with the
// fewest words, first wins on ties.
func findBestOperation(ops []string) string {
	best := ""
	bestWords := 0
	for _, op := range ops {
		cleaned := cleanOperation(op)
		if cleaned == "" {
			continue
		}
		words := len(strings.Fields(cleaned))
		if best == "" || words < bestWords {
			best = cleaned
			bestWords = words
		}
	}
	return best
}

// capitalizeFirst upper-cases the first rune of s.
func capitalizeFirst(s string) string {
	if s == "" {
		return ""
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
