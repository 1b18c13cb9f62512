package artifact

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderRegex matches {{item.<field>}} placeholders in path patterns.
// This is deliberately a fixed-form substitution over loop-item fields, not a
// general templating language.
var placeholderRegex = regexp.MustCompile(`\{\{\s*item\.([A-Za-z0-9_-]+)\s*\}\}`)

// Substitute resolves every {{item.<field>}} placeholder in the pattern
// against the given loop item. Referencing a field the item does not have is
// an error.
func Substitute(pattern string, item LoopItem) (string, error) {
	var missing []string
	result := placeholderRegex.ReplaceAllStringFunc(pattern, func(match string) string {
		field := placeholderRegex.FindStringSubmatch(match)[1]
		val, ok := item.Fields[field]
		if !ok {
			missing = append(missing, field)
			return match
		}
		return val
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("pattern %q references unknown item field(s): %s", pattern, strings.Join(missing, ", "))
	}
	return result, nil
}

// HasPlaceholder reports whether the string contains any {{item.*}} placeholder.
func HasPlaceholder(s string) bool {
	return placeholderRegex.MatchString(s)
}
