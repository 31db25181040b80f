package signing

import (
	"sort"
	"strings"
)

// Audience builds the expected aud of a request object: prefix plus the
// route template with each placeholder (":enrollmentId") replaced by its
// value. Longer placeholders are substituted first.
func Audience(prefix, template string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	path := template
	for _, k := range keys {
		placeholder := k
		if !strings.HasPrefix(placeholder, ":") {
			placeholder = ":" + placeholder
		}
		path = strings.Replace(path, placeholder, params[k], 1)
	}
	return prefix + path
}
