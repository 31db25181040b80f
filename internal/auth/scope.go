package auth

import "strings"

const consentScopePrefix = "consent:"

// HasScope reports whether the space-delimited scope string contains want.
func HasScope(scope, want string) bool {
	if want == "" {
		return true
	}
	for _, s := range strings.Fields(scope) {
		if s == want {
			return true
		}
	}
	return false
}

// HasConsentScope reports whether the token is bound to resource id
// through a "consent:<id>" scope.
func HasConsentScope(scope, id string) bool {
	return id != "" && HasScope(scope, consentScopePrefix+id)
}

// ConsentIDFromScope returns the first bare scope token that starts with
// prefix. "consent:<id>" tokens bind enrollments and are never returned,
// even when the enrollment id shares the prefix.
func ConsentIDFromScope(scope, prefix string) (string, bool) {
	if prefix == "" {
		return "", false
	}
	for _, s := range strings.Fields(scope) {
		if strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
			return s, true
		}
	}
	return "", false
}
