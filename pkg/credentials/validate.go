package credentials

import (
	"fmt"
	"strings"
)

// MinTokenLength is the shortest token not flagged as suspicious.
const MinTokenLength = 20

var githubPrefixes = []string{"ghp_", "gho_", "ghu_", "ghs_", "ghr_", "github_pat_"}

// Validate applies backend-specific format heuristics. A non-nil error
// means the token looks unusual; backends change formats over time, so
// callers should warn rather than refuse.
func Validate(backend, token string) error {
	if strings.ContainsAny(token, " \t\r\n") {
		return fmt.Errorf("token contains whitespace")
	}
	if len(token) < MinTokenLength {
		return fmt.Errorf("token is shorter than %d characters", MinTokenLength)
	}

	switch backend {
	case GitHub:
		for _, prefix := range githubPrefixes {
			if strings.HasPrefix(token, prefix) {
				return nil
			}
		}
		if len(token) == 40 && isHex(token) {
			return nil
		}
		return fmt.Errorf("token has no known GitHub prefix (%s) and is not a 40 character classic token",
			strings.Join(githubPrefixes, ", "))
	case GitLab:
		// glpat- tokens are the norm; older and CI tokens have no prefix.
		return nil
	}
	return nil
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
