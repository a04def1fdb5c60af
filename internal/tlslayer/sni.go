package tlslayer

import "strings"

// matchWildcard reports whether name matches pattern using a glob over
// hostname labels: '*' and '?' are glob metacharacters scoped to a single
// label (they never cross a '.'), matching the teacher's SNI matcher
// semantics (caddytls.MatchServerName's wildcard-per-label behavior) but
// generalized to arbitrary '*'/'?' glob instead of only a leading '*'.
func matchWildcard(pattern, name string) bool {
	if pattern == "" || name == "" {
		return false
	}
	pLabels := strings.Split(pattern, ".")
	nLabels := strings.Split(name, ".")
	if len(pLabels) != len(nLabels) {
		return false
	}
	for i := range pLabels {
		if !matchLabel(pLabels[i], nLabels[i]) {
			return false
		}
	}
	return true
}

// matchLabel implements glob matching (`*` = any run of chars, `?` = any
// single char) within one hostname label.
func matchLabel(pattern, s string) bool {
	return globMatch(pattern, s)
}

func globMatch(pattern, s string) bool {
	// Classic recursive glob matcher restricted to '*' and '?'.
	if pattern == "" {
		return s == ""
	}
	switch pattern[0] {
	case '*':
		if globMatch(pattern[1:], s) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if globMatch(pattern[1:], s[i+1:]) {
				return true
			}
		}
		return false
	case '?':
		if s == "" {
			return false
		}
		return globMatch(pattern[1:], s[1:])
	default:
		if s == "" || s[0] != pattern[0] {
			return false
		}
		return globMatch(pattern[1:], s[1:])
	}
}
