package httpingress

import "strings"

// normalizePath rewrites a URL path using stack semantics: an empty segment
// or "." sets trailing-slash and is skipped; ".." pops the stack (never
// below the root) and sets trailing-slash; any other segment is pushed.
// The result always begins with "/", and ends with "/" iff a trailing-slash
// condition was set and the stack isn't empty (the root itself is always
// "/"). This is idempotent: normalizePath(normalizePath(p)) == normalizePath(p).
func normalizePath(p string) string {
	segments := strings.Split(p, "/")
	stack := make([]string, 0, len(segments))
	trailingSlash := false

	for _, seg := range segments {
		switch seg {
		case "", ".":
			trailingSlash = true
		case "..":
			trailingSlash = true
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			trailingSlash = false
			stack = append(stack, seg)
		}
	}

	out := "/" + strings.Join(stack, "/")
	if trailingSlash && out != "/" {
		out += "/"
	}
	return out
}
