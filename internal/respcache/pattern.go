package respcache

import "strings"

// MatchPattern reports whether key matches pattern, where `*` matches any
// substring (including the empty one) and every other character matches
// literally. The matcher walks the literal segments in order instead of
// compiling a regex, so the reachable key set of a pattern stays easy to
// reason about.
func MatchPattern(pattern, key string) bool {
	segments := strings.Split(pattern, "*")
	if len(segments) == 1 {
		return pattern == key
	}

	rest := key
	for i, segment := range segments {
		switch i {
		case 0:
			if !strings.HasPrefix(rest, segment) {
				return false
			}
			rest = rest[len(segment):]
		case len(segments) - 1:
			return strings.HasSuffix(rest, segment)
		default:
			idx := strings.Index(rest, segment)
			if idx < 0 {
				return false
			}
			rest = rest[idx+len(segment):]
		}
	}
	return true
}
