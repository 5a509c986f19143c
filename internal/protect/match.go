package protect

import (
	"path"
	"strings"
)

// matchGlob matches a slash-separated path against a pattern where "**"
// spans any number of segments and other segments use path.Match syntax.
func matchGlob(p, pattern string) bool {
	return matchSegments(strings.Split(p, "/"), strings.Split(pattern, "/"))
}

func matchSegments(segs, pattern []string) bool {
	for len(pattern) > 0 {
		head := pattern[0]
		pattern = pattern[1:]

		if head == "**" {
			if len(pattern) == 0 {
				return true
			}
			for i := range len(segs) + 1 {
				if matchSegments(segs[i:], pattern) {
					return true
				}
			}
			return false
		}

		if len(segs) == 0 {
			return false
		}
		ok, err := path.Match(head, segs[0])
		if err != nil || !ok {
			return false
		}
		segs = segs[1:]
	}
	return len(segs) == 0
}

// pathCandidates extracts tokens from free text that look like file paths.
func pathCandidates(text string) []string {
	var out []string
	for _, field := range strings.Fields(text) {
		token := strings.Trim(field, "`'\"()[]{}<>,;:!?")
		token = strings.TrimSuffix(token, ".")
		if token == "" {
			continue
		}
		token = strings.ReplaceAll(token, "\\", "/")
		if strings.Contains(token, "/") || hasExtension(token) {
			out = append(out, token)
		}
	}
	return out
}

// hasExtension reports whether token ends in a short dotted suffix such as ".sql".
func hasExtension(token string) bool {
	ext := path.Ext(token)
	if len(ext) < 2 || len(ext) > 10 {
		return false
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// words splits text into lowercase alphanumeric words.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}
