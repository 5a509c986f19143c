package protect

import (
	"regexp"
	"strings"
)

// ImportPattern defines an import statement that marks security-sensitive code.
type ImportPattern struct {
	Language string // "go", "typescript", "python", "rust"
	Pattern  string // regex matched against one line
	Reason   string // human-readable reason (e.g., "Cryptography")
}

// SecurityImports defines import patterns that indicate security-sensitive code.
var SecurityImports = []ImportPattern{
	{Language: "go", Pattern: `"crypto/`, Reason: "Cryptography"},
	{Language: "go", Pattern: `"golang\.org/x/crypto/`, Reason: "Cryptography"},
	{Language: "go", Pattern: `"golang\.org/x/oauth2`, Reason: "OAuth2 authentication"},
	{Language: "go", Pattern: `"github\.com/[^/]+/jwt`, Reason: "JWT authentication"},
	{Language: "go", Pattern: `"database/sql"`, Reason: "Database access"},

	{Language: "typescript", Pattern: `(import|from).*['"](bcrypt|jsonwebtoken)['"]`, Reason: "Authentication"},
	{Language: "typescript", Pattern: `(import|from).*['"]crypto['"]`, Reason: "Cryptography"},
	{Language: "typescript", Pattern: `require\(['"](crypto|bcrypt)['"]\)`, Reason: "Cryptography"},
	{Language: "typescript", Pattern: `['"]@aws-sdk/client-secrets-manager['"]`, Reason: "Secrets management"},

	{Language: "python", Pattern: `^\s*(import|from) (cryptography|jwt|bcrypt|passlib)\b`, Reason: "Cryptography"},
	{Language: "python", Pattern: `^\s*from django\.contrib\.auth`, Reason: "Authentication"},

	{Language: "rust", Pattern: `^\s*use .*(ring|jsonwebtoken|argon2|bcrypt)::`, Reason: "Cryptography"},
}

type importRule struct {
	re     *regexp.Regexp
	reason string
}

// ImportDetector matches security import lines in code snippets pasted into
// task descriptions. Snippets carry no file name, so every language's rules
// apply to every line.
type ImportDetector struct {
	rules []importRule
}

// NewImportDetector creates a new import detector with compiled patterns.
func NewImportDetector() *ImportDetector {
	id := &ImportDetector{}
	for _, p := range SecurityImports {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			continue
		}
		id.rules = append(id.rules, importRule{re: re, reason: p.Reason})
	}
	return id
}

// Match returns the distinct reasons for every import line in text.
func (id *ImportDetector) Match(text string) []string {
	if id == nil {
		return nil
	}

	var reasons []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		if !looksLikeImport(line) {
			continue
		}
		for _, rule := range id.rules {
			if rule.re.MatchString(line) && !seen[rule.reason] {
				seen[rule.reason] = true
				reasons = append(reasons, rule.reason)
			}
		}
	}
	return reasons
}

// looksLikeImport filters prose lines out before regex matching.
func looksLikeImport(line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "import "), strings.HasPrefix(trimmed, "from "),
		strings.HasPrefix(trimmed, "use "), strings.Contains(trimmed, "require("):
		return true
	case strings.HasPrefix(trimmed, "\"") && strings.HasSuffix(trimmed, "\""):
		// line inside a Go import block
		return true
	}
	return false
}
