// Package protect detects references to sensitive areas in task text.
//
// A task that mentions credential files, migration directories, auth code or
// security imports is riskier than its wording alone suggests; the routing
// classifier uses the findings as an additional risk signal.
package protect

// DefaultPatterns defines glob patterns for sensitive paths.
var DefaultPatterns = []string{
	"**/auth/**",
	"**/security/**",
	"**/migrations/**",
	"**/infra/**",
	"**/secrets/**",
	"**/credentials/**",
	"**/certs/**",
	"**/.ssh/**",
	"**/terraform/**",
	"**/helm/**",
	"**/k8s/**",
	"**/payments/**",
	"**/billing/**",
}

// DefaultKeywords defines word prefixes that mark sensitive work.
// Matching is done per word, so "auth" matches "authentication" but not "author".
var DefaultKeywords = []string{
	"authenticat",
	"authoriz",
	"oauth",
	"login",
	"password",
	"secret",
	"credential",
	"encrypt",
	"decrypt",
	"jwt",
	"permission",
	"rbac",
	"acl",
	"privilege",
	"certificate",
}

// DefaultFileTypes defines file extensions that are sensitive.
var DefaultFileTypes = []string{
	".sql",
	".tf",
	".pem",
	".key",
	".env",
	".p12",
	".pfx",
	".jks",
	".keystore",
	".crt",
	".cer",
}
