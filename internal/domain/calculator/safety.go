package calculator

import "regexp"

// unsafePatterns reject host-runtime constructs in expression strings. The
// expression language cannot reach any of these; the scan runs first so
// that a schema carrying them is refused outright.
var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`import\s*\(`),
	regexp.MustCompile(`eval\s*\(`),
	regexp.MustCompile(`Function\s*\(`),
	regexp.MustCompile(`setTimeout\s*\(`),
	regexp.MustCompile(`setInterval\s*\(`),
	regexp.MustCompile(`require\s*\(`),
	regexp.MustCompile(`process\.`),
	regexp.MustCompile(`global\.`),
	regexp.MustCompile(`window\.`),
	regexp.MustCompile(`document\.`),
	regexp.MustCompile(`globalThis`),
	regexp.MustCompile(`__proto__`),
	regexp.MustCompile(`\bprototype\b`),
	regexp.MustCompile(`\bconstructor\b`),
}

// ContainsUnsafeConstruct reports whether src matches any disallowed pattern.
func ContainsUnsafeConstruct(src string) bool {
	for _, p := range unsafePatterns {
		if p.MatchString(src) {
			return true
		}
	}
	return false
}
