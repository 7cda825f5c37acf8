package auth

import "regexp"

var passwordRules = []struct {
	re  *regexp.Regexp
	msg string
}{
	{regexp.MustCompile(`.{8,}`), "Password must be at least 8 characters long."},
	{regexp.MustCompile(`[A-Z]`), "Password must contain an uppercase letter."},
	{regexp.MustCompile(`[a-z]`), "Password must contain a lowercase letter."},
	{regexp.MustCompile(`[0-9]`), "Password must contain a digit."},
	{regexp.MustCompile(`[^A-Za-z0-9]`), "Password must contain a symbol."},
}

// PasswordViolations checks a candidate password against the policy. Every
// rule is evaluated so all violations are reported together, in rule order.
// An empty result means the password is acceptable.
func PasswordViolations(candidate string) []string {
	var violations []string
	for _, rule := range passwordRules {
		if !rule.re.MatchString(candidate) {
			violations = append(violations, rule.msg)
		}
	}
	return violations
}
