package logger

import "strings"

// RedactToken replaces access and refresh tokens in logs. An empty token
// stays empty so its absence is still visible.
func RedactToken(s string) string {
	if s == "" {
		return ""
	}
	return "[REDACTED_TOKEN]"
}

// RedactPassword replaces a password in logs.
func RedactPassword(string) string { return "[REDACTED_PASSWORD]" }

// RedactEmail masks the local part of an address, keeping the domain:
// "ramesh@example.in" becomes "ra***@example.in".
func RedactEmail(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}
	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	lr := []rune(local)
	if len(lr) > 2 {
		local = string(lr[:2]) + "***"
	} else {
		local = "***"
	}
	return local + "@" + domain
}

// RedactPhone keeps only the last four digits of a contact number.
func RedactPhone(s string) string {
	digits := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 4 {
		return "***"
	}
	return "***" + string(digits[len(digits)-4:])
}
