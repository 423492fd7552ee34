package validators

import "strings"

// NormalizeEmail trims and lower-cases an address so two spellings of the
// same mailbox compare equal.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LooksLikeEmail is a cheap shape check: one @ with a dotted domain after it.
func LooksLikeEmail(email string) bool {
	email = NormalizeEmail(email)

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	if strings.Count(email, "@") != 1 {
		return false
	}

	domain := email[at+1:]
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1
}
