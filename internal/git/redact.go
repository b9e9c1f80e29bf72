package git

import (
	"regexp"
	"strings"
)

// Redacted replaces secrets in logged text.
const Redacted = "***"

// urlCredentials matches the userinfo part of http(s) URLs.
var urlCredentials = regexp.MustCompile(`(https?://)[^@/\s]+@`)

// Redact removes every secret and any URL credentials from s.
func Redact(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, Redacted)
	}
	return urlCredentials.ReplaceAllString(s, "${1}"+Redacted+"@")
}

// RedactAll applies Redact to each element.
func RedactAll(in []string, secrets ...string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = Redact(s, secrets...)
	}
	return out
}
