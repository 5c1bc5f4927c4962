package gateway

import "strings"

const (
	// countryPrefix is prepended to numbers that do not carry it. The
	// deployment is single-market (Brazil); there is no locale setting.
	countryPrefix = "55"
	jidSuffix     = "@s.whatsapp.net"
)

// NormalizeNumber reduces a free-form phone string to routable digits:
// strip every non-digit, drop one leading zero, prepend the country prefix
// when missing. Idempotent on already-normalized input.
func NormalizeNumber(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	digits = strings.TrimPrefix(digits, "0")
	if !strings.HasPrefix(digits, countryPrefix) {
		digits = countryPrefix + digits
	}
	return digits
}

// NormalizePhone returns the full routable address for a free-form phone
// string, e.g. "0 11 99999-8888" -> "5511999998888@s.whatsapp.net".
func NormalizePhone(raw string) string {
	return NormalizeNumber(raw) + jidSuffix
}
