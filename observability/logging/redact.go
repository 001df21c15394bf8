package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// Keys that may be emitted verbatim. Everything else carrying cardholder data
// must go through MaskField or MaskPAN before it reaches a log line.
var redactionAllowlist = map[string]struct{}{
	"service":       {},
	"env":           {},
	"message":       {},
	"severity":      {},
	"timestamp":     {},
	"error":         {},
	"reason":        {},
	"component":     {},
	"method":        {},
	"mti":           {},
	"response_code": {},
	"backend":       {},
	"account_id":    {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// RedactionAllowlist returns a sorted copy of the log keys that are allowed to
// be emitted without redaction. Tests use this to ensure cardholder data keys
// remain masked.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskPAN masks a primary account number down to the first six and last four
// digits, the widest disclosure PCI DSS permits. Values too short to be a PAN
// are fully masked.
func MaskPAN(pan string) string {
	trimmed := strings.TrimSpace(pan)
	if trimmed == "" {
		return pan
	}
	if len(trimmed) < 13 || len(trimmed) > 19 {
		return RedactedValue
	}
	return trimmed[:6] + strings.Repeat("*", len(trimmed)-10) + trimmed[len(trimmed)-4:]
}

// MaskValue returns the canonical redacted placeholder for non-empty values.
// Empty values are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key
// is explicitly allowlisted. The original key casing is preserved for
// readability.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// PANField is shorthand for attaching a masked card number to a log line.
func PANField(key, pan string) slog.Attr {
	return slog.String(key, MaskPAN(pan))
}
