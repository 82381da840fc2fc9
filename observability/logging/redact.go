package logging

import (
	"log/slog"
	"net/url"
	"strings"
)

// RedactedValue replaces secrets in log attributes.
const RedactedValue = "[REDACTED]"

// MaskField returns an attribute for a value that may carry a secret.
// Authorization headers keep their scheme and DSNs keep everything but the
// password. Any other non-empty value is replaced entirely.
func MaskField(key, value string) slog.Attr {
	value = strings.TrimSpace(value)
	if value == "" {
		return slog.String(key, "")
	}
	switch strings.ToLower(key) {
	case "authorization":
		return slog.String(key, maskAuthorization(value))
	case "dsn":
		return slog.String(key, maskDSN(value))
	default:
		return slog.String(key, RedactedValue)
	}
}

func maskAuthorization(value string) string {
	scheme, _, found := strings.Cut(value, " ")
	if !found {
		return RedactedValue
	}
	return scheme + " " + RedactedValue
}

// maskDSN hides the password of a URL DSN (postgres://user:pw@host/db) or of
// a key/value DSN (host=db password=pw). A sqlite path is returned as is.
func maskDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" && u.Host != "" {
		if q := u.Query(); q.Has("password") {
			q.Set("password", "xxxxx")
			u.RawQuery = q.Encode()
		}
		return u.Redacted()
	}
	fields := strings.Fields(dsn)
	out := make([]string, 0, len(fields))
	quoted := false
	for _, field := range fields {
		if quoted {
			quoted = !strings.HasSuffix(field, "'")
			continue
		}
		key, value, found := strings.Cut(field, "=")
		if found && strings.EqualFold(key, "password") {
			out = append(out, key+"="+RedactedValue)
			quoted = strings.HasPrefix(value, "'") && (len(value) == 1 || !strings.HasSuffix(value, "'"))
			continue
		}
		out = append(out, field)
	}
	return strings.Join(out, " ")
}
