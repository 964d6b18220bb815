package request

import (
	"strings"
	"unicode/utf8"
)

// Query maps a query key to every value it was given, in request order.
// A key is present only when it has at least one value.
type Query map[string][]string

// Get returns the first value for key.
func (q Query) Get(key string) (string, bool) {
	vs := q[key]
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// ParseQuery decodes a form-encoded query string. Pairs are separated by '&'
// or ';'. Pairs without '=' or with an empty value are skipped, so a key is
// never stored with an empty value list.
func ParseQuery(raw string) Query {
	q := Query{}
	for raw != "" {
		var pair string
		if idx := strings.IndexAny(raw, "&;"); idx != -1 {
			pair, raw = raw[:idx], raw[idx+1:]
		} else {
			pair, raw = raw, ""
		}

		key, value, ok := strings.Cut(pair, "=")
		if !ok || value == "" {
			continue
		}

		key = unescape(key)
		q[key] = append(q[key], unescape(value))
	}
	return q
}

// unescape decodes '+' and %XX escapes. Broken escapes are kept as written
// and each byte of invalid UTF-8 in the result becomes U+FFFD.
func unescape(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			b.WriteByte(' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return replaceInvalid(b.String())
}

// replaceInvalid swaps every byte that is not part of a valid UTF-8 sequence
// for U+FFFD, one replacement per byte.
func replaceInvalid(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		b.WriteRune(r)
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
