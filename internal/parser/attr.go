package parser

import (
	"strconv"
	"strings"
)

// Attribute reading is deliberately not an XML decoder: the markup this
// engine accepts routinely carries unquoted or single-quoted attributes,
// which encoding/xml rejects outright. A manual scan tolerates all three
// quoting styles and simply fails to a default on anything unreadable.

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// attrBoundary reports whether b can legally precede an attribute name.
// Rejecting letters, digits and '-' keeps "width" from matching inside
// "stroke-width".
func attrBoundary(b byte) bool {
	return isSpaceByte(b) || b == '"' || b == '\''
}

// attrValue extracts the raw value of the named attribute from a tag
// substring. The value may be double-quoted, single-quoted or bare; a bare
// value runs to the next whitespace or tag terminator. Returns false when
// the attribute is absent.
func attrValue(tag, name string) (string, bool) {
	for i := 0; i+len(name) <= len(tag); {
		j := strings.Index(tag[i:], name)
		if j < 0 {
			return "", false
		}
		start := i + j
		i = start + 1

		if start > 0 && !attrBoundary(tag[start-1]) {
			continue
		}

		k := start + len(name)
		for k < len(tag) && isSpaceByte(tag[k]) {
			k++
		}
		if k >= len(tag) || tag[k] != '=' {
			continue
		}
		k++
		for k < len(tag) && isSpaceByte(tag[k]) {
			k++
		}
		if k >= len(tag) {
			return "", true
		}

		switch tag[k] {
		case '"', '\'':
			quote := tag[k]
			k++
			end := strings.IndexByte(tag[k:], quote)
			if end < 0 {
				// Unterminated quote: take the rest of the tag.
				return strings.TrimRight(tag[k:], "/> \t\n\r"), true
			}
			return tag[k : k+end], true
		default:
			end := k
			for end < len(tag) && !isSpaceByte(tag[end]) && tag[end] != '>' && tag[end] != '/' {
				end++
			}
			return tag[k:end], true
		}
	}
	return "", false
}

// floatAttr returns the named attribute as a number, or def when the
// attribute is missing or unparseable. Malformed numbers never become
// errors; the caller's documented default stands in.
func floatAttr(tag, name string, def float64) float64 {
	raw, ok := attrValue(tag, name)
	if !ok {
		return def
	}
	v, ok := parseNumber(raw)
	if !ok {
		return def
	}
	return v
}

// stringAttr returns the named attribute's trimmed value or "".
func stringAttr(tag, name string) string {
	raw, ok := attrValue(tag, name)
	if !ok {
		return ""
	}
	return strings.TrimSpace(raw)
}

// parseNumber reads the leading numeric prefix of s, tolerating unit
// suffixes like "400px" or "12pt". Returns false when no digits lead.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	i := 0
	n := len(s)
	if s[i] == '+' || s[i] == '-' {
		i++
	}

	digits := false
	for i < n && s[i] >= '0' && s[i] <= '9' {
		i++
		digits = true
	}
	if i < n && s[i] == '.' {
		i++
		for i < n && s[i] >= '0' && s[i] <= '9' {
			i++
			digits = true
		}
	}
	if !digits {
		return 0, false
	}

	// Optional exponent, only consumed when complete.
	if i < n && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < n && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < n && s[j] >= '0' && s[j] <= '9' {
			for j < n && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			i = j
		}
	}

	v, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// decodeEntities resolves the small entity set that appears in diagram
// text runs. Unknown entities pass through unchanged.
func decodeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '&' {
			b.WriteByte(s[i])
			i++
			continue
		}
		end := strings.IndexByte(s[i:], ';')
		if end < 0 {
			b.WriteString(s[i:])
			break
		}
		entity := s[i+1 : i+end]
		switch {
		case entity == "amp":
			b.WriteByte('&')
		case entity == "lt":
			b.WriteByte('<')
		case entity == "gt":
			b.WriteByte('>')
		case entity == "quot":
			b.WriteByte('"')
		case entity == "apos":
			b.WriteByte('\'')
		case strings.HasPrefix(entity, "#x") || strings.HasPrefix(entity, "#X"):
			if code, err := strconv.ParseInt(entity[2:], 16, 32); err == nil {
				b.WriteRune(rune(code))
			} else {
				b.WriteString(s[i : i+end+1])
			}
		case strings.HasPrefix(entity, "#"):
			if code, err := strconv.ParseInt(entity[1:], 10, 32); err == nil {
				b.WriteRune(rune(code))
			} else {
				b.WriteString(s[i : i+end+1])
			}
		default:
			b.WriteString(s[i : i+end+1])
		}
		i += end + 1
	}
	return b.String()
}
