package requester

import (
	"net/url"
	"strings"
)

// Query is an insertion-ordered query string. Providers document their
// authorize URLs with a fixed parameter order, which url.Values cannot keep.
type Query struct {
	keys   []string
	values []string
}

// NewQuery starts an empty ordered query.
func NewQuery() *Query {
	return &Query{}
}

// Add appends a parameter.
func (q *Query) Add(key, value string) *Query {
	q.keys = append(q.keys, key)
	q.values = append(q.values, value)
	return q
}

// AddNonEmpty appends a parameter only when value is set.
func (q *Query) AddNonEmpty(key, value string) *Query {
	if value == "" {
		return q
	}
	return q.Add(key, value)
}

// Encode renders key=value pairs joined by "&".
func (q *Query) Encode() string {
	var sb strings.Builder
	for i, k := range q.keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(EncodeURIComponent(k))
		sb.WriteByte('=')
		sb.WriteString(EncodeURIComponent(q.values[i]))
	}
	return sb.String()
}

// BuildURL joins base and the encoded query.
func BuildURL(base string, q *Query) string {
	if q == nil || len(q.keys) == 0 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeURIComponent escapes s the way browsers escape a URI component:
// spaces become %20 and !'()* are left alone.
func EncodeURIComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}
