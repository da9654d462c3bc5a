package request

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"
)

// Query is either a raw query string or structured parameters. Params values
// are scalars or slices of scalars; a slice repeats its key once per element.
type Query struct {
	Raw    string
	Params map[string]any
}

// RawQuery returns a Query that is sent verbatim.
func RawQuery(s string) Query {
	return Query{Raw: s}
}

// Params returns a structured Query.
func Params(p map[string]any) Query {
	return Query{Params: p}
}

// IsZero reports whether q carries no parameters.
func (q Query) IsZero() bool {
	return q.Raw == "" && len(q.Params) == 0
}

// StringifyQuery encodes q with a leading '?', or returns "" for an empty
// query. Structured keys are emitted in sorted order; nil values are
// skipped.
func StringifyQuery(q Query) string {
	if q.Raw != "" {
		if strings.HasPrefix(q.Raw, "?") {
			return q.Raw
		}
		return "?" + q.Raw
	}
	if len(q.Params) == 0 {
		return ""
	}

	keys := make([]string, 0, len(q.Params))
	for k := range q.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	add := func(k string, v any) {
		if b.Len() == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(scalarString(v)))
	}
	for _, k := range keys {
		v := q.Params[k]
		if v == nil {
			continue
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := 0; i < rv.Len(); i++ {
				add(k, rv.Index(i).Interface())
			}
			continue
		}
		add(k, v)
	}
	return b.String()
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
