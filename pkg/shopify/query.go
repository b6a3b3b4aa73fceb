package shopify

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Value is one decoded parameter. List is set when the key repeated or was
// written with a "[]" suffix, and changes how the value is canonicalized.
type Value struct {
	Items []string
	List  bool
}

// Scalar returns the first item, or "" when there is none.
func (v Value) Scalar() string {
	if len(v.Items) == 0 {
		return ""
	}
	return v.Items[0]
}

// Params is a decoded parameter set keyed by parameter name.
type Params map[string]Value

// Get returns the scalar value for key and whether it is present and non-empty.
func (p Params) Get(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s := v.Scalar()
	return s, s != ""
}

func (p Params) Set(key, value string) {
	p[key] = Value{Items: []string{value}}
}

// Without returns a copy of p minus the given keys.
func (p Params) Without(keys ...string) Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Formatted returns a copy where every value is collapsed to its canonical
// string form (see FormatValue).
func (p Params) Formatted() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = Value{Items: []string{FormatValue(v)}}
	}
	return out
}

var querySeparator = regexp.MustCompile(`[&;]\s*`)

// ParseQueryString decodes qs the way Rack does rather than the way net/url
// does: pairs split on "&" or ";", keys are kept verbatim ("name[]" stays
// "name[]"), and a repeated key turns into an ordered list instead of the
// last value winning. A pair without "=" decodes to an empty value.
func ParseQueryString(qs string) Params {
	params := Params{}
	for _, pair := range querySeparator.Split(qs, -1) {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		k = decodeComponent(k)
		v = decodeComponent(v)

		cur, ok := params[k]
		if !ok {
			params[k] = Value{Items: []string{v}}
			continue
		}
		cur.Items = append(cur.Items, v)
		cur.List = true
		params[k] = cur
	}
	return params
}

// CanonicalParams folds "name[]" keys into "name" and marks them as lists.
// The platform signs array parameters under the bare name.
func CanonicalParams(p Params) Params {
	out := make(Params, len(p))
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	// Bare keys first so "name" and "name[]" merge in a stable order.
	sort.Slice(keys, func(i, j int) bool {
		bi, bj := strings.HasSuffix(keys[i], "[]"), strings.HasSuffix(keys[j], "[]")
		if bi != bj {
			return !bi
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		v := p[k]
		name := k
		if strings.HasSuffix(k, "[]") {
			name = strings.TrimSuffix(k, "[]")
			v.List = true
		}
		if cur, ok := out[name]; ok {
			cur.Items = append(cur.Items, v.Items...)
			cur.List = true
			out[name] = cur
			continue
		}
		out[name] = Value{Items: append([]string(nil), v.Items...), List: v.List}
	}
	return out
}

// FormatValue renders a list as ["a", "b"] and a scalar as itself.
func FormatValue(v Value) string {
	if !v.List {
		return v.Scalar()
	}
	return `["` + strings.Join(v.Items, `", "`) + `"]`
}

func decodeComponent(s string) string {
	d, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return d
}
