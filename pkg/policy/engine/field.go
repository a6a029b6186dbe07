package engine

import (
	"net/url"
	"strconv"
	"strings"

	"bastion-hq/aegis/pkg/waf"
)

// fieldAccessors resolves single-segment field names.
var fieldAccessors = map[string]func(*waf.Request) string{
	"method":     func(r *waf.Request) string { return r.Method },
	"path":       func(r *waf.Request) string { return r.Path },
	"ip":         func(r *waf.Request) string { return r.SourceIP },
	"source_ip":  func(r *waf.Request) string { return r.SourceIP },
	"user_agent": func(r *waf.Request) string { return r.UserAgent },
	"body":       func(r *waf.Request) string { return string(r.Body) },
	"body_size":  func(r *waf.Request) string { return strconv.Itoa(len(r.Body)) },
	"query":      func(r *waf.Request) string { return url.Values(r.Query).Encode() },
}

// prefixAccessors resolves "<prefix>.<rest>" field paths.
var prefixAccessors = map[string]func(*waf.Request, string) string{
	"headers": func(r *waf.Request, name string) string { return r.Header(name) },
	"query":   func(r *waf.Request, name string) string { return r.QueryValue(name) },
	"body":    func(r *waf.Request, path string) string { return lookupBody(r.ParsedBody, path) },
}

// ExtractField returns the value at fieldPath in req. Unknown and missing
// fields resolve to "".
func ExtractField(req *waf.Request, fieldPath string) string {
	if req == nil {
		return ""
	}

	if accessor, ok := fieldAccessors[fieldPath]; ok {
		return accessor(req)
	}

	prefix, rest, found := strings.Cut(fieldPath, ".")
	if !found || rest == "" {
		return ""
	}
	if accessor, ok := prefixAccessors[prefix]; ok {
		return accessor(req, rest)
	}
	return ""
}

// lookupBody walks a dotted path through a parsed JSON body.
func lookupBody(body map[string]any, path string) string {
	if body == nil {
		return ""
	}

	var cur any = body
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return ""
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return ""
			}
			cur = node[i]
		default:
			return ""
		}
	}
	return stringify(cur)
}
