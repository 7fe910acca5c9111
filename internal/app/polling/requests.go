package polling

import (
	"fmt"
	"regexp"

	"github.com/ethyca/fides-sub009/internal/config"
)

// placeholderPattern matches <name> tokens in declarative request templates.
var placeholderPattern = regexp.MustCompile(`<([a-zA-Z0-9_.-]+)>`)

// BuildRequestParams produces a concrete request from a declarative template
// by substituting <placeholder> tokens in the path, headers, query params,
// and body from the given value map. Unmatched placeholders are left intact
// so they surface verbatim in protocol errors.
func BuildRequestParams(req *config.SaaSRequest, values map[string]any) RequestParams {
	params := RequestParams{
		Method: req.Method,
		Path:   substitute(req.Path, values),
	}

	if len(req.Headers) > 0 {
		params.Headers = make(map[string]string, len(req.Headers))
		for k, v := range req.Headers {
			params.Headers[k] = substitute(v, values)
		}
	}

	if len(req.QueryParams) > 0 {
		params.Query = make(map[string]string, len(req.QueryParams))
		for k, v := range req.QueryParams {
			params.Query[k] = substitute(v, values)
		}
	}

	if req.Body != "" {
		params.Body = []byte(substitute(req.Body, values))
	}

	return params
}

func substitute(template string, values map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		if v, ok := values[key]; ok {
			return fmt.Sprintf("%v", v)
		}
		return match
	})
}

// mergeValues flattens several value maps into one, later maps winning on
// key collisions.
func mergeValues(maps ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}
