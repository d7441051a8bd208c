package provider

import (
	"fmt"
	"sort"
	"strings"
)

// DiagnosticSQL substitutes params into query as plain text for log lines.
// The result is never executed. Longer names are replaced first so that
// :id does not clobber :id2.
func DiagnosticSQL(query string, params map[string]interface{}) string {
	if len(params) == 0 {
		return query
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		placeholder := k
		if !strings.HasPrefix(placeholder, ":") {
			placeholder = ":" + placeholder
		}
		pairs = append(pairs, placeholder, diagnosticValue(params[k]))
	}
	return strings.NewReplacer(pairs...).Replace(query)
}

func diagnosticValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
