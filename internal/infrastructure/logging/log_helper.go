package logging

import "sort"

// logParamsToZapParams flattens extra into sorted key/value pairs so log lines
// are stable between runs.
func logParamsToZapParams(keys map[ExtraKey]any) []any {
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, string(k))
	}
	sort.Strings(names)

	params := make([]any, 0, len(keys)*2)
	for _, name := range names {
		params = append(params, name, keys[ExtraKey(name)])
	}

	return params
}

func logParamsToZeroParams(keys map[ExtraKey]any) map[string]any {
	params := make(map[string]any, len(keys))

	for k, v := range keys {
		params[string(k)] = v
	}

	return params
}
