package normalize

import "sort"

// Strategy is one way of locating the record list inside a response.
// Extract reports ok when it recognised a list, even an empty one.
type Strategy struct {
	Name    string
	Extract func(raw any) (items []any, ok bool)
}

// DefaultChain is the extraction order used by New. First match with records wins.
var DefaultChain = []Strategy{
	{Name: "array", Extract: bareArray},
	{Name: "field", Extract: knownField},
	{Name: "nested", Extract: nestedArray},
	{Name: "single", Extract: singleRecord},
	{Name: "values", Extract: recordValues},
}

// FieldNames are the wrapper fields checked for a record array, in order.
var FieldNames = []string{"data", "cars", "results", "items"}

// ShapeMarkers are the keys whose presence makes an object look like a record.
var ShapeMarkers = []string{"name", "id", "category"}

func bareArray(raw any) ([]any, bool) {
	items, ok := raw.([]any)
	return items, ok
}

func knownField(raw any) ([]any, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	found := false
	firstArray := func(o map[string]any) []any {
		for _, name := range FieldNames {
			items, ok := o[name].([]any)
			if !ok {
				continue
			}
			found = true
			if len(items) > 0 {
				return items
			}
		}
		return nil
	}
	if items := firstArray(obj); items != nil {
		return items, true
	}
	if inner, ok := obj["data"].(map[string]any); ok {
		if items := firstArray(inner); items != nil {
			return items, true
		}
	}
	if found {
		return []any{}, true
	}
	return nil, false
}

// nestedArray searches depth first for an array whose first element looks like a record.
func nestedArray(raw any) ([]any, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	return searchObject(obj)
}

func searchObject(obj map[string]any) ([]any, bool) {
	for _, key := range sortedKeys(obj) {
		switch v := obj[key].(type) {
		case []any:
			if len(v) > 0 && hasMarker(v[0], ShapeMarkers...) {
				return v, true
			}
		case map[string]any:
			if items, ok := searchObject(v); ok {
				return items, true
			}
		}
	}
	return nil, false
}

func singleRecord(raw any) ([]any, bool) {
	if hasMarker(raw, "id", "name") {
		return []any{raw}, true
	}
	return nil, false
}

func recordValues(raw any) ([]any, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	var items []any
	for _, key := range sortedKeys(obj) {
		if hasMarker(obj[key], ShapeMarkers...) {
			items = append(items, obj[key])
		}
	}
	return items, len(items) > 0
}

func hasMarker(v any, markers ...string) bool {
	obj, ok := v.(map[string]any)
	if !ok {
		return false
	}
	for _, m := range markers {
		if _, ok := obj[m]; ok {
			return true
		}
	}
	return false
}

// sortedKeys gives map traversal a stable order.
func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
