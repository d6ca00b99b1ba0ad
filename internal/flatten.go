package internal

import "strconv"

// Flatten returns data with nested object keys joined by ".".
// `{"refUpdate": {"refName": "master"}}` becomes `{"refUpdate.refName": "master"}`.
// Arrays are kept under both `key` and `key[]`, and each element is flattened
// under `key[i]`.
func Flatten(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		flattenInto(out, key, value)
	}
	return out
}

func flattenInto(out map[string]interface{}, path string, value interface{}) {
	switch typed := value.(type) {
	case map[string]interface{}:
		for key, child := range typed {
			flattenInto(out, path+"."+key, child)
		}
	case []interface{}:
		out[path] = typed
		out[path+"[]"] = typed
		for i, child := range typed {
			flattenInto(out, path+"["+strconv.Itoa(i)+"]", child)
		}
	default:
		out[path] = value
	}
}
