package gerrit

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"

	"github.com/tidwall/gjson"
)

// ErrNotObject is returned when a payload is not a JSON object.
var ErrNotObject = errors.New("payload is not a JSON object")

// StringGetter looks up a string field by key. The second return value is
// false when the key is missing or its value is not representable as a string.
type StringGetter interface {
	GetString(key string) (string, bool)
}

// Object is a decoded JSON object that event DTOs read their fields from.
type Object interface {
	StringGetter
	GetObject(key string) (Object, bool)
	GetInt64(key string) (int64, bool)
}

// GetString returns a pointer to the string stored under key, or nil when the
// field is absent.
func GetString(obj StringGetter, key string) *string {
	if obj == nil {
		return nil
	}
	value, ok := obj.GetString(key)
	if !ok {
		return nil
	}
	return &value
}

// RawObject is an Object over raw JSON bytes.
type RawObject struct {
	result gjson.Result
}

// ParseObject wraps data as a RawObject. It fails unless data is a valid JSON object.
func ParseObject(data []byte) (RawObject, error) {
	if !gjson.ValidBytes(data) {
		return RawObject{}, ErrNotObject
	}
	result := gjson.ParseBytes(data)
	if !result.IsObject() {
		return RawObject{}, ErrNotObject
	}
	return RawObject{result: result}, nil
}

// Raw returns the JSON text of the object.
func (o RawObject) Raw() string {
	return o.result.Raw
}

func (o RawObject) GetString(key string) (string, bool) {
	field := o.field(key)
	switch field.Type {
	case gjson.String:
		return field.Str, true
	case gjson.Number, gjson.True, gjson.False:
		return field.Raw, true
	default:
		return "", false
	}
}

func (o RawObject) GetObject(key string) (Object, bool) {
	field := o.field(key)
	if !field.IsObject() {
		return nil, false
	}
	return RawObject{result: field}, true
}

func (o RawObject) GetInt64(key string) (int64, bool) {
	field := o.field(key)
	switch field.Type {
	case gjson.Number:
		return field.Int(), true
	case gjson.String:
		value, err := strconv.ParseInt(field.Str, 10, 64)
		return value, err == nil
	default:
		return 0, false
	}
}

// field looks up a direct child by exact key, so dots or wildcards in a key
// are never treated as a path. With duplicate keys the last one wins, as with
// encoding/json and MapObject.
func (o RawObject) field(key string) gjson.Result {
	var found gjson.Result
	if !o.result.IsObject() {
		return found
	}
	o.result.ForEach(func(k, value gjson.Result) bool {
		if k.String() == key {
			found = value
		}
		return true
	})
	return found
}

// MapObject is an Object over a map decoded by encoding/json.
type MapObject map[string]interface{}

func (o MapObject) GetString(key string) (string, bool) {
	value, ok := o[key]
	if !ok {
		return "", false
	}
	switch typed := value.(type) {
	case string:
		return typed, true
	case json.Number:
		return typed.String(), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(typed), true
	default:
		return "", false
	}
}

func (o MapObject) GetObject(key string) (Object, bool) {
	value, ok := o[key].(map[string]interface{})
	if !ok {
		return nil, false
	}
	return MapObject(value), true
}

func (o MapObject) GetInt64(key string) (int64, bool) {
	switch typed := o[key].(type) {
	case float64:
		if typed != math.Trunc(typed) {
			return 0, false
		}
		return int64(typed), true
	case json.Number:
		value, err := typed.Int64()
		return value, err == nil
	case string:
		value, err := strconv.ParseInt(typed, 10, 64)
		return value, err == nil
	default:
		return 0, false
	}
}
