package apex

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Omit returns the JSON object form of v without the given keys. Slug
// values travel in the URL path, so generated wrappers drop them from the
// payload. Keys are matched the way Param matches them. A v that does not
// encode to an object yields nil.
func Omit(v any, keys ...string) map[string]any {
	obj, ok := toObject(v)
	if !ok {
		return nil
	}
	rv := indirect(reflect.ValueOf(v))
	for _, k := range keys {
		if rv.Kind() == reflect.Struct {
			if sf, ok := structField(rv.Type(), k); ok {
				delete(obj, jsonName(sf))
				continue
			}
		}
		delete(obj, k)
	}
	return obj
}

// Param returns the value of field key of v formatted for a URL path. The
// key is matched against the JSON name of struct fields first, then the
// field name ignoring case. Missing values yield "".
func Param(v any, key string) string {
	val, ok := lookup(v, key)
	if !ok {
		return ""
	}
	return format(val)
}

// PathSegments returns the value of field key of v as escaped path
// segments joined by "/". It serves catch-all slugs, whose value is a list
// of segments; a single value is escaped as one segment.
func PathSegments(v any, key string) string {
	val, ok := lookup(v, key)
	if !ok {
		return ""
	}
	val = indirect(val)
	if val.Kind() != reflect.Slice && val.Kind() != reflect.Array {
		return url.PathEscape(format(val))
	}
	parts := make([]string, val.Len())
	for i := range parts {
		parts[i] = url.PathEscape(format(val.Index(i)))
	}
	return strings.Join(parts, "/")
}

func lookup(v any, key string) (reflect.Value, bool) {
	rv := indirect(reflect.ValueOf(v))
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, false
		}
		val := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		return val, val.IsValid()
	case reflect.Struct:
		if sf, ok := structField(rv.Type(), key); ok {
			return rv.FieldByIndex(sf.Index), true
		}
	}
	return reflect.Value{}, false
}

// indirect follows pointers and interfaces; a nil one yields the zero Value.
func indirect(rv reflect.Value) reflect.Value {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}

// structField finds the exported field whose JSON name is key, or else the
// first untagged field whose name equals key ignoring case.
func structField(rt reflect.Type, key string) (reflect.StructField, bool) {
	var byName reflect.StructField
	found := false
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == key {
			return sf, true
		}
		if !found && name == "" && strings.EqualFold(sf.Name, key) {
			byName, found = sf, true
		}
	}
	return byName, found
}

// jsonName is the object key encoding/json uses for sf.
func jsonName(sf reflect.StructField) string {
	if name, _, _ := strings.Cut(sf.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return sf.Name
}

func format(v reflect.Value) string {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String()
	}
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Slice:
		// catch-all slugs arrive as a list of path segments
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = format(v.Index(i))
		}
		return strings.Join(parts, "/")
	default:
		return fmt.Sprint(v.Interface())
	}
}

// Query converts v into query parameters. Lists repeat the key, nested
// objects are sent as JSON and null values are skipped.
func Query(v any) (url.Values, error) {
	switch q := v.(type) {
	case nil:
		return nil, nil
	case url.Values:
		return q, nil
	}

	obj, ok := toObject(v)
	if !ok {
		return nil, fmt.Errorf("apex: query payload %T is not an object", v)
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make(url.Values)
	for _, k := range keys {
		switch val := obj[k].(type) {
		case nil:
		case []any:
			for _, item := range val {
				values.Add(k, scalar(item))
			}
		default:
			values.Set(k, scalar(val))
		}
	}
	return values, nil
}

func scalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return ""
	default:
		buf, _ := json.Marshal(val)
		return string(buf)
	}
}

func toObject(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal(buf, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
