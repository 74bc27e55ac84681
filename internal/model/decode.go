package model

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// field maps a set of accepted wire spellings onto one destination.
type field struct {
	keys []string
	dst  any
}

// splitFields decodes the known fields of a JSON object and returns whatever
// was left over. The first spelling that decodes wins and every other
// spelling of that field is dropped. When no spelling decodes, the values
// stay in the remainder instead of failing the whole object.
func splitFields(data []byte, fields []field) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	for _, f := range fields {
		decoded := false
		for _, k := range f.keys {
			v, ok := raw[k]
			if !ok {
				continue
			}
			if isNull(v) {
				delete(raw, k)
				continue
			}
			tmp := reflect.New(reflect.TypeOf(f.dst).Elem())
			if err := decodeValue(v, tmp.Interface()); err != nil {
				continue
			}
			reflect.ValueOf(f.dst).Elem().Set(tmp.Elem())
			decoded = true
			break
		}
		if decoded {
			for _, k := range f.keys {
				delete(raw, k)
			}
		}
	}

	if len(raw) == 0 {
		return nil, nil
	}
	return raw, nil
}

func decodeValue(v json.RawMessage, dst any) error {
	if s, ok := dst.(*string); ok {
		return decodeLooseString(v, s)
	}
	return json.Unmarshal(v, dst)
}

// decodeLooseString accepts strings, numbers and booleans.
func decodeLooseString(v json.RawMessage, dst *string) error {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return nil
	}
	switch v[0] {
	case '"':
		return json.Unmarshal(v, dst)
	case '{', '[':
		var s string
		return json.Unmarshal(v, &s)
	default:
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil {
			*dst = n.String()
			return nil
		}
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return err
		}
		if b {
			*dst = "true"
		} else {
			*dst = "false"
		}
		return nil
	}
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func putString(out map[string]any, key, value string) {
	if value != "" {
		out[key] = value
	}
}
